package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// kiosk front end is served from a different origin, same as the REST CORS policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame types exchanged on the speech socket.
const (
	frameResult = "result"
	frameError  = "error"
	frameStart  = "start"
	frameStop   = "stop"
	frameState  = "state"
)

type speechFrame struct {
	Type       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	IsFinal    bool    `json:"isFinal,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
	Session    *State  `json:"session,omitempty"`
}

var errRecognizerClosed = errors.New("speech socket closed")

// wsRecognizer is a Recognizer fed by the browser's speech engine over a websocket.
// The browser streams result and error frames; the server answers with start/stop
// control frames and session state updates.
type wsRecognizer struct {
	conn    *websocket.Conn
	send    chan speechFrame
	results chan SpeechResult
	errs    chan error

	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newWSRecognizer(conn *websocket.Conn) *wsRecognizer {
	r := &wsRecognizer{
		conn:       conn,
		send:       make(chan speechFrame, 32),
		results:    make(chan SpeechResult, 16),
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go r.writePump()
	go r.readPump()
	return r
}

func (r *wsRecognizer) Start(context.Context) error {
	if !r.enqueue(speechFrame{Type: frameStart}) {
		return errRecognizerClosed
	}
	return nil
}

func (r *wsRecognizer) Stop() error {
	if !r.enqueue(speechFrame{Type: frameStop}) {
		return errRecognizerClosed
	}
	return nil
}

func (r *wsRecognizer) Results() <-chan SpeechResult { return r.results }

func (r *wsRecognizer) Errors() <-chan error { return r.errs }

// Publish pushes a session snapshot to the browser. Snapshots are dropped when the
// socket is closed or the browser is not keeping up.
func (r *wsRecognizer) Publish(st State) {
	r.enqueue(speechFrame{Type: frameState, Session: &st})
}

// Fail tells the browser why dictation ended.
func (r *wsRecognizer) Fail(message string) {
	r.enqueue(speechFrame{Type: frameError, Error: message})
}

// Close flushes queued frames and closes the socket.
func (r *wsRecognizer) Close() {
	r.closeOnce.Do(func() { close(r.done) })
	<-r.writerDone
}

func (r *wsRecognizer) enqueue(f speechFrame) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.send <- f:
		return true
	default:
		log.Warn().Str("frame", f.Type).Msg("speech socket send buffer full, dropping frame")
		return false
	}
}

func (r *wsRecognizer) readPump() {
	defer close(r.results)

	r.conn.SetReadLimit(maxMessageSize)
	_ = r.conn.SetReadDeadline(time.Now().Add(pongWait))
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("speech socket read failed")
			}
			return
		}

		var f speechFrame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Debug().Err(err).Msg("ignoring malformed speech frame")
			continue
		}

		switch f.Type {
		case frameResult:
			select {
			case r.results <- SpeechResult{Text: f.Text, IsFinal: f.IsFinal, Confidence: f.Confidence}:
			case <-r.done:
				return
			}
		case frameError:
			select {
			case r.errs <- &SpeechError{Code: f.Error}:
			case <-r.done:
				return
			}
		case frameStop:
			return
		default:
			log.Debug().Str("type", f.Type).Msg("ignoring unknown speech frame")
		}
	}
}

func (r *wsRecognizer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = r.conn.Close()
		close(r.writerDone)
	}()

	for {
		select {
		case f := <-r.send:
			if err := r.write(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := r.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.done:
			for {
				select {
				case f := <-r.send:
					if err := r.write(f); err != nil {
						return
					}
				default:
					_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = r.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (r *wsRecognizer) write(f speechFrame) error {
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return r.conn.WriteJSON(f)
}
