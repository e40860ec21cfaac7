package intake

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, deps Dependencies) *httptest.Server {
	t.Helper()
	svc := newTestService(t, deps)
	h := NewHandler(svc)
	h.now = func() time.Time { return fixedNow }

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		RegisterRoutes(r, h)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := call(t, http.MethodPost, srv.URL+"/api/intake", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	st := decodeBody[SessionResponse](t, resp)
	assert.Equal(t, ScreenPatientInfo, st.Screen)
	assert.Equal(t, QuestionCount, st.TotalQuestions)
	return srv.URL + "/api/intake/" + st.ID.String()
}

func TestHandler_IntakeFlow(t *testing.T) {
	srv := newTestServer(t, Dependencies{
		Analyzer: newTestAnalyzer(&fakeAnalysisClient{summary: "頭痛の訴え"}, false),
	})
	base := createSession(t, srv)

	resp := call(t, http.MethodPost, base+"/patient", PatientInfo{LastName: "山田"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "患者情報を確認してください", errBody.Error)
	assert.NotEmpty(t, errBody.Fields)

	resp = call(t, http.MethodPost, base+"/patient", validPatient())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeBody[SessionResponse](t, resp)
	assert.Equal(t, ScreenInterview, st.Screen)
	assert.Equal(t, Questions[0], st.CurrentQuestion)

	resp = call(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "回答を入力してください", decodeBody[ErrorResponse](t, resp).Error)

	resp = call(t, http.MethodPut, base+"/draft", DraftRequest{Text: "頭痛"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "頭痛", decodeBody[SessionResponse](t, resp).Draft)

	resp = call(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decodeBody[SessionResponse](t, resp).QuestionIndex)

	for _, text := range fiveAnswers[1:] {
		resp = call(t, http.MethodPost, base+"/next", DraftRequest{Text: text})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	st = decodeBody[SessionResponse](t, resp)
	assert.Equal(t, ScreenConfirmation, st.Screen)
	assert.Empty(t, st.CurrentQuestion)

	require.Eventually(t, func() bool {
		got := decodeBody[SessionResponse](t, call(t, http.MethodGet, base, nil))
		return got.Analysis != nil
	}, 2*time.Second, 10*time.Millisecond)

	resp = call(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeBody[SessionResponse](t, resp)
	assert.Equal(t, ScreenCompletion, st.Screen)
	assert.Equal(t, "頭痛の訴え", st.Analysis.Summary)
	assert.Equal(t, UrgencyUrgent, st.Analysis.UrgencyAssessment.Level)

	resp = call(t, http.MethodPost, base+"/doctor", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ScreenDoctor, decodeBody[SessionResponse](t, resp).Screen)

	resp = call(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeBody[SessionResponse](t, resp)
	assert.Equal(t, ScreenPatientInfo, st.Screen)
	assert.Nil(t, st.PatientInfo)
	assert.Empty(t, st.Answers)
	assert.Nil(t, st.Analysis)

	resp = call(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = call(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_CompleteWhileAnalyzingConflicts(t *testing.T) {
	client := &fakeAnalysisClient{summary: "要約", release: make(chan struct{})}
	srv := newTestServer(t, Dependencies{Analyzer: newTestAnalyzer(client, false)})
	base := createSession(t, srv)

	call(t, http.MethodPost, base+"/patient", validPatient())
	for _, text := range fiveAnswers {
		require.Equal(t, http.StatusOK, call(t, http.MethodPost, base+"/next", DraftRequest{Text: text}).StatusCode)
	}

	resp := call(t, http.MethodPost, base+"/complete", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	close(client.release)
}

func TestHandler_NextWithBlankTextKeepsDraft(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	base := createSession(t, srv)

	require.Equal(t, http.StatusOK, call(t, http.MethodPost, base+"/patient", validPatient()).StatusCode)
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, base+"/next", DraftRequest{Text: "頭痛"}).StatusCode)
	resp := call(t, http.MethodPost, base+"/back", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	before := decodeBody[SessionResponse](t, resp)
	require.Equal(t, "頭痛", before.Draft)

	resp = call(t, http.MethodPost, base+"/next", DraftRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "回答を入力してください", decodeBody[ErrorResponse](t, resp).Error)

	resp = call(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	after := decodeBody[SessionResponse](t, resp)
	assert.Equal(t, "頭痛", after.Draft)
	assert.Equal(t, 0, after.QuestionIndex)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestHandler_BadSessionID(t *testing.T) {
	srv := newTestServer(t, Dependencies{})

	resp := call(t, http.MethodGet, srv.URL+"/api/intake/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = call(t, http.MethodPost, srv.URL+"/api/intake/6f1c2c8e-8a44-4f0e-9d55-0c6f3f7f2b10/next", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_Catalog(t *testing.T) {
	srv := newTestServer(t, Dependencies{})

	resp := call(t, http.MethodGet, srv.URL+"/api/intake/catalog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	catalog := decodeBody[Catalog](t, resp)
	assert.Equal(t, Questions, catalog.Questions)
	assert.Equal(t, MaxAudioSize, catalog.Audio.MaxBytes)
	assert.Equal(t, "ja-JP", catalog.Language)
}

func uploadAudio(t *testing.T, url, filename, contentType string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandler_UploadAudio(t *testing.T) {
	stt := &fakeTranscriber{text: "喉が痛いです"}
	srv := newTestServer(t, Dependencies{Transcriber: stt})
	base := createSession(t, srv)
	call(t, http.MethodPost, base+"/patient", validPatient())

	resp := uploadAudio(t, base+"/audio", "a.ogg", "audio/ogg", []byte("OggS"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "サポートされていないファイル形式です。", decodeBody[ErrorResponse](t, resp).Error)

	resp = uploadAudio(t, base+"/audio", "a.webm", "audio/webm;codecs=opus", []byte("webm"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeBody[SessionResponse](t, resp)
	assert.Equal(t, "喉が痛いです ", st.Draft)
	assert.False(t, st.Busy)

	files := stt.received()
	require.Len(t, files, 1)
	assert.Equal(t, "audio/webm;codecs=opus", files[0].MIMEType)
}

func TestHandler_SpeechSocket(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	base := createSession(t, srv)
	call(t, http.MethodPost, base+"/patient", validPatient())

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/speech"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(speechFrame{Type: frameResult, Text: "ずつう", Confidence: 0.4}))
	require.NoError(t, conn.WriteJSON(speechFrame{Type: frameResult, Text: "頭痛がします", IsFinal: true, Confidence: 0.93}))
	require.NoError(t, conn.WriteJSON(speechFrame{Type: frameStop}))

	var frames []speechFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f speechFrame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		frames = append(frames, f)
	}

	require.NotEmpty(t, frames)
	assert.Equal(t, frameStart, frames[0].Type)
	assert.Equal(t, frameStop, frames[len(frames)-1].Type)

	var states []State
	for _, f := range frames {
		if f.Type == frameState {
			require.NotNil(t, f.Session)
			states = append(states, *f.Session)
		}
	}
	require.Len(t, states, 4)
	assert.True(t, states[0].Voice.Listening)
	assert.Equal(t, "ずつう", states[1].Voice.Interim)
	assert.Equal(t, "頭痛がします ", states[2].Draft)
	assert.False(t, states[3].Voice.Listening)

	st := decodeBody[SessionResponse](t, call(t, http.MethodGet, base, nil))
	assert.Equal(t, "頭痛がします ", st.Draft)
	assert.Equal(t, QualityExcellent, st.Voice.Quality)
}

func TestHandler_SpeechSocketUnknownSession(t *testing.T) {
	srv := newTestServer(t, Dependencies{})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/intake/6f1c2c8e-8a44-4f0e-9d55-0c6f3f7f2b10/speech"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_QuestionAudio(t *testing.T) {
	tts := &fakeTTS{}
	srv := newTestServer(t, Dependencies{TTS: tts})
	base := createSession(t, srv)

	resp := call(t, http.MethodGet, base+"/question/audio", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	call(t, http.MethodPost, base+"/patient", validPatient())
	resp = call(t, http.MethodGet, base+"/question/audio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, []string{Questions[0]}, tts.spoken())
}
