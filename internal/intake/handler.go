package intake

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clinic-intake/internal/observability"
	"clinic-intake/internal/platform/apperror"
)

type Handler struct {
	svc Service
	now func() time.Time
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// SessionResponse is a session plus what a front end needs to render it.
type SessionResponse struct {
	State
	CurrentQuestion string `json:"currentQuestion,omitempty"`
	TotalQuestions  int    `json:"totalQuestions"`
}

func newSessionResponse(st State) SessionResponse {
	return SessionResponse{
		State:           st,
		CurrentQuestion: st.CurrentQuestion(),
		TotalQuestions:  QuestionCount,
	}
}

type DraftRequest struct {
	Text string `json:"text"`
}

type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch apperror.TypeOf(err) {
	case apperror.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperror.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperror.ErrorTypeConflict:
		return http.StatusConflict
	case apperror.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	resp := ErrorResponse{Error: apperror.MessageOf(err), Fields: FieldErrors(err)}
	if status == http.StatusInternalServerError {
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, apperror.NewValidationError("invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, e Event) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Dispatch(r.Context(), id, e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(*st))
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.WrapValidationError("invalid request body", err)
	}
	return nil
}

func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewCatalog())
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.CreateSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(*st))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(*st))
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SubmitPatientInfo(w http.ResponseWriter, r *http.Request) {
	var info PatientInfo
	if err := decode(r, &info); err != nil {
		writeError(w, r, err)
		return
	}
	h.dispatch(w, r, SubmitPatientInfo{Info: info, At: h.now()})
}

func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.dispatch(w, r, EditDraft{Text: req.Text})
}

// Next saves the draft, optionally replaced by a text sent with the request.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	advance := Advance{At: h.now()}
	if r.ContentLength != 0 {
		var req DraftRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		advance.Text = &req.Text
	}
	h.dispatch(w, r, advance)
}

func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, GoBack{At: h.now()})
}

func (h *Handler) EditAnswers(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, EditAnswers{})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, Complete{})
}

func (h *Handler) ViewDoctor(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, ViewDoctor{})
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, Reset{})
}

func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	// room for the multipart envelope around a maximum-size file
	r.Body = http.MaxBytesReader(w, r.Body, MaxAudioSize+1<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, ErrAudioTooLarge)
			return
		}
		writeError(w, r, apperror.WrapValidationError("invalid multipart form", err))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, r, apperror.WrapValidationError("missing audio file", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, apperror.NewInternalError("failed to read audio file", err))
		return
	}

	st, err := h.svc.UploadAudio(r.Context(), id, AudioFile{
		Name:     header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(*st))
}

// Speech upgrades to a websocket and dictates into the current question until
// the browser stops or the socket closes.
func (h *Handler) Speech(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.GetSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Warn().Err(err).Msg("speech socket upgrade failed")
		return
	}
	rec := newWSRecognizer(conn)
	defer rec.Close()

	if err := h.svc.Dictate(r.Context(), id, rec, rec.Publish); err != nil {
		observability.LoggerFromContext(r.Context()).Debug().Err(err).Msg("dictation ended")
		rec.Fail(apperror.MessageOf(err))
	}
}

func (h *Handler) QuestionAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	audio, err := h.svc.QuestionAudio(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write(audio)
}

func (h *Handler) HandOff(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.svc.HandOff(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/intake/catalog", h.Catalog)
	r.Post("/intake", h.CreateSession)
	r.Route("/intake/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Post("/patient", h.SubmitPatientInfo)
		r.Put("/draft", h.UpdateDraft)
		r.Post("/next", h.Next)
		r.Post("/back", h.Back)
		r.Post("/edit", h.EditAnswers)
		r.Post("/complete", h.Complete)
		r.Post("/doctor", h.ViewDoctor)
		r.Post("/reset", h.Reset)
		r.Post("/audio", h.UploadAudio)
		r.Get("/speech", h.Speech)
		r.Get("/question/audio", h.QuestionAudio)
		r.Post("/handoff", h.HandOff)
	})
}
