package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clinic-intake/internal/observability"
	"clinic-intake/internal/platform/apperror"
)

// Transcriber turns an uploaded recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioFile) (string, error)
}

// TTSClient defines the interface for Text-to-Speech
type TTSClient interface {
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}

// ReportService delivers a completed intake to clinical staff.
type ReportService interface {
	SendDoctorReport(ctx context.Context, h Handoff) error
}

const transcriptionFailedMessage = "音声ファイルの文字起こしに失敗しました。もう一度お試しいただくか、入力してください。"

type Service interface {
	CreateSession(ctx context.Context) (*State, error)
	GetSession(ctx context.Context, id uuid.UUID) (*State, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	Dispatch(ctx context.Context, id uuid.UUID, e Event) (*State, error)
	UploadAudio(ctx context.Context, id uuid.UUID, audio AudioFile) (*State, error)
	Dictate(ctx context.Context, id uuid.UUID, rec Recognizer, onUpdate func(State)) error
	QuestionAudio(ctx context.Context, id uuid.UUID) ([]byte, error)
	HandOff(ctx context.Context, id uuid.UUID) error
	Shutdown(ctx context.Context) error
}

// Dependencies wires the collaborators of the intake service. Only Repository and
// Analyzer are required; a nil Transcriber, TTS or Reporter disables that feature.
type Dependencies struct {
	Repository      Repository
	Analyzer        *Analyzer
	Transcriber     Transcriber
	TTS             TTSClient
	VoiceID         string
	Reporter        ReportService
	AnalysisTimeout time.Duration
}

type service struct {
	repo            Repository
	analyzer        *Analyzer
	stt             Transcriber
	tts             TTSClient
	voiceID         string
	reporter        ReportService
	analysisTimeout time.Duration
	now             func() time.Time

	// background work outlives the request that started it
	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

func NewService(deps Dependencies) Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &service{
		repo:            deps.Repository,
		analyzer:        deps.Analyzer,
		stt:             deps.Transcriber,
		tts:             deps.TTS,
		voiceID:         deps.VoiceID,
		reporter:        deps.Reporter,
		analysisTimeout: deps.AnalysisTimeout,
		now:             time.Now,
		bgCtx:           ctx,
		bgCancel:        cancel,
	}
}

func (s *service) CreateSession(ctx context.Context) (*State, error) {
	st := NewState(uuid.New(), s.now())
	if err := s.repo.Save(ctx, st); err != nil {
		return nil, err
	}
	observability.LoggerFromContext(ctx).Info().Str("session_id", st.ID.String()).Msg("intake session created")
	return &st, nil
}

func (s *service) GetSession(ctx context.Context, id uuid.UUID) (*State, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Dispatch applies e to the stored session. Entering Confirmation without an
// analysis starts one in the background within the same update, so a session
// never has two analyses in flight.
func (s *service) Dispatch(ctx context.Context, id uuid.UUID, e Event) (*State, error) {
	var startAnalysis bool
	st, err := s.repo.Update(ctx, id, func(cur State) (State, error) {
		next, err := Reduce(cur, e)
		if err != nil {
			return cur, err
		}
		if next.NeedsAnalysis() {
			if next, err = Reduce(next, StartAnalysis{}); err != nil {
				return cur, err
			}
			startAnalysis = true
		}
		next.UpdatedAt = s.now()
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	if startAnalysis {
		s.runAnalysis(*st)
	}
	if _, ok := e.(Complete); ok {
		s.handOffAsync(*st)
	}
	return st, nil
}

func (s *service) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.bgCtx)
	}()
}

func (s *service) runAnalysis(st State) {
	s.background(func(ctx context.Context) {
		if s.analysisTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.analysisTimeout)
			defer cancel()
		}
		logger := log.With().Str("session_id", st.ID.String()).Uint64("generation", st.Generation).Logger()

		analysis := s.analyzer.Analyze(ctx, *st.PatientInfo, st.Answers)

		_, err := s.repo.Update(context.WithoutCancel(ctx), st.ID, func(cur State) (State, error) {
			next, err := Reduce(cur, AnalysisFinished{Generation: st.Generation, Analysis: analysis})
			if err != nil {
				return cur, err
			}
			next.UpdatedAt = s.now()
			return next, nil
		})
		switch {
		case err == nil:
			logger.Info().
				Str("urgency", string(analysis.Result.UrgencyAssessment.Level)).
				Bool("fallback", analysis.Warning != "").
				Msg("analysis finished")
		case errors.Is(err, ErrStaleResult), apperror.TypeOf(err) == apperror.ErrorTypeNotFound:
			logger.Debug().Err(err).Msg("discarding analysis for a session that moved on")
		default:
			logger.Error().Err(err).Msg("failed to store analysis")
		}
	})
}

func (s *service) handOffAsync(st State) {
	if s.reporter == nil {
		return
	}
	h, err := handoffOf(st, s.now())
	if err != nil {
		log.Error().Err(err).Str("session_id", st.ID.String()).Msg("cannot build doctor handoff")
		return
	}
	s.background(func(ctx context.Context) {
		if err := s.reporter.SendDoctorReport(ctx, h); err != nil {
			log.Error().Err(err).Str("session_id", h.SessionID).Msg("failed to send doctor report")
			return
		}
		log.Info().Str("session_id", h.SessionID).Msg("doctor report sent")
	})
}

func handoffOf(st State, at time.Time) (Handoff, error) {
	if st.Screen != ScreenCompletion && st.Screen != ScreenDoctor {
		return Handoff{}, fmt.Errorf("%w: hand off on %s", ErrInvalidTransition, st.Screen)
	}
	if st.PatientInfo == nil || st.Analysis == nil {
		return Handoff{}, ErrAnalysisMissing
	}
	return Handoff{
		SessionID:   st.ID.String(),
		Patient:     *st.PatientInfo,
		Answers:     st.Answers.clone(),
		Analysis:    *st.Analysis,
		CompletedAt: at,
	}, nil
}

// HandOff resends the completed intake to the doctor and waits for delivery.
func (s *service) HandOff(ctx context.Context, id uuid.UUID) error {
	if s.reporter == nil {
		return apperror.NewConflictError("doctor handoff is not configured")
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	h, err := handoffOf(*st, s.now())
	if err != nil {
		return err
	}
	if err := s.reporter.SendDoctorReport(ctx, h); err != nil {
		return apperror.NewExternalError("医師への送信に失敗しました", err)
	}
	return nil
}

// UploadAudio transcribes a recorded answer and appends it to the draft.
// Transcription failures end up as a voice warning on the session, not as an error.
func (s *service) UploadAudio(ctx context.Context, id uuid.UUID, audio AudioFile) (*State, error) {
	if err := ValidateAudio(audio); err != nil {
		return nil, err
	}
	if s.stt == nil {
		return nil, apperror.NewConflictError("audio transcription is not configured")
	}
	started, err := s.Dispatch(ctx, id, TranscriptionStarted{})
	if err != nil {
		return nil, err
	}

	finished := TranscriptionFinished{Generation: started.Generation}
	text, err := s.stt.Transcribe(ctx, audio)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("file", audio.Name).Msg("transcription failed")
		finished.Failure = transcriptionFailedMessage
	} else {
		finished.Transcript = strings.TrimSpace(text)
	}

	// the busy flag must be cleared even when the client went away
	st, err := s.Dispatch(context.WithoutCancel(ctx), id, finished)
	if errors.Is(err, ErrStaleResult) {
		return s.repo.GetByID(ctx, id)
	}
	return st, err
}

// Dictate runs a recognizer against the current question until the recognizer
// closes, reports an error, ctx ends, or the session refuses a fragment.
func (s *service) Dictate(ctx context.Context, id uuid.UUID, rec Recognizer, onUpdate func(State)) error {
	notify := func(st *State) {
		if onUpdate != nil && st != nil {
			onUpdate(*st)
		}
	}

	if err := rec.Start(ctx); err != nil {
		st, _ := s.Dispatch(ctx, id, SpeechFailed{Err: err})
		notify(st)
		return err
	}
	st, err := s.Dispatch(ctx, id, ListeningChanged{Listening: true})
	if err != nil {
		_ = rec.Stop()
		return err
	}
	notify(st)

	defer func() {
		if st, err := s.Dispatch(context.WithoutCancel(ctx), id, ListeningChanged{Listening: false}); err == nil {
			notify(st)
		}
		_ = rec.Stop()
	}()

	results, errs := rec.Results(), rec.Errors()
	for {
		var e Event
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-results:
			if !ok {
				return nil
			}
			e = SpeechFragment{Result: r}
		case recErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			e = SpeechFailed{Err: recErr}
		}

		st, err := s.Dispatch(ctx, id, e)
		if err != nil {
			return err
		}
		notify(st)
		if _, failed := e.(SpeechFailed); failed {
			return nil
		}
	}
}

// QuestionAudio reads the current question aloud.
func (s *service) QuestionAudio(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.tts == nil {
		return nil, apperror.NewConflictError("question read-out is not configured")
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	question := st.CurrentQuestion()
	if question == "" {
		return nil, fmt.Errorf("%w: read question on %s", ErrInvalidTransition, st.Screen)
	}
	audio, err := s.tts.Synthesize(ctx, question, s.voiceID)
	if err != nil {
		return nil, apperror.NewExternalError("音声の生成に失敗しました", err)
	}
	return audio, nil
}

// Shutdown waits for background analyses and handoffs. When ctx ends first the
// remaining work is cancelled.
func (s *service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.bgCancel()
		return nil
	case <-ctx.Done():
		s.bgCancel()
		return ctx.Err()
	}
}
