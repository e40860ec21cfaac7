package intake

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinic-intake/internal/platform/apperror"
)

var (
	ErrEmptyAnswer       = apperror.NewValidationError("回答を入力してください")
	ErrInvalidTransition = apperror.NewConflictError("not allowed on the current screen")
	ErrBusy              = apperror.NewConflictError("処理中です。しばらくお待ちください")
	ErrAnalysisMissing   = apperror.NewConflictError("AI分析が完了していません")
	ErrAnalysisNotNeeded = apperror.NewConflictError("analysis is not pending")
	ErrStaleResult       = apperror.NewConflictError("result belongs to an earlier session generation")
)

// State is one intake session. Generation changes whenever in-flight work must be
// discarded (reset, answers reopened); async results carry the generation they
// were started under.
type State struct {
	ID            uuid.UUID       `json:"id"`
	Generation    uint64          `json:"generation"`
	Screen        Screen          `json:"screen"`
	PatientInfo   *PatientInfo    `json:"patientInfo"`
	Answers       Answers         `json:"answers"`
	Analysis      *AnalysisResult `json:"analysis"`
	Busy          bool            `json:"isProcessing"`
	QuestionIndex int             `json:"questionIndex"`
	Draft         string          `json:"draft"`
	Voice         VoiceState      `json:"voice"`
	Warning       string          `json:"warning,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func NewState(id uuid.UUID, now time.Time) State {
	return State{
		ID:        id,
		Screen:    ScreenPatientInfo,
		Answers:   Answers{},
		Voice:     newVoiceState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CurrentQuestion is the question being answered, or "" outside the interview.
func (s State) CurrentQuestion() string {
	if s.Screen != ScreenInterview || s.QuestionIndex < 0 || s.QuestionIndex >= QuestionCount {
		return ""
	}
	return Questions[s.QuestionIndex]
}

// NeedsAnalysis reports whether entering this state should start an analysis.
func (s State) NeedsAnalysis() bool {
	return s.Screen == ScreenConfirmation &&
		s.Analysis == nil &&
		!s.Busy &&
		s.PatientInfo != nil &&
		len(s.Answers) > 0
}

func (s State) clone() State {
	out := s
	if s.PatientInfo != nil {
		info := *s.PatientInfo
		out.PatientInfo = &info
	}
	if s.Analysis != nil {
		analysis := *s.Analysis
		analysis.UrgencyAssessment.RecommendedDepartments = slices.Clone(s.Analysis.UrgencyAssessment.RecommendedDepartments)
		out.Analysis = &analysis
	}
	out.Answers = s.Answers.clone()
	out.Voice = s.Voice.clone()
	return out
}

// Event is a user action or async completion applied to a session.
type Event interface {
	apply(s State) (State, error)
}

// Reduce applies e to s. s is never modified; on error s is returned as it was.
func Reduce(s State, e Event) (State, error) {
	next, err := e.apply(s.clone())
	if err != nil {
		return s, err
	}
	return next, nil
}

func transitionError(s State, action string) error {
	return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, action, s.Screen)
}

// enterQuestion moves to index and restores whatever was saved there.
func (s State) enterQuestion(index int) State {
	s.Screen = ScreenInterview
	s.QuestionIndex = index
	s.Draft = s.Answers.Get(index).Answer
	s.Voice = newVoiceState()
	s.Warning = ""
	return s
}

func (s State) invalidateAnalysis() State {
	s.Analysis = nil
	s.Busy = false
	s.Generation++
	s.Warning = ""
	return s
}

func (s State) saveDraft(at time.Time) (State, error) {
	answers, err := s.Answers.Save(s.QuestionIndex, s.Draft, at.Format(AnswerTimestampLayout))
	if err != nil {
		return s, err
	}
	s.Answers = answers
	return s, nil
}

type SubmitPatientInfo struct {
	Info PatientInfo
	At   time.Time
}

func (e SubmitPatientInfo) apply(s State) (State, error) {
	if s.Screen != ScreenPatientInfo {
		return s, transitionError(s, "submit patient info")
	}
	if err := ValidatePatientInfo(e.Info, e.At); err != nil {
		return s, err
	}
	info := e.Info
	s.PatientInfo = &info
	return s.enterQuestion(0), nil
}

type EditDraft struct {
	Text string
}

func (e EditDraft) apply(s State) (State, error) {
	if s.Screen != ScreenInterview {
		return s, transitionError(s, "edit draft")
	}
	s.Draft = e.Text
	return s, nil
}

// Advance saves the draft and moves on. A non-nil Text replaces the draft first;
// a rejected advance leaves the previous draft in place.
type Advance struct {
	At   time.Time
	Text *string
}

func (e Advance) apply(s State) (State, error) {
	if s.Screen != ScreenInterview {
		return s, transitionError(s, "advance")
	}
	if s.Busy {
		return s, ErrBusy
	}
	if e.Text != nil {
		s.Draft = *e.Text
	}
	if strings.TrimSpace(s.Draft) == "" {
		return s, ErrEmptyAnswer
	}
	s, err := s.saveDraft(e.At)
	if err != nil {
		return s, err
	}
	if s.QuestionIndex >= QuestionCount-1 {
		s.Screen = ScreenConfirmation
		s.Draft = ""
		s.Voice = newVoiceState()
		s.Warning = ""
		return s, nil
	}
	return s.enterQuestion(s.QuestionIndex + 1), nil
}

type GoBack struct {
	At time.Time
}

func (e GoBack) apply(s State) (State, error) {
	switch s.Screen {
	case ScreenInterview:
		if s.Busy {
			return s, ErrBusy
		}
		saved, err := s.saveDraft(e.At)
		if err != nil {
			return s, err
		}
		s = saved
		if s.QuestionIndex == 0 {
			s.Screen = ScreenPatientInfo
			s.Draft = ""
			s.Voice = newVoiceState()
			return s, nil
		}
		return s.enterQuestion(s.QuestionIndex - 1), nil
	case ScreenConfirmation:
		s = s.invalidateAnalysis()
		return s.enterQuestion(max(len(s.Answers)-1, 0)), nil
	case ScreenDoctor:
		s.Screen = ScreenCompletion
		return s, nil
	default:
		return s, transitionError(s, "go back")
	}
}

// EditAnswers reopens the interview from the first question. The analysis is
// discarded so it is regenerated from the edited answers.
type EditAnswers struct{}

func (EditAnswers) apply(s State) (State, error) {
	if s.Screen != ScreenConfirmation {
		return s, transitionError(s, "edit answers")
	}
	s = s.invalidateAnalysis()
	return s.enterQuestion(0), nil
}

type StartAnalysis struct{}

func (StartAnalysis) apply(s State) (State, error) {
	switch {
	case s.Screen != ScreenConfirmation:
		return s, transitionError(s, "start analysis")
	case s.Busy:
		return s, ErrBusy
	case !s.NeedsAnalysis():
		return s, ErrAnalysisNotNeeded
	}
	s.Busy = true
	s.Warning = ""
	return s, nil
}

type AnalysisFinished struct {
	Generation uint64
	Analysis   Analysis
}

func (e AnalysisFinished) apply(s State) (State, error) {
	if e.Generation != s.Generation || s.Screen != ScreenConfirmation || !s.Busy || s.Analysis != nil {
		return s, ErrStaleResult
	}
	result := e.Analysis.Result
	s.Analysis = &result
	s.Busy = false
	s.Warning = e.Analysis.Warning
	return s, nil
}

type Complete struct{}

func (Complete) apply(s State) (State, error) {
	if s.Screen != ScreenConfirmation {
		return s, transitionError(s, "complete")
	}
	if s.Busy {
		return s, ErrBusy
	}
	if s.Analysis == nil {
		return s, ErrAnalysisMissing
	}
	s.Screen = ScreenCompletion
	return s, nil
}

type ViewDoctor struct{}

func (ViewDoctor) apply(s State) (State, error) {
	if s.Screen != ScreenCompletion {
		return s, transitionError(s, "view doctor screen")
	}
	s.Screen = ScreenDoctor
	return s, nil
}

// Reset is accepted on every screen and returns the session to its first screen.
type Reset struct{}

func (Reset) apply(s State) (State, error) {
	fresh := NewState(s.ID, s.CreatedAt)
	fresh.Generation = s.Generation + 1
	fresh.UpdatedAt = s.UpdatedAt
	return fresh, nil
}

type SpeechFragment struct {
	Result SpeechResult
}

func (e SpeechFragment) apply(s State) (State, error) {
	if s.Screen != ScreenInterview {
		return s, transitionError(s, "speech result")
	}
	voice, final := s.Voice.withResult(e.Result)
	s.Voice = voice
	if final != "" {
		s.Draft += final + " "
	}
	return s, nil
}

type SpeechFailed struct {
	Err error
}

func (e SpeechFailed) apply(s State) (State, error) {
	if s.Screen != ScreenInterview {
		return s, transitionError(s, "speech error")
	}
	s.Voice = s.Voice.withError(e.Err)
	return s, nil
}

type ListeningChanged struct {
	Listening bool
}

func (e ListeningChanged) apply(s State) (State, error) {
	if s.Screen != ScreenInterview {
		return s, transitionError(s, "listening change")
	}
	s.Voice.Listening = e.Listening
	s.Voice.Interim = ""
	if e.Listening {
		s.Voice.Warnings = []string{}
	}
	return s, nil
}

type TranscriptionStarted struct{}

func (TranscriptionStarted) apply(s State) (State, error) {
	if s.Screen != ScreenInterview {
		return s, transitionError(s, "transcribe")
	}
	if s.Busy {
		return s, ErrBusy
	}
	s.Busy = true
	s.Voice.Processing = true
	s.Voice.Warnings = []string{}
	return s, nil
}

// TranscriptionFinished carries either a transcript or the warning to show instead.
type TranscriptionFinished struct {
	Generation uint64
	Transcript string
	Failure    string
}

func (e TranscriptionFinished) apply(s State) (State, error) {
	if e.Generation != s.Generation || s.Screen != ScreenInterview || !s.Busy {
		return s, ErrStaleResult
	}
	s.Busy = false
	s.Voice.Processing = false
	if e.Failure != "" {
		s.Voice.Warnings = []string{e.Failure}
		return s, nil
	}
	if text := strings.TrimSpace(e.Transcript); text != "" {
		s.Draft += text + " "
	}
	return s, nil
}
