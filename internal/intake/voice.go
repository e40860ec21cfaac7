package intake

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"slices"
	"strings"

	"clinic-intake/internal/platform/apperror"
)

type VoiceQuality string

const (
	QualityExcellent VoiceQuality = "excellent"
	QualityGood      VoiceQuality = "good"
	QualityFair      VoiceQuality = "fair"
	QualityPoor      VoiceQuality = "poor"
)

// EvaluateVoiceQuality buckets a recognition confidence in [0,1].
func EvaluateVoiceQuality(confidence float64) VoiceQuality {
	switch {
	case confidence >= 0.9:
		return QualityExcellent
	case confidence >= 0.7:
		return QualityGood
	case confidence >= 0.5:
		return QualityFair
	default:
		return QualityPoor
	}
}

const poorQualityWarning = "音声の品質が低いです。もう一度お試しください。"

// SpeechResult is one fragment produced by a speech recognizer.
type SpeechResult struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence"`
}

// Recognizer error codes.
const (
	SpeechErrNoSpeech     = "no-speech"
	SpeechErrAudioCapture = "audio-capture"
	SpeechErrNotAllowed   = "not-allowed"
	SpeechErrNetwork      = "network"
)

// SpeechError is a failure reported by the recognizer itself.
type SpeechError struct {
	Code string
}

func (e *SpeechError) Error() string {
	return "speech recognition: " + e.Code
}

// SpeechErrorMessage turns a recognizer failure into the message shown to the patient.
func SpeechErrorMessage(err error) string {
	var se *SpeechError
	if !errors.As(err, &se) {
		return fmt.Sprintf("音声認識エラー: %v", err)
	}
	switch se.Code {
	case SpeechErrNoSpeech:
		return "音声が検出されませんでした。もう一度お試しください。"
	case SpeechErrAudioCapture:
		return "マイクにアクセスできません。マイクの許可を確認してください。"
	case SpeechErrNotAllowed:
		return "マイクの使用が許可されていません。ブラウザの設定を確認してください。"
	case SpeechErrNetwork:
		return "ネットワークエラーが発生しました。"
	default:
		return "音声認識エラー: " + se.Code
	}
}

// Recognizer is a streaming speech-to-text capture session.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
	Results() <-chan SpeechResult
	Errors() <-chan error
}

// VoiceState tracks the capture session attached to the current question.
type VoiceState struct {
	Listening  bool         `json:"listening"`
	Processing bool         `json:"processing"`
	Confidence *float64     `json:"confidence"`
	Quality    VoiceQuality `json:"quality"`
	Warnings   []string     `json:"warnings"`
	Interim    string       `json:"interim"`
}

func newVoiceState() VoiceState {
	return VoiceState{Quality: QualityPoor, Warnings: []string{}}
}

// withResult folds a fragment into the voice state and returns the text to append
// to the draft, which is empty for interim fragments.
func (v VoiceState) withResult(r SpeechResult) (VoiceState, string) {
	if !r.IsFinal {
		v.Interim = r.Text
		return v, ""
	}
	confidence := r.Confidence
	v.Interim = ""
	v.Confidence = &confidence
	v.Quality = EvaluateVoiceQuality(confidence)
	if v.Quality == QualityPoor {
		v.Warnings = []string{poorQualityWarning}
	} else {
		v.Warnings = []string{}
	}
	return v, r.Text
}

func (v VoiceState) withError(err error) VoiceState {
	v.Listening = false
	v.Interim = ""
	v.Warnings = []string{SpeechErrorMessage(err)}
	return v
}

func (v VoiceState) clone() VoiceState {
	if v.Confidence != nil {
		c := *v.Confidence
		v.Confidence = &c
	}
	v.Warnings = slices.Clone(v.Warnings)
	return v
}

// Audio upload limits.
const MaxAudioSize int64 = 25 * 1024 * 1024

var SupportedAudioTypes = []string{"audio/wav", "audio/mp3", "audio/m4a", "audio/webm"}

var ErrAudioTooLarge = apperror.NewValidationError(fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています。", MaxAudioSize/1024/1024))

// AudioFile is a recorded answer uploaded for transcription.
type AudioFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ValidateAudio rejects files the transcription service must never see.
func ValidateAudio(f AudioFile) error {
	if int64(len(f.Data)) > MaxAudioSize {
		return ErrAudioTooLarge
	}
	mediaType, _, err := mime.ParseMediaType(f.MIMEType)
	if err != nil || !slices.Contains(SupportedAudioTypes, strings.ToLower(mediaType)) {
		return apperror.NewValidationError("サポートされていないファイル形式です。")
	}
	if len(f.Data) == 0 {
		return apperror.NewValidationError("音声ファイルが空です。")
	}
	return nil
}
