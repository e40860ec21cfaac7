package intake

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-intake/internal/platform/apperror"
)

func TestEvaluateVoiceQuality(t *testing.T) {
	tests := []struct {
		confidence float64
		want       VoiceQuality
	}{
		{1.0, QualityExcellent},
		{0.9, QualityExcellent},
		{0.89, QualityGood},
		{0.7, QualityGood},
		{0.69, QualityFair},
		{0.5, QualityFair},
		{0.49, QualityPoor},
		{0, QualityPoor},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EvaluateVoiceQuality(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestSpeechErrorMessage(t *testing.T) {
	assert.Equal(t, "音声が検出されませんでした。もう一度お試しください。", SpeechErrorMessage(&SpeechError{Code: SpeechErrNoSpeech}))
	assert.Equal(t, "ネットワークエラーが発生しました。", SpeechErrorMessage(&SpeechError{Code: SpeechErrNetwork}))
	assert.Equal(t, "音声認識エラー: aborted", SpeechErrorMessage(&SpeechError{Code: "aborted"}))
	assert.Equal(t, "音声認識エラー: socket closed", SpeechErrorMessage(errors.New("socket closed")))
}

func TestVoiceState_WithResult(t *testing.T) {
	v := newVoiceState()

	v, appended := v.withResult(SpeechResult{Text: "頭が", IsFinal: false, Confidence: 0.3})
	assert.Empty(t, appended)
	assert.Equal(t, "頭が", v.Interim)
	assert.Nil(t, v.Confidence)

	v, appended = v.withResult(SpeechResult{Text: "頭が痛い", IsFinal: true, Confidence: 0.95})
	assert.Equal(t, "頭が痛い", appended)
	assert.Empty(t, v.Interim)
	require.NotNil(t, v.Confidence)
	assert.InDelta(t, 0.95, *v.Confidence, 1e-9)
	assert.Equal(t, QualityExcellent, v.Quality)
	assert.Empty(t, v.Warnings)

	v, _ = v.withResult(SpeechResult{Text: "えー", IsFinal: true, Confidence: 0.2})
	assert.Equal(t, QualityPoor, v.Quality)
	assert.Equal(t, []string{poorQualityWarning}, v.Warnings)
}

func TestValidateAudio(t *testing.T) {
	tests := []struct {
		name    string
		file    AudioFile
		wantErr string
	}{
		{name: "wav", file: AudioFile{MIMEType: "audio/wav", Data: []byte("RIFF")}},
		{name: "webm with codec parameter", file: AudioFile{MIMEType: "audio/webm;codecs=opus", Data: []byte("x")}},
		{name: "unsupported type", file: AudioFile{MIMEType: "video/mp4", Data: []byte("x")}, wantErr: "サポートされていないファイル形式です。"},
		{name: "missing type", file: AudioFile{Data: []byte("x")}, wantErr: "サポートされていないファイル形式です。"},
		{name: "oversized", file: AudioFile{MIMEType: "audio/mp3", Data: make([]byte, MaxAudioSize+1)}, wantErr: "ファイルサイズが上限（25MB）を超えています。"},
		{name: "empty", file: AudioFile{MIMEType: "audio/m4a"}, wantErr: "音声ファイルが空です。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAudio(tt.file)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperror.ErrorTypeValidation, apperror.TypeOf(err))
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}
