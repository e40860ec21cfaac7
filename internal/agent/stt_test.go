package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-intake/internal/intake"
)

func TestTranscriber_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ja-JP", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)

		assert.Equal(t, "answer.m4a", header.Filename)
		assert.Equal(t, "audio/m4a", header.Header.Get("Content-Type"))
		assert.Equal(t, []byte("m4a-bytes"), data)

		_, _ = w.Write([]byte(`{"transcript":"昨日から熱があります"}`))
	}))
	defer srv.Close()

	text, err := NewTranscriber(srv.URL, 5*time.Second).Transcribe(context.Background(), intake.AudioFile{
		Name:     "answer.m4a",
		MIMEType: "audio/m4a",
		Data:     []byte("m4a-bytes"),
	})

	require.NoError(t, err)
	assert.Equal(t, "昨日から熱があります", text)
}

func TestTranscriber_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewTranscriber(srv.URL, 5*time.Second).Transcribe(context.Background(), intake.AudioFile{
		Name: "a.wav", MIMEType: "audio/wav", Data: []byte("RIFF"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad audio")
}
