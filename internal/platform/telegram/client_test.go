package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := NewClient("123:abc")
	c.baseURL = url
	return c
}

func TestClient_SendMessage(t *testing.T) {
	var got sendMessageReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendMessage(context.Background(), 42, "【緊急】山田 太郎")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, "【緊急】山田 太郎", got.Text)
}

func TestClient_SendDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendDocument", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "42", r.FormValue("chat_id"))

		file, header, err := r.FormFile("document")
		if assert.NoError(t, err) {
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "intake.pdf", header.Filename)
			assert.Equal(t, []byte("%PDF-1.4"), data)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendDocument(context.Background(), 42, []byte("%PDF-1.4"), "intake.pdf")
	require.NoError(t, err)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "http error", status: http.StatusBadRequest, body: `{"ok":false,"description":"chat not found"}`, wantErr: "chat not found"},
		{name: "ok false", status: http.StatusOK, body: `{"ok":false,"description":"bot was blocked"}`, wantErr: "bot was blocked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := newTestClient(srv.URL).SendMessage(context.Background(), 1, "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
