package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"clinic-intake/internal/intake"
)

// Transcriber posts recorded answers to the transcription endpoint.
type Transcriber struct {
	url        string
	httpClient *http.Client
}

func NewTranscriber(url string, timeout time.Duration) *Transcriber {
	return &Transcriber{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type sttResponse struct {
	Transcript string `json:"transcript"`
}

func (c *Transcriber) Transcribe(ctx context.Context, audio intake.AudioFile) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// CreateFormFile would label every upload application/octet-stream
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audio.Name))
	header.Set("Content-Type", audio.MIMEType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", err
	}
	if err := writer.WriteField("language", intake.InterviewLanguage); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("STT API error: %s - %s", resp.Status, string(respBody))
	}

	var result sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Transcript, nil
}
