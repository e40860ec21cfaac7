package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clinic-intake/internal/intake"
)

// AnalysisClient calls the summarization and diagnosis-support endpoints.
type AnalysisClient struct {
	summarizeURL string
	diagnoseURL  string
	httpClient   *http.Client
}

func NewAnalysisClient(summarizeURL, diagnoseURL string, timeout time.Duration) *AnalysisClient {
	return &AnalysisClient{
		summarizeURL: summarizeURL,
		diagnoseURL:  diagnoseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

type diagnoseResponse struct {
	Diagnosis string `json:"diagnosis"`
}

func (c *AnalysisClient) Summarize(ctx context.Context, req intake.SummarizeRequest) (string, error) {
	var resp summarizeResponse
	if err := c.postJSON(ctx, c.summarizeURL, req, &resp); err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return resp.Summary, nil
}

func (c *AnalysisClient) Diagnose(ctx context.Context, req intake.DiagnoseRequest) (string, error) {
	var resp diagnoseResponse
	if err := c.postJSON(ctx, c.diagnoseURL, req, &resp); err != nil {
		return "", fmt.Errorf("diagnose: %w", err)
	}
	return resp.Diagnosis, nil
}

func (c *AnalysisClient) postJSON(ctx context.Context, url string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
