package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const apiKeyHeader = "X-API-Key"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Code   string
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Detail)
}

// client is a small JSON client for the motionscore API.
type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func newClient(cfg *Config) *client {
	return &client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(raw, &e)
		return resp.StatusCode, &StatusError{Status: resp.StatusCode, Code: e.Code, Detail: e.Detail}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type calibrationBody struct {
	Ceiling float64 `json:"maxDtwDistance"`
	Warning string  `json:"warning"`
}

type receiptBody struct {
	Duplicate   bool             `json:"duplicate"`
	Calibration *calibrationBody `json:"calibration"`
}

type evaluationBody struct {
	Score   float64 `json:"score"`
	Ceiling float64 `json:"ceiling"`
}

type evaluateResponse struct {
	Evaluation *evaluationBody `json:"evaluation"`
}

type leaderboardResponse struct {
	Entries []LeaderRow `json:"entries"`
}

func (c *client) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode, Code: "unhealthy"}
	}
	return nil
}

func (c *client) createMotionType(ctx context.Context, name string, channels []string) error {
	body := map[string]any{"motionName": name, "channels": channels}
	status, err := c.do(ctx, http.MethodPost, "/api/ai/motion-types/", body, nil)
	if status == http.StatusConflict {
		return nil
	}
	return err
}

func (c *client) uploadRecording(ctx context.Context, name, category, key string, frames [][]float64) (receiptBody, error) {
	body := map[string]any{
		"motionName":    name,
		"scoreCategory": category,
		"sensorData":    frames,
		"recordingKey":  key,
	}
	var rc receiptBody
	_, err := c.do(ctx, http.MethodPost, "/api/ai/motion-recordings/", body, &rc)
	return rc, err
}

func (c *client) evaluate(ctx context.Context, name, empNo string, frames [][]float64) (evaluationBody, error) {
	body := map[string]any{"motionName": name, "empNo": empNo, "sensorData": frames}
	var out evaluateResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/ai/evaluate/", body, &out); err != nil {
		return evaluationBody{}, err
	}
	if out.Evaluation == nil {
		return evaluationBody{}, fmt.Errorf("response carries no evaluation")
	}
	return *out.Evaluation, nil
}

func (c *client) leaderboard(ctx context.Context, name string, limit int) ([]LeaderRow, error) {
	var out leaderboardResponse
	path := fmt.Sprintf("/api/ai/leaderboard/?motionName=%s&limit=%d", url.QueryEscape(name), limit)
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}
