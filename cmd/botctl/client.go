package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	} `json:"parameters"`
}

type chatStep struct {
	StepNumber  int    `json:"step"`
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

type chatResponse struct {
	Answer     string     `json:"answer"`
	Steps      []chatStep `json:"steps"`
	TokensUsed int        `json:"tokens_used"`
}

// apiError is a non-2xx reply. Message is the server's error text.
type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	hc := c.http
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Kind: e.Kind, Message: e.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) catalog(ctx context.Context) ([]toolDescriptor, error) {
	var out struct {
		Tools []toolDescriptor `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

func (c *client) call(ctx context.Context, tool string, args json.RawMessage) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/v1/tools/"+tool, args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) chat(ctx context.Context, message string) (*chatResponse, error) {
	var out chatResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/assistant/chat", map[string]string{"message": message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
