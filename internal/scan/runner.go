// Package scan talks to the external nanobot scanners. The console only
// triggers a run and records its outcome; scanning itself happens elsewhere.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("scanner is not configured")

type BotSpec struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	FileExtensions []string `json:"fileExtensions,omitempty"`
	Prompt         string   `json:"prompt"`
}

type Request struct {
	OrgID  uuid.UUID `json:"orgId"`
	Repo   string    `json:"repo"`
	Branch string    `json:"branch"`
	Bots   []BotSpec `json:"bots"`
}

type Finding struct {
	Path     string `json:"path"`
	Line     int    `json:"line,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type BotResult struct {
	BotName  string    `json:"botName"`
	Category string    `json:"category"`
	Findings []Finding `json:"findings"`
	Error    string    `json:"error,omitempty"`
}

type Runner interface {
	Run(ctx context.Context, req Request) ([]BotResult, error)
}

// HTTPRunner posts the request to a scanner service and waits for its
// results.
type HTTPRunner struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPRunner(baseURL string, timeout time.Duration) *HTTPRunner {
	return &HTTPRunner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRunner) Run(ctx context.Context, req Request) ([]BotResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal scan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/scans", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build scan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call scanner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scanner responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Results []BotResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode scan results: %w", err)
	}
	return out.Results, nil
}

// Unconfigured fails every run. It stands in when no scanner URL is set.
type Unconfigured struct{}

func (Unconfigured) Run(context.Context, Request) ([]BotResult, error) {
	return nil, ErrNotConfigured
}

// NewRunner returns an HTTPRunner for baseURL, or Unconfigured when empty.
func NewRunner(baseURL string, timeout time.Duration) Runner {
	if baseURL == "" {
		return Unconfigured{}
	}
	return NewHTTPRunner(baseURL, timeout)
}
