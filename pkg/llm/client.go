// Package llm implements the JSON-over-HTTPS client for the analysis model.
// The wire shape is vendor-neutral: a contents array, a system instruction,
// and a generation config requesting application/json output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/moecapital/refinery/pkg/models"
)

// Error classification: transient errors are retried via retry_count,
// malformed ones count against the same cap.
var (
	// ErrTransient covers timeouts, 5xx, and 429 — retried via retry_count.
	ErrTransient = errors.New("transient llm error")
	// ErrMalformed covers unparseable model output — retried via retry_count.
	ErrMalformed = errors.New("malformed llm response")
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 30 * time.Second

// Config holds the parameters needed to construct a Client.
type Config struct {
	Endpoint    string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

// Client calls the analysis model. Thread-safe; keeps a call counter so
// tests can assert the no-extra-call invariants of analysis reuse.
type Client struct {
	endpoint    string
	apiKey      string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
	calls       atomic.Int64
}

// NewClient creates a model client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      slog.Default().With("component", "llm-client"),
	}
}

// Calls returns the number of model calls issued so far.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// request/response wire types.

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends a batch of concatenated item texts with the given system
// prompt and returns the parsed analysis entries plus the raw response text
// (persisted as processed_json).
func (c *Client) Analyze(ctx context.Context, batchText, systemPrompt string) ([]models.AnalysisEntry, []byte, error) {
	raw, err := c.generate(ctx, batchText, systemPrompt, "application/json")
	if err != nil {
		return nil, nil, err
	}

	entries, err := ParseEntries(raw)
	if err != nil {
		return nil, nil, err
	}
	return entries, []byte(raw), nil
}

// Generate sends a single free-form prompt (callback deep dives) and returns
// the model's text response.
func (c *Client) Generate(ctx context.Context, input, systemPrompt string) (string, error) {
	return c.generate(ctx, input, systemPrompt, "")
}

func (c *Client) generate(ctx context.Context, input, systemPrompt, mimeType string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: input}}},
		},
		GenerationConfig: generationConfig{
			Temperature:      c.temperature,
			ResponseMimeType: mimeType,
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.calls.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrMalformed, resp.StatusCode, truncateForLog(body))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidates", ErrMalformed)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func truncateForLog(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
