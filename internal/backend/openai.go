package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sentinel-ops/sentinel-gateway/internal/config"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	cfg    config.BackendConfig
	client *http.Client
	sem    chan struct{} // bounds in-flight upstream requests
}

// NewOpenAIClient builds a client from backend config. httpClient may be nil,
// in which case one is created with the configured timeout.
func NewOpenAIClient(cfg config.BackendConfig, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}

	return &OpenAIClient{
		cfg:    cfg,
		client: httpClient,
		sem:    make(chan struct{}, maxConcurrent),
	}
}

type chatRequestBody struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Generate sends the prompt as a single-message chat completion and returns
// the first choice. Concurrency beyond the configured bound queues here until
// a slot frees or ctx is done.
func (c *OpenAIClient) Generate(ctx context.Context, params GenerateParams) (*Generation, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body := chatRequestBody{
		Model:       params.Model,
		Messages:    []chatMessage{{Role: "user", Content: params.Prompt}},
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &UpstreamError{Subkind: "encode", Message: err.Error()}
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &UpstreamError{Subkind: "encode", Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("backend request: %w", ctx.Err())
		}
		return nil, &UpstreamError{Subkind: "transport", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &UpstreamError{Subkind: "transport", Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{
			Status:  resp.StatusCode,
			Subkind: "status",
			Message: truncate(string(respBody), 512),
		}
	}

	var parsed chatResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &UpstreamError{Subkind: "decode", Message: err.Error()}
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	model := parsed.Model
	if model == "" {
		model = params.Model
	}

	return &Generation{
		Text:      parsed.Choices[0].Message.Content,
		ModelName: model,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
