package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
	anthropicSecretPath = "/run/secrets/anthropic_api_key"

	defaultAnthropicModel = "claude-3-5-sonnet-20240620"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient calls the Anthropic Messages API over raw HTTP.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	system     string
	logger     *slog.Logger
}

// NewAnthropicClient builds a client from the environment. The API key
// comes from ANTHROPIC_API_KEY with a container-secret fallback at
// /run/secrets/anthropic_api_key; the model from DOCSYNC_ANTHROPIC_MODEL.
func NewAnthropicClient(logger *slog.Logger) (*AnthropicClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		if content, err := os.ReadFile(anthropicSecretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			logger.Info("read Anthropic API key from container secrets")
		}
	}
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is missing")
	}

	model := os.Getenv("DOCSYNC_ANTHROPIC_MODEL")
	if model == "" {
		model = defaultAnthropicModel
		logger.Info("DOCSYNC_ANTHROPIC_MODEL not set, defaulting", "model", model)
	}

	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		system:     "You are a document alignment analyst. Always answer with the exact JSON schema requested.",
		logger:     logger,
	}, nil
}

// Complete implements the Client interface.
func (a *AnthropicClient) Complete(ctx context.Context, prompt string, opts ...Option) (*Response, error) {
	resolved := applyOptions(opts)

	callCtx, cancel := context.WithTimeout(ctx, resolved.timeout)
	defer cancel()

	systemBlocks := []systemBlock{{Type: "text", Text: a.system}}
	if len(a.system) > 1024 {
		systemBlocks[0].CacheControl = &cacheControl{Type: "ephemeral"}
	}

	payload := anthropicRequest{
		Model:       a.model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		System:      systemBlocks,
		MaxTokens:   resolved.maxTokens,
		Temperature: resolved.temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, anthropicBaseURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	a.logger.Debug("sending request to Anthropic", "model", a.model)

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("anthropic request: %w", ErrTimeout)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("anthropic request: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("anthropic request failed: %v: %w", err, ErrServerError)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if statusErr := classifyStatus(resp.StatusCode); statusErr != nil {
		a.logger.Warn("anthropic API error",
			"status", resp.StatusCode,
			"body_snippet", truncate(string(bodyBytes), 256))
		return nil, fmt.Errorf("anthropic status %d: %w", resp.StatusCode, statusErr)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %v: %w", err, ErrMalformedResponse)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic error %s: %s: %w",
			apiResp.Error.Type, apiResp.Error.Message, ErrServerError)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty completion: %w", ErrMalformedResponse)
	}

	model := apiResp.Model
	if model == "" {
		model = a.model
	}

	return &Response{
		Text:     text.String(),
		Model:    model,
		Backend:  "anthropic",
		Duration: time.Since(start),
	}, nil
}

// EstimateTokens implements the Client interface.
func (a *AnthropicClient) EstimateTokens(text string) int {
	return estimateTokens(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Client = (*AnthropicClient)(nil)
