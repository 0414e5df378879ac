package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const openaiSecretPath = "/run/secrets/openai_api_key"

// OpenAIClient is the OpenAI chat-completion backend.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient builds a client from the environment. The API key
// comes from OPENAI_API_KEY with a container-secret fallback; the model
// from DOCSYNC_OPENAI_MODEL, defaulting to gpt-4o-mini.
func NewOpenAIClient(logger *slog.Logger) (*OpenAIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		if content, err := os.ReadFile(openaiSecretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			logger.Info("read OpenAI API key from container secrets")
		}
	}
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is missing")
	}

	model := os.Getenv("DOCSYNC_OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		logger.Warn("DOCSYNC_OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	logger.Info("initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}, nil
}

// Complete implements the Client interface.
func (o *OpenAIClient) Complete(ctx context.Context, prompt string, opts ...Option) (*Response, error) {
	resolved := applyOptions(opts)

	callCtx, cancel := context.WithTimeout(ctx, resolved.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a document alignment analyst. Always answer with the exact JSON schema requested.",
			},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: resolved.maxTokens,
	}
	if resolved.temperature != nil {
		req.Temperature = *resolved.temperature
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return nil, o.classifyError(callCtx, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai returned no choices: %w", ErrMalformedResponse)
	}

	return &Response{
		Text:     resp.Choices[0].Message.Content,
		Model:    resp.Model,
		Backend:  "openai",
		Duration: time.Since(start),
	}, nil
}

// EstimateTokens implements the Client interface.
func (o *OpenAIClient) EstimateTokens(text string) int {
	return estimateTokens(text)
}

// classifyError maps go-openai errors to the taxonomy.
func (o *OpenAIClient) classifyError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("openai request: %w", ErrTimeout)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if statusErr := classifyStatus(apiErr.HTTPStatusCode); statusErr != nil {
			return fmt.Errorf("openai status %d: %s: %w",
				apiErr.HTTPStatusCode, apiErr.Message, statusErr)
		}
	}

	o.logger.Error("OpenAI API call failed", "error", err)
	return fmt.Errorf("openai request failed: %v: %w", err, ErrServerError)
}

var _ Client = (*OpenAIClient)(nil)
