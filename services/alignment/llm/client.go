// Package llm provides the reasoning provider client used by the
// alignment analyzer and the self-critique pipeline.
package llm

import (
	"context"
	"time"
)

// Response is the result of one provider completion call.
type Response struct {
	// Text is the completion text.
	Text string

	// Model is the model that produced the completion.
	Model string

	// Backend names the provider backend ("anthropic", "openai").
	Backend string

	// Duration is the wall-clock time of the call.
	Duration time.Duration
}

// Client is the standard interface for any reasoning provider backend.
type Client interface {
	// Complete sends a prompt and returns the completion. Errors map to
	// the taxonomy in errors.go so callers can decide retryability.
	Complete(ctx context.Context, prompt string, opts ...Option) (*Response, error)

	// EstimateTokens returns a rough token count for budgeting.
	EstimateTokens(text string) int
}

// callOptions holds per-call parameters.
type callOptions struct {
	maxTokens   int
	temperature *float32
	timeout     time.Duration
}

// Option configures a single Complete call.
type Option func(*callOptions)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *callOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *callOptions) {
		o.temperature = &t
	}
}

// WithTimeout bounds the call's wall-clock time. Every stage of an
// analysis must have a bounded wait.
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// applyOptions resolves per-call options against defaults.
func applyOptions(opts []Option) callOptions {
	resolved := callOptions{
		maxTokens: 4096,
		timeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(&resolved)
	}
	return resolved
}

// estimateTokens is the shared heuristic: roughly 4 characters per
// token for English prose.
func estimateTokens(text string) int {
	return len(text) / 4
}
