// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a Client with a token-bucket rate limiter.
// The limiter sits in front of retries, so backoff waits do not consume
// extra tokens.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimited wraps client. rps is the sustained calls-per-second
// allowance; burst is the bucket size.
func NewRateLimited(client Client, rps float64, burst int) *RateLimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Complete waits for a rate token, then delegates.
func (c *RateLimitedClient) Complete(ctx context.Context, prompt string, opts ...Option) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return c.inner.Complete(ctx, prompt, opts...)
}

// EstimateTokens delegates to the wrapped client.
func (c *RateLimitedClient) EstimateTokens(text string) int {
	return c.inner.EstimateTokens(text)
}

var _ Client = (*RateLimitedClient)(nil)
