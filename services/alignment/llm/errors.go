// Copyright (C) 2025 DocSync AI (eng@docsync.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Provider error taxonomy. Transport-level failures (rate limit,
// timeout, server errors) are transient and retried; request and
// response shape failures are not, since retrying an identical
// malformed-prone prompt rarely helps.
var (
	// ErrRateLimited indicates the provider rejected the call for rate
	// or quota reasons. Retryable.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrTimeout indicates the call exceeded its deadline. Retryable.
	ErrTimeout = errors.New("provider call timed out")

	// ErrServerError indicates a provider-side failure (5xx).
	// Retryable.
	ErrServerError = errors.New("provider server error")

	// ErrInvalidRequest indicates the provider rejected the request
	// itself (bad auth, bad payload). Not retryable.
	ErrInvalidRequest = errors.New("provider rejected request")

	// ErrMalformedResponse indicates an otherwise-successful call whose
	// response did not conform to the expected schema. Not retried
	// automatically, but counted against the attempt budget.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// IsRetryable reports whether the error is a transient provider
// failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrServerError) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// classifyStatus maps an HTTP status code to the error taxonomy.
// Returns nil for success codes.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrTimeout
	case code >= 500:
		return ErrServerError
	default:
		return ErrInvalidRequest
	}
}
