// Package gemini wraps the Gemini generative-text API behind a single-shot
// call contract. This file centralizes the adapter's error taxonomy: input
// validation failures and the transient/permanent classification that drives
// retry eligibility in the orchestration layer.
package gemini

import "errors"

var (
	// ErrInvalidParameters is returned before any network call when the
	// prompt is empty after trimming or a sampling parameter is outside the
	// provider-declared bounds.
	ErrInvalidParameters = errors.New("invalid generation parameters")

	// ErrTransient marks provider failures that are eligible for retry:
	// timeouts, rate limiting, and 5xx-equivalent conditions.
	ErrTransient = errors.New("transient provider error")

	// ErrPermanent marks provider failures that must not be retried:
	// malformed requests, authentication failures, and content policy
	// rejections.
	ErrPermanent = errors.New("permanent provider error")
)
