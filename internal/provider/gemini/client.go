// Package gemini – Client
//
// This file implements the generative client adapter over the Gemini API
// (google.golang.org/genai). The adapter is deliberately thin: one invocation
// of Generate issues exactly one outbound call with a bounded per-call
// timeout. It never retries internally; retry policy (backoff, attempt
// bounds, overall deadline) belongs to the orchestration layer, which keeps
// this component a pure single-shot wrapper and unit-testable in isolation.
//
// Errors are classified before they leave the adapter: ErrTransient wraps
// timeouts, rate limiting and 5xx-equivalent failures; ErrPermanent wraps
// malformed requests, auth failures, safety blocks and unusable responses.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/tbourn/go-genai-backend/internal/config"
)

// Params carries the optional sampling parameters of one generation call.
// Nil fields mean "provider default".
type Params struct {
	// Temperature in [0, 2].
	Temperature *float64
	// MaxTokens in [1, model output limit].
	MaxTokens *int
}

// generateFunc issues one content-generation call. It exists as a seam so
// tests can exercise classification without a network client.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Client is a single-shot Gemini adapter. It is safe for concurrent use.
type Client struct {
	model          string
	callTimeout    time.Duration
	maxTokensLimit int

	generate generateFunc
}

// New constructs a Client from configuration. It validates the credentials,
// dials the Gemini API backend, and captures the per-call timeout and the
// model token ceiling used for fast-fail parameter validation.
func New(ctx context.Context, cfg config.GeminiConfig, maxTokensLimit int) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: API key must not be empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	if maxTokensLimit < 1 {
		return nil, errors.New("gemini: max tokens limit must be >= 1")
	}

	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Client{
		model:          cfg.Model,
		callTimeout:    cfg.CallTimeout,
		maxTokensLimit: maxTokensLimit,
		generate:       api.Models.GenerateContent,
	}, nil
}

// ValidateParams checks prompt and sampling parameters against the
// provider-declared bounds. It performs no I/O and returns
// ErrInvalidParameters on the first violation.
func (c *Client) ValidateParams(prompt string, p Params) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidParameters)
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return fmt.Errorf("%w: temperature %g outside [0,2]", ErrInvalidParameters, *p.Temperature)
	}
	if p.MaxTokens != nil && (*p.MaxTokens < 1 || *p.MaxTokens > c.maxTokensLimit) {
		return fmt.Errorf("%w: max_tokens %d outside [1,%d]", ErrInvalidParameters, *p.MaxTokens, c.maxTokensLimit)
	}
	return nil
}

// Generate issues exactly one prompt-completion call and returns the
// generated text. Out-of-bounds input fails fast with ErrInvalidParameters
// before any network I/O. Provider failures come back wrapped in either
// ErrTransient or ErrPermanent.
func (c *Client) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	if err := c.ValidateParams(prompt, p); err != nil {
		return "", err
	}

	genCfg := &genai.GenerateContentConfig{}
	if p.Temperature != nil {
		genCfg.Temperature = genai.Ptr(float32(*p.Temperature))
	}
	if p.MaxTokens != nil {
		genCfg.MaxOutputTokens = int32(*p.MaxTokens)
	}

	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.generate(callCtx, c.model, genai.Text(strings.TrimSpace(prompt)), genCfg)
	if err != nil {
		cerr := classifyCallError(err)
		log.Warn().
			Err(err).
			Str("model", c.model).
			Dur("elapsed", time.Since(start)).
			Bool("transient", errors.Is(cerr, ErrTransient)).
			Msg("gemini call failed")
		return "", cerr
	}

	text, err := extractText(resp)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Int("reply_len", len(text)).
		Msg("gemini call succeeded")
	return text, nil
}

// classifyCallError maps a transport/provider error onto the adapter's
// transient/permanent taxonomy.
//
// Rules:
//   - context deadline exceeded (per-call timeout) → transient
//   - HTTP 429 and 5xx → transient
//   - HTTP 400/401/403 and other 4xx → permanent
//   - anything else (connection resets, DNS, unknown) → transient, matching
//     the safe default of retrying network-shaped failures
func classifyCallError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: call timed out: %v", ErrTransient, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return fmt.Errorf("%w: provider returned %d: %s", ErrTransient, apiErr.Code, apiErr.Message)
		case apiErr.Code >= 400:
			return fmt.Errorf("%w: provider returned %d: %s", ErrPermanent, apiErr.Code, apiErr.Message)
		}
	}

	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// extractText pulls the generated text out of a provider response, rejecting
// safety-blocked and empty results as permanent failures (a retry with the
// same prompt would fail identically).
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates in response", ErrPermanent)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", ErrPermanent)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty text in response", ErrPermanent)
	}
	return text, nil
}
