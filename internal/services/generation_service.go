// Package services – GenerationService
//
// This file implements GenerationService, the application-level component
// that owns the lifecycle of generation requests. It validates inputs,
// resolves idempotent replays, persists a pending record before the first
// provider call, drives the bounded retry loop, and applies exactly one
// terminal mutation per record.
//
// The retry loop runs on a context detached from the caller: once a pending
// record exists, client disconnects no longer abort the provider call. The
// terminal update is likewise detached from the retry deadline, so an
// accepted request always reaches a terminal status.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// record identifiers and attempt counts where applicable.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/domain"
	"github.com/tbourn/go-genai-backend/internal/provider/gemini"
	"github.com/tbourn/go-genai-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// finalizeTimeout bounds the terminal record update. It is separate from the
// retry deadline so a deadline spent on provider calls cannot abort the write.
const finalizeTimeout = 5 * time.Second

// TextGenerator is the provider contract required by GenerationService.
// Implementations issue exactly one outbound call per Generate invocation
// and classify failures with gemini.ErrTransient / gemini.ErrPermanent.
type TextGenerator interface {
	// ValidateParams checks prompt and sampling parameters without I/O.
	ValidateParams(prompt string, p gemini.Params) error

	// Generate issues one prompt-completion call and returns the text.
	Generate(ctx context.Context, prompt string, p gemini.Params) (string, error)
}

// GenerateInput carries one generation request.
type GenerateInput struct {
	// Prompt is the text to complete. Required.
	Prompt string
	// ClientID optionally correlates the request for idempotent replays.
	ClientID string
	// Temperature and MaxTokens are optional sampling overrides.
	Temperature *float64
	MaxTokens   *int
}

// GenerationService coordinates validation, persistence, and the retry loop
// around a single-shot text provider.
type GenerationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Provider is the single-shot text generator.
	Provider TextGenerator

	// Retry policy
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Deadline    time.Duration

	// Optional guards
	MaxPromptRunes int

	// Label generation config
	LabelLocale language.Tag
	LabelMaxLen int

	// sleep is a seam for tests; nil means a real timer.
	sleep func(ctx context.Context, d time.Duration) error
}

// Generate runs one generation request end to end. The returned bool reports
// an idempotent replay: when a record with the same ClientID already exists,
// that record is returned unchanged and no provider call is made.
//
// On success the returned record is terminal succeeded with its text set.
// Provider failures leave a terminal failed record behind and return
// ErrProviderRejected or ErrProviderUnavailable. Validation failures return
// ErrInvalidRequest and persist nothing.
func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (*domain.GenerationRecord, bool, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("client.id", in.ClientID)),
	)
	defer span.End()

	// Normalize & validate before touching storage
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, false, ErrInvalidRequest
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return nil, false, ErrInvalidRequest
	}
	params := gemini.Params{Temperature: in.Temperature, MaxTokens: in.MaxTokens}
	if err := s.Provider.ValidateParams(prompt, params); err != nil {
		return nil, false, errors.Join(ErrInvalidRequest, err)
	}

	// Idempotency: an existing record with this client id wins outright.
	clientID := strings.TrimSpace(in.ClientID)
	if clientID != "" {
		if existing, err := repo.GetGenerationByClientID(ctx, s.DB, clientID); err == nil {
			return existing, true, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, false, ErrStorageUnavailable
		}
	}

	label := s.clipLabel(s.labelFromPrompt(prompt))

	rec, err := repo.CreateGeneration(ctx, s.DB, prompt, label, clientID, in.Temperature, in.MaxTokens)
	if err != nil {
		// Concurrent request with the same client id inserted first; resolve
		// the race to that record.
		if errors.Is(err, repo.ErrDuplicateClientID) && clientID != "" {
			if existing, gerr := repo.GetGenerationByClientID(ctx, s.DB, clientID); gerr == nil {
				return existing, true, nil
			}
		}
		return nil, false, ErrStorageUnavailable
	}

	span.SetAttributes(attribute.String("generation.id", rec.ID))

	// The record exists now; a client disconnect must not strand it pending.
	callCtx := context.WithoutCancel(ctx)
	if s.Deadline > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, s.Deadline)
		defer cancel()
	}

	text, attempts, err := s.callWithRetry(callCtx, prompt, params)
	span.SetAttributes(attribute.Int("generation.attempts", attempts))

	// The retry deadline bounds provider calls only. The terminal write must
	// still land after the deadline fires mid-retry, or the record is
	// stranded pending, so finalize on a detached context with its own bound.
	finCtx, cancelFin := context.WithTimeout(context.WithoutCancel(callCtx), finalizeTimeout)
	defer cancelFin()

	if err != nil {
		reason := domain.ReasonProviderUnavailable
		outcome := ErrProviderUnavailable
		if errors.Is(err, gemini.ErrPermanent) {
			reason = domain.ReasonProviderRejected
			outcome = ErrProviderRejected
		}
		if merr := repo.MarkGenerationFailed(finCtx, s.DB, rec.ID, reason); merr != nil {
			log.Error().Err(merr).Str("generation_id", rec.ID).Msg("failed to finalize generation record")
			return nil, false, ErrStorageUnavailable
		}
		final, gerr := repo.GetGeneration(finCtx, s.DB, rec.ID)
		if gerr != nil {
			return nil, false, ErrStorageUnavailable
		}
		return final, false, outcome
	}

	if merr := repo.MarkGenerationSucceeded(finCtx, s.DB, rec.ID, text); merr != nil {
		log.Error().Err(merr).Str("generation_id", rec.ID).Msg("failed to finalize generation record")
		return nil, false, ErrStorageUnavailable
	}
	final, gerr := repo.GetGeneration(finCtx, s.DB, rec.ID)
	if gerr != nil {
		return nil, false, ErrStorageUnavailable
	}
	return final, false, nil
}

// Get fetches a generation record by ID.
func (s *GenerationService) Get(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("generation.id", id)),
	)
	defer span.End()

	rec, err := repo.GetGeneration(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListPage returns paginated generation records, most recent first.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *GenerationService) ListPage(ctx context.Context, page, pageSize int) ([]domain.GenerationRecord, int64, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountGenerations(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.GenerationRecord{}, 0, nil
	}

	items, err := repo.ListGenerationsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// callWithRetry drives the bounded retry loop: up to MaxAttempts calls with
// exponential backoff between transient failures, all under ctx's deadline.
// Permanent failures stop the loop immediately. attempts reports how many
// calls were actually made.
func (s *GenerationService) callWithRetry(ctx context.Context, prompt string, p gemini.Params) (text string, attempts int, err error) {
	max := s.MaxAttempts
	if max < 1 {
		max = 1
	}

	for attempt := 1; attempt <= max; attempt++ {
		attempts = attempt
		text, err = s.Provider.Generate(ctx, prompt, p)
		if err == nil {
			return text, attempts, nil
		}
		if errors.Is(err, gemini.ErrPermanent) {
			return "", attempts, err
		}

		// Transient: back off unless the budget is spent.
		if attempt == max {
			break
		}
		if serr := s.wait(ctx, s.backoffDelay(attempt)); serr != nil {
			log.Warn().
				Err(err).
				Int("attempts", attempts).
				Msg("generation deadline exhausted during backoff")
			return "", attempts, err
		}
	}
	return "", attempts, err
}

// backoffDelay returns the delay before the next attempt: base doubled per
// completed attempt, capped.
func (s *GenerationService) backoffDelay(attempt int) time.Duration {
	base := s.BackoffBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base << (attempt - 1)
	if s.BackoffCap > 0 && d > s.BackoffCap {
		d = s.BackoffCap
	}
	return d
}

// wait sleeps for d or until ctx is done, whichever comes first.
func (s *GenerationService) wait(ctx context.Context, d time.Duration) error {
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// labelFromPrompt derives a concise label from the prompt.
func (s *GenerationService) labelFromPrompt(prompt string) string {
	toks := labelWordRE.FindAllString(strings.ToLower(prompt), -1)
	if len(toks) == 0 {
		return ""
	}

	labelCaser := cases.Title(s.labelLocaleOrDefault())
	out := make([]string, 0, 8)

	for _, w := range toks {
		if _, skip := labelStopWords[w]; skip {
			continue
		}
		out = append(out, labelCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, " ")
}

// clipLabel truncates a generated label to the configured maximum rune length.
func (s *GenerationService) clipLabel(label string) string {
	max := s.LabelMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(label) > max {
		return string([]rune(label)[:max])
	}
	return label
}

// labelLocaleOrDefault returns the configured locale for casing or English if unset.
func (s *GenerationService) labelLocaleOrDefault() language.Tag {
	if s.LabelLocale == language.Und {
		return language.English
	}
	return s.LabelLocale
}

// --- Label generation helpers ---

// Extract Unicode letters with optional trailing numbers (e.g., "iic2233").
var labelWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact labels.
var labelStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
}
