// Generation HTTP handlers.
//
// This file exposes REST endpoints for generation resources:
//   - POST /generations        (submit a prompt, 201 on fresh completion)
//   - GET  /generations/{id}   (fetch one record)
//   - GET  /generations        (list, paginated, ETag support)
//
// Handlers are transport-thin: they validate and normalize input, call the
// application service, and translate the outcome taxonomy into HTTP statuses.
//
// Idempotency:
// A client_id may arrive in the JSON body or via the Idempotency-Key header
// (header wins). A repeated client_id returns the original record with
// HTTP 200 and `Idempotency-Replayed: true`; only fresh completions use 201.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/domain"
	"github.com/tbourn/go-genai-backend/internal/repo"
	"github.com/tbourn/go-genai-backend/internal/services"
	"github.com/tbourn/go-genai-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// GenerationService defines the generation lifecycle operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type GenerationService interface {
	// Generate runs one request end to end; the bool reports an idempotent replay.
	Generate(ctx context.Context, in services.GenerateInput) (*domain.GenerationRecord, bool, error)
	// Get fetches a record by ID.
	Get(ctx context.Context, id string) (*domain.GenerationRecord, error)
	// ListPage returns a page of records and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.GenerationRecord, int64, error)
}

// ChatService defines the grounded chat operation consumed by HTTP handlers.
type ChatService interface {
	// Answer replies to a conversation grounded on the course catalog.
	Answer(ctx context.Context, msgs []services.ChatMessage) (string, []string, error)
}

// CourseService defines catalog operations consumed by HTTP handlers.
type CourseService interface {
	// Import upserts catalog rows keyed by NRC.
	Import(ctx context.Context, courses []domain.Course) (int, error)
	// SectionsByCode returns the sections of one course code.
	SectionsByCode(ctx context.Context, code string, limit int) ([]domain.Course, error)
	// GetByNRC fetches one section by NRC.
	GetByNRC(ctx context.Context, nrc string) (*domain.Course, error)
	// SearchPage returns a filtered page of catalog rows and the total count.
	SearchPage(ctx context.Context, f repo.CourseFilter, page, pageSize int) ([]domain.Course, int64, error)
	// ProfessorInfo aggregates one professor's sections and average rating.
	ProfessorInfo(ctx context.Context, name string) (*repo.ProfessorStats, error)
	// ProfessorCourses returns the sections taught by a matching professor.
	ProfessorCourses(ctx context.Context, name string) ([]domain.Course, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for generations, chat, and the course
// catalog. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	genSvc    GenerationService
	chatSvc   ChatService
	courseSvc CourseService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(genSvc GenerationService, chatSvc ChatService, courseSvc CourseService) *Handlers {
	return &Handlers{genSvc: genSvc, chatSvc: chatSvc, courseSvc: courseSvc}
}

//
// DTOs
//

// CreateGenerationRequest is the JSON payload for submitting a prompt.
type CreateGenerationRequest struct {
	// Prompt is the text to complete. It must be non-empty.
	Prompt string `json:"prompt" binding:"required,min=1" example:"Summarize: The quick brown fox jumps over the lazy dog."`
	// ClientID optionally correlates the request for idempotent retries.
	ClientID string `json:"client_id,omitempty" example:"7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab"`
	// Temperature optionally overrides sampling temperature (0–2).
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// MaxTokens optionally caps the generated output length.
	MaxTokens *int `json:"max_tokens,omitempty" example:"256"`
}

// GenerationResponse is the JSON envelope for a single generation record.
type GenerationResponse struct {
	Generation *domain.GenerationRecord `json:"generation"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListGenerationsResponse wraps a page of records and pagination information.
type ListGenerationsResponse struct {
	Generations []domain.GenerationRecord `json:"generations"`
	Pagination  Pagination                `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizePrompt normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizePrompt(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxPromptRunes inspects the concrete GenerationService for a
// configured prompt-length limit. If unavailable, it returns a conservative
// fallback.
func discoverMaxPromptRunes(genSvc GenerationService) int {
	const fallback = 8000
	if gs, ok := genSvc.(*services.GenerationService); ok {
		if gs.MaxPromptRunes > 0 {
			return gs.MaxPromptRunes
		}
	}
	return fallback
}

// clientID resolves the correlation key for a generation request: the
// validated Idempotency-Key header wins over the body field.
func clientID(c *gin.Context, body string) string {
	if h := strings.TrimSpace(c.GetHeader("Idempotency-Key")); h != "" {
		return h
	}
	return strings.TrimSpace(body)
}

//
// Handlers
//

// CreateGeneration godoc
// @ID          createGeneration
// @Summary     Submit a prompt for generation
// @Description Validates the prompt, persists a pending record, calls the text provider
// @Description with bounded retries, and returns the terminal record.
// @Description Supports idempotency via client_id or the Idempotency-Key header
// @Description (same key → same record, replayed with 200).
// @Tags        Generations
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateGenerationRequest  true  "Generation payload"
//
// @Success     201  {object}  handlers.GenerationResponse  "Fresh completion"
// @Success     200  {object}  handlers.GenerationResponse  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse       "Invalid request"
// @Failure     422  {object}  handlers.ErrorResponse       "Provider rejected the prompt"
// @Failure     502  {object}  handlers.ErrorResponse       "Provider unavailable"
// @Failure     503  {object}  handlers.ErrorResponse       "Storage unavailable"
// @Router      /generations [post]
func (h *Handlers) CreateGeneration(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	prompt := sanitizePrompt(req.Prompt)
	maxRunes := discoverMaxPromptRunes(h.genSvc)
	if maxRunes > 0 && utf8.RuneCountInString(prompt) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeInvalidRequest, fmt.Sprintf("prompt too long: max %d runes", maxRunes))
		return
	}
	if prompt == "" {
		fail(c, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt required")
		return
	}

	rec, replayed, err := h.genSvc.Generate(ctx, services.GenerateInput{
		Prompt:      prompt,
		ClientID:    clientID(c, req.ClientID),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRequest):
			fail(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid prompt or sampling parameters")
		case errors.Is(err, services.ErrProviderRejected):
			fail(c, http.StatusUnprocessableEntity, ErrCodeProviderRejected, "the provider rejected the request")
		case errors.Is(err, services.ErrProviderUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeProviderUnavailable, "the provider kept failing, try again later")
		case errors.Is(err, services.ErrStorageUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "storage unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	if replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, GenerationResponse{Generation: rec})
		return
	}
	ok(c, http.StatusCreated, GenerationResponse{Generation: rec})
}

// GetGeneration godoc
// @ID          getGeneration
// @Summary     Fetch one generation record
// @Description Returns the record with its status, text, or failure reason.
// @Tags        Generations
// @Produce     json
//
// @Param       id  path  string  true  "Generation ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.GenerationResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Generation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /generations/{id} [get]
func (h *Handlers) GetGeneration(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "generation id must be a UUID")
		return
	}

	rec, err := h.genSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrGenerationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "generation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, GenerationResponse{Generation: rec})
}

// ListGenerations godoc
// @ID          listGenerations
// @Summary     List generations (paginated)
// @Description Returns a page of generation records, most recent first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Generations
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListGenerationsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /generations [get]
func (h *Handlers) ListGenerations(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okSvc := h.genSvc.(*services.GenerationService); okSvc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.GenerationsStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"generations:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.genSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListGenerationsResponse{
		Generations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
