// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// GenerationRecord model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return ErrNotFound (an alias of
//     gorm.ErrRecordNotFound).
//   - Inserting a duplicate client identifier returns ErrDuplicateClientID
//     so callers can resolve the race to the original record.
//   - Terminal updates are guarded on the pending status; a guarded update
//     that matches no row returns ErrNotPending, which preserves the
//     single-mutation invariant (pending → succeeded | failed, never
//     backward).
//   - Other DB errors (connectivity loss, constraint violations) propagate
//     raw; the service layer maps them onto its own storage taxonomy.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicateClientID indicates that a generation with the same client
// identifier already exists.
var ErrDuplicateClientID = errors.New("duplicate client id")

// ErrNotPending indicates that a terminal update matched no pending row:
// the record is missing or already terminal.
var ErrNotPending = errors.New("generation is not pending")

// CreateGeneration inserts a new pending GenerationRecord. The record ID is
// a randomly generated UUID and CreatedAt is set to UTC. A non-empty
// clientID is persisted for idempotency lookups; inserting a second record
// with the same clientID returns ErrDuplicateClientID.
func CreateGeneration(ctx context.Context, db *gorm.DB, prompt, label, clientID string, temperature *float64, maxTokens *int) (*domain.GenerationRecord, error) {
	rec := &domain.GenerationRecord{
		ID:          uuid.NewString(),
		Prompt:      prompt,
		Label:       label,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Status:      domain.GenerationPending,
		CreatedAt:   time.Now().UTC(),
	}
	if clientID != "" {
		rec.ClientID = &clientID
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateClientID
		}
		return nil, err
	}
	return rec, nil
}

// GetGeneration fetches a record by its ID, or ErrNotFound.
func GetGeneration(ctx context.Context, db *gorm.DB, id string) (*domain.GenerationRecord, error) {
	var rec domain.GenerationRecord
	err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetGenerationByClientID fetches the record correlated with a caller
// supplied identifier, or ErrNotFound. Used for the idempotency check that
// precedes record creation.
func GetGenerationByClientID(ctx context.Context, db *gorm.DB, clientID string) (*domain.GenerationRecord, error) {
	var rec domain.GenerationRecord
	err := db.WithContext(ctx).Where("client_id = ?", clientID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkGenerationSucceeded applies the single terminal mutation for a
// successful generation: status, text, and completion timestamp together in
// one guarded UPDATE. If the record is missing or no longer pending, it
// returns ErrNotPending and writes nothing.
func MarkGenerationSucceeded(ctx context.Context, db *gorm.DB, id, text string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.GenerationRecord{}).
		Where("id = ? AND status = ?", id, domain.GenerationPending).
		Updates(map[string]any{
			"status":       domain.GenerationSucceeded,
			"text":         text,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkGenerationFailed applies the single terminal mutation for a failed
// generation, recording the failure reason. Same guard semantics as
// MarkGenerationSucceeded.
func MarkGenerationFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.GenerationRecord{}).
		Where("id = ? AND status = ?", id, domain.GenerationPending).
		Updates(map[string]any{
			"status":         domain.GenerationFailed,
			"failure_reason": reason,
			"completed_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

// CountGenerations returns the total number of generation records.
func CountGenerations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.GenerationRecord{}).Count(&total).Error
	return total, err
}

// ListGenerationsPage returns a paginated slice of generation records,
// most recent first. The caller computes offset and limit.
func ListGenerationsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.GenerationRecord, error) {
	var out []domain.GenerationRecord
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
