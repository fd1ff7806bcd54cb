// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/domain"
)

// GenerationsStats returns aggregate metadata for the generations table: the
// total number of rows and the most recent completion timestamp. When no
// generation has completed yet, maxCompletedAt is nil.
//
// The pair (count, maxCompletedAt) changes whenever a record is created or
// reaches a terminal status, which makes it a cheap ETag ingredient for the
// paginated listing endpoint.
func GenerationsStats(ctx context.Context, db *gorm.DB) (count int64, maxCompletedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.GenerationRecord{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest completed_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CompletedAt *time.Time
	}
	if err = q.Select("completed_at").
		Where("completed_at IS NOT NULL").
		Order("completed_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, row.CompletedAt, nil
}
