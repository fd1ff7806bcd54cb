// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the course
// catalog consumed by the grounded-chat flow and the courses API.
package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/domain"
)

// CourseFilter narrows a catalog search. Empty fields are ignored; Name and
// Professor match case-insensitive substrings, Code matches exactly
// (normalized to upper case).
type CourseFilter struct {
	Code      string
	Name      string
	Professor string
}

// UpsertCourse inserts a course section or, when a row with the same NRC
// already exists, updates its mutable fields. Used by catalog imports.
func UpsertCourse(ctx context.Context, db *gorm.DB, c *domain.Course) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.NRC = strings.TrimSpace(c.NRC)

	var existing domain.Course
	err := db.WithContext(ctx).Where("nrc = ?", c.NRC).First(&existing).Error
	switch {
	case err == nil:
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		return db.WithContext(ctx).Save(c).Error
	case err == gorm.ErrRecordNotFound:
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		return db.WithContext(ctx).Create(c).Error
	default:
		return err
	}
}

// ListCoursesByCode returns up to limit sections of a course code, best
// rated professor first. The code comparison is case-insensitive.
func ListCoursesByCode(ctx context.Context, db *gorm.DB, code string, limit int) ([]domain.Course, error) {
	if limit <= 0 {
		limit = 5
	}
	var out []domain.Course
	err := db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Order("professor_rating desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CatalogEntry is one distinct course offered in the catalog.
type CatalogEntry struct {
	Code string
	Name string
}

// ListCourseCatalog returns the distinct (code, name) pairs in the catalog,
// ordered by code. Used to enumerate courses for the chat classification step.
func ListCourseCatalog(ctx context.Context, db *gorm.DB) ([]CatalogEntry, error) {
	var out []CatalogEntry
	err := db.WithContext(ctx).
		Model(&domain.Course{}).
		Distinct("code", "name").
		Order("code asc").
		Find(&out).Error
	return out, err
}

// GetCourseByNRC fetches one section by its NRC, or ErrNotFound.
func GetCourseByNRC(ctx context.Context, db *gorm.DB, nrc string) (*domain.Course, error) {
	var c domain.Course
	err := db.WithContext(ctx).Where("nrc = ?", strings.TrimSpace(nrc)).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ProfessorStats aggregates one professor's catalog presence: the stored
// name, the average professor rating across their sections, and how many
// sections they teach.
type ProfessorStats struct {
	Name          string
	AverageRating *float64
	TotalSections int64
}

// GetProfessorStats resolves a professor by case-insensitive substring match
// and aggregates their sections. When several professors match, the one with
// the most sections wins. Returns ErrNotFound when nothing matches.
func GetProfessorStats(ctx context.Context, db *gorm.DB, name string) (*ProfessorStats, error) {
	needle := "%" + strings.ToLower(strings.TrimSpace(name)) + "%"
	var out []ProfessorStats
	err := db.WithContext(ctx).
		Model(&domain.Course{}).
		Select("professor AS name, AVG(professor_rating) AS average_rating, COUNT(*) AS total_sections").
		Where("professor <> '' AND lower(professor) LIKE ?", needle).
		Group("professor").
		Order("total_sections desc, professor asc").
		Limit(1).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// ListCoursesByProfessor returns every section taught by a matching
// professor. The name comparison is a case-insensitive substring, the same
// matching the search filter uses.
func ListCoursesByProfessor(ctx context.Context, db *gorm.DB, name string) ([]domain.Course, error) {
	needle := "%" + strings.ToLower(strings.TrimSpace(name)) + "%"
	var out []domain.Course
	err := db.WithContext(ctx).
		Where("lower(professor) LIKE ?", needle).
		Order("code asc, nrc asc").
		Find(&out).Error
	return out, err
}

// SearchCourses returns a page of catalog rows matching the filter, plus the
// total match count for pagination metadata.
func SearchCourses(ctx context.Context, db *gorm.DB, f CourseFilter, offset, limit int) ([]domain.Course, int64, error) {
	q := db.WithContext(ctx).Model(&domain.Course{})
	if f.Code != "" {
		q = q.Where("code = ?", strings.ToUpper(strings.TrimSpace(f.Code)))
	}
	if f.Name != "" {
		q = q.Where("lower(name) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(f.Name))+"%")
	}
	if f.Professor != "" {
		q = q.Where("lower(professor) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(f.Professor))+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Course{}, 0, nil
	}

	var out []domain.Course
	err := q.Order("code asc, nrc asc").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}
