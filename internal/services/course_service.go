// Package services – CourseService
//
// This file implements CourseService, which manages the course catalog:
// imports (upserts by NRC), single-section lookup, sections by course code,
// professor lookups, and filtered, paginated search. Normalization of codes
// and NRCs happens in the repository layer.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/domain"
	"github.com/tbourn/go-genai-backend/internal/repo"
)

// CourseService provides catalog-level operations.
type CourseService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Import upserts a batch of catalog rows keyed by NRC. It returns the number
// of rows applied and stops on the first storage failure.
func (s *CourseService) Import(ctx context.Context, courses []domain.Course) (int, error) {
	applied := 0
	for i := range courses {
		c := courses[i]
		if strings.TrimSpace(c.NRC) == "" || strings.TrimSpace(c.Code) == "" {
			continue
		}
		if err := repo.UpsertCourse(ctx, s.DB, &c); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// SectionsByCode returns up to limit sections of a course, best rated
// professor first.
func (s *CourseService) SectionsByCode(ctx context.Context, code string, limit int) ([]domain.Course, error) {
	return repo.ListCoursesByCode(ctx, s.DB, code, limit)
}

// GetByNRC fetches one section by its NRC.
func (s *CourseService) GetByNRC(ctx context.Context, nrc string) (*domain.Course, error) {
	c, err := repo.GetCourseByNRC(ctx, s.DB, nrc)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return c, nil
}

// ProfessorInfo aggregates one professor's catalog presence by name. The
// match is a case-insensitive substring; when nothing matches it returns
// ErrProfessorNotFound.
func (s *CourseService) ProfessorInfo(ctx context.Context, name string) (*repo.ProfessorStats, error) {
	stats, err := repo.GetProfessorStats(ctx, s.DB, name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfessorNotFound
		}
		return nil, err
	}
	return stats, nil
}

// ProfessorCourses returns the sections taught by a matching professor,
// ordered by course code.
func (s *CourseService) ProfessorCourses(ctx context.Context, name string) ([]domain.Course, error) {
	return repo.ListCoursesByProfessor(ctx, s.DB, name)
}

// SearchPage returns a page of catalog rows matching the filter.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *CourseService) SearchPage(ctx context.Context, f repo.CourseFilter, page, pageSize int) ([]domain.Course, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return repo.SearchCourses(ctx, s.DB, f, offset, pageSize)
}
