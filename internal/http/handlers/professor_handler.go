// Professor HTTP handlers.
//
// This file exposes REST endpoints for professors, derived from the course
// catalog (there is no separate professor store):
//   - GET /professors/{name}          (aggregate info)
//   - GET /professors/{name}/courses  (sections taught)
//
// Name matching is a case-insensitive substring, the same matching the
// catalog search filter uses.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-genai-backend/internal/services"
)

// ProfessorResponse aggregates one professor's catalog presence.
type ProfessorResponse struct {
	// Name is the professor name as stored in the catalog.
	Name string `json:"name"`
	// AverageRating is the mean professor rating across their sections,
	// null when no section carries a rating.
	AverageRating *float64 `json:"average_rating"`
	// TotalCourses is the number of sections they teach.
	TotalCourses int64 `json:"total_courses"`
}

// GetProfessor godoc
// @ID          getProfessor
// @Summary     Fetch aggregate info for one professor
// @Description Resolves the professor by case-insensitive substring match and
// @Description aggregates their sections: average rating and section count.
// @Tags        Professors
// @Produce     json
//
// @Param       name  path  string  true  "Professor name (substring)"  example(pinto)
//
// @Success     200  {object} handlers.ProfessorResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Professor not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /professors/{name} [get]
func (h *Handlers) GetProfessor(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "professor name required")
		return
	}

	info, err := h.courseSvc.ProfessorInfo(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, services.ErrProfessorNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "professor not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ProfessorResponse{
		Name:          info.Name,
		AverageRating: info.AverageRating,
		TotalCourses:  info.TotalSections,
	})
}

// GetProfessorCourses godoc
// @ID          getProfessorCourses
// @Summary     List the sections taught by one professor
// @Description Returns every catalog section whose professor matches the name,
// @Description ordered by course code.
// @Tags        Professors
// @Produce     json
//
// @Param       name  path  string  true  "Professor name (substring)"  example(pinto)
//
// @Success     200  {object} handlers.CourseSectionsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /professors/{name}/courses [get]
func (h *Handlers) GetProfessorCourses(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "professor name required")
		return
	}

	items, err := h.courseSvc.ProfessorCourses(c.Request.Context(), name)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, CourseSectionsResponse{Courses: items, Total: len(items)})
}
