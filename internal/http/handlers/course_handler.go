// Course catalog HTTP handlers.
//
// This file exposes REST endpoints for the course catalog:
//   - GET  /courses               (search, paginated)
//   - GET  /courses/code/{code}   (sections of one course, best rated first)
//   - GET  /courses/nrc/{nrc}     (one section)
//   - POST /courses/import        (bulk upsert by NRC)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-genai-backend/internal/domain"
	"github.com/tbourn/go-genai-backend/internal/repo"
	"github.com/tbourn/go-genai-backend/internal/services"
)

//
// DTOs
//

// ListCoursesResponse wraps a page of catalog rows and pagination information.
type ListCoursesResponse struct {
	Courses    []domain.Course `json:"courses"`
	Pagination Pagination      `json:"pagination"`
}

// CourseSectionsResponse contains the sections of one course code.
type CourseSectionsResponse struct {
	Courses []domain.Course `json:"courses"`
	Total   int             `json:"total"`
}

// ImportCoursesRequest is the JSON payload for a bulk catalog import.
type ImportCoursesRequest struct {
	Courses []domain.Course `json:"courses" binding:"required,min=1"`
}

// ImportCoursesResponse reports how many rows an import applied.
type ImportCoursesResponse struct {
	Applied int `json:"applied"`
}

//
// Handlers
//

// SearchCourses godoc
// @ID          searchCourses
// @Summary     Search the course catalog (paginated)
// @Description Filters by exact code and case-insensitive name/professor substrings.
// @Tags        Courses
// @Produce     json
//
// @Param       code       query  string  false "Course code"           example(IIC2233)
// @Param       name       query  string  false "Name substring"        example(programacion)
// @Param       professor  query  string  false "Professor substring"   example(pinto)
// @Param       page       query  int     false "Page number"           minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"        minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCoursesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /courses [get]
func (h *Handlers) SearchCourses(c *gin.Context) {
	page, pageSize := clampPagination(c)

	filter := repo.CourseFilter{
		Code:      c.Query("code"),
		Name:      c.Query("name"),
		Professor: c.Query("professor"),
	}

	items, total, err := h.courseSvc.SearchPage(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListCoursesResponse{
		Courses: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// CoursesByCode godoc
// @ID          coursesByCode
// @Summary     List the sections of one course
// @Description Returns up to five sections of the course code, best rated professor first.
// @Tags        Courses
// @Produce     json
//
// @Param       code  path  string  true  "Course code"  example(IIC2233)
//
// @Success     200  {object} handlers.CourseSectionsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /courses/code/{code} [get]
func (h *Handlers) CoursesByCode(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "course code required")
		return
	}

	items, err := h.courseSvc.SectionsByCode(c.Request.Context(), code, 0)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, CourseSectionsResponse{Courses: items, Total: len(items)})
}

// CourseByNRC godoc
// @ID          courseByNRC
// @Summary     Fetch one course section by NRC
// @Tags        Courses
// @Produce     json
//
// @Param       nrc  path  string  true  "Section NRC"  example(10233)
//
// @Success     200  {object} domain.Course
// @Failure     404  {object} handlers.ErrorResponse "Course not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /courses/nrc/{nrc} [get]
func (h *Handlers) CourseByNRC(c *gin.Context) {
	nrc := strings.TrimSpace(c.Param("nrc"))

	course, err := h.courseSvc.GetByNRC(c.Request.Context(), nrc)
	if err != nil {
		if errors.Is(err, services.ErrCourseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "course not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, course)
}

// ImportCourses godoc
// @ID          importCourses
// @Summary     Bulk import catalog rows
// @Description Upserts the supplied rows keyed by NRC. Rows missing a code or NRC are skipped.
// @Tags        Courses
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ImportCoursesRequest  true  "Catalog rows"
//
// @Success     200  {object} handlers.ImportCoursesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Import failed"
// @Router      /courses/import [post]
func (h *Handlers) ImportCourses(c *gin.Context) {
	var req ImportCoursesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "courses required")
		return
	}

	applied, err := h.courseSvc.Import(c.Request.Context(), req.Courses)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeImportFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ImportCoursesResponse{Applied: applied})
}
