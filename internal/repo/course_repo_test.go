package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-genai-backend/internal/domain"
)

func f64(v float64) *float64 { return &v }

func TestUpsertCourse_InsertThenUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c := &domain.Course{
		Code:            "iic2233",
		Name:            "Programacion Avanzada",
		NRC:             " 10233 ",
		Professor:       "F. Pinto",
		ProfessorRating: f64(4.2),
	}
	if err := UpsertCourse(ctx, db, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if c.Code != "IIC2233" {
		t.Errorf("code not normalized: %q", c.Code)
	}
	if c.NRC != "10233" {
		t.Errorf("nrc not trimmed: %q", c.NRC)
	}
	firstID := c.ID

	// Same NRC again must update in place, not create a second row.
	again := &domain.Course{
		Code:            "IIC2233",
		Name:            "Programacion Avanzada",
		NRC:             "10233",
		Professor:       "F. Pinto",
		ProfessorRating: f64(4.6),
	}
	if err := UpsertCourse(ctx, db, again); err != nil {
		t.Fatalf("update: %v", err)
	}
	if again.ID != firstID {
		t.Errorf("upsert created new row: %q != %q", again.ID, firstID)
	}

	got, err := GetCourseByNRC(ctx, db, "10233")
	if err != nil {
		t.Fatalf("GetCourseByNRC: %v", err)
	}
	if got.ProfessorRating == nil || *got.ProfessorRating != 4.6 {
		t.Errorf("rating not updated: %v", got.ProfessorRating)
	}
}

func TestGetCourseByNRC_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := GetCourseByNRC(context.Background(), db, "99999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListCoursesByCode_OrderAndLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sections := []domain.Course{
		{Code: "IIC2233", Name: "Programacion Avanzada", NRC: "1", Professor: "A", ProfessorRating: f64(3.1)},
		{Code: "IIC2233", Name: "Programacion Avanzada", NRC: "2", Professor: "B", ProfessorRating: f64(4.8)},
		{Code: "IIC2233", Name: "Programacion Avanzada", NRC: "3", Professor: "C", ProfessorRating: f64(4.0)},
		{Code: "MAT1610", Name: "Calculo I", NRC: "4", Professor: "D", ProfessorRating: f64(5.0)},
	}
	for i := range sections {
		if err := UpsertCourse(ctx, db, &sections[i]); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	got, err := ListCoursesByCode(ctx, db, "iic2233", 2)
	if err != nil {
		t.Fatalf("ListCoursesByCode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2", len(got))
	}
	if got[0].Professor != "B" || got[1].Professor != "C" {
		t.Errorf("ordering wrong: %q, %q", got[0].Professor, got[1].Professor)
	}
}

func TestSearchCourses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []domain.Course{
		{Code: "IIC2233", Name: "Programacion Avanzada", NRC: "1", Professor: "Fernanda Pinto"},
		{Code: "IIC1103", Name: "Introduccion a la Programacion", NRC: "2", Professor: "Juan Reutter"},
		{Code: "MAT1610", Name: "Calculo I", NRC: "3", Professor: "Maria Perez"},
	}
	for i := range seed {
		if err := UpsertCourse(ctx, db, &seed[i]); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	tests := []struct {
		name      string
		filter    CourseFilter
		wantTotal int64
	}{
		{"by code", CourseFilter{Code: "iic2233"}, 1},
		{"by name substring", CourseFilter{Name: "programacion"}, 2},
		{"by professor substring", CourseFilter{Professor: "pinto"}, 1},
		{"no match", CourseFilter{Name: "quimica"}, 0},
		{"unfiltered", CourseFilter{}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, total, err := SearchCourses(ctx, db, tt.filter, 0, 10)
			if err != nil {
				t.Fatalf("SearchCourses: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d; want %d", total, tt.wantTotal)
			}
			if int64(len(rows)) != tt.wantTotal {
				t.Errorf("rows = %d; want %d", len(rows), tt.wantTotal)
			}
		})
	}
}

func TestGetProfessorStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []domain.Course{
		{Code: "IIC2233", Name: "Programacion Avanzada", NRC: "1", Professor: "Fernanda Pinto", ProfessorRating: f64(4.0)},
		{Code: "IIC1103", Name: "Introduccion a la Programacion", NRC: "2", Professor: "Fernanda Pinto", ProfessorRating: f64(5.0)},
		{Code: "MAT1610", Name: "Calculo I", NRC: "3", Professor: "Maria Perez", ProfessorRating: f64(3.0)},
	}
	for i := range seed {
		if err := UpsertCourse(ctx, db, &seed[i]); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	got, err := GetProfessorStats(ctx, db, "PINTO")
	if err != nil {
		t.Fatalf("GetProfessorStats: %v", err)
	}
	if got.Name != "Fernanda Pinto" {
		t.Errorf("name = %q", got.Name)
	}
	if got.TotalSections != 2 {
		t.Errorf("sections = %d; want 2", got.TotalSections)
	}
	if got.AverageRating == nil || *got.AverageRating != 4.5 {
		t.Errorf("average = %v; want 4.5", got.AverageRating)
	}

	if _, err := GetProfessorStats(ctx, db, "nadie"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestGetProfessorStats_MostSectionsWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Two professors match the substring; the one with more sections wins.
	seed := []domain.Course{
		{Code: "A100", Name: "Alpha", NRC: "1", Professor: "Ana Perez"},
		{Code: "B200", Name: "Beta", NRC: "2", Professor: "Maria Perez"},
		{Code: "C300", Name: "Gamma", NRC: "3", Professor: "Maria Perez"},
	}
	for i := range seed {
		if err := UpsertCourse(ctx, db, &seed[i]); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	got, err := GetProfessorStats(ctx, db, "perez")
	if err != nil {
		t.Fatalf("GetProfessorStats: %v", err)
	}
	if got.Name != "Maria Perez" {
		t.Errorf("name = %q; want the professor with more sections", got.Name)
	}
	if got.AverageRating != nil {
		t.Errorf("average = %v; want nil when no ratings stored", got.AverageRating)
	}
}

func TestListCoursesByProfessor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []domain.Course{
		{Code: "IIC2233", Name: "Programacion Avanzada", NRC: "1", Professor: "Fernanda Pinto"},
		{Code: "IIC1103", Name: "Introduccion a la Programacion", NRC: "2", Professor: "Fernanda Pinto"},
		{Code: "MAT1610", Name: "Calculo I", NRC: "3", Professor: "Maria Perez"},
	}
	for i := range seed {
		if err := UpsertCourse(ctx, db, &seed[i]); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	got, err := ListCoursesByProfessor(ctx, db, "pinto")
	if err != nil {
		t.Fatalf("ListCoursesByProfessor: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2", len(got))
	}
	if got[0].Code != "IIC1103" || got[1].Code != "IIC2233" {
		t.Errorf("ordering wrong: %q, %q", got[0].Code, got[1].Code)
	}

	none, err := ListCoursesByProfessor(ctx, db, "nadie")
	if err != nil || len(none) != 0 {
		t.Errorf("no-match lookup = (%v, %v); want empty", none, err)
	}
}

func TestSearchCourses_Pagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, c := range []domain.Course{
		{Code: "A100", Name: "Alpha", NRC: "1"},
		{Code: "B200", Name: "Beta", NRC: "2"},
		{Code: "C300", Name: "Gamma", NRC: "3"},
	} {
		cc := c
		if err := UpsertCourse(ctx, db, &cc); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rows, total, err := SearchCourses(ctx, db, CourseFilter{}, 1, 1)
	if err != nil {
		t.Fatalf("SearchCourses: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d; want 3", total)
	}
	if len(rows) != 1 || rows[0].Code != "B200" {
		t.Errorf("page = %+v; want single B200 row", rows)
	}
}
