// Package domain defines the persistence models for the generation backend.
// This file holds the course catalog entity consumed by the grounded-chat
// flow and the courses API.
package domain

import "time"

// Course is one section of a university course in the catalog. The catalog
// is read-mostly: rows are imported in bulk and queried by code or section
// number (NRC) to ground chat answers in real data.
//
// A course code (e.g. "IIC2233") may have several sections, each with its
// own NRC, professor, and ratings.
type Course struct {
	ID              string    `json:"id"                         gorm:"type:char(36);primaryKey"`
	Code            string    `json:"code"                       gorm:"type:varchar(16);not null;index:idx_courses_code"`
	Name            string    `json:"name"                       gorm:"type:varchar(255);not null"`
	NRC             string    `json:"nrc"                        gorm:"type:varchar(16);not null;uniqueIndex:ux_courses_nrc"`
	Professor       string    `json:"professor"                  gorm:"type:varchar(255)"`
	CourseRating    *float64  `json:"course_rating,omitempty"`
	ProfessorRating *float64  `json:"professor_rating,omitempty"`
	Workload        string    `json:"workload,omitempty"         gorm:"type:varchar(32)"`
	Campus          string    `json:"campus,omitempty"           gorm:"type:varchar(64)"`
	Summary         string    `json:"summary,omitempty"          gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Course.
func (Course) TableName() string { return "courses" }
