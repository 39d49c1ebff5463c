package models

import (
	"strings"
	"time"
)

// CourseStatus represents the lifecycle state of a course.
type CourseStatus string

const (
	CourseStatusActive    CourseStatus = "ACTIVE"
	CourseStatusCompleted CourseStatus = "COMPLETED"
	CourseStatusCancelled CourseStatus = "CANCELLED"
)

// Valid returns true when the status is a supported value.
func (s CourseStatus) Valid() bool {
	switch s {
	case CourseStatusActive, CourseStatusCompleted, CourseStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseCourseStatus normalises a free-form status string.
func ParseCourseStatus(raw string) (CourseStatus, bool) {
	status := CourseStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Course represents a vocational-training course. TotalDuration is the hour
// budget its assigned modules must never exceed.
type Course struct {
	ID            string       `db:"id" json:"id"`
	Code          string       `db:"code" json:"code"`
	Title         string       `db:"title" json:"title"`
	TotalDuration float64      `db:"total_duration" json:"total_duration"`
	Status        CourseStatus `db:"status" json:"status"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseDetail extends a course with its assigned-hours running total.
type CourseDetail struct {
	Course
	AssignedHours float64 `db:"assigned_hours" json:"assigned_hours"`
	ModuleCount   int     `db:"module_count" json:"module_count"`
}

// CourseFilter scopes course listing.
type CourseFilter struct {
	Status    CourseStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
