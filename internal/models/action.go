package models

import "time"

// CourseAction is a scheduled offering of a course to a cohort, with its own
// dates, coordinator and staffing. Invariant: StartDate < EndDate.
type CourseAction struct {
	ID            string    `db:"id" json:"id"`
	CourseID      string    `db:"course_id" json:"course_id"`
	CoordinatorID string    `db:"coordinator_id" json:"coordinator_id"`
	Location      *string   `db:"location" json:"location,omitempty"`
	StartDate     time.Time `db:"start_date" json:"start_date"`
	EndDate       time.Time `db:"end_date" json:"end_date"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ActionDetail extends an action with course context.
type ActionDetail struct {
	CourseAction
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// ModuleTeaching pairs one teacher with one module within one action. The
// payment pair is the persisted settlement outcome, distinct from the
// recomputable calculated total.
type ModuleTeaching struct {
	ID           string     `db:"id" json:"id"`
	ActionID     string     `db:"action_id" json:"action_id"`
	ModuleID     string     `db:"module_id" json:"module_id"`
	TeacherID    string     `db:"teacher_id" json:"teacher_id"`
	PaymentTotal *float64   `db:"payment_total" json:"payment_total,omitempty"`
	PaymentDate  *time.Time `db:"payment_date" json:"payment_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// TeachingDetail extends a teaching with module and teacher context.
type TeachingDetail struct {
	ModuleTeaching
	ModuleName  string `db:"module_name" json:"module_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// Session is one dated lecture of a module teaching.
type Session struct {
	ID              string    `db:"id" json:"id"`
	TeachingID      string    `db:"teaching_id" json:"teaching_id"`
	Date            time.Time `db:"date" json:"date"`
	StartTime       string    `db:"start_time" json:"start_time"`
	DurationHours   float64   `db:"duration_hours" json:"duration_hours"`
	TeacherPresence Presence  `db:"teacher_presence" json:"teacher_presence"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// SessionDetail carries the identifiers the ledger checks against: the
// session's parent teaching, module and action.
type SessionDetail struct {
	Session
	ActionID string `db:"action_id" json:"action_id"`
	ModuleID string `db:"module_id" json:"module_id"`
}
