package models

import "time"

// Module is a unit of teaching content. It can belong to multiple courses and
// carries zero or more category tags used for settlement bucketing.
type Module struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Hours     float64   `db:"hours" json:"hours"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ModuleCategory tags modules for payment-report bucketing; ShortName is the
// report column key.
type ModuleCategory struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	ShortName string `db:"short_name" json:"short_name"`
}

// CourseModule is the ordered course-to-module join row.
type CourseModule struct {
	CourseID string `db:"course_id" json:"course_id"`
	ModuleID string `db:"module_id" json:"module_id"`
	Position int    `db:"position" json:"position"`
}

// ModuleCategoryTag links a module to a category.
type ModuleCategoryTag struct {
	ModuleID   string `db:"module_id" json:"module_id"`
	CategoryID string `db:"category_id" json:"category_id"`
}
