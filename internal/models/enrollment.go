package models

import "time"

// ActionEnrollment ties one student to one course action. Unique per
// (action_id, student_id); the storage constraint is the backstop against
// concurrent admissions.
type ActionEnrollment struct {
	ID           string     `db:"id" json:"id"`
	ActionID     string     `db:"action_id" json:"action_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	EnrolledAt   time.Time  `db:"enrolled_at" json:"enrolled_at"`
	PaymentTotal *float64   `db:"payment_total" json:"payment_total,omitempty"`
	PaymentDate  *time.Time `db:"payment_date" json:"payment_date,omitempty"`
}

// EnrollmentDetail extends an enrollment with student context.
type EnrollmentDetail struct {
	ActionEnrollment
	StudentName string `db:"student_name" json:"student_name"`
}
