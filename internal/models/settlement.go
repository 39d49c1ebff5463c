package models

import "time"

// SettlementRates is the single globally-scoped configuration record feeding
// the settlement calculator.
type SettlementRates struct {
	StudentMealRate   float64   `db:"student_meal_rate" json:"student_meal_rate"`
	TeacherHourlyRate float64   `db:"teacher_hourly_rate" json:"teacher_hourly_rate"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Settlement is the derived monetary outcome for one enrollment or teaching.
// CalculatedTotal is a read-time value; persisting it is a separate, explicit
// settle operation.
type Settlement struct {
	CategoryTotals  map[string]float64 `json:"category_totals"`
	TotalHours      float64            `json:"total_hours"`
	TotalDays       int                `json:"total_days"`
	HourlyRate      float64            `json:"hourly_rate"`
	CalculatedTotal float64            `json:"calculated_total"`
}

// EnrollmentSettlementRow is one student line of an action settlement report.
type EnrollmentSettlementRow struct {
	EnrollmentID string     `json:"enrollment_id"`
	StudentID    string     `json:"student_id"`
	StudentName  string     `json:"student_name"`
	Settlement   Settlement `json:"settlement"`
	PaymentTotal *float64   `json:"payment_total,omitempty"`
	PaymentDate  *time.Time `json:"payment_date,omitempty"`
}

// ActionSettlementReport aggregates settlements across every enrollment of an
// action. CategoryTotals and GrandTotal are rounded independently; a few
// cents of drift between them is accepted.
type ActionSettlementReport struct {
	ActionID       string                    `json:"action_id"`
	Rows           []EnrollmentSettlementRow `json:"rows"`
	CategoryTotals map[string]float64        `json:"category_totals"`
	TotalHours     float64                   `json:"total_hours"`
	GrandTotal     float64                   `json:"grand_total"`
	GeneratedAt    time.Time                 `json:"generated_at"`
}
