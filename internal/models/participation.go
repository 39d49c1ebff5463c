package models

import (
	"strings"
	"time"
)

// Presence is the enumerated outcome of a single session attendance fact.
type Presence string

const (
	PresencePresent   Presence = "P"
	PresenceAbsent    Presence = "A"
	PresenceJustified Presence = "J"
)

// Valid returns true when the presence is a supported value.
func (p Presence) Valid() bool {
	switch p {
	case PresencePresent, PresenceAbsent, PresenceJustified:
		return true
	default:
		return false
	}
}

// ParsePresence is the single validation entry point for presence values
// arriving as free-form strings.
func ParsePresence(raw string) (Presence, bool) {
	p := Presence(strings.ToUpper(strings.TrimSpace(raw)))
	return p, p.Valid()
}

// SessionParticipation is the attendance fact for one enrollment in one
// session. Unique per (session_id, enrollment_id).
type SessionParticipation struct {
	ID              string    `db:"id" json:"id"`
	SessionID       string    `db:"session_id" json:"session_id"`
	EnrollmentID    string    `db:"enrollment_id" json:"enrollment_id"`
	Presence        Presence  `db:"presence" json:"presence"`
	AttendanceHours float64   `db:"attendance_hours" json:"attendance_hours"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ParticipationFact is a participation joined with the session → teaching →
// module chain the settlement calculator consumes.
type ParticipationFact struct {
	SessionParticipation
	TeachingID      string  `db:"teaching_id"`
	ModuleID        string  `db:"module_id"`
	SessionDuration float64 `db:"session_duration"`
}

// SessionRosterRow summarises one participation for a session report.
type SessionRosterRow struct {
	EnrollmentID    string   `db:"enrollment_id" json:"enrollment_id"`
	StudentID       string   `db:"student_id" json:"student_id"`
	StudentName     string   `db:"student_name" json:"student_name"`
	Presence        Presence `db:"presence" json:"presence"`
	AttendanceHours float64  `db:"attendance_hours" json:"attendance_hours"`
}
