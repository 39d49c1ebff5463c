package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/vta-api/internal/models"
)

// ParticipationRepository persists per-session attendance facts.
type ParticipationRepository struct {
	db *sqlx.DB
}

// NewParticipationRepository constructs the repository.
func NewParticipationRepository(db *sqlx.DB) *ParticipationRepository {
	return &ParticipationRepository{db: db}
}

// Create inserts a single participation. A duplicate (session, enrollment)
// pair comes back as ErrDuplicate; the batch upsert is the idempotent path.
func (r *ParticipationRepository) Create(ctx context.Context, record *models.SessionParticipation) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO session_participations (id, session_id, enrollment_id, presence, attendance_hours, created_at, updated_at)
        VALUES (:id, :session_id, :enrollment_id, :presence, :attendance_hours, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if dup := translateUnique(err); dup == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("create participation: %w", err)
	}
	return nil
}

// FindBySessionAndEnrollment returns the participation for the pair.
func (r *ParticipationRepository) FindBySessionAndEnrollment(ctx context.Context, sessionID, enrollmentID string) (*models.SessionParticipation, error) {
	const query = `SELECT id, session_id, enrollment_id, presence, attendance_hours, created_at, updated_at
        FROM session_participations WHERE session_id = $1 AND enrollment_id = $2`
	var record models.SessionParticipation
	if err := r.db.GetContext(ctx, &record, query, sessionID, enrollmentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpsertBatch writes a whole session roster in one transaction. Every row is
// inserted or updated through ON CONFLICT, so re-submitting the same roster
// converges to the same stored state, and a failure anywhere rolls the whole
// batch back.
func (r *ParticipationRepository) UpsertBatch(ctx context.Context, records []models.SessionParticipation) ([]models.SessionParticipation, error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin roster upsert: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	const query = `INSERT INTO session_participations (id, session_id, enrollment_id, presence, attendance_hours, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, enrollment_id)
DO UPDATE SET presence = EXCLUDED.presence, attendance_hours = EXCLUDED.attendance_hours, updated_at = EXCLUDED.updated_at
RETURNING id, session_id, enrollment_id, presence, attendance_hours, created_at, updated_at`

	now := time.Now().UTC()
	stored := make([]models.SessionParticipation, 0, len(records))
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		var out models.SessionParticipation
		if err := tx.GetContext(ctx, &out, query, rec.ID, rec.SessionID, rec.EnrollmentID, rec.Presence, rec.AttendanceHours, rec.CreatedAt, rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("upsert participation for enrollment %s: %w", rec.EnrollmentID, err)
		}
		stored = append(stored, out)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit roster upsert: %w", err)
	}
	committed = true
	return stored, nil
}

// FactsByEnrollment returns the participations of an enrollment joined with
// the session → teaching → module chain the settlement calculator needs.
func (r *ParticipationRepository) FactsByEnrollment(ctx context.Context, enrollmentID string) ([]models.ParticipationFact, error) {
	const query = `SELECT p.id, p.session_id, p.enrollment_id, p.presence, p.attendance_hours, p.created_at, p.updated_at,
        s.teaching_id, mt.module_id, s.duration_hours AS session_duration
        FROM session_participations p
        JOIN sessions s ON s.id = p.session_id
        JOIN module_teachings mt ON mt.id = s.teaching_id
        WHERE p.enrollment_id = $1
        ORDER BY s.date, s.start_time`
	var facts []models.ParticipationFact
	if err := r.db.SelectContext(ctx, &facts, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment participations: %w", err)
	}
	return facts, nil
}

// SessionReport returns the recorded roster of a session.
func (r *ParticipationRepository) SessionReport(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error) {
	const query = `SELECT p.enrollment_id, e.student_id, s.full_name AS student_name, p.presence, p.attendance_hours
        FROM session_participations p
        JOIN action_enrollments e ON e.id = p.enrollment_id
        JOIN students s ON s.id = e.student_id
        WHERE p.session_id = $1
        ORDER BY s.full_name`
	var rows []models.SessionRosterRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("session attendance report: %w", err)
	}
	return rows, nil
}
