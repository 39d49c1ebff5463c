package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/vta-api/internal/models"
)

// TeachingRepository handles persistence of module teachings and their sessions.
type TeachingRepository struct {
	db *sqlx.DB
}

// NewTeachingRepository constructs the repository.
func NewTeachingRepository(db *sqlx.DB) *TeachingRepository {
	return &TeachingRepository{db: db}
}

// Create persists a new module teaching.
func (r *TeachingRepository) Create(ctx context.Context, teaching *models.ModuleTeaching) error {
	if teaching.ID == "" {
		teaching.ID = uuid.NewString()
	}
	if teaching.CreatedAt.IsZero() {
		teaching.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO module_teachings (id, action_id, module_id, teacher_id, payment_total, payment_date, created_at)
        VALUES (:id, :action_id, :module_id, :teacher_id, :payment_total, :payment_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teaching); err != nil {
		if dup := translateUnique(err); dup == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("create teaching: %w", err)
	}
	return nil
}

// FindByID returns a teaching by its ID.
func (r *TeachingRepository) FindByID(ctx context.Context, id string) (*models.ModuleTeaching, error) {
	const query = `SELECT id, action_id, module_id, teacher_id, payment_total, payment_date, created_at
        FROM module_teachings WHERE id = $1`
	var teaching models.ModuleTeaching
	if err := r.db.GetContext(ctx, &teaching, query, id); err != nil {
		return nil, err
	}
	return &teaching, nil
}

// ListByAction returns the teachings of an action with module/teacher context.
func (r *TeachingRepository) ListByAction(ctx context.Context, actionID string) ([]models.TeachingDetail, error) {
	const query = `SELECT mt.id, mt.action_id, mt.module_id, mt.teacher_id, mt.payment_total, mt.payment_date, mt.created_at,
        m.name AS module_name, t.full_name AS teacher_name
        FROM module_teachings mt
        JOIN modules m ON m.id = mt.module_id
        JOIN teachers t ON t.id = mt.teacher_id
        WHERE mt.action_id = $1
        ORDER BY mt.created_at`
	var teachings []models.TeachingDetail
	if err := r.db.SelectContext(ctx, &teachings, query, actionID); err != nil {
		return nil, fmt.Errorf("list action teachings: %w", err)
	}
	return teachings, nil
}

// CoveredModuleIDs returns the distinct module IDs that have at least one
// teaching under the action. Callers compare it against the course's module
// set; the result is never cached because staffing is mutable for the whole
// life of the action.
func (r *TeachingRepository) CoveredModuleIDs(ctx context.Context, actionID string) (map[string]bool, error) {
	const query = `SELECT DISTINCT module_id FROM module_teachings WHERE action_id = $1`
	rows, err := r.db.QueryxContext(ctx, query, actionID)
	if err != nil {
		return nil, fmt.Errorf("list covered modules: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	covered := make(map[string]bool)
	for rows.Next() {
		var moduleID string
		if err := rows.Scan(&moduleID); err != nil {
			return nil, fmt.Errorf("scan covered module: %w", err)
		}
		covered[moduleID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate covered modules: %w", err)
	}
	return covered, nil
}

// SetPayment persists the settled payment pair onto a teaching.
func (r *TeachingRepository) SetPayment(ctx context.Context, id string, total float64, date time.Time) error {
	const query = `UPDATE module_teachings SET payment_total = $2, payment_date = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, total, date); err != nil {
		return fmt.Errorf("set teaching payment: %w", err)
	}
	return nil
}

// CreateSession persists a dated session under a teaching.
func (r *TeachingRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, teaching_id, date, start_time, duration_hours, teacher_presence, created_at)
        VALUES (:id, :teaching_id, :date, :start_time, :duration_hours, :teacher_presence, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindSessionByID returns a session with its parent teaching's action and
// module identifiers, which the attendance ledger checks against.
func (r *TeachingRepository) FindSessionByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	const query = `SELECT s.id, s.teaching_id, s.date, s.start_time, s.duration_hours, s.teacher_presence, s.created_at,
        mt.action_id, mt.module_id
        FROM sessions s
        JOIN module_teachings mt ON mt.id = s.teaching_id
        WHERE s.id = $1`
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessionsByTeaching returns the sessions of a teaching ordered by date.
func (r *TeachingRepository) ListSessionsByTeaching(ctx context.Context, teachingID string) ([]models.Session, error) {
	const query = `SELECT id, teaching_id, date, start_time, duration_hours, teacher_presence, created_at
        FROM sessions WHERE teaching_id = $1 ORDER BY date, start_time`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, teachingID); err != nil {
		return nil, fmt.Errorf("list teaching sessions: %w", err)
	}
	return sessions, nil
}
