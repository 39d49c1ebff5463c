package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/vta-api/internal/models"
)

// ActionRepository handles persistence of course actions.
type ActionRepository struct {
	db *sqlx.DB
}

// NewActionRepository constructs the repository.
func NewActionRepository(db *sqlx.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// Create persists a new course action.
func (r *ActionRepository) Create(ctx context.Context, action *models.CourseAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.UpdatedAt = now
	const query = `INSERT INTO course_actions (id, course_id, coordinator_id, location, start_date, end_date, created_at, updated_at)
        VALUES (:id, :course_id, :coordinator_id, :location, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

// FindByID returns an action by its ID.
func (r *ActionRepository) FindByID(ctx context.Context, id string) (*models.CourseAction, error) {
	const query = `SELECT id, course_id, coordinator_id, location, start_date, end_date, created_at, updated_at
        FROM course_actions WHERE id = $1`
	var action models.CourseAction
	if err := r.db.GetContext(ctx, &action, query, id); err != nil {
		return nil, err
	}
	return &action, nil
}

// FindDetailByID returns an action with course context.
func (r *ActionRepository) FindDetailByID(ctx context.Context, id string) (*models.ActionDetail, error) {
	const query = `SELECT a.id, a.course_id, a.coordinator_id, a.location, a.start_date, a.end_date, a.created_at, a.updated_at,
        c.code AS course_code, c.title AS course_title
        FROM course_actions a
        JOIN courses c ON c.id = a.course_id
        WHERE a.id = $1`
	var detail models.ActionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByCourse returns the actions scheduled for a course.
func (r *ActionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAction, error) {
	const query = `SELECT id, course_id, coordinator_id, location, start_date, end_date, created_at, updated_at
        FROM course_actions WHERE course_id = $1 ORDER BY start_date`
	var actions []models.CourseAction
	if err := r.db.SelectContext(ctx, &actions, query, courseID); err != nil {
		return nil, fmt.Errorf("list course actions: %w", err)
	}
	return actions, nil
}

// Delete removes an action and all dependent rows in a single transaction:
// participations, sessions, teachings, enrollments, then the action itself.
// Commit is reached only on the success path; any failure rolls everything
// back through the deferred handler.
func (r *ActionRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete action: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	steps := []struct {
		label string
		query string
	}{
		{"delete session participations", `DELETE FROM session_participations WHERE session_id IN (
            SELECT s.id FROM sessions s
            JOIN module_teachings mt ON mt.id = s.teaching_id
            WHERE mt.action_id = $1)`},
		{"delete enrollment participations", `DELETE FROM session_participations WHERE enrollment_id IN (
            SELECT id FROM action_enrollments WHERE action_id = $1)`},
		{"delete sessions", `DELETE FROM sessions WHERE teaching_id IN (
            SELECT id FROM module_teachings WHERE action_id = $1)`},
		{"delete teachings", `DELETE FROM module_teachings WHERE action_id = $1`},
		{"delete enrollments", `DELETE FROM action_enrollments WHERE action_id = $1`},
		{"delete action", `DELETE FROM course_actions WHERE id = $1`},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, id); err != nil {
			return fmt.Errorf("%s: %w", step.label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete action: %w", err)
	}
	committed = true
	return nil
}
