package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/vta-api/internal/models"
)

// EnrollmentRepository handles persistence of action enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment row. The unique (action_id, student_id)
// constraint is the backstop against concurrent admissions; violations come
// back as ErrDuplicate.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.ActionEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO action_enrollments (id, action_id, student_id, enrolled_at, payment_total, payment_date)
        VALUES (:id, :action_id, :student_id, :enrolled_at, :payment_total, :payment_date)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if dup := translateUnique(err); dup == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.ActionEnrollment, error) {
	const query = `SELECT id, action_id, student_id, enrolled_at, payment_total, payment_date
        FROM action_enrollments WHERE id = $1`
	var enrollment models.ActionEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks whether an enrollment exists for the (action, student) pair.
func (r *EnrollmentRepository) Exists(ctx context.Context, actionID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM action_enrollments WHERE action_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, actionID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ListByAction returns enrollments for an action with student context.
func (r *EnrollmentRepository) ListByAction(ctx context.Context, actionID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.action_id, e.student_id, e.enrolled_at, e.payment_total, e.payment_date,
        s.full_name AS student_name
        FROM action_enrollments e
        JOIN students s ON s.id = e.student_id
        WHERE e.action_id = $1
        ORDER BY s.full_name`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, actionID); err != nil {
		return nil, fmt.Errorf("list action enrollments: %w", err)
	}
	return enrollments, nil
}

// SetPayment persists the settled payment pair onto an enrollment.
func (r *EnrollmentRepository) SetPayment(ctx context.Context, id string, total float64, date time.Time) error {
	const query = `UPDATE action_enrollments SET payment_total = $2, payment_date = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, total, date); err != nil {
		return fmt.Errorf("set enrollment payment: %w", err)
	}
	return nil
}

// Delete removes an enrollment and its participations in one transaction.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete enrollment: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_participations WHERE enrollment_id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment participations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM action_enrollments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete enrollment: %w", err)
	}
	committed = true
	return nil
}
