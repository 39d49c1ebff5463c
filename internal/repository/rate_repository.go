package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/formacore/vta-api/internal/models"
)

// RateRepository reads and writes the single globally-scoped settlement
// settings row.
type RateRepository struct {
	db *sqlx.DB
}

// NewRateRepository constructs the repository.
func NewRateRepository(db *sqlx.DB) *RateRepository {
	return &RateRepository{db: db}
}

// Get returns the settlement rates.
func (r *RateRepository) Get(ctx context.Context) (*models.SettlementRates, error) {
	const query = `SELECT student_meal_rate, teacher_hourly_rate, updated_at FROM settlement_settings WHERE singleton = TRUE`
	var rates models.SettlementRates
	if err := r.db.GetContext(ctx, &rates, query); err != nil {
		return nil, err
	}
	return &rates, nil
}

// Update overwrites the settlement rates.
func (r *RateRepository) Update(ctx context.Context, rates *models.SettlementRates) error {
	rates.UpdatedAt = time.Now().UTC()
	const query = `UPDATE settlement_settings SET student_meal_rate = $1, teacher_hourly_rate = $2, updated_at = $3 WHERE singleton = TRUE`
	if _, err := r.db.ExecContext(ctx, query, rates.StudentMealRate, rates.TeacherHourlyRate, rates.UpdatedAt); err != nil {
		return fmt.Errorf("update settlement rates: %w", err)
	}
	return nil
}

// EnsureDefaults seeds the settings row from configured defaults when no row
// exists yet; an existing row is left untouched.
func (r *RateRepository) EnsureDefaults(ctx context.Context, studentMealRate, teacherHourlyRate float64) error {
	const query = `INSERT INTO settlement_settings (singleton, student_meal_rate, teacher_hourly_rate, updated_at)
        VALUES (TRUE, $1, $2, $3)
        ON CONFLICT (singleton) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, studentMealRate, teacherHourlyRate, time.Now().UTC()); err != nil {
		return fmt.Errorf("seed settlement rates: %w", err)
	}
	return nil
}
