package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/vta-api/internal/models"
)

// ModuleRepository handles persistence of modules and their category tags.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository constructs the repository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// Create persists a new module row.
func (r *ModuleRepository) Create(ctx context.Context, module *models.Module) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if module.CreatedAt.IsZero() {
		module.CreatedAt = now
	}
	module.UpdatedAt = now
	const query = `INSERT INTO modules (id, name, hours, active, created_at, updated_at)
        VALUES (:id, :name, :hours, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	return nil
}

// FindByID returns a module by its ID.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.Module, error) {
	const query = `SELECT id, name, hours, active, created_at, updated_at FROM modules WHERE id = $1`
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}
	return &module, nil
}

// ListByIDs returns the modules for the given identifiers, preserving no
// particular order.
func (r *ModuleRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Module, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, name, hours, active, created_at, updated_at FROM modules WHERE id IN (%s)`,
		strings.Join(placeholders, ","))
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, args...); err != nil {
		return nil, fmt.Errorf("list modules by ids: %w", err)
	}
	return modules, nil
}

// ListByCourse returns a course's modules in assignment order.
func (r *ModuleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	const query = `SELECT m.id, m.name, m.hours, m.active, m.created_at, m.updated_at
        FROM modules m
        JOIN course_modules cm ON cm.module_id = m.id
        WHERE cm.course_id = $1
        ORDER BY cm.position`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list course modules: %w", err)
	}
	return modules, nil
}

// CategoriesByModuleIDs returns category tags keyed by module ID.
func (r *ModuleRepository) CategoriesByModuleIDs(ctx context.Context, moduleIDs []string) (map[string][]models.ModuleCategory, error) {
	result := make(map[string][]models.ModuleCategory, len(moduleIDs))
	if len(moduleIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(moduleIDs))
	args := make([]interface{}, len(moduleIDs))
	for i, id := range moduleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT t.module_id, c.id, c.name, c.short_name
        FROM module_category_tags t
        JOIN module_categories c ON c.id = t.category_id
        WHERE t.module_id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list module categories: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var moduleID string
		var category models.ModuleCategory
		if err := rows.Scan(&moduleID, &category.ID, &category.Name, &category.ShortName); err != nil {
			return nil, fmt.Errorf("scan module category: %w", err)
		}
		result[moduleID] = append(result[moduleID], category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module categories: %w", err)
	}
	return result, nil
}

// TagModule links a module to a category.
func (r *ModuleRepository) TagModule(ctx context.Context, moduleID, categoryID string) error {
	const query = `INSERT INTO module_category_tags (module_id, category_id) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, moduleID, categoryID); err != nil {
		if dup := translateUnique(err); dup == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("tag module: %w", err)
	}
	return nil
}

// CreateCategory persists a new module category.
func (r *ModuleRepository) CreateCategory(ctx context.Context, category *models.ModuleCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	const query = `INSERT INTO module_categories (id, name, short_name) VALUES (:id, :name, :short_name)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		if dup := translateUnique(err); dup == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("create module category: %w", err)
	}
	return nil
}
