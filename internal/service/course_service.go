package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/formacore/vta-api/internal/models"
	"github.com/formacore/vta-api/internal/repository"
	appErrors "github.com/formacore/vta-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	ReplaceModules(ctx context.Context, courseID string, moduleIDs []string) error
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error
}

type moduleReader interface {
	FindByID(ctx context.Context, id string) (*models.Module, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Module, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Module, error)
}

// CanAddModule reports whether a module of candidateHours still fits in the
// course budget given the hours already assigned. The boundary is a closed
// interval: landing exactly on the budget is allowed.
func CanAddModule(runningTotal, candidateHours, totalBudget float64) bool {
	return runningTotal+candidateHours <= totalBudget
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Code          string  `json:"code" validate:"required"`
	Title         string  `json:"title" validate:"required"`
	TotalDuration float64 `json:"total_duration" validate:"required,gt=0"`
	Status        string  `json:"status"`
}

// AssignModulesRequest carries the full candidate module list for a course.
type AssignModulesRequest struct {
	ModuleIDs []string `json:"module_ids" validate:"required,min=1"`
}

// CourseService owns course lifecycle and the duration budget invariant.
type CourseService struct {
	repo      courseRepository
	modules   moduleReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, modules moduleReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, modules: modules, validator: validate, logger: logger}
}

// Create registers a new course.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	status := models.CourseStatusActive
	if req.Status != "" {
		parsed, ok := models.ParseCourseStatus(req.Status)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown course status %q", req.Status))
		}
		status = parsed
	}
	course := &models.Course{Code: req.Code, Title: req.Title, TotalDuration: req.TotalDuration, Status: status}
	if err := s.repo.Create(ctx, course); err != nil {
		if err == repository.ErrDuplicate {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Get returns a course with its assigned-hours summary.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return detail, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return courses, pagination, nil
}

// AssignModules validates the full candidate module list against the course's
// duration budget and, when every module fits, replaces the course's module
// set. The running total is recomputed from zero on every call so no
// incremental drift can accumulate.
func (s *CourseService) AssignModules(ctx context.Context, courseID string, req AssignModulesRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module list")
	}
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	// Unique by identity, order preserved.
	seen := make(map[string]struct{}, len(req.ModuleIDs))
	ordered := make([]string, 0, len(req.ModuleIDs))
	for _, id := range req.ModuleIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}

	modules, err := s.modules.ListByIDs(ctx, ordered)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load modules")
	}
	byID := make(map[string]models.Module, len(modules))
	for _, m := range modules {
		byID[m.ID] = m
	}

	var runningTotal float64
	for _, id := range ordered {
		module, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("module %s not found", id))
		}
		if !CanAddModule(runningTotal, module.Hours, course.TotalDuration) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(
				"module %q (%.1fh) exceeds the course budget: %.1f of %.1f hours already assigned",
				module.Name, module.Hours, runningTotal, course.TotalDuration))
		}
		runningTotal += module.Hours
	}

	if err := s.repo.ReplaceModules(ctx, courseID, ordered); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign modules")
	}
	s.logger.Sugar().Infow("course modules assigned", "course_id", courseID, "modules", len(ordered), "assigned_hours", runningTotal)

	detail, err := s.repo.FindDetailByID(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course detail")
	}
	return detail, nil
}

// UpdateStatus transitions the course lifecycle state.
func (s *CourseService) UpdateStatus(ctx context.Context, id, rawStatus string) (*models.CourseDetail, error) {
	status, ok := models.ParseCourseStatus(rawStatus)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown course status %q", rawStatus))
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course status")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course detail")
	}
	return detail, nil
}
