package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/formacore/vta-api/internal/models"
	"github.com/formacore/vta-api/internal/repository"
	appErrors "github.com/formacore/vta-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.ActionEnrollment) error
	FindByID(ctx context.Context, id string) (*models.ActionEnrollment, error)
	Exists(ctx context.Context, actionID, studentID string) (bool, error)
	ListByAction(ctx context.Context, actionID string) ([]models.EnrollmentDetail, error)
	SetPayment(ctx context.Context, id string, total float64, date time.Time) error
	Delete(ctx context.Context, id string) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type coverageChecker interface {
	Coverage(ctx context.Context, actionID string) (*CoverageReport, error)
}

type teachingReader interface {
	FindByID(ctx context.Context, id string) (*models.ModuleTeaching, error)
}

// AdmitRequest identifies the student to admit into an action.
type AdmitRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// EnrollmentService owns the admission gate: a student enters an action only
// when the action is fully staffed and not already enrolled.
type EnrollmentService struct {
	repo      enrollmentRepository
	actions   actionRepository
	students  studentReader
	teachings teachingReader
	coverage  coverageChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, actions actionRepository, students studentReader, teachings teachingReader, coverage coverageChecker, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, actions: actions, students: students, teachings: teachings, coverage: coverage, validator: validate, logger: logger}
}

// Admit runs the admission checks in order: the action must exist, the
// student must exist, every course module must be staffed, and the student
// must not already be enrolled. The unique constraint on the enrollment row
// backs the duplicate check up against concurrent admissions.
func (s *EnrollmentService) Admit(ctx context.Context, actionID string, req AdmitRequest) (*models.ActionEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission payload")
	}
	if _, err := s.actions.FindByID(ctx, actionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	report, err := s.coverage.Coverage(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if !report.FullyStaffed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action is not fully staffed: every course module needs an assigned teacher before admission")
	}

	exists, err := s.repo.Exists(ctx, actionID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this action")
	}

	enrollment := &models.ActionEnrollment{ActionID: actionID, StudentID: req.StudentID}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if err == repository.ErrDuplicate {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this action")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to admit student")
	}
	s.logger.Sugar().Infow("student admitted", "action_id", actionID, "student_id", req.StudentID, "enrollment_id", enrollment.ID)
	return enrollment, nil
}

// AdmitToTeaching admits a student through a teaching assignment: the same
// coverage and duplicate checks as Admit, scoped through the teaching's
// parent action.
func (s *EnrollmentService) AdmitToTeaching(ctx context.Context, teachingID string, req AdmitRequest) (*models.ActionEnrollment, error) {
	teaching, err := s.teachings.FindByID(ctx, teachingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching")
	}
	return s.Admit(ctx, teaching.ActionID, req)
}

// Get returns an enrollment by its ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.ActionEnrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// ListByAction returns the enrollments of an action with student context.
func (s *EnrollmentService) ListByAction(ctx context.Context, actionID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.actions.FindByID(ctx, actionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	enrollments, err := s.repo.ListByAction(ctx, actionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// Withdraw removes an enrollment together with its attendance facts.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	s.logger.Sugar().Infow("enrollment withdrawn", "enrollment_id", id)
	return nil
}
