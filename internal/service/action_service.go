package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/formacore/vta-api/internal/models"
	"github.com/formacore/vta-api/internal/repository"
	appErrors "github.com/formacore/vta-api/pkg/errors"
)

type actionRepository interface {
	Create(ctx context.Context, action *models.CourseAction) error
	FindByID(ctx context.Context, id string) (*models.CourseAction, error)
	FindDetailByID(ctx context.Context, id string) (*models.ActionDetail, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseAction, error)
	Delete(ctx context.Context, id string) error
}

type teachingRepository interface {
	Create(ctx context.Context, teaching *models.ModuleTeaching) error
	FindByID(ctx context.Context, id string) (*models.ModuleTeaching, error)
	ListByAction(ctx context.Context, actionID string) ([]models.TeachingDetail, error)
	CoveredModuleIDs(ctx context.Context, actionID string) (map[string]bool, error)
	SetPayment(ctx context.Context, id string, total float64, date time.Time) error
	CreateSession(ctx context.Context, session *models.Session) error
	FindSessionByID(ctx context.Context, id string) (*models.SessionDetail, error)
	ListSessionsByTeaching(ctx context.Context, teachingID string) ([]models.Session, error)
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CreateActionRequest describes action creation payload.
type CreateActionRequest struct {
	CourseID      string    `json:"course_id" validate:"required"`
	CoordinatorID string    `json:"coordinator_id" validate:"required"`
	Location      *string   `json:"location"`
	StartDate     time.Time `json:"start_date" validate:"required"`
	EndDate       time.Time `json:"end_date" validate:"required"`
}

// AssignTeachingRequest pairs a teacher with a module inside an action.
type AssignTeachingRequest struct {
	ModuleID  string `json:"module_id" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
}

// CreateSessionRequest schedules one dated session under a teaching.
type CreateSessionRequest struct {
	Date            time.Time `json:"date" validate:"required"`
	StartTime       string    `json:"start_time" validate:"required"`
	DurationHours   float64   `json:"duration_hours" validate:"required,gt=0"`
	TeacherPresence string    `json:"teacher_presence"`
}

// CoverageReport summarises staffing of an action's module set.
type CoverageReport struct {
	FullyStaffed     bool     `json:"fully_staffed"`
	CoveredModules   []string `json:"covered_modules"`
	UncoveredModules []string `json:"uncovered_modules"`
}

// ActionService owns action lifecycle, staffing and the coverage gate.
type ActionService struct {
	repo      actionRepository
	courses   courseRepository
	modules   moduleReader
	teachings teachingRepository
	teachers  teacherReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewActionService constructs ActionService.
func NewActionService(repo actionRepository, courses courseRepository, modules moduleReader, teachings teachingRepository, teachers teacherReader, validate *validator.Validate, logger *zap.Logger) *ActionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionService{repo: repo, courses: courses, modules: modules, teachings: teachings, teachers: teachers, validator: validate, logger: logger}
}

// Create schedules a new action for a course. Dates must satisfy start < end.
func (s *ActionService) Create(ctx context.Context, req CreateActionRequest) (*models.CourseAction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid action payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start date must be before end date")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.teachers.FindByID(ctx, req.CoordinatorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coordinator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coordinator")
	}
	action := &models.CourseAction{
		CourseID:      req.CourseID,
		CoordinatorID: req.CoordinatorID,
		Location:      req.Location,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	}
	if err := s.repo.Create(ctx, action); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create action")
	}
	return action, nil
}

// Get returns an action with course context.
func (s *ActionService) Get(ctx context.Context, id string) (*models.ActionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	return detail, nil
}

// ListByCourse returns the actions scheduled for a course.
func (s *ActionService) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAction, error) {
	actions, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list actions")
	}
	return actions, nil
}

// AssignTeaching pairs a teacher with a module of the action's course. The
// module must belong to the course and the (action, module, teacher) triple
// must be new.
func (s *ActionService) AssignTeaching(ctx context.Context, actionID string, req AssignTeachingRequest) (*models.ModuleTeaching, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teaching payload")
	}
	action, err := s.repo.FindByID(ctx, actionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	if _, err := s.teachers.FindByID(ctx, req.TeacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	courseModules, err := s.modules.ListByCourse(ctx, action.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course modules")
	}
	belongs := false
	for _, m := range courseModules {
		if m.ID == req.ModuleID {
			belongs = true
			break
		}
	}
	if !belongs {
		return nil, appErrors.Clone(appErrors.ErrValidation, "module is not part of the action's course")
	}

	teaching := &models.ModuleTeaching{ActionID: actionID, ModuleID: req.ModuleID, TeacherID: req.TeacherID}
	if err := s.teachings.Create(ctx, teaching); err != nil {
		if err == repository.ErrDuplicate {
			return nil, appErrors.Clone(appErrors.ErrConflict, "teacher already assigned to this module in this action")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign teaching")
	}
	return teaching, nil
}

// ListTeachings returns the teachings of an action.
func (s *ActionService) ListTeachings(ctx context.Context, actionID string) ([]models.TeachingDetail, error) {
	if _, err := s.repo.FindByID(ctx, actionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	teachings, err := s.teachings.ListByAction(ctx, actionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachings")
	}
	return teachings, nil
}

// Coverage reports whether every module of the action's course has at least
// one teaching assignment. It is recomputed on every call from current
// staffing; staffing stays editable for the whole life of the action.
func (s *ActionService) Coverage(ctx context.Context, actionID string) (*CoverageReport, error) {
	action, err := s.repo.FindByID(ctx, actionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	return s.coverage(ctx, action)
}

func (s *ActionService) coverage(ctx context.Context, action *models.CourseAction) (*CoverageReport, error) {
	courseModules, err := s.modules.ListByCourse(ctx, action.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course modules")
	}
	covered, err := s.teachings.CoveredModuleIDs(ctx, action.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staffing")
	}

	report := &CoverageReport{FullyStaffed: true}
	for _, m := range courseModules {
		if covered[m.ID] {
			report.CoveredModules = append(report.CoveredModules, m.ID)
			continue
		}
		report.FullyStaffed = false
		report.UncoveredModules = append(report.UncoveredModules, m.ID)
	}
	// A course with no modules has nothing to staff and never admits anyone.
	if len(courseModules) == 0 {
		report.FullyStaffed = false
	}
	return report, nil
}

// CreateSession schedules a session under a teaching.
func (s *ActionService) CreateSession(ctx context.Context, teachingID string, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if _, err := s.teachings.FindByID(ctx, teachingID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching")
	}
	presence := models.PresencePresent
	if req.TeacherPresence != "" {
		parsed, ok := models.ParsePresence(req.TeacherPresence)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown presence value %q", req.TeacherPresence))
		}
		presence = parsed
	}
	session := &models.Session{
		TeachingID:      teachingID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationHours:   req.DurationHours,
		TeacherPresence: presence,
	}
	if err := s.teachings.CreateSession(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// ListSessions returns the sessions of a teaching.
func (s *ActionService) ListSessions(ctx context.Context, teachingID string) ([]models.Session, error) {
	if _, err := s.teachings.FindByID(ctx, teachingID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching")
	}
	sessions, err := s.teachings.ListSessionsByTeaching(ctx, teachingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Delete removes an action with all its enrollments, teachings, sessions and
// attendance facts in a single transaction.
func (s *ActionService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete action")
	}
	s.logger.Sugar().Infow("action deleted", "action_id", id)
	return nil
}
