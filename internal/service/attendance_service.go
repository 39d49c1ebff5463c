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

type participationRepository interface {
	Create(ctx context.Context, record *models.SessionParticipation) error
	FindBySessionAndEnrollment(ctx context.Context, sessionID, enrollmentID string) (*models.SessionParticipation, error)
	UpsertBatch(ctx context.Context, records []models.SessionParticipation) ([]models.SessionParticipation, error)
	FactsByEnrollment(ctx context.Context, enrollmentID string) ([]models.ParticipationFact, error)
	SessionReport(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error)
}

type sessionReader interface {
	FindSessionByID(ctx context.Context, id string) (*models.SessionDetail, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.ActionEnrollment, error)
}

type reportCacheInvalidator interface {
	InvalidateActionReport(ctx context.Context, actionID string)
}

// RecordAttendanceRequest is a single attendance fact.
type RecordAttendanceRequest struct {
	EnrollmentID    string  `json:"enrollment_id" validate:"required"`
	Presence        string  `json:"presence" validate:"required"`
	AttendanceHours float64 `json:"attendance_hours" validate:"gte=0"`
}

// RosterEntry is one line of a session roster submission.
type RosterEntry struct {
	EnrollmentID    string  `json:"enrollment_id"`
	Presence        string  `json:"presence"`
	AttendanceHours float64 `json:"attendance_hours"`
}

// RosterSkip explains one roster entry that was not written.
type RosterSkip struct {
	EnrollmentID string `json:"enrollment_id"`
	Reason       string `json:"reason"`
}

// RosterResult is the outcome of a batch roster upsert: the stored records
// plus a summary of per-entry skips.
type RosterResult struct {
	Records []models.SessionParticipation `json:"records"`
	Skipped []RosterSkip                  `json:"skipped,omitempty"`
}

// AttendanceService is the ledger of per-session attendance facts.
type AttendanceService struct {
	repo             participationRepository
	sessions         sessionReader
	enrollments      enrollmentReader
	reports          reportCacheInvalidator
	rejectOverCredit bool
	validator        *validator.Validate
	logger           *zap.Logger
}

// NewAttendanceService constructs AttendanceService. reports may be nil when
// no settlement report cache is wired.
func NewAttendanceService(repo participationRepository, sessions sessionReader, enrollments enrollmentReader, reports reportCacheInvalidator, rejectOverCredit bool, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:             repo,
		sessions:         sessions,
		enrollments:      enrollments,
		reports:          reports,
		rejectOverCredit: rejectOverCredit,
		validator:        validate,
		logger:           logger,
	}
}

// Record writes a single attendance fact. The enrollment must belong to the
// same action as the session; a duplicate (session, enrollment) pair is a
// conflict, the batch upsert being the idempotent path. Hours above the
// session duration are stored verbatim and logged, unless over-credit
// rejection is switched on.
func (s *AttendanceService) Record(ctx context.Context, sessionID string, req RecordAttendanceRequest) (*models.SessionParticipation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, err := s.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.ActionID != session.ActionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment does not belong to the session's action")
	}

	presence, ok := models.ParsePresence(req.Presence)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown presence value %q", req.Presence))
	}

	if req.AttendanceHours > session.DurationHours {
		if s.rejectOverCredit {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(
				"attendance hours %.2f exceed session duration %.2f", req.AttendanceHours, session.DurationHours))
		}
		s.logger.Sugar().Warnw("attendance hours exceed session duration",
			"session_id", sessionID, "enrollment_id", req.EnrollmentID,
			"attendance_hours", req.AttendanceHours, "session_duration", session.DurationHours)
	}

	record := &models.SessionParticipation{
		SessionID:       sessionID,
		EnrollmentID:    req.EnrollmentID,
		Presence:        presence,
		AttendanceHours: req.AttendanceHours,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if err == repository.ErrDuplicate {
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this enrollment and session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.invalidateReport(ctx, session.ActionID)
	return record, nil
}

// UpsertSessionRoster takes attendance for a whole session in one atomic
// batch. The session is loaded once; entries with an invalid presence or an
// unknown or foreign enrollment are skipped into the summary without failing
// the batch. Surviving rows are inserted or updated together, so re-running
// the same roster converges to the same stored state.
func (s *AttendanceService) UpsertSessionRoster(ctx context.Context, sessionID string, entries []RosterEntry) (*RosterResult, error) {
	session, err := s.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	result := &RosterResult{}
	records := make([]models.SessionParticipation, 0, len(entries))
	for _, entry := range entries {
		presence, ok := models.ParsePresence(entry.Presence)
		if !ok {
			s.logger.Sugar().Warnw("skipping roster entry with invalid presence",
				"session_id", sessionID, "enrollment_id", entry.EnrollmentID, "presence", entry.Presence)
			result.Skipped = append(result.Skipped, RosterSkip{EnrollmentID: entry.EnrollmentID, Reason: "invalid presence value"})
			continue
		}
		enrollment, err := s.enrollments.FindByID(ctx, entry.EnrollmentID)
		if err != nil {
			if err == sql.ErrNoRows {
				s.logger.Sugar().Warnw("skipping roster entry with unknown enrollment",
					"session_id", sessionID, "enrollment_id", entry.EnrollmentID)
				result.Skipped = append(result.Skipped, RosterSkip{EnrollmentID: entry.EnrollmentID, Reason: "enrollment not found"})
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		if enrollment.ActionID != session.ActionID {
			s.logger.Sugar().Warnw("skipping roster entry from another action",
				"session_id", sessionID, "enrollment_id", entry.EnrollmentID)
			result.Skipped = append(result.Skipped, RosterSkip{EnrollmentID: entry.EnrollmentID, Reason: "enrollment belongs to another action"})
			continue
		}
		if entry.AttendanceHours > session.DurationHours && !s.rejectOverCredit {
			s.logger.Sugar().Warnw("attendance hours exceed session duration",
				"session_id", sessionID, "enrollment_id", entry.EnrollmentID,
				"attendance_hours", entry.AttendanceHours, "session_duration", session.DurationHours)
		}
		if entry.AttendanceHours > session.DurationHours && s.rejectOverCredit {
			result.Skipped = append(result.Skipped, RosterSkip{EnrollmentID: entry.EnrollmentID, Reason: "attendance hours exceed session duration"})
			continue
		}
		records = append(records, models.SessionParticipation{
			SessionID:       sessionID,
			EnrollmentID:    entry.EnrollmentID,
			Presence:        presence,
			AttendanceHours: entry.AttendanceHours,
		})
	}

	stored, err := s.repo.UpsertBatch(ctx, records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert session roster")
	}
	result.Records = stored

	s.logger.Sugar().Infow("session roster upserted",
		"session_id", sessionID, "written", len(stored), "skipped", len(result.Skipped))
	s.invalidateReport(ctx, session.ActionID)
	return result, nil
}

// SessionReport returns the recorded roster of a session.
func (s *AttendanceService) SessionReport(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error) {
	if _, err := s.sessions.FindSessionByID(ctx, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	rows, err := s.repo.SessionReport(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session report")
	}
	return rows, nil
}

func (s *AttendanceService) invalidateReport(ctx context.Context, actionID string) {
	if s.reports == nil {
		return
	}
	s.reports.InvalidateActionReport(ctx, actionID)
}
