package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formacore/vta-api/internal/models"
	"github.com/formacore/vta-api/internal/service"
)

type participationRepoMock struct {
	records map[string]models.SessionParticipation
}

func (m *participationRepoMock) Create(ctx context.Context, record *models.SessionParticipation) error {
	if m.records == nil {
		m.records = make(map[string]models.SessionParticipation)
	}
	if record.ID == "" {
		record.ID = fmt.Sprintf("part-%d", len(m.records)+1)
	}
	m.records[record.SessionID+"|"+record.EnrollmentID] = *record
	return nil
}

func (m *participationRepoMock) FindBySessionAndEnrollment(ctx context.Context, sessionID, enrollmentID string) (*models.SessionParticipation, error) {
	if r, ok := m.records[sessionID+"|"+enrollmentID]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *participationRepoMock) UpsertBatch(ctx context.Context, records []models.SessionParticipation) ([]models.SessionParticipation, error) {
	if m.records == nil {
		m.records = make(map[string]models.SessionParticipation)
	}
	stored := make([]models.SessionParticipation, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("part-%d", len(m.records)+1)
		}
		m.records[rec.SessionID+"|"+rec.EnrollmentID] = rec
		stored = append(stored, rec)
	}
	return stored, nil
}

func (m *participationRepoMock) FactsByEnrollment(ctx context.Context, enrollmentID string) ([]models.ParticipationFact, error) {
	return nil, nil
}

func (m *participationRepoMock) SessionReport(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error) {
	var rows []models.SessionRosterRow
	for _, r := range m.records {
		if r.SessionID == sessionID {
			rows = append(rows, models.SessionRosterRow{EnrollmentID: r.EnrollmentID, Presence: r.Presence, AttendanceHours: r.AttendanceHours})
		}
	}
	return rows, nil
}

type sessionReaderMock struct {
	sessions map[string]models.SessionDetail
}

func (m *sessionReaderMock) FindSessionByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type enrollmentReaderMock struct {
	enrollments map[string]models.ActionEnrollment
}

func (m *enrollmentReaderMock) FindByID(ctx context.Context, id string) (*models.ActionEnrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func newAttendanceHandlerFixture() (*AttendanceHandler, *participationRepoMock) {
	sessions := &sessionReaderMock{sessions: map[string]models.SessionDetail{
		"sess1": {
			Session:  models.Session{ID: "sess1", TeachingID: "te1", DurationHours: 4},
			ActionID: "a1",
			ModuleID: "m1",
		},
	}}
	enrollments := &enrollmentReaderMock{enrollments: map[string]models.ActionEnrollment{
		"e1": {ID: "e1", ActionID: "a1", StudentID: "s1"},
		"e2": {ID: "e2", ActionID: "a1", StudentID: "s2"},
	}}
	repo := &participationRepoMock{}
	svc := service.NewAttendanceService(repo, sessions, enrollments, nil, false, nil, nil)
	return NewAttendanceHandler(svc), repo
}

func TestAttendanceHandlerUpsertRoster(t *testing.T) {
	handler, repo := newAttendanceHandlerFixture()

	roster := []service.RosterEntry{
		{EnrollmentID: "e1", Presence: "P", AttendanceHours: 4},
		{EnrollmentID: "e2", Presence: "A", AttendanceHours: 0},
		{EnrollmentID: "ghost", Presence: "P", AttendanceHours: 4},
	}
	w := performJSON(t, handler.UpsertRoster, http.MethodPut, "/sessions/sess1/attendance",
		roster, gin.Params{{Key: "id", Value: "sess1"}})

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data service.RosterResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data.Records, 2)
	require.Len(t, envelope.Data.Skipped, 1)
	assert.Equal(t, "ghost", envelope.Data.Skipped[0].EnrollmentID)
	assert.Len(t, repo.records, 2)
}

func TestAttendanceHandlerRecordUnknownSession(t *testing.T) {
	handler, _ := newAttendanceHandlerFixture()

	w := performJSON(t, handler.Record, http.MethodPost, "/sessions/ghost/attendance",
		service.RecordAttendanceRequest{EnrollmentID: "e1", Presence: "P", AttendanceHours: 2},
		gin.Params{{Key: "id", Value: "ghost"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttendanceHandlerRecordInvalidBody(t *testing.T) {
	handler, _ := newAttendanceHandlerFixture()

	w := performJSON(t, handler.UpsertRoster, http.MethodPut, "/sessions/sess1/attendance",
		map[string]string{"not": "a roster"}, gin.Params{{Key: "id", Value: "sess1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
