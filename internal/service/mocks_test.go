package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/formacore/vta-api/internal/models"
	appErrors "github.com/formacore/vta-api/pkg/errors"
)

type fakeCourseRepo struct {
	courses     map[string]models.Course
	moduleSets  map[string][]string
	createErr   error
	replaceErr  error
	lastModules []string
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.courses == nil {
		f.courses = make(map[string]models.Course)
	}
	if course.ID == "" {
		course.ID = fmt.Sprintf("course-%d", len(f.courses)+1)
	}
	f.courses[course.ID] = *course
	return nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := f.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CourseDetail{Course: c, ModuleCount: len(f.moduleSets[id])}, nil
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var list []models.CourseDetail
	for _, c := range f.courses {
		list = append(list, models.CourseDetail{Course: c})
	}
	return list, len(list), nil
}

func (f *fakeCourseRepo) ReplaceModules(ctx context.Context, courseID string, moduleIDs []string) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	if f.moduleSets == nil {
		f.moduleSets = make(map[string][]string)
	}
	f.moduleSets[courseID] = moduleIDs
	f.lastModules = moduleIDs
	return nil
}

func (f *fakeCourseRepo) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	c, ok := f.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Status = status
	f.courses[id] = c
	return nil
}

type fakeModuleReader struct {
	modules  map[string]models.Module
	byCourse map[string][]models.Module
}

func (f *fakeModuleReader) FindByID(ctx context.Context, id string) (*models.Module, error) {
	if m, ok := f.modules[id]; ok {
		return &m, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeModuleReader) ListByIDs(ctx context.Context, ids []string) ([]models.Module, error) {
	var list []models.Module
	for _, id := range ids {
		if m, ok := f.modules[id]; ok {
			list = append(list, m)
		}
	}
	return list, nil
}

func (f *fakeModuleReader) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	return f.byCourse[courseID], nil
}

type fakeActionRepo struct {
	actions map[string]models.CourseAction
	deleted []string
}

func (f *fakeActionRepo) Create(ctx context.Context, action *models.CourseAction) error {
	if f.actions == nil {
		f.actions = make(map[string]models.CourseAction)
	}
	if action.ID == "" {
		action.ID = fmt.Sprintf("action-%d", len(f.actions)+1)
	}
	f.actions[action.ID] = *action
	return nil
}

func (f *fakeActionRepo) FindByID(ctx context.Context, id string) (*models.CourseAction, error) {
	if a, ok := f.actions[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeActionRepo) FindDetailByID(ctx context.Context, id string) (*models.ActionDetail, error) {
	if a, ok := f.actions[id]; ok {
		return &models.ActionDetail{CourseAction: a}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeActionRepo) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAction, error) {
	var list []models.CourseAction
	for _, a := range f.actions {
		if a.CourseID == courseID {
			list = append(list, a)
		}
	}
	return list, nil
}

func (f *fakeActionRepo) Delete(ctx context.Context, id string) error {
	delete(f.actions, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeTeachingRepo struct {
	teachings map[string]models.ModuleTeaching
	sessions  map[string]models.SessionDetail
	createErr error
	payments  map[string]float64
}

func (f *fakeTeachingRepo) Create(ctx context.Context, teaching *models.ModuleTeaching) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.teachings == nil {
		f.teachings = make(map[string]models.ModuleTeaching)
	}
	if teaching.ID == "" {
		teaching.ID = fmt.Sprintf("teaching-%d", len(f.teachings)+1)
	}
	f.teachings[teaching.ID] = *teaching
	return nil
}

func (f *fakeTeachingRepo) FindByID(ctx context.Context, id string) (*models.ModuleTeaching, error) {
	if t, ok := f.teachings[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeachingRepo) ListByAction(ctx context.Context, actionID string) ([]models.TeachingDetail, error) {
	var list []models.TeachingDetail
	for _, t := range f.teachings {
		if t.ActionID == actionID {
			list = append(list, models.TeachingDetail{ModuleTeaching: t})
		}
	}
	return list, nil
}

func (f *fakeTeachingRepo) CoveredModuleIDs(ctx context.Context, actionID string) (map[string]bool, error) {
	covered := make(map[string]bool)
	for _, t := range f.teachings {
		if t.ActionID == actionID {
			covered[t.ModuleID] = true
		}
	}
	return covered, nil
}

func (f *fakeTeachingRepo) SetPayment(ctx context.Context, id string, total float64, date time.Time) error {
	if f.payments == nil {
		f.payments = make(map[string]float64)
	}
	f.payments[id] = total
	return nil
}

func (f *fakeTeachingRepo) CreateSession(ctx context.Context, session *models.Session) error {
	if f.sessions == nil {
		f.sessions = make(map[string]models.SessionDetail)
	}
	if session.ID == "" {
		session.ID = fmt.Sprintf("session-%d", len(f.sessions)+1)
	}
	teaching := f.teachings[session.TeachingID]
	f.sessions[session.ID] = models.SessionDetail{Session: *session, ActionID: teaching.ActionID, ModuleID: teaching.ModuleID}
	return nil
}

func (f *fakeTeachingRepo) FindSessionByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	if s, ok := f.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeachingRepo) ListSessionsByTeaching(ctx context.Context, teachingID string) ([]models.Session, error) {
	var list []models.Session
	for _, s := range f.sessions {
		if s.TeachingID == teachingID {
			list = append(list, s.Session)
		}
	}
	return list, nil
}

type fakeStudentReader struct {
	students map[string]models.Student
}

func (f *fakeStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type fakeTeacherReader struct {
	teachers map[string]models.Teacher
}

func (f *fakeTeacherReader) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := f.teachers[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

type fakeEnrollmentRepo struct {
	enrollments map[string]models.ActionEnrollment
	createErr   error
	payments    map[string]float64
	deleted     []string
}

func (f *fakeEnrollmentRepo) key(actionID, studentID string) string {
	return actionID + "|" + studentID
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, enrollment *models.ActionEnrollment) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.enrollments == nil {
		f.enrollments = make(map[string]models.ActionEnrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = fmt.Sprintf("enrollment-%d", len(f.enrollments)+1)
	}
	f.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (f *fakeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.ActionEnrollment, error) {
	if e, ok := f.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentRepo) Exists(ctx context.Context, actionID, studentID string) (bool, error) {
	for _, e := range f.enrollments {
		if e.ActionID == actionID && e.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEnrollmentRepo) ListByAction(ctx context.Context, actionID string) ([]models.EnrollmentDetail, error) {
	var list []models.EnrollmentDetail
	for _, e := range f.enrollments {
		if e.ActionID == actionID {
			list = append(list, models.EnrollmentDetail{ActionEnrollment: e})
		}
	}
	return list, nil
}

func (f *fakeEnrollmentRepo) SetPayment(ctx context.Context, id string, total float64, date time.Time) error {
	if f.payments == nil {
		f.payments = make(map[string]float64)
	}
	f.payments[id] = total
	return nil
}

func (f *fakeEnrollmentRepo) Delete(ctx context.Context, id string) error {
	delete(f.enrollments, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeParticipationRepo struct {
	records   map[string]models.SessionParticipation
	facts     map[string][]models.ParticipationFact
	createErr error
	batchErr  error
	batches   int
}

func participationKey(sessionID, enrollmentID string) string {
	return sessionID + "|" + enrollmentID
}

func (f *fakeParticipationRepo) Create(ctx context.Context, record *models.SessionParticipation) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.records == nil {
		f.records = make(map[string]models.SessionParticipation)
	}
	if record.ID == "" {
		record.ID = fmt.Sprintf("participation-%d", len(f.records)+1)
	}
	f.records[participationKey(record.SessionID, record.EnrollmentID)] = *record
	return nil
}

func (f *fakeParticipationRepo) FindBySessionAndEnrollment(ctx context.Context, sessionID, enrollmentID string) (*models.SessionParticipation, error) {
	if r, ok := f.records[participationKey(sessionID, enrollmentID)]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeParticipationRepo) UpsertBatch(ctx context.Context, records []models.SessionParticipation) ([]models.SessionParticipation, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.records == nil {
		f.records = make(map[string]models.SessionParticipation)
	}
	f.batches++
	stored := make([]models.SessionParticipation, 0, len(records))
	for _, rec := range records {
		key := participationKey(rec.SessionID, rec.EnrollmentID)
		if existing, ok := f.records[key]; ok {
			existing.Presence = rec.Presence
			existing.AttendanceHours = rec.AttendanceHours
			existing.UpdatedAt = rec.UpdatedAt
			f.records[key] = existing
			stored = append(stored, existing)
			continue
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("participation-%d", len(f.records)+1)
		}
		f.records[key] = rec
		stored = append(stored, rec)
	}
	return stored, nil
}

func (f *fakeParticipationRepo) FactsByEnrollment(ctx context.Context, enrollmentID string) ([]models.ParticipationFact, error) {
	return f.facts[enrollmentID], nil
}

func (f *fakeParticipationRepo) SessionReport(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error) {
	var rows []models.SessionRosterRow
	for _, r := range f.records {
		if r.SessionID == sessionID {
			rows = append(rows, models.SessionRosterRow{EnrollmentID: r.EnrollmentID, Presence: r.Presence, AttendanceHours: r.AttendanceHours})
		}
	}
	return rows, nil
}

type fakeRateRepo struct {
	rates models.SettlementRates
}

func (f *fakeRateRepo) Get(ctx context.Context) (*models.SettlementRates, error) {
	r := f.rates
	return &r, nil
}

func (f *fakeRateRepo) Update(ctx context.Context, rates *models.SettlementRates) error {
	f.rates = *rates
	return nil
}

type fakeCategoryReader struct {
	tags map[string][]models.ModuleCategory
}

func (f *fakeCategoryReader) CategoriesByModuleIDs(ctx context.Context, moduleIDs []string) (map[string][]models.ModuleCategory, error) {
	result := make(map[string][]models.ModuleCategory)
	for _, id := range moduleIDs {
		if cats, ok := f.tags[id]; ok {
			result[id] = cats
		}
	}
	return result, nil
}

type fakeReportCache struct {
	store   map[string][]byte
	gets    int
	sets    int
	deletes []string
}

func (f *fakeReportCache) Get(ctx context.Context, key string, dest interface{}) error {
	f.gets++
	raw, ok := f.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeReportCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if f.store == nil {
		f.store = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.store[key] = raw
	f.sets++
	return nil
}

func (f *fakeReportCache) Delete(ctx context.Context, key string) error {
	delete(f.store, key)
	f.deletes = append(f.deletes, key)
	return nil
}

type fakeInvalidator struct {
	actions []string
}

func (f *fakeInvalidator) InvalidateActionReport(ctx context.Context, actionID string) {
	f.actions = append(f.actions, actionID)
}
