package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formacore/vta-api/internal/models"
	"github.com/formacore/vta-api/internal/repository"
	appErrors "github.com/formacore/vta-api/pkg/errors"
)

func newActionFixture() (*ActionService, *fakeActionRepo, *fakeTeachingRepo, *fakeModuleReader) {
	actions := &fakeActionRepo{actions: map[string]models.CourseAction{
		"a1": {ID: "a1", CourseID: "c1", CoordinatorID: "t1"},
	}}
	courses := &fakeCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Code: "WLD-01", TotalDuration: 100, Status: models.CourseStatusActive},
	}}
	modules := &fakeModuleReader{
		modules: map[string]models.Module{
			"m1": {ID: "m1", Name: "Arc welding", Hours: 40},
			"m2": {ID: "m2", Name: "Safety", Hours: 50},
		},
		byCourse: map[string][]models.Module{
			"c1": {{ID: "m1", Name: "Arc welding", Hours: 40}, {ID: "m2", Name: "Safety", Hours: 50}},
		},
	}
	teachings := &fakeTeachingRepo{}
	teachers := &fakeTeacherReader{teachers: map[string]models.Teacher{
		"t1": {ID: "t1", FullName: "Dana Ricci"},
		"t2": {ID: "t2", FullName: "Mihai Pop"},
	}}
	svc := NewActionService(actions, courses, modules, teachings, teachers, validator.New(), zap.NewNop())
	return svc, actions, teachings, modules
}

func TestActionServiceCreateRejectsInvertedDates(t *testing.T) {
	svc, _, _, _ := newActionFixture()
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), CreateActionRequest{
		CourseID:      "c1",
		CoordinatorID: "t1",
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, -1),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), CreateActionRequest{
		CourseID:      "c1",
		CoordinatorID: "t1",
		StartDate:     start,
		EndDate:       start,
	})
	require.Error(t, err, "equal dates violate start < end")
}

func TestActionServiceCoverage(t *testing.T) {
	svc, _, teachings, _ := newActionFixture()
	ctx := context.Background()

	report, err := svc.Coverage(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, report.FullyStaffed)
	assert.ElementsMatch(t, []string{"m1", "m2"}, report.UncoveredModules)

	require.NoError(t, teachings.Create(ctx, &models.ModuleTeaching{ActionID: "a1", ModuleID: "m1", TeacherID: "t1"}))
	report, err = svc.Coverage(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, report.FullyStaffed)
	assert.Equal(t, []string{"m2"}, report.UncoveredModules)

	require.NoError(t, teachings.Create(ctx, &models.ModuleTeaching{ActionID: "a1", ModuleID: "m2", TeacherID: "t2"}))
	report, err = svc.Coverage(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, report.FullyStaffed)
	assert.Empty(t, report.UncoveredModules)
}

func TestActionServiceCoverageEmptyModuleSet(t *testing.T) {
	svc, actions, _, modules := newActionFixture()
	actions.actions["a2"] = models.CourseAction{ID: "a2", CourseID: "c2"}
	modules.byCourse["c2"] = nil

	report, err := svc.Coverage(context.Background(), "a2")
	require.NoError(t, err)
	assert.False(t, report.FullyStaffed, "a course without modules never admits")
}

func TestActionServiceAssignTeachingRequiresCourseModule(t *testing.T) {
	svc, _, _, _ := newActionFixture()

	_, err := svc.AssignTeaching(context.Background(), "a1", AssignTeachingRequest{ModuleID: "m9", TeacherID: "t1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestActionServiceAssignTeachingDuplicate(t *testing.T) {
	svc, _, teachings, _ := newActionFixture()
	ctx := context.Background()

	_, err := svc.AssignTeaching(ctx, "a1", AssignTeachingRequest{ModuleID: "m1", TeacherID: "t1"})
	require.NoError(t, err)

	teachings.createErr = repository.ErrDuplicate
	_, err = svc.AssignTeaching(ctx, "a1", AssignTeachingRequest{ModuleID: "m1", TeacherID: "t1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestActionServiceDelete(t *testing.T) {
	svc, actions, _, _ := newActionFixture()

	require.NoError(t, svc.Delete(context.Background(), "a1"))
	assert.Contains(t, actions.deleted, "a1")

	err := svc.Delete(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
