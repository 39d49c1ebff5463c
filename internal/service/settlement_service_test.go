package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formacore/vta-api/internal/models"
	appErrors "github.com/formacore/vta-api/pkg/errors"
)

func TestRound2(t *testing.T) {
	assert.Equal(t, 44.0, round2(44.000000000000004))
	assert.Equal(t, 2.35, round2(2.345))
	assert.Equal(t, 0.0, round2(0))
	assert.Equal(t, -2.35, round2(-2.345))
}

func presentFact(enrollmentID, moduleID string, hours float64) models.ParticipationFact {
	return models.ParticipationFact{
		SessionParticipation: models.SessionParticipation{
			EnrollmentID:    enrollmentID,
			Presence:        models.PresencePresent,
			AttendanceHours: hours,
		},
		ModuleID: moduleID,
	}
}

func absentFact(enrollmentID, moduleID string) models.ParticipationFact {
	f := presentFact(enrollmentID, moduleID, 0)
	f.Presence = models.PresenceAbsent
	return f
}

type settlementFixture struct {
	svc         *SettlementService
	rates       *fakeRateRepo
	repo        *fakeParticipationRepo
	enrollments *fakeEnrollmentRepo
	teachings   *fakeTeachingRepo
	cache       *fakeReportCache
}

// newSettlementFixture: modules m1 (category FM) and m2 (category CQ), one
// action a1 with enrollment e1, student meal rate 6.0.
func newSettlementFixture() settlementFixture {
	rates := &fakeRateRepo{rates: models.SettlementRates{StudentMealRate: 6.0, TeacherHourlyRate: 30.0}}
	repo := &fakeParticipationRepo{facts: map[string][]models.ParticipationFact{}}
	enrollments := &fakeEnrollmentRepo{enrollments: map[string]models.ActionEnrollment{
		"e1": {ID: "e1", ActionID: "a1", StudentID: "s1"},
	}}
	teachings := &fakeTeachingRepo{teachings: map[string]models.ModuleTeaching{
		"te1": {ID: "te1", ActionID: "a1", ModuleID: "m1", TeacherID: "t1"},
	}}
	actions := &fakeActionRepo{actions: map[string]models.CourseAction{
		"a1": {ID: "a1", CourseID: "c1"},
	}}
	categories := &fakeCategoryReader{tags: map[string][]models.ModuleCategory{
		"m1": {{ID: "cat-fm", Name: "Food and meals", ShortName: "FM"}},
		"m2": {{ID: "cat-cq", Name: "Course quota", ShortName: "CQ"}},
	}}
	cache := &fakeReportCache{}
	svc := NewSettlementService(rates, repo, enrollments, teachings, actions, categories, cache, time.Hour, zap.NewNop())
	return settlementFixture{svc: svc, rates: rates, repo: repo, enrollments: enrollments, teachings: teachings, cache: cache}
}

func TestSettlementServiceComputeEnrollmentBucketsByCategory(t *testing.T) {
	fx := newSettlementFixture()
	fx.repo.facts["e1"] = []models.ParticipationFact{
		presentFact("e1", "m1", 3.0),
		presentFact("e1", "m2", 2.0),
		absentFact("e1", "m2"),
	}

	settlement, err := fx.svc.ComputeEnrollment(context.Background(), "e1", 6.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, settlement.TotalHours)
	assert.Equal(t, 2, settlement.TotalDays, "absences do not count as attended days")
	assert.Equal(t, map[string]float64{"FM": 18.0, "CQ": 12.0}, settlement.CategoryTotals)
	assert.Equal(t, 30.0, settlement.CalculatedTotal)
}

func TestSettlementServiceComputeEnrollmentRoundsOnceAtEnd(t *testing.T) {
	fx := newSettlementFixture()
	// Per-session rounding would give 3 * round2(1.111 * 6) = 3 * 6.67 =
	// 20.01; rounding once at the end gives round2(3.333 * 6) = 20.00.
	fx.repo.facts["e1"] = []models.ParticipationFact{
		presentFact("e1", "m1", 1.111),
		presentFact("e1", "m1", 1.111),
		presentFact("e1", "m1", 1.111),
	}

	settlement, err := fx.svc.ComputeEnrollment(context.Background(), "e1", 6.0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, settlement.CalculatedTotal)
	assert.Equal(t, 3, settlement.TotalDays)
}

func TestSettlementServiceSettleRepeatingFractionHours(t *testing.T) {
	fx := newSettlementFixture()
	// 22 sessions of 20 minutes: totalHours is the repeating fraction
	// 7.333... and the settled amount is round2(7.333... * 6.0) = 44.00.
	facts := make([]models.ParticipationFact, 0, 22)
	for i := 0; i < 22; i++ {
		facts = append(facts, presentFact("e1", "m1", 1.0/3.0))
	}
	fx.repo.facts["e1"] = facts

	settlement, err := fx.svc.ComputeEnrollment(context.Background(), "e1", 6.0)
	require.NoError(t, err)
	assert.Equal(t, 44.0, settlement.CalculatedTotal)

	enrollment, err := fx.svc.SettleEnrollment(context.Background(), "e1", SettleRequest{})
	require.NoError(t, err)
	require.NotNil(t, enrollment.PaymentTotal)
	assert.Equal(t, 44.0, *enrollment.PaymentTotal)
	assert.Equal(t, 44.0, fx.enrollments.payments["e1"])
}

func TestSettlementServiceComputeEnrollmentEmpty(t *testing.T) {
	fx := newSettlementFixture()

	settlement, err := fx.svc.ComputeEnrollment(context.Background(), "e1", 6.0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, settlement.TotalHours)
	assert.Equal(t, 0, settlement.TotalDays)
	assert.Equal(t, 0.0, settlement.CalculatedTotal)
	assert.Empty(t, settlement.CategoryTotals)
}

func TestSettlementServiceComputeEnrollmentUnknown(t *testing.T) {
	fx := newSettlementFixture()

	_, err := fx.svc.ComputeEnrollment(context.Background(), "ghost", 6.0)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSettlementServiceComputeTeaching(t *testing.T) {
	fx := newSettlementFixture()
	ctx := context.Background()
	sessions := []*models.Session{
		{TeachingID: "te1", DurationHours: 4, TeacherPresence: models.PresencePresent},
		{TeachingID: "te1", DurationHours: 3, TeacherPresence: models.PresencePresent},
		{TeachingID: "te1", DurationHours: 4, TeacherPresence: models.PresenceAbsent},
	}
	for _, sess := range sessions {
		require.NoError(t, fx.teachings.CreateSession(ctx, sess))
	}

	settlement, err := fx.svc.ComputeTeaching(ctx, "te1", 30.0)
	require.NoError(t, err)
	assert.Equal(t, 7.0, settlement.TotalHours, "only sessions the teacher attended count")
	assert.Equal(t, 2, settlement.TotalDays)
	assert.Equal(t, 210.0, settlement.CalculatedTotal)
	assert.Equal(t, map[string]float64{"FM": 210.0}, settlement.CategoryTotals)
}

func TestSettlementServiceActionReport(t *testing.T) {
	fx := newSettlementFixture()
	fx.enrollments.enrollments["e2"] = models.ActionEnrollment{ID: "e2", ActionID: "a1", StudentID: "s2"}
	fx.repo.facts["e1"] = []models.ParticipationFact{presentFact("e1", "m1", 3.0)}
	fx.repo.facts["e2"] = []models.ParticipationFact{presentFact("e2", "m1", 2.5), presentFact("e2", "m2", 1.5)}

	report, err := fx.svc.ActionReport(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", report.ActionID)
	assert.Len(t, report.Rows, 2)
	assert.Equal(t, 7.0, report.TotalHours)
	assert.Equal(t, 42.0, report.GrandTotal)
	assert.Equal(t, map[string]float64{"FM": 33.0, "CQ": 9.0}, report.CategoryTotals)
}

func TestSettlementServiceActionReportCached(t *testing.T) {
	fx := newSettlementFixture()
	fx.repo.facts["e1"] = []models.ParticipationFact{presentFact("e1", "m1", 3.0)}
	ctx := context.Background()

	first, err := fx.svc.ActionReport(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, fx.cache.sets)

	// A fact added behind the cache's back is invisible until invalidation.
	fx.repo.facts["e1"] = append(fx.repo.facts["e1"], presentFact("e1", "m1", 2.0))
	second, err := fx.svc.ActionReport(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, first.GrandTotal, second.GrandTotal)
	assert.Equal(t, 1, fx.cache.sets, "second call is served from cache")

	fx.svc.InvalidateActionReport(ctx, "a1")
	assert.Equal(t, []string{"settlement:action:a1"}, fx.cache.deletes)

	third, err := fx.svc.ActionReport(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, third.GrandTotal)
	assert.Equal(t, 2, fx.cache.sets)
}

func TestSettlementServiceActionReportUnknownAction(t *testing.T) {
	fx := newSettlementFixture()

	_, err := fx.svc.ActionReport(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSettlementServiceSettleEnrollmentAtCalculatedTotal(t *testing.T) {
	fx := newSettlementFixture()
	fx.repo.facts["e1"] = []models.ParticipationFact{presentFact("e1", "m1", 5.0)}
	ctx := context.Background()

	// Warm the cache so settlement can prove it invalidates.
	_, err := fx.svc.ActionReport(ctx, "a1")
	require.NoError(t, err)

	enrollment, err := fx.svc.SettleEnrollment(ctx, "e1", SettleRequest{})
	require.NoError(t, err)
	require.NotNil(t, enrollment.PaymentTotal)
	assert.Equal(t, 30.0, *enrollment.PaymentTotal)
	assert.NotNil(t, enrollment.PaymentDate)
	assert.Equal(t, 30.0, fx.enrollments.payments["e1"])
	assert.Contains(t, fx.cache.deletes, "settlement:action:a1")
}

func TestSettlementServiceSettleEnrollmentExplicitTotal(t *testing.T) {
	fx := newSettlementFixture()
	total := 123.45
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	enrollment, err := fx.svc.SettleEnrollment(context.Background(), "e1", SettleRequest{Total: &total, Date: &date})
	require.NoError(t, err)
	assert.Equal(t, 123.45, *enrollment.PaymentTotal)
	assert.Equal(t, date, *enrollment.PaymentDate)

	negative := -1.0
	_, err = fx.svc.SettleEnrollment(context.Background(), "e1", SettleRequest{Total: &negative})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSettlementServiceSettleTeaching(t *testing.T) {
	fx := newSettlementFixture()
	ctx := context.Background()
	require.NoError(t, fx.teachings.CreateSession(ctx, &models.Session{
		TeachingID: "te1", DurationHours: 4, TeacherPresence: models.PresencePresent,
	}))

	teaching, err := fx.svc.SettleTeaching(ctx, "te1", SettleRequest{})
	require.NoError(t, err)
	require.NotNil(t, teaching.PaymentTotal)
	assert.Equal(t, 120.0, *teaching.PaymentTotal)
	assert.Equal(t, 120.0, fx.teachings.payments["te1"])
}

func TestSettlementServiceUpdateRates(t *testing.T) {
	fx := newSettlementFixture()

	rates, err := fx.svc.UpdateRates(context.Background(), UpdateRatesRequest{StudentMealRate: 7.5, TeacherHourlyRate: 32})
	require.NoError(t, err)
	assert.Equal(t, 7.5, rates.StudentMealRate)
	assert.Equal(t, 7.5, fx.rates.rates.StudentMealRate)

	_, err = fx.svc.UpdateRates(context.Background(), UpdateRatesRequest{StudentMealRate: -1})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
