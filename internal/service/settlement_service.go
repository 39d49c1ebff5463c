package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/formacore/vta-api/internal/models"
	appErrors "github.com/formacore/vta-api/pkg/errors"
)

type rateRepository interface {
	Get(ctx context.Context) (*models.SettlementRates, error)
	Update(ctx context.Context, rates *models.SettlementRates) error
}

type moduleCategoryReader interface {
	CategoriesByModuleIDs(ctx context.Context, moduleIDs []string) (map[string][]models.ModuleCategory, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// round2 rounds half away from zero at 2 decimals. Applied once at the end
// of a computation, never per session.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func actionReportCacheKey(actionID string) string {
	return fmt.Sprintf("settlement:action:%s", actionID)
}

// UpdateRatesRequest carries new settlement rates.
type UpdateRatesRequest struct {
	StudentMealRate   float64 `json:"student_meal_rate" validate:"gte=0"`
	TeacherHourlyRate float64 `json:"teacher_hourly_rate" validate:"gte=0"`
}

// SettleRequest persists a payment pair; a nil total means "use the
// calculated total".
type SettleRequest struct {
	Total *float64   `json:"total"`
	Date  *time.Time `json:"date"`
}

// SettlementService turns attendance facts into monetary totals. Rates are
// always passed explicitly into the compute functions; the service reads
// them from the settings row only at its public entry points.
type SettlementService struct {
	rates          rateRepository
	participations participationRepository
	enrollments    enrollmentRepository
	teachings      teachingRepository
	actions        actionRepository
	modules        moduleCategoryReader
	cache          reportCache
	cacheTTL       time.Duration
	logger         *zap.Logger
}

// NewSettlementService constructs SettlementService. cache may be nil.
func NewSettlementService(rates rateRepository, participations participationRepository, enrollments enrollmentRepository, teachings teachingRepository, actions actionRepository, modules moduleCategoryReader, cache reportCache, cacheTTL time.Duration, logger *zap.Logger) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementService{
		rates:          rates,
		participations: participations,
		enrollments:    enrollments,
		teachings:      teachings,
		actions:        actions,
		modules:        modules,
		cache:          cache,
		cacheTTL:       cacheTTL,
		logger:         logger,
	}
}

// Rates returns the current settlement rates.
func (s *SettlementService) Rates(ctx context.Context) (*models.SettlementRates, error) {
	rates, err := s.rates.Get(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "settlement rates not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settlement rates")
	}
	return rates, nil
}

// UpdateRates overwrites the settlement rates.
func (s *SettlementService) UpdateRates(ctx context.Context, req UpdateRatesRequest) (*models.SettlementRates, error) {
	if req.StudentMealRate < 0 || req.TeacherHourlyRate < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rates must not be negative")
	}
	rates := &models.SettlementRates{StudentMealRate: req.StudentMealRate, TeacherHourlyRate: req.TeacherHourlyRate}
	if err := s.rates.Update(ctx, rates); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update settlement rates")
	}
	s.logger.Sugar().Infow("settlement rates updated", "student_meal_rate", rates.StudentMealRate, "teacher_hourly_rate", rates.TeacherHourlyRate)
	return rates, nil
}

// ComputeEnrollment derives the settlement for one enrollment at the given
// hourly rate: present participations only, hours bucketed by every category
// tag of the taught module, the monetary total rounded once at the end.
func (s *SettlementService) ComputeEnrollment(ctx context.Context, enrollmentID string, rate float64) (*models.Settlement, error) {
	if _, err := s.enrollments.FindByID(ctx, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	facts, err := s.participations.FactsByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participations")
	}
	settlement, _, err := s.settleFacts(ctx, facts, rate)
	return settlement, err
}

// settleFacts computes a settlement from participation facts. It also
// returns the raw per-category hours so report-level aggregation can round
// once on its own, independently of the per-row rounding.
func (s *SettlementService) settleFacts(ctx context.Context, facts []models.ParticipationFact, rate float64) (*models.Settlement, map[string]float64, error) {
	present := facts[:0:0]
	moduleIDs := make([]string, 0, len(facts))
	seenModules := make(map[string]struct{})
	for _, f := range facts {
		if f.Presence != models.PresencePresent {
			continue
		}
		present = append(present, f)
		if _, ok := seenModules[f.ModuleID]; !ok {
			seenModules[f.ModuleID] = struct{}{}
			moduleIDs = append(moduleIDs, f.ModuleID)
		}
	}

	categories, err := s.modules.CategoriesByModuleIDs(ctx, moduleIDs)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module categories")
	}

	settlement := &models.Settlement{CategoryTotals: make(map[string]float64), HourlyRate: rate}
	categoryHours := make(map[string]float64)
	for _, f := range present {
		settlement.TotalHours += f.AttendanceHours
		settlement.TotalDays++
		for _, cat := range categories[f.ModuleID] {
			categoryHours[cat.ShortName] += f.AttendanceHours
		}
	}
	for short, hours := range categoryHours {
		settlement.CategoryTotals[short] = round2(hours * rate)
	}
	settlement.CalculatedTotal = round2(settlement.TotalHours * rate)
	return settlement, categoryHours, nil
}

// ComputeTeaching derives the settlement for one teaching at the given
// hourly rate: sessions where the teacher was present, hours being the
// session durations, bucketed by the taught module's category tags.
func (s *SettlementService) ComputeTeaching(ctx context.Context, teachingID string, rate float64) (*models.Settlement, error) {
	teaching, err := s.teachings.FindByID(ctx, teachingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching")
	}
	sessions, err := s.teachings.ListSessionsByTeaching(ctx, teachingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	categories, err := s.modules.CategoriesByModuleIDs(ctx, []string{teaching.ModuleID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module categories")
	}

	settlement := &models.Settlement{CategoryTotals: make(map[string]float64), HourlyRate: rate}
	categoryHours := make(map[string]float64)
	for _, sess := range sessions {
		if sess.TeacherPresence != models.PresencePresent {
			continue
		}
		settlement.TotalHours += sess.DurationHours
		settlement.TotalDays++
		for _, cat := range categories[teaching.ModuleID] {
			categoryHours[cat.ShortName] += sess.DurationHours
		}
	}
	for short, hours := range categoryHours {
		settlement.CategoryTotals[short] = round2(hours * rate)
	}
	settlement.CalculatedTotal = round2(settlement.TotalHours * rate)
	return settlement, nil
}

// ComputeEnrollmentAtCurrentRate is ComputeEnrollment with the configured
// student meal rate.
func (s *SettlementService) ComputeEnrollmentAtCurrentRate(ctx context.Context, enrollmentID string) (*models.Settlement, error) {
	rates, err := s.Rates(ctx)
	if err != nil {
		return nil, err
	}
	return s.ComputeEnrollment(ctx, enrollmentID, rates.StudentMealRate)
}

// ComputeTeachingAtCurrentRate is ComputeTeaching with the configured
// teacher hourly rate.
func (s *SettlementService) ComputeTeachingAtCurrentRate(ctx context.Context, teachingID string) (*models.Settlement, error) {
	rates, err := s.Rates(ctx)
	if err != nil {
		return nil, err
	}
	return s.ComputeTeaching(ctx, teachingID, rates.TeacherHourlyRate)
}

// ActionReport aggregates settlements across every enrollment of an action.
// Category totals and the grand total are each rounded independently from
// their own raw hour sums; a few cents of drift between them is accepted.
// The report is cached until attendance changes for the action.
func (s *SettlementService) ActionReport(ctx context.Context, actionID string) (*models.ActionSettlementReport, error) {
	if s.cache != nil {
		var cached models.ActionSettlementReport
		if err := s.cache.Get(ctx, actionReportCacheKey(actionID), &cached); err == nil {
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("settlement report cache read failed", "action_id", actionID, "error", err)
		}
	}

	if _, err := s.actions.FindByID(ctx, actionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	rates, err := s.Rates(ctx)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByAction(ctx, actionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	report := &models.ActionSettlementReport{
		ActionID:       actionID,
		CategoryTotals: make(map[string]float64),
		GeneratedAt:    time.Now().UTC(),
	}
	rawCategoryHours := make(map[string]float64)
	for _, enr := range enrollments {
		facts, err := s.participations.FactsByEnrollment(ctx, enr.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participations")
		}
		settlement, categoryHours, err := s.settleFacts(ctx, facts, rates.StudentMealRate)
		if err != nil {
			return nil, err
		}
		report.Rows = append(report.Rows, models.EnrollmentSettlementRow{
			EnrollmentID: enr.ID,
			StudentID:    enr.StudentID,
			StudentName:  enr.StudentName,
			Settlement:   *settlement,
			PaymentTotal: enr.PaymentTotal,
			PaymentDate:  enr.PaymentDate,
		})
		report.TotalHours += settlement.TotalHours
		for short, hours := range categoryHours {
			rawCategoryHours[short] += hours
		}
	}
	for short, hours := range rawCategoryHours {
		report.CategoryTotals[short] = round2(hours * rates.StudentMealRate)
	}
	report.GrandTotal = round2(report.TotalHours * rates.StudentMealRate)

	if s.cache != nil {
		if err := s.cache.Set(ctx, actionReportCacheKey(actionID), report, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("settlement report cache write failed", "action_id", actionID, "error", err)
		}
	}
	return report, nil
}

// InvalidateActionReport drops the cached settlement report of an action.
// Called by the attendance ledger after every write.
func (s *SettlementService) InvalidateActionReport(ctx context.Context, actionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, actionReportCacheKey(actionID)); err != nil {
		s.logger.Sugar().Warnw("settlement report cache invalidation failed", "action_id", actionID, "error", err)
	}
}

// SettleEnrollment persists the payment pair onto an enrollment. A nil total
// settles at the calculated total for the current student meal rate.
func (s *SettlementService) SettleEnrollment(ctx context.Context, enrollmentID string, req SettleRequest) (*models.ActionEnrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	total, date, err := s.resolveSettlement(ctx, req, func(ctx context.Context) (float64, error) {
		settlement, err := s.ComputeEnrollmentAtCurrentRate(ctx, enrollmentID)
		if err != nil {
			return 0, err
		}
		return settlement.CalculatedTotal, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.enrollments.SetPayment(ctx, enrollmentID, total, date); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle enrollment")
	}
	s.InvalidateActionReport(ctx, enrollment.ActionID)
	enrollment.PaymentTotal = &total
	enrollment.PaymentDate = &date
	return enrollment, nil
}

// SettleTeaching persists the payment pair onto a teaching. A nil total
// settles at the calculated total for the current teacher hourly rate.
func (s *SettlementService) SettleTeaching(ctx context.Context, teachingID string, req SettleRequest) (*models.ModuleTeaching, error) {
	teaching, err := s.teachings.FindByID(ctx, teachingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching")
	}

	total, date, err := s.resolveSettlement(ctx, req, func(ctx context.Context) (float64, error) {
		settlement, err := s.ComputeTeachingAtCurrentRate(ctx, teachingID)
		if err != nil {
			return 0, err
		}
		return settlement.CalculatedTotal, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.teachings.SetPayment(ctx, teachingID, total, date); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle teaching")
	}
	teaching.PaymentTotal = &total
	teaching.PaymentDate = &date
	return teaching, nil
}

func (s *SettlementService) resolveSettlement(ctx context.Context, req SettleRequest, compute func(context.Context) (float64, error)) (float64, time.Time, error) {
	var total float64
	if req.Total != nil {
		if *req.Total < 0 {
			return 0, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "settlement total must not be negative")
		}
		total = *req.Total
	} else {
		computed, err := compute(ctx)
		if err != nil {
			return 0, time.Time{}, err
		}
		total = computed
	}
	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}
	return total, date, nil
}
