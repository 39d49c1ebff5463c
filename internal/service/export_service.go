package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/formacore/vta-api/internal/models"
	"github.com/formacore/vta-api/internal/repository"
	appErrors "github.com/formacore/vta-api/pkg/errors"
	"github.com/formacore/vta-api/pkg/export"
	"github.com/formacore/vta-api/pkg/jobs"
	"github.com/formacore/vta-api/pkg/storage"
)

const reportJobType = "settlement_report"

type reportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
}

type actionReportSource interface {
	ActionReport(ctx context.Context, actionID string) (*models.ActionSettlementReport, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// ExportService renders action settlement reports to CSV or PDF files
// asynchronously; downloads go through HMAC signed URLs.
type ExportService struct {
	repo       reportJobRepository
	settlement actionReportSource
	queue      jobQueue
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	storage    *storage.LocalStorage
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
}

// NewExportService constructs ExportService. Call BindQueue before Start.
func NewExportService(repo reportJobRepository, settlement actionReportSource, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		repo:       repo,
		settlement: settlement,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		storage:    store,
		signer:     signer,
		logger:     logger,
	}
}

// BindQueue attaches the worker queue the service enqueues onto. Kept
// separate from construction because the queue's handler is this service's
// Process method.
func (s *ExportService) BindQueue(queue jobQueue) {
	s.queue = queue
}

// QueueActionReport records a new export job and hands it to the workers.
func (s *ExportService) QueueActionReport(ctx context.Context, actionID string, rawFormat string) (*models.ReportJob, error) {
	format := models.ReportFormat(rawFormat)
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export format %q", rawFormat))
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exports are disabled")
	}

	job := &models.ReportJob{
		Params: models.ReportJobParams{ActionID: actionID, Format: format},
		Status: models.ReportStatusQueued,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: reportJobType, Payload: job.Params}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	s.logger.Sugar().Infow("export job queued", "job_id", job.ID, "action_id", actionID, "format", format)
	return job, nil
}

// GetJob returns an export job with its current status.
func (s *ExportService) GetJob(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

// Process is the queue handler: it renders the report, stores the file and
// finishes the job row with a signed download token.
func (s *ExportService) Process(ctx context.Context, job jobs.Job) error {
	params, ok := job.Payload.(models.ReportJobParams)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}
	if err := s.setStatus(ctx, job.ID, models.ReportStatusProcessing); err != nil {
		return err
	}

	if err := s.render(ctx, job.ID, params); err != nil {
		s.failJob(ctx, job.ID, err)
		return err
	}
	return nil
}

func (s *ExportService) render(ctx context.Context, jobID string, params models.ReportJobParams) error {
	report, err := s.settlement.ActionReport(ctx, params.ActionID)
	if err != nil {
		return fmt.Errorf("build settlement report: %w", err)
	}
	dataset := buildReportDataset(report)

	var data []byte
	switch params.Format {
	case models.ReportFormatCSV:
		data, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		data, err = s.pdf.Render(dataset, fmt.Sprintf("Settlement report for action %s", params.ActionID))
	default:
		err = fmt.Errorf("unknown format %q", params.Format)
	}
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	filename := fmt.Sprintf("settlements/%s/%s.%s", params.ActionID, jobID, params.Format)
	relPath, err := s.storage.Save(filename, data)
	if err != nil {
		return fmt.Errorf("store report: %w", err)
	}

	token, _, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return fmt.Errorf("sign download url: %w", err)
	}

	status := models.ReportStatusFinished
	finishedAt := time.Now().UTC()
	if err := s.repo.Update(ctx, jobID, repository.UpdateReportJobParams{
		Status:     &status,
		ResultURL:  &token,
		FinishedAt: &finishedAt,
	}); err != nil {
		return fmt.Errorf("finish export job: %w", err)
	}
	s.logger.Sugar().Infow("export job finished", "job_id", jobID, "file", relPath)
	return nil
}

// Download validates a signed token and opens the referenced export file.
func (s *ExportService) Download(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid download token")
	}
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.Status != models.ReportStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "export job is not finished")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return file, relPath, nil
}

func (s *ExportService) setStatus(ctx context.Context, jobID string, status models.ReportStatus) error {
	if err := s.repo.Update(ctx, jobID, repository.UpdateReportJobParams{Status: &status}); err != nil {
		return fmt.Errorf("update export job status: %w", err)
	}
	return nil
}

func (s *ExportService) failJob(ctx context.Context, jobID string, cause error) {
	status := models.ReportStatusFailed
	message := cause.Error()
	finishedAt := time.Now().UTC()
	if err := s.repo.Update(ctx, jobID, repository.UpdateReportJobParams{
		Status:       &status,
		ErrorMessage: &message,
		FinishedAt:   &finishedAt,
	}); err != nil {
		s.logger.Sugar().Errorw("failed to mark export job failed", "job_id", jobID, "error", err)
	}
}

func buildReportDataset(report *models.ActionSettlementReport) export.Dataset {
	categories := make([]string, 0, len(report.CategoryTotals))
	for short := range report.CategoryTotals {
		categories = append(categories, short)
	}
	sort.Strings(categories)

	headers := append([]string{"Student"}, categories...)
	headers = append(headers, "Hours", "Days", "Total")

	rows := make([]map[string]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		record := map[string]string{
			"Student": row.StudentName,
			"Hours":   formatFloat(row.Settlement.TotalHours),
			"Days":    strconv.Itoa(row.Settlement.TotalDays),
			"Total":   formatMoney(row.Settlement.CalculatedTotal),
		}
		for _, short := range categories {
			record[short] = formatMoney(row.Settlement.CategoryTotals[short])
		}
		rows = append(rows, record)
	}

	summary := map[string]string{
		"Student": "TOTAL",
		"Hours":   formatFloat(report.TotalHours),
		"Total":   formatMoney(report.GrandTotal),
	}
	for _, short := range categories {
		summary[short] = formatMoney(report.CategoryTotals[short])
	}

	return export.Dataset{Headers: headers, Rows: rows, Summary: summary}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
