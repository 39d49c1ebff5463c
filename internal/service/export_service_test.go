package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formacore/vta-api/internal/models"
	"github.com/formacore/vta-api/internal/repository"
	appErrors "github.com/formacore/vta-api/pkg/errors"
	"github.com/formacore/vta-api/pkg/jobs"
	"github.com/formacore/vta-api/pkg/storage"
)

type fakeReportJobRepo struct {
	jobs map[string]models.ReportJob
}

func (f *fakeReportJobRepo) Create(ctx context.Context, job *models.ReportJob) error {
	if f.jobs == nil {
		f.jobs = make(map[string]models.ReportJob)
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(f.jobs)+1)
	}
	f.jobs[job.ID] = *job
	return nil
}

func (f *fakeReportJobRepo) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if j, ok := f.jobs[id]; ok {
		return &j, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeReportJobRepo) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	j, ok := f.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		j.Status = *params.Status
	}
	if params.ResultURL != nil {
		j.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		j.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		j.FinishedAt = params.FinishedAt
	}
	f.jobs[id] = j
	return nil
}

type fakeActionReportSource struct {
	report *models.ActionSettlementReport
	err    error
}

func (f *fakeActionReportSource) ActionReport(ctx context.Context, actionID string) (*models.ActionSettlementReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

// syncQueue runs the handler inline instead of on worker goroutines.
type syncQueue struct {
	handler  jobs.Handler
	enqueued []jobs.Job
}

func (q *syncQueue) Enqueue(job jobs.Job) error {
	q.enqueued = append(q.enqueued, job)
	return q.handler(context.Background(), job)
}

func sampleReport() *models.ActionSettlementReport {
	return &models.ActionSettlementReport{
		ActionID: "a1",
		Rows: []models.EnrollmentSettlementRow{
			{
				EnrollmentID: "e1",
				StudentID:    "s1",
				StudentName:  "Ana Dumitru",
				Settlement: models.Settlement{
					CategoryTotals:  map[string]float64{"FM": 18, "CQ": 12},
					TotalHours:      5,
					TotalDays:       2,
					CalculatedTotal: 30,
				},
			},
		},
		CategoryTotals: map[string]float64{"FM": 18, "CQ": 12},
		TotalHours:     5,
		GrandTotal:     30,
	}
}

func newExportFixture(t *testing.T) (*ExportService, *fakeReportJobRepo, *syncQueue) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	repo := &fakeReportJobRepo{jobs: make(map[string]models.ReportJob)}
	svc := NewExportService(repo, &fakeActionReportSource{report: sampleReport()}, store, signer, zap.NewNop())
	queue := &syncQueue{handler: svc.Process}
	svc.BindQueue(queue)
	return svc, repo, queue
}

func TestExportServiceQueueAndProcessCSV(t *testing.T) {
	svc, _, queue := newExportFixture(t)
	ctx := context.Background()

	job, err := svc.QueueActionReport(ctx, "a1", "csv")
	require.NoError(t, err)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, reportJobType, queue.enqueued[0].Type)

	stored, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	require.NotNil(t, stored.ResultURL)
	require.NotNil(t, stored.FinishedAt)

	file, _, err := svc.Download(ctx, *stored.ResultURL)
	require.NoError(t, err)
	defer file.Close()

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3, "header, one student row, summary row")
	assert.Equal(t, "Student,CQ,FM,Hours,Days,Total", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "Ana Dumitru")
	assert.Contains(t, lines[1], "30.00")
	assert.Contains(t, lines[2], "TOTAL")
}

func TestExportServiceProcessPDF(t *testing.T) {
	svc, repo, _ := newExportFixture(t)
	ctx := context.Background()

	job, err := svc.QueueActionReport(ctx, "a1", "pdf")
	require.NoError(t, err)

	stored := repo.jobs[job.ID]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)

	file, _, err := svc.Download(ctx, *stored.ResultURL)
	require.NoError(t, err)
	defer file.Close()

	header := make([]byte, 5)
	_, err = io.ReadFull(file, header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(header))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc, _, _ := newExportFixture(t)

	_, err := svc.QueueActionReport(context.Background(), "a1", "xlsx")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceFailedRenderMarksJob(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := &fakeReportJobRepo{}
	source := &fakeActionReportSource{err: appErrors.Clone(appErrors.ErrNotFound, "action not found")}
	svc := NewExportService(repo, source, store, storage.NewSignedURLSigner("test-secret", time.Hour), zap.NewNop())
	queue := &syncQueue{handler: svc.Process}
	svc.BindQueue(queue)

	_, err = svc.QueueActionReport(context.Background(), "missing", "csv")
	require.Error(t, err, "the inline queue propagates the render failure")

	require.Len(t, repo.jobs, 1)
	for _, stored := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Contains(t, *stored.ErrorMessage, "settlement report")
	}
}

func TestExportServiceDownloadRejectsBadToken(t *testing.T) {
	svc, _, _ := newExportFixture(t)

	_, _, err := svc.Download(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceDownloadRequiresFinishedJob(t *testing.T) {
	svc, repo, _ := newExportFixture(t)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)

	repo.jobs["stuck"] = models.ReportJob{ID: "stuck", Status: models.ReportStatusProcessing}
	token, _, err := signer.Generate("stuck", "settlements/a1/stuck.csv")
	require.NoError(t, err)

	_, _, err = svc.Download(context.Background(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not finished")
}
