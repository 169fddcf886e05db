package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sitrep/internal/api"
	"sitrep/internal/blobstore"
	"sitrep/internal/models"
	"sitrep/internal/store"
)

// ReportService implements the report lifecycle on top of the intake
// pipeline, the repository and the blob store.
type ReportService struct {
	reports  store.ReportStore
	blobs    blobstore.BlobStore
	intake   *IntakePipeline
	workflow *models.Workflow
	logger   *slog.Logger
	now      func() time.Time
}

// NewReportService constructs a ReportService. A nil workflow uses the relaxed policy.
func NewReportService(reports store.ReportStore, blobs blobstore.BlobStore, intake *IntakePipeline, workflow *models.Workflow, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	if workflow == nil {
		workflow, _ = models.NewWorkflow(models.PolicyRelaxed)
	}
	if intake == nil {
		intake = NewIntakePipeline(reports, blobs, logger)
	}
	return &ReportService{
		reports:  reports,
		blobs:    blobs,
		intake:   intake,
		workflow: workflow,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit runs the intake pipeline and resolves the stored image URL.
func (s *ReportService) Submit(ctx context.Context, in SubmitInput) (api.SubmitResult, error) {
	report, err := s.intake.Submit(ctx, in)
	if err != nil {
		return api.SubmitResult{}, err
	}
	return api.SubmitResult{
		ID:       report.ID,
		ReportID: report.ID,
		ImageURL: s.blobs.URLFor(report.ImageReference),
		Status:   string(report.Status),
	}, nil
}

// List returns reports newest first.
func (s *ReportService) List(ctx context.Context, filter store.ReportFilter) ([]api.Report, error) {
	reports, err := s.reports.ListReports(ctx, filter)
	if err != nil {
		return nil, storeFailure(err)
	}
	out := make([]api.Report, 0, len(reports))
	for _, report := range reports {
		out = append(out, s.toAPI(report))
	}
	return out, nil
}

// Get returns one report.
func (s *ReportService) Get(ctx context.Context, id int64) (api.Report, error) {
	report, err := s.load(ctx, id)
	if err != nil {
		return api.Report{}, err
	}
	return s.toAPI(*report), nil
}

// UpdateStatus moves a report to status if the workflow allows it. Setting
// the current status again is accepted and writes nothing.
func (s *ReportService) UpdateStatus(ctx context.Context, id int64, status string) (api.Report, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return api.Report{}, err
	}

	updated, err := s.workflow.Transition(*current, status, s.now())
	switch {
	case errors.Is(err, models.ErrInvalidStatus):
		return api.Report{}, validationFailed(map[string][]string{
			"status": {fmt.Sprintf("status must be one of: %s", joinStatuses())},
		}, ErrCodeInvalidStatus)
	case errors.Is(err, models.ErrInvalidTransition):
		return api.Report{}, invalidTransition(err)
	case err != nil:
		return api.Report{}, internalError(err)
	}

	if updated.Status == current.Status {
		return s.toAPI(*current), nil
	}

	var expected models.ReportStatus
	if s.workflow.RequiresCompareAndSet() {
		expected = current.Status
	}
	if err := s.reports.UpdateReportStatus(ctx, id, updated.Status, expected, updated.UpdatedAt); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return api.Report{}, notFoundCode(fmt.Errorf("report not found"), ErrCodeReportNotFound)
		case errors.Is(err, store.ErrStatusConflict):
			return api.Report{}, conflictCode(fmt.Errorf("report status changed concurrently, reload and retry"), ErrCodeConflict)
		default:
			return api.Report{}, storeFailure(err)
		}
	}

	statusTransitions.WithLabelValues(string(updated.Status)).Inc()
	s.logger.Info("report status changed", "report_id", id, "from", current.Status, "to", updated.Status)
	return s.toAPI(updated), nil
}

// Delete removes the image and then the record. Re-running after a failed
// record delete is safe because blob deletion is idempotent.
func (s *ReportService) Delete(ctx context.Context, id int64) error {
	report, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, report.ImageReference); err != nil {
		return storeFailure(fmt.Errorf("delete image: %w", err))
	}
	if err := s.reports.DeleteReport(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundCode(fmt.Errorf("report not found"), ErrCodeReportNotFound)
		}
		return storeFailure(fmt.Errorf("delete report: %w", err))
	}

	reportsDeleted.Inc()
	s.logger.Info("report deleted", "report_id", id)
	return nil
}

// Workflow returns the active transition policy.
func (s *ReportService) Workflow() *models.Workflow {
	return s.workflow
}

// ImageContentType returns the media type recorded for an image that belongs
// to a report. Keys no report owns are not found.
func (s *ReportService) ImageContentType(ctx context.Context, key string) (string, error) {
	report, err := s.reports.GetReportByImage(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", notFoundCode(fmt.Errorf("image not found"), ErrCodeBlobNotFound)
	}
	if err != nil {
		return "", storeFailure(err)
	}
	if report.ImageContentType == "" {
		return blobstore.MediaTypeForKey(key), nil
	}
	return report.ImageContentType, nil
}

func (s *ReportService) load(ctx context.Context, id int64) (*models.Report, error) {
	report, err := s.reports.GetReport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundCode(fmt.Errorf("report not found"), ErrCodeReportNotFound)
	}
	if err != nil {
		return nil, storeFailure(err)
	}
	return report, nil
}

func (s *ReportService) toAPI(report models.Report) api.Report {
	return api.Report{
		ID:              report.ID,
		ReporterContact: report.ReporterContact,
		Category:        string(report.Category),
		Description:     report.Description,
		Location:        report.Location,
		ImageURL:        s.blobs.URLFor(report.ImageReference),
		Status:          string(report.Status),
		CreatedAt:       report.CreatedAt,
		UpdatedAt:       report.UpdatedAt,
	}
}

func joinStatuses() string {
	statuses := models.ReportStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}
