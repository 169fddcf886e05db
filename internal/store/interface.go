package store

import (
	"context"
	"time"

	"sitrep/internal/models"
)

// ReportStore abstracts report storage backends.
type ReportStore interface {
	InsertReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, id int64) (*models.Report, error)
	GetReportByImage(ctx context.Context, key string) (*models.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]models.Report, error)
	UpdateReportStatus(ctx context.Context, id int64, to, expected models.ReportStatus, at time.Time) error
	DeleteReport(ctx context.Context, id int64) error
	ImageReferences(ctx context.Context) (map[string]struct{}, error)
}

var _ ReportStore = (*Store)(nil)
