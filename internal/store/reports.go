package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sitrep/internal/models"
)

var (
	// ErrNotFound is returned when a report id does not exist.
	ErrNotFound = errors.New("report not found")
	// ErrStatusConflict is returned when a compare-and-set status update finds a different current status.
	ErrStatusConflict = errors.New("report status changed concurrently")
)

// dbTimeLayout is fixed width so text ordering matches time ordering.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const reportColumns = "id, reporter_contact, category, description, location, image_reference, image_content_type, image_size_bytes, image_filename, status, created_at, updated_at"

// ReportFilter narrows ListReports results.
type ReportFilter struct {
	Query    string
	Category models.Category
	Status   models.ReportStatus
	Limit    int
	Offset   int
}

// InsertReport stores a new report and sets its assigned id.
func (s *Store) InsertReport(ctx context.Context, report *models.Report) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}
	if report.ImageReference == "" {
		return fmt.Errorf("image reference is required")
	}
	if report.Status == "" {
		report.Status = models.StatusPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (
			reporter_contact, category, description, location, image_reference,
			image_content_type, image_size_bytes, image_filename, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ReporterContact,
		string(report.Category),
		report.Description,
		report.Location,
		report.ImageReference,
		nullIfEmpty(report.ImageContentType),
		report.ImageSizeBytes,
		nullIfEmpty(report.ImageFilename),
		string(report.Status),
		formatTime(report.CreatedAt),
		formatTime(report.UpdatedAt),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	report.ID = id
	return nil
}

// GetReport returns a report by id.
func (s *Store) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+reportColumns+" FROM reports WHERE id = ?", id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReports returns reports newest first.
func (s *Store) ListReports(ctx context.Context, filter ReportFilter) ([]models.Report, error) {
	query, args := buildReportListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

// UpdateReportStatus sets status and updated_at. When expected is non-empty
// the write only applies if the current status still equals expected.
func (s *Store) UpdateReportStatus(ctx context.Context, id int64, to, expected models.ReportStatus, at time.Time) error {
	query := "UPDATE reports SET status = ?, updated_at = ? WHERE id = ?"
	args := []any{string(to), formatTime(at), id}
	if expected != "" {
		query += " AND status = ?"
		args = append(args, string(expected))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	exists, err := s.reportExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %d", ErrStatusConflict, id)
}

// DeleteReport removes a report row.
func (s *Store) DeleteReport(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// GetReportByImage returns the report that owns image key.
func (s *Store) GetReportByImage(ctx context.Context, key string) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+reportColumns+" FROM reports WHERE image_reference = ?", key)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: image %s", ErrNotFound, key)
	}
	return report, err
}

// ImageReferences returns every blob key referenced by a report.
func (s *Store) ImageReferences(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT image_reference FROM reports")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := map[string]struct{}{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		refs[key] = struct{}{}
	}
	return refs, rows.Err()
}

func (s *Store) reportExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports WHERE id = ?", id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*models.Report, error) {
	var report models.Report
	var category, status string
	var contentType, filename sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(
		&report.ID,
		&report.ReporterContact,
		&category,
		&report.Description,
		&report.Location,
		&report.ImageReference,
		&contentType,
		&report.ImageSizeBytes,
		&filename,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	report.Category = models.Category(category)
	report.Status = models.ReportStatus(status)
	report.ImageContentType = contentType.String
	report.ImageFilename = filename.String

	var err error
	if report.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if report.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &report, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
