package api

import "time"

// Response is the envelope every endpoint writes.
type Response struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message,omitempty"`
	Data      any                 `json:"data,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
	Code      string              `json:"code,omitempty"`
	ErrorCode int                 `json:"error_code,omitempty"`
}

// Report is the external report shape. Storage keys never appear here.
type Report struct {
	ID              int64     `json:"id"`
	ReporterContact string    `json:"reporter_contact"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	ImageURL        string    `json:"image_url"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SubmitRequest carries report metadata for POST /api/reports. The image
// travels as the multipart file part "image".
type SubmitRequest struct {
	ReporterContact string `json:"reporter_contact" yaml:"reporter_contact"`
	Category        string `json:"category" yaml:"category"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	Location        string `json:"location,omitempty" yaml:"location,omitempty"`
}

// SubmitResult is the data payload of a successful submission.
type SubmitResult struct {
	ID       int64  `json:"id"`
	ReportID int64  `json:"report_id"`
	ImageURL string `json:"image_url"`
	Status   string `json:"status"`
}

// StatusUpdateRequest is the body of PATCH /api/reports/{id}/status.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// InfoResponse is the data payload of GET /api/info.
type InfoResponse struct {
	SchemaVersion  int            `json:"schema_version"`
	StatusCounts   map[string]int `json:"status_counts"`
	TotalReports   int            `json:"total_reports"`
	BlobBackend    string         `json:"blob_backend"`
	WorkflowPolicy string         `json:"workflow_policy"`
}

// BlobSweepRequest is the body of POST /api/admin/blobs/sweep.
type BlobSweepRequest struct {
	DryRun      bool   `json:"dry_run"`
	GracePeriod string `json:"grace_period,omitempty"`
}

// BlobSweepResponse reports one sweep run.
type BlobSweepResponse struct {
	CandidateCount int      `json:"candidate_count"`
	DeletedCount   int      `json:"deleted_count"`
	FailedCount    int      `json:"failed_count"`
	ReclaimedBytes int64    `json:"reclaimed_bytes"`
	Keys           []string `json:"keys"`
	DryRun         bool     `json:"dry_run"`
}
