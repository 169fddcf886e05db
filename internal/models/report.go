package models

import (
	"fmt"
	"time"
)

// Category defines the kind of incident a report describes.
type Category string

const (
	CategoryTraffic    Category = "traffic"
	CategorySuspicious Category = "suspicious"
)

// ReportStatus defines the review state of a report.
type ReportStatus string

const (
	StatusPending  ReportStatus = "pending"
	StatusReviewed ReportStatus = "reviewed"
	StatusResolved ReportStatus = "resolved"
)

var validCategories = map[Category]struct{}{
	CategoryTraffic:    {},
	CategorySuspicious: {},
}

var validReportStatuses = map[ReportStatus]struct{}{
	StatusPending:  {},
	StatusReviewed: {},
	StatusResolved: {},
}

// Report is a submitted incident with its stored image.
type Report struct {
	ID               int64        `json:"id"`
	ReporterContact  string       `json:"reporter_contact"`
	Category         Category     `json:"category"`
	Description      string       `json:"description,omitempty"`
	Location         string       `json:"location,omitempty"`
	ImageReference   string       `json:"-"`
	ImageContentType string       `json:"-"`
	ImageSizeBytes   int64        `json:"-"`
	ImageFilename    string       `json:"-"`
	Status           ReportStatus `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func IsValidCategory(category Category) bool {
	_, ok := validCategories[category]
	return ok
}

func IsValidReportStatus(status ReportStatus) bool {
	_, ok := validReportStatuses[status]
	return ok
}

// ParseCategory matches raw exactly against the known categories.
func ParseCategory(raw string) (Category, error) {
	value := Category(raw)
	if value == "" {
		return "", fmt.Errorf("category is required")
	}
	if !IsValidCategory(value) {
		return "", fmt.Errorf("invalid category: %q", raw)
	}
	return value, nil
}

// ParseReportStatus matches raw exactly against the known statuses.
func ParseReportStatus(raw string) (ReportStatus, error) {
	value := ReportStatus(raw)
	if value == "" {
		return "", fmt.Errorf("status is required")
	}
	if !IsValidReportStatus(value) {
		return "", fmt.Errorf("invalid status: %q", raw)
	}
	return value, nil
}

// ReportStatuses returns all statuses in workflow order.
func ReportStatuses() []ReportStatus {
	return []ReportStatus{StatusPending, StatusReviewed, StatusResolved}
}

// Categories returns all categories.
func Categories() []Category {
	return []Category{CategoryTraffic, CategorySuspicious}
}
