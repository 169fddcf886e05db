package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"sitrep/internal/api"
	"sitrep/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeData(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeReportList(reports []api.Report) error {
	if len(reports) == 0 {
		return writePlain("no reports\n")
	}
	for _, report := range reports {
		if err := writePlain("%s\n", formatReportLine(report)); err != nil {
			return err
		}
	}
	return nil
}

func writeReportDetail(report api.Report) error {
	return writePlain("%s\n", strings.Join(reportDetailLines(report), "\n"))
}

func reportDetailLines(report api.Report) []string {
	lines := []string{
		fmt.Sprintf("id: %d", report.ID),
		fmt.Sprintf("status: %s", report.Status),
		fmt.Sprintf("category: %s", report.Category),
		fmt.Sprintf("reporter_contact: %s", report.ReporterContact),
	}
	if report.Location != "" {
		lines = append(lines, fmt.Sprintf("location: %s", report.Location))
	}
	if report.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", report.Description))
	}
	lines = append(lines,
		fmt.Sprintf("image_url: %s", report.ImageURL),
		fmt.Sprintf("created_at: %s", formatTime(report.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(report.UpdatedAt)),
	)
	return lines
}

func formatReportLine(report api.Report) string {
	line := fmt.Sprintf("#%d [%s] [%s] %s", report.ID, report.Status, report.Category, formatTime(report.CreatedAt))
	if report.Location != "" {
		line += " - " + report.Location
	}
	return line
}

func writeStatusCounts(counts map[string]int) error {
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		if err := writePlain("  %s: %d\n", status, counts[status]); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
