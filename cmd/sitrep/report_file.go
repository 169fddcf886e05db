package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sitrep/internal/api"
)

// reportFile is a markdown report draft: YAML front matter for the fields,
// with the body used as the description when none is given.
type reportFile struct {
	Request api.SubmitRequest
	Image   string
}

type reportFrontMatter struct {
	api.SubmitRequest `yaml:",inline"`
	Image             string `yaml:"image"`
	Contact           string `yaml:"contact"`
	Type              string `yaml:"type"`
}

func loadReportFile(path string) (reportFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return reportFile{}, err
	}
	draft, err := parseReportMarkdown(string(raw))
	if err != nil {
		return reportFile{}, fmt.Errorf("%s: %w", path, err)
	}
	if draft.Image != "" && !filepath.IsAbs(draft.Image) {
		draft.Image = filepath.Join(filepath.Dir(path), draft.Image)
	}
	return draft, nil
}

func parseReportMarkdown(input string) (reportFile, error) {
	var front reportFrontMatter
	body := input

	lines := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	if len(lines) >= 2 && strings.TrimSpace(lines[0]) == "---" {
		end := -1
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "---" {
				end = i
				break
			}
		}
		if end == -1 {
			return reportFile{}, fmt.Errorf("front matter not closed")
		}
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &front); err != nil {
			return reportFile{}, fmt.Errorf("parse front matter: %w", err)
		}
		body = strings.Join(lines[end+1:], "\n")
	}

	req := front.SubmitRequest
	// contact and type are the older field names.
	if req.ReporterContact == "" {
		req.ReporterContact = front.Contact
	}
	if req.Category == "" {
		req.Category = front.Type
	}
	if req.Description == "" {
		req.Description = strings.TrimSpace(body)
	}

	return reportFile{Request: req, Image: strings.TrimSpace(front.Image)}, nil
}
