package main

import (
	"context"
	"errors"
	"net"

	"sitrep/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: set SITREP_ADMIN_TOKEN to the token whose hash is in auth.admin_token_hash.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly; the server is handling too many uploads.")
		case "validation_failed":
			lines = append(lines, "hint: check the report fields and the image type and size.")
		case "invalid_transition":
			lines = append(lines, "hint: the forward_only workflow does not move a report back to an earlier status.")
		case "conflict":
			lines = append(lines, "hint: the report changed while updating; fetch it again and retry.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify SITREP_API_URL points to a sitrep server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase SITREP_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a sitrep server is running at SITREP_API_URL.",
			"hint: start local server manually with: sitrep srv",
			"hint: you can increase SITREP_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
