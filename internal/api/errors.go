package api

import (
	"fmt"
	"sort"
	"strings"
)

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
	Fields    map[string][]string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	message := e.Message
	if detail := e.fieldSummary(); detail != "" {
		message = fmt.Sprintf("%s (%s)", message, detail)
	}
	if e.Code != "" && message != "" {
		return fmt.Sprintf("%s: %s", e.Code, message)
	}
	if message != "" {
		return message
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

func (e *APIError) fieldSummary() string {
	if len(e.Fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], "; "))
	}
	return strings.Join(parts, ", ")
}
