package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTransition is returned when a policy forbids moving between two statuses.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrInvalidStatus is returned when a requested status is outside the known set.
var ErrInvalidStatus = errors.New("invalid status")

// WorkflowPolicy names a transition table.
type WorkflowPolicy string

const (
	PolicyRelaxed     WorkflowPolicy = "relaxed"
	PolicyForwardOnly WorkflowPolicy = "forward_only"
)

type transition struct {
	from ReportStatus
	to   ReportStatus
}

// Workflow validates status transitions against an explicit set of allowed pairs.
type Workflow struct {
	policy  WorkflowPolicy
	allowed map[transition]struct{}
}

func ParseWorkflowPolicy(raw string) (WorkflowPolicy, error) {
	value := WorkflowPolicy(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case "":
		return PolicyRelaxed, nil
	case PolicyRelaxed, PolicyForwardOnly:
		return value, nil
	default:
		return "", fmt.Errorf("invalid workflow policy: %s", value)
	}
}

// NewWorkflow builds the transition table for a policy.
func NewWorkflow(policy WorkflowPolicy) (*Workflow, error) {
	allowed := map[transition]struct{}{}
	statuses := ReportStatuses()

	switch policy {
	case PolicyRelaxed, "":
		policy = PolicyRelaxed
		for _, from := range statuses {
			for _, to := range statuses {
				allowed[transition{from, to}] = struct{}{}
			}
		}
	case PolicyForwardOnly:
		// A status may move to itself or to any later status.
		for i, from := range statuses {
			for _, to := range statuses[i:] {
				allowed[transition{from, to}] = struct{}{}
			}
		}
	default:
		return nil, fmt.Errorf("invalid workflow policy: %s", policy)
	}

	return &Workflow{policy: policy, allowed: allowed}, nil
}

// Policy returns the configured policy name.
func (w *Workflow) Policy() WorkflowPolicy {
	return w.policy
}

// RequiresCompareAndSet reports whether persisting a transition must check the prior status.
func (w *Workflow) RequiresCompareAndSet() bool {
	return w.policy == PolicyForwardOnly
}

// Allows reports whether from -> to is in the transition table.
func (w *Workflow) Allows(from, to ReportStatus) bool {
	_, ok := w.allowed[transition{from, to}]
	return ok
}

// Transition validates requested against the report's current status and returns the updated report.
func (w *Workflow) Transition(report Report, requested string, now time.Time) (Report, error) {
	to := ReportStatus(requested)
	if !IsValidReportStatus(to) {
		return report, fmt.Errorf("%w: %q", ErrInvalidStatus, requested)
	}
	if !w.Allows(report.Status, to) {
		return report, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, report.Status, to)
	}
	report.Status = to
	report.UpdatedAt = now.UTC()
	return report, nil
}
