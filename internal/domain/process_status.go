package domain

import "strings"

// ProcessStatus is the lifecycle status of a single tracked record
// (a class condition or an inline stage record).
type ProcessStatus string

const (
	ProcessStatusNotStarted           ProcessStatus = "not_started"
	ProcessStatusPendingCommit        ProcessStatus = "pending_commit"
	ProcessStatusCommitted            ProcessStatus = "committed"
	ProcessStatusRunning              ProcessStatus = "running"
	ProcessStatusPaused               ProcessStatus = "paused"
	ProcessStatusResuming             ProcessStatus = "resuming"
	ProcessStatusCanceling            ProcessStatus = "canceling"
	ProcessStatusCanceled             ProcessStatus = "canceled"
	ProcessStatusCompleted            ProcessStatus = "completed"
	ProcessStatusPendingMaterialIssue ProcessStatus = "pending_material_issue"
)

// IsFinal reports whether the status is terminal. PendingMaterialIssue is a
// hold state, not a terminal one.
func (s ProcessStatus) IsFinal() bool {
	return s == ProcessStatusCompleted || s == ProcessStatusCanceled
}

// NormalizeProcessStatus maps free-form callback status values to canonical
// process statuses. Returns "" for values outside the lifecycle.
func NormalizeProcessStatus(value string) ProcessStatus {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch normalized {
	case string(ProcessStatusNotStarted):
		return ProcessStatusNotStarted
	case string(ProcessStatusPendingCommit):
		return ProcessStatusPendingCommit
	case string(ProcessStatusCommitted):
		return ProcessStatusCommitted
	case string(ProcessStatusRunning):
		return ProcessStatusRunning
	case string(ProcessStatusPaused):
		return ProcessStatusPaused
	case string(ProcessStatusResuming):
		return ProcessStatusResuming
	case string(ProcessStatusCanceling):
		return ProcessStatusCanceling
	case string(ProcessStatusCanceled):
		return ProcessStatusCanceled
	case string(ProcessStatusCompleted):
		return ProcessStatusCompleted
	case string(ProcessStatusPendingMaterialIssue):
		return ProcessStatusPendingMaterialIssue
	default:
		return ""
	}
}
