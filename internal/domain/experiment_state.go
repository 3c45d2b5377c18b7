package domain

import "strings"

// ExperimentState tracks where an experiment sits between submission and its
// asynchronous VPO assignment. The two *UpdateInProgress values act as a lock
// flag while a submitted update waits for its completion callback.
type ExperimentState string

const (
	ExperimentStateDraft                 ExperimentState = "draft"
	ExperimentStateDraftUpdateInProgress ExperimentState = "draft_update_in_progress"
	ExperimentStateReady                 ExperimentState = "ready"
	ExperimentStateUpdateInProgress      ExperimentState = "update_in_progress"
)

// NormalizeExperimentState maps free-form values to canonical experiment states.
func NormalizeExperimentState(value string) ExperimentState {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ExperimentStateDraft):
		return ExperimentStateDraft
	case string(ExperimentStateDraftUpdateInProgress):
		return ExperimentStateDraftUpdateInProgress
	case string(ExperimentStateReady):
		return ExperimentStateReady
	case string(ExperimentStateUpdateInProgress):
		return ExperimentStateUpdateInProgress
	default:
		return ""
	}
}

// SettleAfterVpoAssignment returns the state an experiment lands in once a
// successful VPO-assignment callback arrives, and whether the incoming VPO
// value should be written. For the in-progress states the callback is the
// completion signal for a prior submission, so the VPO written at submission
// time is kept.
func (s ExperimentState) SettleAfterVpoAssignment() (ExperimentState, bool) {
	switch s {
	case ExperimentStateDraftUpdateInProgress:
		return ExperimentStateDraft, false
	case ExperimentStateUpdateInProgress:
		return ExperimentStateReady, false
	default:
		return s, true
	}
}
