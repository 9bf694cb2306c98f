package model

// CheckState is the lifecycle state of a scheduled check task.
//
// Transitions: Pending -> Running -> {Succeeded, FailedTransient,
// FailedPermanent}. FailedTransient re-enters Pending after a backoff
// delay until the retry budget is exhausted, at which point the task
// terminates as FailedPermanent for the cycle.
type CheckState string

const (
	CheckStatePending         CheckState = "pending"
	CheckStateRunning         CheckState = "running"
	CheckStateSucceeded       CheckState = "succeeded"
	CheckStateFailedTransient CheckState = "failed_transient"
	CheckStateFailedPermanent CheckState = "failed_permanent"
)

// Terminal reports whether the state ends a task's lifecycle.
func (s CheckState) Terminal() bool {
	return s == CheckStateSucceeded || s == CheckStateFailedPermanent
}
