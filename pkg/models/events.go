package models

import "context"

// Event names published through a Notifier.
const (
	EventJobProgress  = "bulk.job.progress"
	EventJobCompleted = "bulk.job.completed"
	EventJobFailed    = "bulk.job.failed"
	EventJobCancelled = "bulk.job.cancelled"
	EventBudgetAlert  = "costs.budget_alert"
)

// Notifier delivers fire-and-forget events to an external listener.
// Implementations must not block for long and must not return errors to the caller.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any)
}
