package bulk

import "github.com/kiranshivaraju/fineprint/pkg/models"

type submitOptions struct {
	name     string
	priority models.Priority
	userID   string
	tier     models.UserTier
}

// SubmitOption configures a job submission.
type SubmitOption func(*submitOptions)

func WithName(name string) SubmitOption {
	return func(o *submitOptions) {
		o.name = name
	}
}

func WithPriority(p models.Priority) SubmitOption {
	return func(o *submitOptions) {
		o.priority = p
	}
}

// WithUser attributes the job, and the model spend it causes, to a user.
func WithUser(userID string, tier models.UserTier) SubmitOption {
	return func(o *submitOptions) {
		o.userID = userID
		o.tier = tier
	}
}

func applyOptions(opts []SubmitOption) submitOptions {
	o := submitOptions{priority: models.PriorityNormal, tier: models.TierFree}
	for _, opt := range opts {
		opt(&o)
	}
	if o.priority == "" {
		o.priority = models.PriorityNormal
	}
	if o.tier == "" {
		o.tier = models.TierFree
	}
	return o
}
