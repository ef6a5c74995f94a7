package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type UserTier string

const (
	TierFree       UserTier = "free"
	TierPremium    UserTier = "premium"
	TierEnterprise UserTier = "enterprise"
)

// Tiers lists every tier in reporting order.
var Tiers = []UserTier{TierFree, TierPremium, TierEnterprise}

// ParseTier accepts "free", "premium" or "enterprise". Empty input means free.
func ParseTier(s string) (UserTier, error) {
	switch UserTier(s) {
	case "":
		return TierFree, nil
	case TierFree, TierPremium, TierEnterprise:
		return UserTier(s), nil
	default:
		return "", fmt.Errorf("invalid user tier %q: must be one of free, premium, enterprise", s)
	}
}

// CostEvent is an immutable log entry for one billable or cache-saved model call.
type CostEvent struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	UserTier  UserTier  `json:"user_tier"`
	ModelID   string    `json:"model_id"`
	Cost      float64   `json:"cost"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
}

// BudgetAlert is raised the first time a user crosses a budget threshold in a cycle.
type BudgetAlert struct {
	UserID      string    `json:"user_id"`
	UserTier    UserTier  `json:"user_tier"`
	CurrentCost float64   `json:"current_cost"`
	Threshold   int       `json:"threshold"`
	Percentage  float64   `json:"percentage"`
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message"`
}

// CostInput is what a caller reports for one model call. Cached marks a cache hit,
// in which case Cost is the amount saved rather than spent.
type CostInput struct {
	UserID   string   `json:"user_id"`
	UserTier UserTier `json:"user_tier"`
	ModelID  string   `json:"model_id"`
	Cost     float64  `json:"cost"`
	Cached   bool     `json:"cached"`
}
