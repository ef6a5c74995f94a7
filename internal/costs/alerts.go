package costs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// MonthlyBudgets is the fixed monthly budget per tier, in dollars.
var MonthlyBudgets = map[models.UserTier]float64{
	models.TierFree:       1,
	models.TierPremium:    50,
	models.TierEnterprise: 500,
}

// alertThresholds are checked highest first.
var alertThresholds = []int{90, 75, 50}

func budgetFor(tier models.UserTier) float64 {
	if b, ok := MonthlyBudgets[tier]; ok {
		return b
	}
	return MonthlyBudgets[models.TierFree]
}

// checkBudget fires at most one alert: the highest crossed threshold that has
// not fired since the last reset.
func (l *Ledger) checkBudget(ctx context.Context, userID string, tier models.UserTier, total float64) error {
	budget := budgetFor(tier)
	pct := total / budget * 100

	l.alertMu.Lock()
	defer l.alertMu.Unlock()

	for _, threshold := range alertThresholds {
		if pct < float64(threshold) {
			continue
		}
		fired, err := l.alertFired(ctx, userID, threshold)
		if err != nil {
			return err
		}
		if fired {
			continue
		}
		return l.fireAlert(ctx, models.BudgetAlert{
			UserID:      userID,
			UserTier:    tier,
			CurrentCost: total,
			Threshold:   threshold,
			Percentage:  pct,
			Timestamp:   l.now(),
			Message: fmt.Sprintf("User %s (%s tier) has used %.1f%% of the $%.2f monthly budget ($%.4f spent)",
				userID, tier, pct, budget, total),
		})
	}
	return nil
}

// alertFired checks the in-memory flag, then the persisted one so flags
// survive a restart.
func (l *Ledger) alertFired(ctx context.Context, userID string, threshold int) (bool, error) {
	key := alertFlagKey(userID, threshold)
	if l.fired[key] {
		return true, nil
	}
	_, found, err := l.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if found {
		l.fired[key] = true
	}
	return found, nil
}

func (l *Ledger) fireAlert(ctx context.Context, alert models.BudgetAlert) error {
	key := alertFlagKey(alert.UserID, alert.Threshold)
	l.fired[key] = true
	if err := l.store.Set(ctx, key, []byte("1"), l.cfg.Retention); err != nil {
		return err
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	if err := l.store.Push(ctx, alertsKey, data, l.cfg.EventLogMaxLen, l.cfg.Retention); err != nil {
		return err
	}

	l.metrics.BudgetAlerts.WithLabelValues(strconv.Itoa(alert.Threshold)).Inc()
	if l.notifier != nil {
		l.notifier.Notify(ctx, models.EventBudgetAlert, alert)
	}
	slog.Warn("budget alert",
		"user_id", alert.UserID,
		"tier", alert.UserTier,
		"threshold", alert.Threshold,
		"percentage", alert.Percentage,
	)
	return nil
}

// Alerts returns the alerts raised since the last reset, oldest first.
func (l *Ledger) Alerts(ctx context.Context) ([]models.BudgetAlert, error) {
	items, err := l.store.Range(ctx, alertsKey)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	alerts := make([]models.BudgetAlert, 0, len(items))
	for _, item := range items {
		var a models.BudgetAlert
		if err := json.Unmarshal(item, &a); err != nil {
			slog.Warn("skipping unreadable alert", "error", err)
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// ResetMonthlyAlerts clears every fired flag and the alert log. It is meant to
// run at the start of each billing month.
func (l *Ledger) ResetMonthlyAlerts(ctx context.Context) error {
	l.alertMu.Lock()
	defer l.alertMu.Unlock()

	l.fired = make(map[string]bool)

	keys, err := l.store.Scan(ctx, alertFlagPrefix)
	if err != nil {
		return fmt.Errorf("listing alert flags: %w", err)
	}
	keys = append(keys, alertsKey)
	if err := l.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("clearing alerts: %w", err)
	}
	slog.Info("monthly budget alerts reset", "flags_cleared", len(keys)-1)
	return nil
}
