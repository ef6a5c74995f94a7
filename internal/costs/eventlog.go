package costs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/fineprint/internal/kv"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// EventLog is the append-only record of cost events. store.PostgresEventLog
// implements it; KVEventLog is used when no database is configured.
type EventLog interface {
	Append(ctx context.Context, ev models.CostEvent) error
	// Recent returns up to limit events for userID newer than since, newest first.
	Recent(ctx context.Context, userID string, since time.Time, limit int) ([]models.CostEvent, error)
}

// KVEventLog keeps a capped per-user event list in the key-value store.
type KVEventLog struct {
	store  kv.Store
	maxLen int
	ttl    time.Duration
}

func NewKVEventLog(store kv.Store, maxLen int, ttl time.Duration) *KVEventLog {
	return &KVEventLog{store: store, maxLen: maxLen, ttl: ttl}
}

func (l *KVEventLog) Append(ctx context.Context, ev models.CostEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding cost event: %w", err)
	}
	if err := l.store.Push(ctx, eventsKey(ev.UserID), data, l.maxLen, l.ttl); err != nil {
		return fmt.Errorf("append cost event: %w", err)
	}
	return nil
}

func (l *KVEventLog) Recent(ctx context.Context, userID string, since time.Time, limit int) ([]models.CostEvent, error) {
	items, err := l.store.Range(ctx, eventsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("list cost events: %w", err)
	}

	var events []models.CostEvent
	for i := len(items) - 1; i >= 0 && len(events) < limit; i-- {
		var ev models.CostEvent
		if err := json.Unmarshal(items[i], &ev); err != nil {
			slog.Warn("skipping unreadable cost event", "user_id", userID, "error", err)
			continue
		}
		if ev.Timestamp.After(since) {
			events = append(events, ev)
		}
	}
	return events, nil
}

var _ EventLog = (*KVEventLog)(nil)
