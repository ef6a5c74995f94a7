// Package costs records model spend and cache savings per user, tier and model,
// raises budget alerts and produces monthly reports.
package costs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fineprint/internal/kv"
	"github.com/kiranshivaraju/fineprint/internal/metrics"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrInvalidPeriod = errors.New("period must be \"current\" or YYYY-MM")

// Config tunes the ledger.
type Config struct {
	// PrimaryModel is the model most traffic is expected to use.
	PrimaryModel string
	// Retention bounds how long aggregates, flags and alerts are kept.
	Retention      time.Duration
	EventLogMaxLen int
}

// Ledger is the cost ledger. Aggregates live in kv.Store; the only in-process
// state is the set of fired alert flags.
type Ledger struct {
	cfg      Config
	store    kv.Store
	events   EventLog
	notifier models.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	alertMu sync.Mutex
	fired   map[string]bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithEventLog replaces the default key-value event log.
func WithEventLog(log EventLog) Option {
	return func(l *Ledger) {
		l.events = log
	}
}

func WithNotifier(n models.Notifier) Option {
	return func(l *Ledger) {
		l.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// NewLedger creates a Ledger on store.
func NewLedger(cfg Config, store kv.Store, opts ...Option) *Ledger {
	if cfg.EventLogMaxLen <= 0 {
		cfg.EventLogMaxLen = 1000
	}
	l := &Ledger{
		cfg:   cfg,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		fired: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.events == nil {
		l.events = NewKVEventLog(store, cfg.EventLogMaxLen, cfg.Retention)
	}
	if l.metrics == nil {
		l.metrics = metrics.New(prometheus.NewRegistry())
	}
	return l
}

// RecordCost books one model call. A cached call adds to the savings
// aggregates only. Failures are logged and counted, never returned.
func (l *Ledger) RecordCost(ctx context.Context, in models.CostInput) {
	if op, err := l.record(ctx, in); err != nil {
		l.metrics.CostTrackingErrors.WithLabelValues(op).Inc()
		slog.Error("cost tracking failed",
			"operation", op,
			"user_id", in.UserID,
			"model", in.ModelID,
			"error", err,
		)
	}
}

func (l *Ledger) record(ctx context.Context, in models.CostInput) (string, error) {
	if in.UserID == "" {
		return "validate", errors.New("user id is required")
	}
	if !ValidUserID(in.UserID) {
		return "validate", fmt.Errorf("user id %q: %w", in.UserID, ErrInvalidID)
	}
	if !ValidModelID(in.ModelID) {
		return "validate", fmt.Errorf("model id %q: %w", in.ModelID, ErrInvalidID)
	}
	if in.Cost < 0 {
		return "validate", fmt.Errorf("cost must not be negative, got %v", in.Cost)
	}
	if in.UserTier == "" {
		in.UserTier = models.TierFree
	}

	now := l.now()
	ev := models.CostEvent{
		ID:        uuid.New(),
		UserID:    in.UserID,
		UserTier:  in.UserTier,
		ModelID:   in.ModelID,
		Cost:      in.Cost,
		Cached:    in.Cached,
		Timestamp: now,
	}
	if err := l.events.Append(ctx, ev); err != nil {
		return "append_event", err
	}

	m := monthOf(now)
	ttl := l.cfg.Retention

	if in.Cached {
		if err := l.add(ctx, ttl, in.Cost, m.savings(), m.userSavings(in.UserID)); err != nil {
			return "savings", err
		}
		if err := l.count(ctx, ttl, m.savingsRequests(), requestsKey(m.userSavings(in.UserID))); err != nil {
			return "savings", err
		}
		l.metrics.CacheSavings.Add(in.Cost)
		return "", nil
	}

	if err := l.add(ctx, ttl, in.Cost, m.total(), m.tier(in.UserTier), m.model(in.ModelID)); err != nil {
		return "aggregate", err
	}
	if err := l.count(ctx, ttl,
		m.requests(),
		requestsKey(m.tier(in.UserTier)),
		requestsKey(m.model(in.ModelID)),
		requestsKey(m.user(in.UserID)),
	); err != nil {
		return "aggregate", err
	}
	userTotal, err := l.store.IncrByFloat(ctx, m.user(in.UserID), in.Cost, ttl)
	if err != nil {
		return "aggregate", err
	}
	if err := l.store.Set(ctx, m.userTier(in.UserID), []byte(in.UserTier), ttl); err != nil {
		return "aggregate", err
	}
	l.metrics.CostRecorded.WithLabelValues(string(in.UserTier)).Add(in.Cost)

	if err := l.checkBudget(ctx, in.UserID, in.UserTier, userTotal); err != nil {
		return "budget_alert", err
	}
	return "", nil
}

func (l *Ledger) add(ctx context.Context, ttl time.Duration, delta float64, keys ...string) error {
	for _, k := range keys {
		if _, err := l.store.IncrByFloat(ctx, k, delta, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) count(ctx context.Context, ttl time.Duration, keys ...string) error {
	for _, k := range keys {
		if _, err := l.store.IncrWithExpiry(ctx, k, ttl); err != nil {
			return err
		}
	}
	return nil
}

// readFloat returns the numeric value at key, or 0 when it is absent.
func (l *Ledger) readFloat(ctx context.Context, key string) (float64, error) {
	data, found, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}

func (l *Ledger) readInt(ctx context.Context, key string) (int64, error) {
	v, err := l.readFloat(ctx, key)
	return int64(v), err
}

// resolvePeriod maps "current" (or empty) and YYYY-MM to a month.
func (l *Ledger) resolvePeriod(period string) (time.Time, error) {
	now := l.now()
	if period == "" || period == "current" {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(monthLayout, period)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return t, nil
}
