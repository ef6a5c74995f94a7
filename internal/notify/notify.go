// Package notify delivers job and budget events to listeners. Every notifier
// is fire-and-forget: failures are logged, never returned.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "fineprint:events"

const (
	publishTimeout = 2 * time.Second
	streamMaxLen   = 10_000
)

// Envelope is the wire form of a published event.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Log writes events to the structured log.
type Log struct{}

func (Log) Notify(_ context.Context, event string, payload any) {
	attrs := []any{"event", event}
	if job, ok := payload.(*models.Job); ok {
		attrs = append(attrs,
			"job_id", job.ID,
			"status", job.Status,
			"completed", job.Progress.Completed,
			"failed", job.Progress.Failed,
			"total", job.Progress.Total,
		)
	} else {
		attrs = append(attrs, "payload", payload)
	}
	slog.Info("event", attrs...)
}

// Redis appends events to a capped Redis stream.
type Redis struct {
	client *redis.Client
	stream string
}

func NewRedis(client *redis.Client, stream string) *Redis {
	if stream == "" {
		stream = DefaultStream
	}
	return &Redis{client: client, stream: stream}
}

func (r *Redis) Notify(ctx context.Context, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encoding event payload", "event", event, "error", err)
		return
	}
	env, err := json.Marshal(Envelope{
		ID:        uuid.New(),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	})
	if err != nil {
		slog.Error("encoding event", "event", event, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"event": string(env)},
	}).Err()
	if err != nil {
		slog.Error("publishing event", "event", event, "stream", r.stream, "error", err)
	}
}

// Multi fans an event out to every notifier in order.
type Multi []models.Notifier

func (m Multi) Notify(ctx context.Context, event string, payload any) {
	for _, n := range m {
		n.Notify(ctx, event, payload)
	}
}

// Func adapts a function to models.Notifier.
type Func func(ctx context.Context, event string, payload any)

func (f Func) Notify(ctx context.Context, event string, payload any) { f(ctx, event, payload) }

var (
	_ models.Notifier = Log{}
	_ models.Notifier = (*Redis)(nil)
	_ models.Notifier = Multi(nil)
	_ models.Notifier = Func(nil)
)
