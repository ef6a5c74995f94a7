package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// PostgresEventLog is the append-only cost event log backed by pgx/v5.
type PostgresEventLog struct {
	pool *pgxpool.Pool
}

// NewPostgresEventLog creates a new PostgresEventLog.
func NewPostgresEventLog(pool *pgxpool.Pool) *PostgresEventLog {
	return &PostgresEventLog{pool: pool}
}

// Ping checks database connectivity.
func (l *PostgresEventLog) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func (l *PostgresEventLog) Append(ctx context.Context, ev models.CostEvent) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO cost_events (id, user_id, user_tier, model_id, cost, cached, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.UserID, string(ev.UserTier), ev.ModelID, ev.Cost, ev.Cached, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("append cost event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for userID newer than since, newest first.
func (l *PostgresEventLog) Recent(ctx context.Context, userID string, since time.Time, limit int) ([]models.CostEvent, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, user_id, user_tier, model_id, cost, cached, created_at
		 FROM cost_events
		 WHERE user_id = $1 AND created_at > $2
		 ORDER BY created_at DESC
		 LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list cost events: %w", err)
	}
	defer rows.Close()

	var events []models.CostEvent
	for rows.Next() {
		var (
			ev   models.CostEvent
			tier string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &tier, &ev.ModelID, &ev.Cost, &ev.Cached, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan cost event: %w", err)
		}
		ev.UserTier = models.UserTier(tier)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteBefore prunes events older than cutoff and returns how many were removed.
func (l *PostgresEventLog) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM cost_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cost events: %w", err)
	}
	return tag.RowsAffected(), nil
}
