// Package main is ledgerctl, an operator CLI for the Fine Print cost ledger.
// It reads the same environment as the server and talks to the key-value
// store directly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/fineprint/internal/config"
	"github.com/kiranshivaraju/fineprint/internal/costs"
	"github.com/kiranshivaraju/fineprint/internal/kv"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openLedger, os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// openLedger builds a Ledger on the configured store. The returned func
// closes the store.
func openLedger(ctx context.Context) (*costs.Ledger, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var store kv.Store
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := kv.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store = s
	default:
		s, err := kv.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis store: %w", err)
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		store = s
	}

	ledger := costs.NewLedger(costs.Config{
		PrimaryModel:   cfg.Costs.PrimaryModel,
		Retention:      cfg.Costs.Retention,
		EventLogMaxLen: cfg.Costs.EventLogMaxLen,
	}, store)
	return ledger, store.Close, nil
}
