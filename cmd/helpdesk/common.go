package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/helpdesk/internal/adapters/assistant"
	"github.com/longregen/helpdesk/internal/adapters/id"
	"github.com/longregen/helpdesk/internal/adapters/postgres"
	"github.com/longregen/helpdesk/internal/adapters/realtime"
	"github.com/longregen/helpdesk/internal/adapters/retry"
	"github.com/longregen/helpdesk/internal/application/chat"
	"github.com/longregen/helpdesk/internal/config"
	"github.com/longregen/helpdesk/internal/domain/models"
	"github.com/longregen/helpdesk/internal/ports"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Shared global variables
var (
	cfg    *config.Config
	logger *slog.Logger
)

// initDB initializes a database connection pool for CLI commands
func initDB(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Database.PostgresURL == "" {
		return nil, fmt.Errorf("PostgreSQL connection required. Set HELPDESK_POSTGRES_URL")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Force UTC timezone to prevent timezone-related issues with TIMESTAMP columns
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	err = retry.WithBackoff(ctx, retry.DefaultConfig(), nil, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}

// app holds the wired collaborators of one engine.
type app struct {
	pool      *pgxpool.Pool
	store     *postgres.TicketStore
	assistant *assistant.Client
	engine    *chat.Engine
}

func (a *app) Close() {
	a.engine.CloseConversation()
	a.pool.Close()
}

// newApp connects to the ticket store and builds the engine with the push
// backend selected by the configuration.
func newApp(ctx context.Context) (*app, error) {
	pool, err := initDB(ctx)
	if err != nil {
		return nil, err
	}

	ids := id.New()
	store := postgres.NewTicketStore(pool, ids, nil)

	client := assistant.NewClient(
		cfg.Assistant.URL,
		cfg.Assistant.ActionURL,
		cfg.Assistant.APIKey,
		assistant.WithHTTPClient(&http.Client{Timeout: cfg.Assistant.Timeout.Std()}),
		assistant.WithBreaker(cfg.Assistant.BreakerMaxFailures, cfg.Assistant.BreakerCooldown.Std(), nil),
		assistant.WithActionApplier(store),
		assistant.WithLogger(logger),
	)

	var push ports.InsertSubscriber
	switch cfg.Realtime.Backend {
	case config.PushPostgres:
		push = postgres.NewListener(pool, store, logger)
	case config.PushWebSocket:
		push = realtime.NewSubscriber(cfg.Realtime.URL, cfg.Realtime.APIKey, cfg.Caller.Token, logger)
	}

	engine := chat.NewEngine(store, push, client, ids, chat.Options{
		PollInterval:  cfg.Sync.PollInterval.Std(),
		ReplyDeadline: cfg.Sync.ReplyDeadline.Std(),
		DedupWindow:   cfg.Sync.DedupWindow.Std(),
		Caller:        caller(),
		Logger:        logger,
	})

	return &app{pool: pool, store: store, assistant: client, engine: engine}, nil
}

func caller() models.CallerIdentity {
	return models.CallerIdentity{
		UserID:      cfg.Caller.UserID,
		DisplayName: cfg.Caller.DisplayName,
		Token:       cfg.Caller.Token,
	}
}

// maskSecret masks a secret string for display
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// boolStatus returns a status string for a boolean
func boolStatus(b bool) string {
	if b {
		return "configured"
	}
	return "not configured"
}
