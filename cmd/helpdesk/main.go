package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/longregen/helpdesk/internal/adapters/logging"
	"github.com/longregen/helpdesk/internal/adapters/postgres"
	"github.com/longregen/helpdesk/internal/adapters/tracing"
	"github.com/longregen/helpdesk/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	var shutdownTracer func(context.Context) error

	rootCmd := &cobra.Command{
		Use:   "helpdesk",
		Short: "Helpdesk - support conversation client",
		Long: `Helpdesk talks to a support assistant and human agents.
It keeps the conversation in sync across your own messages, live pushes
from the ticket store and a periodic poll.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger = logging.Setup(cfg.Logging, os.Stderr)

			shutdownTracer, err = tracing.InitTracer(cfg.Tracing, os.Stderr)
			if err != nil {
				logger.Warn("failed to initialize tracing", "error", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdownTracer != nil {
				return shutdownTracer(context.Background())
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		chatCmd(),
		newCmd(),
		serveCmd(),
		migrateCmd(),
		configCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newCmd opens a new support ticket for the configured user
func newCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new support conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if cfg.Caller.UserID == "" {
				return fmt.Errorf("user ID required. Set HELPDESK_USER_ID")
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			conversation, err := a.store.CreateConversation(ctx, cfg.Caller.UserID, category)
			if err != nil {
				return err
			}

			fmt.Printf("Created conversation: %s\n", conversation.ID)
			if conversation.Category != "" {
				fmt.Printf("Category: %s\n", conversation.Category)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Ticket category")

	return cmd
}

// migrateCmd installs the ticket store schema
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ticket store schema",
		Long: `Create the support_tickets and ticket_responses tables and the
trigger that notifies listeners of new responses. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Schema is up to date")
			return nil
		},
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Database.PostgresURL))
			fmt.Printf("  Max Conns:  %d\n", cfg.Database.MaxConns)
			fmt.Println()

			fmt.Println("Realtime:")
			fmt.Printf("  Backend: %s\n", cfg.Realtime.Backend)
			if cfg.IsWebSocketPush() {
				fmt.Printf("  URL:     %s\n", cfg.Realtime.URL)
				fmt.Printf("  API Key: %s\n", maskSecret(cfg.Realtime.APIKey))
			}
			fmt.Println()

			fmt.Println("Assistant:")
			fmt.Printf("  URL:          %s\n", cfg.Assistant.URL)
			fmt.Printf("  Action URL:   %s\n", cfg.Assistant.ActionURL)
			fmt.Printf("  API Key:      %s\n", maskSecret(cfg.Assistant.APIKey))
			fmt.Printf("  Timeout:      %s\n", cfg.Assistant.Timeout.Std())
			fmt.Printf("  Breaker:      %d failures, %s cooldown\n", cfg.Assistant.BreakerMaxFailures, cfg.Assistant.BreakerCooldown.Std())
			fmt.Println()

			fmt.Println("Sync:")
			fmt.Printf("  Poll Interval:  %s\n", cfg.Sync.PollInterval.Std())
			fmt.Printf("  Reply Deadline: %s\n", cfg.Sync.ReplyDeadline.Std())
			fmt.Printf("  Dedup Window:   %s\n", cfg.Sync.DedupWindow.Std())
			fmt.Println()

			fmt.Println("Caller:")
			fmt.Printf("  User ID: %s\n", cfg.Caller.UserID)
			fmt.Printf("  Name:    %s\n", cfg.Caller.DisplayName)
			fmt.Printf("  Token:   %s\n", maskSecret(cfg.Caller.Token))
			fmt.Println()

			fmt.Println("Bridge server:")
			fmt.Printf("  Address: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("  Tracing: %s\n", boolStatus(cfg.Tracing.Enabled))
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  HELPDESK_POSTGRES_URL, HELPDESK_REALTIME_BACKEND, HELPDESK_REALTIME_URL")
			fmt.Println("  HELPDESK_ASSISTANT_URL, HELPDESK_ASSISTANT_ACTION_URL, HELPDESK_ASSISTANT_API_KEY")
			fmt.Println("  HELPDESK_POLL_INTERVAL, HELPDESK_REPLY_DEADLINE, HELPDESK_DEDUP_WINDOW")
			fmt.Println("  HELPDESK_USER_ID, HELPDESK_USER_NAME, HELPDESK_USER_TOKEN")
			fmt.Println("  HELPDESK_SERVER_HOST, HELPDESK_SERVER_PORT, HELPDESK_CORS_ORIGINS")
			fmt.Println("  HELPDESK_LOG_LEVEL, HELPDESK_LOG_FORMAT, HELPDESK_TRACING_ENABLED")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Helpdesk %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}
