package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpserver "github.com/longregen/helpdesk/internal/adapters/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serveCmd runs the local bridge server for a UI
func serveCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local bridge server",
		Long: `Start the local bridge server. A UI opens a conversation, sends
messages and follows the session over a websocket at /api/v1/session/events.

Required configuration:
  - PostgreSQL ticket store (HELPDESK_POSTGRES_URL)
  - Assistant function (HELPDESK_ASSISTANT_URL)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), conversationID)
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation to open at startup")

	return cmd
}

func runServer(ctx context.Context, conversationID string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if conversationID != "" {
		if err := a.engine.OpenConversation(ctx, conversationID); err != nil {
			return err
		}
	}

	server := httpserver.NewServer(cfg, a.engine, httpserver.Deps{
		DB:        a.pool,
		Assistant: a.assistant,
		Logger:    logger,
	})

	logger.Info("helpdesk bridge starting",
		"addr", fmt.Sprintf("http://%s", server.Addr()),
		"assistant", cfg.Assistant.URL,
		"push", cfg.Realtime.Backend)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	return g.Wait()
}
