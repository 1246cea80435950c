package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/helpdesk/internal/adapters/logging"
	"github.com/longregen/helpdesk/internal/adapters/metrics"
	"github.com/longregen/helpdesk/internal/adapters/retry"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
	"github.com/longregen/helpdesk/internal/ports"
)

const channelPrefix = "ticket_responses_"

// ChannelName is the NOTIFY channel carrying the inserts of one ticket.
func ChannelName(conversationID string) string {
	return channelPrefix + conversationID
}

// notificationConn is the part of *pgx.Conn a subscription needs.
type notificationConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// MessageLoader loads the row a notification points at.
type MessageLoader interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
}

type notificationPayload struct {
	ID       string `json:"id"`
	TicketID string `json:"ticket_id"`
}

// Listener delivers ticket_responses inserts through LISTEN/NOTIFY. Each
// subscription owns a dedicated connection taken out of the pool and comes
// back with exponential backoff after a connection failure. Notifications sent
// while reconnecting are lost; the poll pass recovers them.
type Listener struct {
	connect func(ctx context.Context) (notificationConn, error)
	loader  MessageLoader
	clock   clock.Clock
	backoff retry.BackoffConfig
	logger  *slog.Logger
}

type ListenerOption func(*Listener)

func WithListenerClock(clk clock.Clock) ListenerOption {
	return func(l *Listener) { l.clock = clk }
}

func WithReconnectBackoff(cfg retry.BackoffConfig) ListenerOption {
	return func(l *Listener) { l.backoff = cfg }
}

func NewListener(pool *pgxpool.Pool, loader MessageLoader, logger *slog.Logger, opts ...ListenerOption) *Listener {
	l := &Listener{
		connect: func(ctx context.Context) (notificationConn, error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			// A listening connection must never go back to the pool.
			return conn.Hijack(), nil
		},
		loader:  loader,
		clock:   clock.New(),
		backoff: retry.ReconnectConfig(),
		logger:  logger,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SubscribeInserts starts listening on the ticket's channel. The first LISTEN
// happens before it returns so a broken database is reported to the caller.
func (l *Listener) SubscribeInserts(ctx context.Context, conversationID string, onInsert ports.InsertHandler) (func(), error) {
	channel := ChannelName(conversationID)
	conn, err := l.listen(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubscriptionFailed, err)
	}

	subCtx, cancel := context.WithCancel(logging.WithConversation(ctx, conversationID))
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.run(subCtx, conn, conversationID, onInsert)
	}()

	l.logger.Debug("push: listening", "channel", channel)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			l.logger.Debug("push: unlistened", "channel", channel)
		})
	}, nil
}

func (l *Listener) listen(ctx context.Context, channel string) (notificationConn, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		l.closeConn(conn)
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	return conn, nil
}

func (l *Listener) run(ctx context.Context, conn notificationConn, conversationID string, onInsert ports.InsertHandler) {
	channel := ChannelName(conversationID)
	b := retry.NewBackoff(l.backoff, l.clock)

	defer func() {
		if conn != nil {
			l.closeConn(conn)
		}
	}()

	for {
		if conn == nil {
			if err := b.Wait(ctx); err != nil {
				if ctx.Err() == nil {
					l.logger.ErrorContext(ctx, "push: giving up on channel", "channel", channel, "error", err)
				}
				return
			}
			c, err := l.listen(ctx, channel)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.WarnContext(ctx, "push: reconnect failed",
					"channel", channel,
					"attempt", b.Attempts(),
					"error", err)
				continue
			}
			conn = c
			b.Reset()
			metrics.PushReconnects.Inc()
			l.logger.InfoContext(ctx, "push: reconnected", "channel", channel)
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.WarnContext(ctx, "push: connection lost, reconnecting", "channel", channel, "error", err)
			l.closeConn(conn)
			conn = nil
			continue
		}
		l.deliver(ctx, n, conversationID, onInsert)
	}
}

func (l *Listener) deliver(ctx context.Context, n *pgconn.Notification, conversationID string, onInsert ports.InsertHandler) {
	var payload notificationPayload
	if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
		l.logger.WarnContext(ctx, "push: malformed notification", "channel", n.Channel, "error", err)
		return
	}
	if payload.TicketID != conversationID || payload.ID == "" {
		return
	}

	m, err := l.loader.GetMessage(ctx, payload.ID)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.WarnContext(ctx, "push: failed to load inserted response",
				"message_id", payload.ID,
				"error", err)
		}
		return
	}
	if m.Internal {
		return
	}
	onInsert(m)
}

func (l *Listener) closeConn(conn notificationConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		l.logger.Debug("push: close failed", "error", err)
	}
}
