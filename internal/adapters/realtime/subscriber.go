// Package realtime subscribes to ticket inserts through the helpdesk realtime
// gateway over a websocket.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/longregen/helpdesk/internal/adapters/metrics"
	"github.com/longregen/helpdesk/internal/adapters/retry"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
	"github.com/longregen/helpdesk/internal/ports"
	"github.com/longregen/helpdesk/pkg/protocol"
)

const (
	writeTimeout = 10 * time.Second
	ackTimeout   = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Subscriber implements ports.InsertSubscriber against the realtime gateway.
// Every subscription owns its websocket and reconnects with backoff until it
// is unsubscribed.
type Subscriber struct {
	url          string
	apiKey       string
	token        string
	dialer       *websocket.Dialer
	clock        clock.Clock
	backoff      retry.BackoffConfig
	pingInterval time.Duration
	logger       *slog.Logger
}

type Option func(*Subscriber)

func WithClock(clk clock.Clock) Option {
	return func(s *Subscriber) { s.clock = clk }
}

func WithReconnectBackoff(cfg retry.BackoffConfig) Option {
	return func(s *Subscriber) { s.backoff = cfg }
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Subscriber) { s.pingInterval = d }
}

// NewSubscriber creates a gateway subscriber. apiKey authenticates the client
// application; token is the end user's access token sent with each subscribe.
func NewSubscriber(url, apiKey, token string, logger *slog.Logger, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:          url,
		apiKey:       apiKey,
		token:        token,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		clock:        clock.New(),
		backoff:      retry.ReconnectConfig(),
		pingInterval: pingInterval,
		logger:       logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// connection serialises writes on one websocket.
type connection struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) write(env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *connection) close() {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.ws.Close()
}

// SubscribeInserts connects and waits for the gateway to acknowledge the
// subscription before returning.
func (s *Subscriber) SubscribeInserts(ctx context.Context, conversationID string, onInsert ports.InsertHandler) (func(), error) {
	conn, err := s.connect(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubscriptionFailed, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(subCtx, conn, conversationID, onInsert)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			s.logger.Debug("push: unsubscribed", "conversation_id", conversationID)
		})
	}, nil
}

func (s *Subscriber) connect(ctx context.Context, conversationID string) (*connection, error) {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("Authorization", "Bearer "+s.apiKey)
	}

	ws, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", s.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", s.url, err)
	}
	c := &connection{ws: ws}

	sub := protocol.Subscribe{ConversationID: conversationID, Token: s.token}
	if err := c.write(protocol.NewEnvelope(conversationID, protocol.TypeSubscribe, sub)); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	if err := awaitAck(ws, conversationID); err != nil {
		ws.Close()
		return nil, err
	}

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return c, nil
}

func awaitAck(ws *websocket.Conn, conversationID string) error {
	ws.SetReadDeadline(time.Now().Add(ackTimeout))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("await subscribe ack: %w", err)
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		switch env.Type {
		case protocol.TypeSubscribeAck:
			ack, err := protocol.DecodeBody[protocol.SubscribeAck](env)
			if err != nil {
				return err
			}
			if ack.ConversationID != "" && ack.ConversationID != conversationID {
				continue
			}
			if !ack.Success {
				return fmt.Errorf("subscribe rejected: %s", ack.Error)
			}
			return nil
		case protocol.TypeError:
			e, err := protocol.DecodeBody[protocol.Error](env)
			if err != nil {
				return err
			}
			return fmt.Errorf("gateway error %s: %s", e.Code, e.Message)
		}
	}
}

func (s *Subscriber) run(ctx context.Context, conn *connection, conversationID string, onInsert ports.InsertHandler) {
	b := retry.NewBackoff(s.backoff, s.clock)

	for {
		if conn == nil {
			if err := b.Wait(ctx); err != nil {
				if ctx.Err() == nil {
					s.logger.Error("push: giving up on gateway", "conversation_id", conversationID, "error", err)
				}
				return
			}
			c, err := s.connect(ctx, conversationID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("push: reconnect failed",
					"conversation_id", conversationID,
					"attempt", b.Attempts(),
					"error", err)
				continue
			}
			conn = c
			b.Reset()
			metrics.PushReconnects.Inc()
			s.logger.Info("push: reconnected", "conversation_id", conversationID)
		}

		err := s.serve(ctx, conn, conversationID, onInsert)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("push: connection lost, reconnecting", "conversation_id", conversationID, "error", err)
		conn = nil
	}
}

// serve reads frames until the connection fails or ctx ends.
func (s *Subscriber) serve(ctx context.Context, conn *connection, conversationID string, onInsert ports.InsertHandler) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				unsub := protocol.Unsubscribe{ConversationID: conversationID}
				if err := conn.write(protocol.NewEnvelope(conversationID, protocol.TypeUnsubscribe, unsub)); err != nil {
					s.logger.Debug("push: unsubscribe write failed", "error", err)
				}
				conn.close()
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					conn.ws.Close()
					return
				}
			}
		}
	}()

	defer conn.ws.Close()
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return err
		}
		conn.ws.SetReadDeadline(time.Now().Add(readTimeout))

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			s.logger.Warn("push: decode error", "error", err)
			continue
		}
		s.handle(env, conversationID, onInsert)
	}
}

func (s *Subscriber) handle(env *protocol.Envelope, conversationID string, onInsert ports.InsertHandler) {
	switch env.Type {
	case protocol.TypeMessageInserted:
		body, err := protocol.DecodeBody[protocol.MessageInserted](env)
		if err != nil {
			s.logger.Warn("push: decode insert error", "error", err)
			return
		}
		if body.TicketID != conversationID {
			return
		}
		m, err := toMessage(body)
		if err != nil {
			s.logger.Warn("push: rejected insert", "message_id", body.ID, "error", err)
			return
		}
		if m.Internal {
			return
		}
		onInsert(m)

	case protocol.TypeError:
		if e, err := protocol.DecodeBody[protocol.Error](env); err == nil {
			s.logger.Warn("push: gateway error", "code", e.Code, "message", e.Message)
		}

	case protocol.TypeHeartbeat, protocol.TypeSubscribeAck, protocol.TypeUnsubscribeAck:

	default:
		s.logger.Debug("push: unhandled message", "type", env.Type)
	}
}

var errInvalidInsert = errors.New("invalid insert")

func toMessage(body *protocol.MessageInserted) (*models.Message, error) {
	role := models.MessageRole(body.AuthorRole)
	if body.ID == "" || !role.Valid() {
		return nil, fmt.Errorf("%w: id %q role %q", errInvalidInsert, body.ID, body.AuthorRole)
	}
	m := models.NewMessage(body.ID, body.TicketID, role, body.Body, time.UnixMilli(body.CreatedAt))
	m.AuthorName = body.AuthorName
	m.Internal = body.IsInternal
	for _, a := range body.Attachments {
		m.Attachments = append(m.Attachments, models.Attachment{
			ID:       a.ID,
			FileName: a.FileName,
			MimeType: a.MimeType,
			URL:      a.URL,
		})
	}
	return m, nil
}
