// Package assistant calls the remote assistant and ticket-action functions.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/longregen/helpdesk/internal/adapters/circuitbreaker"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
)

const (
	// DefaultTimeout bounds a single assistant call. The send pipeline's own
	// deadline is shorter; this only keeps abandoned calls from leaking.
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 512
)

// ActionApplier applies conversation actions directly against the ticket
// store. It is used when no ticket-action function is configured.
type ActionApplier interface {
	ApplyAction(ctx context.Context, conversationID string, action models.ConversationAction) error
}

// StatusError is a non-2xx answer from a remote function.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote function returned %d: %s", e.StatusCode, e.Body)
}

// Client implements ports.Assistant over HTTP. It never retries: a failed
// invocation surfaces to the send pipeline, which owns the retry decision.
type Client struct {
	url        string
	actionURL  string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	actions    ActionApplier
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBreaker(maxFailures int, cooldown time.Duration, clk clock.Clock) Option {
	return func(c *Client) {
		c.breaker = circuitbreaker.New(maxFailures, cooldown,
			circuitbreaker.WithClock(clk),
			circuitbreaker.WithFailurePredicate(tripsBreaker))
	}
}

// WithActionApplier routes actions to a local applier when actionURL is empty.
func WithActionApplier(a ActionApplier) Option {
	return func(c *Client) { c.actions = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(url, actionURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		url:        strings.TrimSuffix(url, "/"),
		actionURL:  strings.TrimSuffix(actionURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.New(5, 30*time.Second, circuitbreaker.WithFailurePredicate(tripsBreaker))
	}
	return c
}

// tripsBreaker counts transport failures and 5xx answers. Client errors and
// cancellations say nothing about the remote's health.
func tripsBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

type invokeRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name,omitempty"`
}

type actionRequest struct {
	ConversationID string `json:"conversation_id"`
	Action         string `json:"action"`
}

// InvokeAssistant posts the user's message and decodes the direct reply.
func (c *Client) InvokeAssistant(ctx context.Context, conversationID, body string, caller models.CallerIdentity) (*models.AssistantReply, error) {
	req := invokeRequest{
		ConversationID: conversationID,
		Message:        body,
		UserID:         caller.UserID,
		DisplayName:    caller.DisplayName,
	}

	var reply models.AssistantReply
	err := c.breaker.Execute(func() error {
		respBody, err := c.post(ctx, c.url, caller.Token, req)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, &reply); err != nil {
			return fmt.Errorf("failed to decode assistant reply: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, c.wrap(err)
	}
	return &reply, nil
}

// InvokeAction requests an escalate or close transition.
func (c *Client) InvokeAction(ctx context.Context, conversationID string, action models.ConversationAction) error {
	if !action.Valid() {
		return domain.NewDomainError(domain.ErrInvalidAction, string(action))
	}
	if c.actionURL == "" {
		if c.actions == nil {
			return fmt.Errorf("%w: no ticket-action function configured", domain.ErrActionFailed)
		}
		return c.actions.ApplyAction(ctx, conversationID, action)
	}

	err := c.breaker.Execute(func() error {
		_, err := c.post(ctx, c.actionURL, "", actionRequest{ConversationID: conversationID, Action: string(action)})
		return err
	})
	if err != nil {
		return c.wrap(err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url, userToken string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
	}
	switch {
	case userToken != "":
		httpReq.Header.Set("Authorization", "Bearer "+userToken)
	case c.apiKey != "":
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		c.logger.Warn("assistant: remote function error", "url", url, "status", resp.StatusCode)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: text}
	}
	return respBody, nil
}

func (c *Client) wrap(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", domain.ErrAssistantOffline, err)
	}
	return err
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}
