// Package chat implements the conversation synchronization engine: it keeps the
// timeline of the open support conversation consistent across optimistic local
// writes, the server push stream and a periodic poll, and orchestrates the
// assistant invocation with its reply watchdog.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/longregen/helpdesk/internal/adapters/metrics"
	"github.com/longregen/helpdesk/internal/application/timeline"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
	"github.com/longregen/helpdesk/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultReplyDeadline = 15 * time.Second
)

// Notices merged into the timeline when a send attempt fails.
const (
	TimeoutNotice = "The assistant is taking longer than expected. Retry your message or escalate to a human agent."
	FailureNotice = "Your message could not be delivered to the assistant. Retry your message or escalate to a human agent."
)

const tracerName = "github.com/longregen/helpdesk/internal/application/chat"

// Options configures an Engine. Zero values fall back to the defaults.
type Options struct {
	PollInterval  time.Duration
	ReplyDeadline time.Duration
	DedupWindow   time.Duration
	Caller        models.CallerIdentity
	Clock         clock.Clock
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ReplyDeadline <= 0 {
		o.ReplyDeadline = DefaultReplyDeadline
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = timeline.DefaultDedupWindow
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// State is a consistent read of everything the presentation layer renders.
type State struct {
	Conversation *models.Conversation `json:"conversation,omitempty"`
	Messages     []*models.Message    `json:"messages"`
	Phase        Phase                `json:"-"`
	Presence     Presence             `json:"presence"`
	Hints        Hints                `json:"hints"`
	LastFailed   *models.PendingSend  `json:"last_failed,omitempty"`
}

// Engine serves one open conversation at a time.
//
// Every state transition happens under a single mutex, which plays the role of
// the UI event loop: remote calls and timers run on their own goroutines and
// re-enter through it, so a merge always runs to completion before the next
// one starts. Readers get copies.
type Engine struct {
	store     ports.ResponseStore
	push      ports.InsertSubscriber
	assistant ports.Assistant
	ids       ports.IDGenerator

	opts   Options
	clock  clock.Clock
	logger *slog.Logger
	tracer trace.Tracer

	// openMu serialises OpenConversation and CloseConversation
	openMu sync.Mutex

	mu          sync.Mutex
	session     *Session
	watchers    map[int]chan struct{}
	nextWatcher int
}

// NewEngine creates an engine. push may be nil, in which case the poll pass is
// the only source of remote inserts.
func NewEngine(
	store ports.ResponseStore,
	push ports.InsertSubscriber,
	assistant ports.Assistant,
	ids ports.IDGenerator,
	opts Options,
) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:     store,
		push:      push,
		assistant: assistant,
		ids:       ids,
		opts:      opts,
		clock:     opts.Clock,
		logger:    opts.Logger,
		tracer:    otel.Tracer(tracerName),
		watchers:  make(map[int]chan struct{}),
	}
}

// OpenConversation makes conversationID the active conversation. The previous
// session, if any, is fully released first.
func (e *Engine) OpenConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return domain.NewDomainError(domain.ErrInvalidID, "conversation ID cannot be empty")
	}

	e.openMu.Lock()
	defer e.openMu.Unlock()

	e.mu.Lock()
	previous := e.detachLocked()
	e.mu.Unlock()
	if previous != nil {
		e.release(previous)
		e.logger.Info("chat: conversation released", "conversation_id", previous.ConversationID())
	}

	conversation, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		e.notify()
		return fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}

	sess := newSession(conversation, timeline.New(conversationID, e.opts.DedupWindow))

	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()
	metrics.ConversationsOpen.Inc()

	// Subscribe before the initial fetch so no insert can fall between them.
	e.subscribe(sess)

	messages, err := e.store.FetchMessages(ctx, conversationID)
	if err != nil {
		e.mu.Lock()
		if e.session == sess {
			e.session = nil
		}
		e.mu.Unlock()
		e.release(sess)
		e.notify()
		return fmt.Errorf("failed to load conversation history: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != sess {
		return domain.NewDomainError(domain.ErrStaleConversation, conversationID)
	}
	for _, m := range messages {
		e.mergeLocked(sess, m, sourceInitial)
	}
	sess.poller = newPoller(e.clock, e.opts.PollInterval, func(ctx context.Context) {
		e.pollOnce(ctx, sess)
	})
	sess.poller.start(sess.ctx)
	e.notifyLocked()

	e.logger.Info("chat: conversation opened",
		"conversation_id", conversationID,
		"status", conversation.Status,
		"messages", sess.timeline.Len())
	return nil
}

// CloseConversation releases the active conversation. It is a no-op when none
// is open.
func (e *Engine) CloseConversation() {
	e.openMu.Lock()
	defer e.openMu.Unlock()

	e.mu.Lock()
	sess := e.detachLocked()
	e.notifyLocked()
	e.mu.Unlock()

	if sess != nil {
		e.release(sess)
		e.logger.Info("chat: conversation released", "conversation_id", sess.ConversationID())
	}
}

// detachLocked makes the current session inactive. From this point every
// callback of the old session is discarded as stale.
func (e *Engine) detachLocked() *Session {
	sess := e.session
	e.session = nil
	return sess
}

// release must run without the engine lock: unsubscribing waits for an
// in-flight push handler, which itself takes the lock.
func (e *Engine) release(sess *Session) {
	sess.release()
	metrics.ConversationsOpen.Dec()
}

// ActiveConversationID returns the ID of the open conversation, or "".
func (e *Engine) ActiveConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.ConversationID()
}

// Snapshot returns the ordered timeline of the open conversation.
func (e *Engine) Snapshot() []*models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.timeline.Snapshot()
}

// Presence returns the typing/presence flags.
func (e *Engine) Presence() Presence {
	return PresenceFor(e.Phase())
}

// Phase returns the send pipeline phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return PhaseIdle
	}
	return e.session.phase
}

// Hints returns the side effects reported by the last assistant reply.
func (e *Engine) Hints() Hints {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Hints{}
	}
	return e.session.hints
}

// Conversation returns a copy of the open conversation record.
func (e *Engine) Conversation() *models.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	c := *e.session.conversation
	return &c
}

// State returns a consistent read of the whole session.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.session
	if sess == nil {
		return State{Messages: []*models.Message{}, Presence: PresenceFor(PhaseIdle)}
	}
	conversation := *sess.conversation
	st := State{
		Conversation: &conversation,
		Messages:     sess.timeline.Snapshot(),
		Phase:        sess.phase,
		Presence:     PresenceFor(sess.phase),
		Hints:        sess.hints,
	}
	if sess.lastFailed != nil {
		failed := *sess.lastFailed
		st.LastFailed = &failed
	}
	return st
}

// Watch returns a channel signalled after every observable state change and a
// function that stops the notifications. Signals coalesce: a reader that falls
// behind sees one pending signal, not one per change.
func (e *Engine) Watch() (<-chan struct{}, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextWatcher
	e.nextWatcher++
	ch := make(chan struct{}, 1)
	e.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.watchers, id)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	e.notifyLocked()
	e.mu.Unlock()
}

func (e *Engine) notifyLocked() {
	for _, ch := range e.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// isActiveLocked reports whether sess is still the open session.
func (e *Engine) isActiveLocked(sess *Session) bool {
	return e.session != nil && e.session == sess
}
