package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
	"github.com/longregen/helpdesk/internal/ports"
)

// fakeStore is an in-memory ticket/response store.
type fakeStore struct {
	clock clock.Clock

	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	appendErr     error
	appended      []string
	nextID        int
}

func newFakeStore(clk clock.Clock) *fakeStore {
	return &fakeStore{
		clock:         clk,
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
	}
}

func (s *fakeStore) addConversation(id string, status models.ConversationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.conversations[id] = &models.Conversation{ID: id, Status: status, CreatedAt: now, UpdatedAt: now}
}

func (s *fakeStore) setStatus(id string, status models.ConversationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[id].Status = status
}

func (s *fakeStore) addMessage(convID string, role models.MessageRole, body string) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m := models.NewMessage(fmt.Sprintf("srv_%d", s.nextID), convID, role, body, s.clock.Now())
	s.messages[convID] = append(s.messages[convID], m)
	return m.Clone()
}

func (s *fakeStore) setAppendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

func (s *fakeStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

func (s *fakeStore) FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, domain.ErrConversationNotFound
	}
	out := make([]*models.Message, 0, len(s.messages[conversationID]))
	for _, m := range s.messages[conversationID] {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, conversationID string, role models.MessageRole, body string, attachments []models.Attachment) (*models.Message, error) {
	s.mu.Lock()
	s.appended = append(s.appended, body)
	err := s.appendErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.addMessage(conversationID, role, body), nil
}

func (s *fakeStore) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

// fakePush records subscriptions and lets tests deliver insert events. Handlers
// stay reachable after unsubscribe to simulate events racing a teardown.
type fakePush struct {
	mu           sync.Mutex
	err          error
	active       map[string]ports.InsertHandler
	captured     map[string]ports.InsertHandler
	unsubscribed []string
}

func newFakePush() *fakePush {
	return &fakePush{
		active:   make(map[string]ports.InsertHandler),
		captured: make(map[string]ports.InsertHandler),
	}
}

func (p *fakePush) SubscribeInserts(ctx context.Context, conversationID string, onInsert ports.InsertHandler) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.active[conversationID] = onInsert
	p.captured[conversationID] = onInsert
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.active, conversationID)
			p.unsubscribed = append(p.unsubscribed, conversationID)
		})
	}, nil
}

// deliver sends m to the live subscription of its conversation, if any.
func (p *fakePush) deliver(m *models.Message) bool {
	p.mu.Lock()
	h, ok := p.active[m.ConversationID]
	p.mu.Unlock()
	if ok {
		h(m)
	}
	return ok
}

// deliverStale invokes the handler captured for conversationID even when it has
// been unsubscribed.
func (p *fakePush) deliverStale(conversationID string, m *models.Message) {
	p.mu.Lock()
	h := p.captured[conversationID]
	p.mu.Unlock()
	h(m)
}

func (p *fakePush) isSubscribed(conversationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[conversationID]
	return ok
}

// fakeAssistant answers with a fixed reply. When gate is set, invocations block
// until it is closed or the caller's context ends.
type fakeAssistant struct {
	mu        sync.Mutex
	reply     *models.AssistantReply
	err       error
	gate      chan struct{}
	calls     []string
	actions   []models.ConversationAction
	actionErr error
	onAction  func(conversationID string, action models.ConversationAction)
}

func (a *fakeAssistant) InvokeAssistant(ctx context.Context, conversationID, body string, caller models.CallerIdentity) (*models.AssistantReply, error) {
	a.mu.Lock()
	a.calls = append(a.calls, body)
	gate, reply, err := a.gate, a.reply, a.err
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return &models.AssistantReply{}, nil
	}
	cp := *reply
	return &cp, nil
}

func (a *fakeAssistant) InvokeAction(ctx context.Context, conversationID string, action models.ConversationAction) error {
	a.mu.Lock()
	a.actions = append(a.actions, action)
	err, hook := a.actionErr, a.onAction
	a.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(conversationID, action)
	}
	return nil
}

func (a *fakeAssistant) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *fakeAssistant) callBodies() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeAssistant) setGate(gate chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gate = gate
}

func (a *fakeAssistant) setErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

type fakeIDs struct {
	n atomic.Int64
}

func (g *fakeIDs) next(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, g.n.Add(1))
}

func (g *fakeIDs) GenerateConversationID() string { return g.next("hc") }
func (g *fakeIDs) GenerateLocalMessageID() string { return g.next("lm") }
func (g *fakeIDs) GenerateLocalReplyID() string   { return g.next("la") }
func (g *fakeIDs) GenerateNoticeID() string       { return g.next("ls") }

type harness struct {
	clock     *clock.Mock
	store     *fakeStore
	push      *fakePush
	assistant *fakeAssistant
	engine    *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	h := &harness{
		clock:     mock,
		store:     newFakeStore(mock),
		push:      newFakePush(),
		assistant: &fakeAssistant{},
	}
	h.engine = NewEngine(h.store, h.push, h.assistant, &fakeIDs{}, Options{
		Clock:  mock,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Caller: models.CallerIdentity{UserID: "u_1", DisplayName: "Ana"},
	})
	t.Cleanup(h.engine.CloseConversation)
	return h
}
