package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/longregen/helpdesk/internal/adapters/http/dto"
	"github.com/longregen/helpdesk/internal/application/chat"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeEngine struct {
	mu       sync.Mutex
	state    chat.State
	opened   string
	closed   int
	sent     []string
	refresh  int
	changes  chan struct{}
	stopped  bool
	openErr  error
	sendErr  error
	retryErr error
	actErr   error
	actions  []models.ConversationAction
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		state:   chat.State{Messages: []*models.Message{}, Presence: chat.PresenceFor(chat.PhaseIdle)},
		changes: make(chan struct{}, 1),
	}
}

func (f *fakeEngine) OpenConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = conversationID
	f.state.Conversation = &models.Conversation{ID: conversationID, Status: models.ConversationStatusOpen, CreatedAt: testNow, UpdatedAt: testNow}
	return nil
}

func (f *fakeEngine) CloseConversation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeEngine) SendMessage(text string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, text)
	msg := models.NewLocalMessage("local_1", "hc_1", models.MessageRoleEndUser, text, testNow)
	f.state.Messages = append(f.state.Messages, msg)
	f.state.Phase = chat.PhaseSending
	f.state.Presence = chat.PresenceFor(chat.PhaseSending)
	return msg, nil
}

func (f *fakeEngine) RetryLastFailed() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retryErr
}

func (f *fakeEngine) Escalate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, models.ActionEscalate)
	return f.actErr
}

func (f *fakeEngine) CloseWithResolution(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, models.ActionClose)
	return f.actErr
}

func (f *fakeEngine) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
}

func (f *fakeEngine) State() chat.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.state
	st.Messages = append([]*models.Message(nil), f.state.Messages...)
	return st
}

func (f *fakeEngine) Watch() (<-chan struct{}, func()) {
	return f.changes, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped = true
	}
}

func (f *fakeEngine) push(m *models.Message) {
	f.mu.Lock()
	f.state.Messages = append(f.state.Messages, m)
	f.state.Phase = chat.PhaseIdle
	f.state.Presence = chat.PresenceFor(chat.PhaseIdle)
	f.mu.Unlock()
	f.changes <- struct{}{}
}

func (f *fakeEngine) watchStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func newTestSessionHandler(engine SessionEngine) *SessionHandler {
	return NewSessionHandler(engine, []string{"http://localhost:3000"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodeSession(t *testing.T, rr *httptest.ResponseRecorder) dto.SessionResponse {
	t.Helper()
	var resp dto.SessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestSessionHandler_Get_NoConversation(t *testing.T) {
	h := newTestSessionHandler(newFakeEngine())

	rr := httptest.NewRecorder()
	h.Get(rr, httptest.NewRequest("GET", "/api/v1/session", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeSession(t, rr)
	assert.Empty(t, resp.ConversationID)
	assert.Equal(t, "idle", resp.Phase)
	assert.NotNil(t, resp.Messages)
	assert.True(t, resp.Presence.CanCompose)
}

func TestSessionHandler_Open(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)

	rr := httptest.NewRecorder()
	h.Open(rr, httptest.NewRequest("POST", "/api/v1/session/open", strings.NewReader(`{"conversation_id":" hc_1 "}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hc_1", engine.opened)
	resp := decodeSession(t, rr)
	assert.Equal(t, "hc_1", resp.ConversationID)
	require.NotNil(t, resp.Conversation)
	assert.Equal(t, models.ConversationStatusOpen, resp.Conversation.Status)
}

func TestSessionHandler_Open_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		openErr    error
		expectCode int
		expectErr  string
	}{
		{name: "malformed body", body: `{`, expectCode: http.StatusBadRequest, expectErr: "invalid_request"},
		{name: "missing id", body: `{}`, expectCode: http.StatusBadRequest, expectErr: "invalid_request"},
		{
			name:       "unknown conversation",
			body:       `{"conversation_id":"hc_9"}`,
			openErr:    fmt.Errorf("failed to load conversation hc_9: %w", domain.ErrConversationNotFound),
			expectCode: http.StatusNotFound,
			expectErr:  "not_found",
		},
		{
			name:       "store failure",
			body:       `{"conversation_id":"hc_9"}`,
			openErr:    fmt.Errorf("failed to load conversation history: connection reset"),
			expectCode: http.StatusInternalServerError,
			expectErr:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			engine.openErr = tt.openErr
			h := newTestSessionHandler(engine)

			rr := httptest.NewRecorder()
			h.Open(rr, httptest.NewRequest("POST", "/api/v1/session/open", strings.NewReader(tt.body)))

			assert.Equal(t, tt.expectCode, rr.Code)
			var resp dto.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.expectErr, resp.Error)
		})
	}
}

func TestSessionHandler_Close(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)

	rr := httptest.NewRecorder()
	h.Close(rr, httptest.NewRequest("POST", "/api/v1/session/close", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, engine.closed)
}

func TestSessionHandler_SendMessage(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)

	rr := httptest.NewRecorder()
	h.SendMessage(rr, httptest.NewRequest("POST", "/api/v1/session/messages", strings.NewReader(`{"text":"Where is my order?"}`)))

	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"Where is my order?"}, engine.sent)

	var resp dto.SendMessageResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotNil(t, resp.Message)
	assert.Equal(t, "local_1", resp.Message.ID)
	assert.Equal(t, models.SyncStatusPending, resp.Message.SyncStatus)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "sending", resp.Session.Phase)
	assert.True(t, resp.Session.Presence.IsAwaitingReply)
	assert.False(t, resp.Session.Presence.CanCompose)
}

func TestSessionHandler_SendMessage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectErr  string
	}{
		{"empty", domain.NewDomainError(domain.ErrEmptyContent, "message cannot be empty"), http.StatusBadRequest, "invalid_request"},
		{"no conversation", domain.ErrNoActiveConversation, http.StatusConflict, "no_active_conversation"},
		{"closed", domain.NewDomainError(domain.ErrConversationClosed, "hc_1"), http.StatusConflict, "conversation_closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			engine.sendErr = tt.err
			h := newTestSessionHandler(engine)

			rr := httptest.NewRecorder()
			h.SendMessage(rr, httptest.NewRequest("POST", "/api/v1/session/messages", strings.NewReader(`{"text":"hi"}`)))

			assert.Equal(t, tt.expectCode, rr.Code)
			var resp dto.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.expectErr, resp.Error)
			assert.Equal(t, tt.expectCode, resp.Code)
		})
	}
}

func TestSessionHandler_Retry(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)

	rr := httptest.NewRecorder()
	h.Retry(rr, httptest.NewRequest("POST", "/api/v1/session/retry", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	engine.retryErr = domain.ErrNothingToRetry
	rr = httptest.NewRecorder()
	h.Retry(rr, httptest.NewRequest("POST", "/api/v1/session/retry", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSessionHandler_Actions(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)

	rr := httptest.NewRecorder()
	h.Escalate(rr, httptest.NewRequest("POST", "/api/v1/session/escalate", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Resolve(rr, httptest.NewRequest("POST", "/api/v1/session/resolve", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []models.ConversationAction{models.ActionEscalate, models.ActionClose}, engine.actions)

	engine.actErr = fmt.Errorf("%w: escalate: remote function returned 500", domain.ErrActionFailed)
	rr = httptest.NewRecorder()
	h.Escalate(rr, httptest.NewRequest("POST", "/api/v1/session/escalate", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	engine.actErr = fmt.Errorf("%w: close: %w", domain.ErrActionFailed, domain.ErrAssistantOffline)
	rr = httptest.NewRecorder()
	h.Resolve(rr, httptest.NewRequest("POST", "/api/v1/session/resolve", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSessionHandler_Refresh(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)

	rr := httptest.NewRecorder()
	h.Refresh(rr, httptest.NewRequest("POST", "/api/v1/session/refresh", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, engine.refresh)
}

func TestSessionHandler_Get_Msgpack(t *testing.T) {
	engine := newFakeEngine()
	require.NoError(t, engine.OpenConversation(context.Background(), "hc_1"))
	h := newTestSessionHandler(engine)

	req := httptest.NewRequest("GET", "/api/v1/session", nil)
	req.Header.Set("Accept", "application/msgpack")
	rr := httptest.NewRecorder()
	h.Get(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/msgpack", rr.Header().Get("Content-Type"))

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(rr.Body.Bytes(), &decoded))
	assert.Equal(t, "hc_1", decoded["conversation_id"])
	assert.Equal(t, "idle", decoded["phase"])
}

func TestSessionHandler_SendMessage_MsgpackBody(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)

	body, err := msgpack.Marshal(map[string]any{"text": "packed hello"})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/session/messages", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/msgpack")
	rr := httptest.NewRecorder()
	h.SendMessage(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"packed hello"}, engine.sent)
}

func TestSessionHandler_Errors_NegotiatedAndRetryable(t *testing.T) {
	engine := newFakeEngine()
	engine.actErr = fmt.Errorf("%w: escalate: %w", domain.ErrActionFailed, domain.ErrAssistantOffline)
	h := newTestSessionHandler(engine)

	req := httptest.NewRequest("POST", "/api/v1/session/escalate?format=msgpack", nil)
	rr := httptest.NewRecorder()
	h.Escalate(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/msgpack", rr.Header().Get("Content-Type"))

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(rr.Body.Bytes(), &decoded))
	assert.Equal(t, "assistant_offline", decoded["error"])
	assert.Equal(t, true, decoded["retryable"])

	engine.actErr = nil
	engine.retryErr = domain.ErrNothingToRetry
	rr = httptest.NewRecorder()
	h.Retry(rr, httptest.NewRequest("POST", "/api/v1/session/retry", nil))

	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.False(t, resp.Retryable)
}

func dialEvents(t *testing.T, h *SessionHandler, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.Events))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/session/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.SessionEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frameType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, frameType)

	var event dto.SessionEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestSessionHandler_Events(t *testing.T) {
	engine := newFakeEngine()
	require.NoError(t, engine.OpenConversation(context.Background(), "hc_1"))
	h := newTestSessionHandler(engine)
	conn := dialEvents(t, h, "")

	first := readEvent(t, conn)
	assert.Equal(t, dto.EventState, first.Type)
	require.NotNil(t, first.Session)
	assert.Equal(t, "hc_1", first.Session.ConversationID)
	assert.Empty(t, first.Session.Messages)

	engine.push(models.NewMessage("hm_1", "hc_1", models.MessageRoleHumanAgent, "Hi, I'm Sam", testNow))

	next := readEvent(t, conn)
	require.Len(t, next.Session.Messages, 1)
	assert.Equal(t, "Hi, I'm Sam", next.Session.Messages[0].Body)
}

func TestSessionHandler_Events_Msgpack(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)
	conn := dialEvents(t, h, "?format=msgpack")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frameType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, frameType)

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(data, &decoded))
	assert.Equal(t, dto.EventState, decoded["type"])
}

func TestSessionHandler_Events_StopsWatchingOnDisconnect(t *testing.T) {
	engine := newFakeEngine()
	h := newTestSessionHandler(engine)
	conn := dialEvents(t, h, "")
	readEvent(t, conn)

	conn.Close()
	require.Eventually(t, engine.watchStopped, 2*time.Second, 10*time.Millisecond)
}

func TestSessionHandler_Events_RejectsForeignOrigin(t *testing.T) {
	h := newTestSessionHandler(newFakeEngine())
	srv := httptest.NewServer(http.HandlerFunc(h.Events))
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
