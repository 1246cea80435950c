//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/longregen/helpdesk/internal/adapters/assistant"
	"github.com/longregen/helpdesk/internal/adapters/id"
	"github.com/longregen/helpdesk/internal/adapters/postgres"
	"github.com/longregen/helpdesk/internal/application/chat"
	"github.com/longregen/helpdesk/internal/domain/models"
)

const testUser = "u_integration"

// Fixtures wires a real ticket store, push listener and engine to a fake
// assistant function.
type Fixtures struct {
	db        *TestDB
	Store     *postgres.TicketStore
	Listener  *postgres.Listener
	Assistant *FakeAssistant
	Engine    *chat.Engine
}

func NewFixtures(t *testing.T, db *TestDB) *Fixtures {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ids := id.New()
	store := postgres.NewTicketStore(db.Pool, ids, nil)
	listener := postgres.NewListener(db.Pool, store, logger)

	fake := &FakeAssistant{store: store, reply: "Thanks, I'm looking into it."}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := assistant.NewClient(srv.URL, "", "", assistant.WithActionApplier(store), assistant.WithLogger(logger))
	engine := chat.NewEngine(store, listener, client, ids, chat.Options{
		PollInterval:  200 * time.Millisecond,
		ReplyDeadline: 5 * time.Second,
		Caller:        models.CallerIdentity{UserID: testUser, DisplayName: "Integration"},
		Logger:        logger,
	})
	t.Cleanup(engine.CloseConversation)

	return &Fixtures{db: db, Store: store, Listener: listener, Assistant: fake, Engine: engine}
}

// CreateConversation opens a ticket for the test user
func (f *Fixtures) CreateConversation(ctx context.Context, t *testing.T) *models.Conversation {
	t.Helper()

	conv, err := f.Store.CreateConversation(ctx, testUser, "billing")
	if err != nil {
		t.Fatalf("failed to create conversation fixture: %v", err)
	}
	return conv
}

// AgentReply inserts a human agent response the way the agent console would
func (f *Fixtures) AgentReply(ctx context.Context, t *testing.T, conversationID, body string) *models.Message {
	t.Helper()

	msg, err := f.Store.AppendMessage(ctx, conversationID, models.MessageRoleHumanAgent, body, nil)
	if err != nil {
		t.Fatalf("failed to insert agent reply: %v", err)
	}
	return msg
}

// FakeAssistant stands in for the assistant function: it persists its reply
// as a ticket response, then answers with the same text.
type FakeAssistant struct {
	store *postgres.TicketStore

	mu    sync.Mutex
	reply string
	calls int
}

func (a *FakeAssistant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.calls++
	reply := a.reply
	a.mu.Unlock()

	if _, err := a.store.AppendMessage(r.Context(), req.ConversationID, models.MessageRoleAssistant, reply, nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.AssistantReply{ReplyText: reply})
}

func (a *FakeAssistant) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
