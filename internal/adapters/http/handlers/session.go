package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/longregen/helpdesk/internal/adapters/http/dto"
	"github.com/longregen/helpdesk/internal/adapters/http/encoding"
	"github.com/longregen/helpdesk/internal/application/chat"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
)

const (
	eventsWriteTimeout = 10 * time.Second
	eventsReadTimeout  = 60 * time.Second
	eventsPingInterval = 30 * time.Second
)

// SessionEngine is the slice of the chat engine the bridge drives.
type SessionEngine interface {
	OpenConversation(ctx context.Context, conversationID string) error
	CloseConversation()
	SendMessage(text string) (*models.Message, error)
	RetryLastFailed() error
	Escalate(ctx context.Context) error
	CloseWithResolution(ctx context.Context) error
	Refresh()
	State() chat.State
	Watch() (<-chan struct{}, func())
}

type SessionHandler struct {
	engine   SessionEngine
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewSessionHandler(engine SessionEngine, allowedOrigins []string, logger *slog.Logger) *SessionHandler {
	allowedOriginsMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedOriginsMap[origin] = true
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return allowedOriginsMap[origin]
			},
		},
		logger: logger,
	}
}

// Get returns the current session state.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, r, http.StatusOK)
}

// Open makes the requested conversation the active one.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody[dto.OpenSessionRequest](w, r)
	if !ok {
		return
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" {
		respondError(w, r, "invalid_request", "conversation_id is required", http.StatusBadRequest)
		return
	}

	if err := h.engine.OpenConversation(r.Context(), req.ConversationID); err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	h.respondState(w, r, http.StatusOK)
}

// Close releases the active conversation.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.engine.CloseConversation()
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage appends the user's message and starts the send pipeline. The
// reply arrives later through the event stream.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody[dto.SendMessageRequest](w, r)
	if !ok {
		return
	}

	msg, err := h.engine.SendMessage(req.Text)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respond(w, r, http.StatusAccepted, &dto.SendMessageResponse{
		Message: msg,
		Session: dto.FromState(h.engine.State()),
	})
}

// Retry re-sends the last failed message.
func (h *SessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RetryLastFailed(); err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	h.respondState(w, r, http.StatusAccepted)
}

// Escalate hands the conversation to a human agent.
func (h *SessionHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Escalate(r.Context()); err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	h.respondState(w, r, http.StatusOK)
}

// Resolve closes the conversation as resolved.
func (h *SessionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CloseWithResolution(r.Context()); err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	h.respondState(w, r, http.StatusOK)
}

// Refresh triggers an immediate poll pass.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.engine.Refresh()
	h.respondState(w, r, http.StatusAccepted)
}

// Events upgrades to a websocket and streams a state frame after every change.
// Frames are JSON text unless MessagePack was negotiated.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	contentType := encoding.NegotiateContentType(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("events: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	changes, stop := h.engine.Watch()
	defer stop()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read pump only services control frames and notices the client leaving.
	conn.SetReadDeadline(time.Now().Add(eventsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsReadTimeout))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var writeMu sync.Mutex
	send := func() error {
		data, err := encoding.Marshal(contentType, &dto.SessionEvent{
			Type:    dto.EventState,
			Session: dto.FromState(h.engine.State()),
		})
		if err != nil {
			return err
		}
		frameType := websocket.TextMessage
		if contentType == encoding.ContentTypeMsgpack {
			frameType = websocket.BinaryMessage
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
		return conn.WriteMessage(frameType, data)
	}

	if err := send(); err != nil {
		h.logger.Debug("events: initial frame failed", "error", err)
		return
	}

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := send(); err != nil {
				h.logger.Debug("events: write failed", "error", err)
				return
			}
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteTimeout))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *SessionHandler) respondState(w http.ResponseWriter, r *http.Request, status int) {
	respond(w, r, status, dto.FromState(h.engine.State()))
}

// respondEngineError maps engine errors onto HTTP statuses.
func (h *SessionHandler) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidAction):
		respondError(w, r, "invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrConversationNotFound):
		respondError(w, r, "not_found", "Conversation not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrNoActiveConversation):
		respondError(w, r, "no_active_conversation", "No conversation is open", http.StatusConflict)
	case errors.Is(err, domain.ErrConversationClosed):
		respondError(w, r, "conversation_closed", "Conversation is closed", http.StatusConflict)
	case errors.Is(err, domain.ErrNothingToRetry):
		respondError(w, r, "nothing_to_retry", "No failed message to retry", http.StatusConflict)
	case errors.Is(err, domain.ErrStaleConversation):
		respondError(w, r, "stale_conversation", err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrAssistantOffline):
		respondError(w, r, "assistant_offline", err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrActionFailed):
		respondError(w, r, "action_failed", err.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("session request failed", "error", err)
		respondError(w, r, "internal_error", "Internal server error", http.StatusInternalServerError)
	}
}
