package dto

import (
	"github.com/longregen/helpdesk/internal/application/chat"
	"github.com/longregen/helpdesk/internal/domain/models"
)

type OpenSessionRequest struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

// SessionResponse is the rendered state of the open conversation.
type SessionResponse struct {
	ConversationID string               `json:"conversation_id,omitempty"`
	Conversation   *models.Conversation `json:"conversation,omitempty"`
	Phase          string               `json:"phase"`
	Messages       []*models.Message    `json:"messages"`
	Presence       chat.Presence        `json:"presence"`
	Hints          chat.Hints           `json:"hints"`
	LastFailed     *models.PendingSend  `json:"last_failed,omitempty"`
}

func FromState(s chat.State) *SessionResponse {
	resp := &SessionResponse{
		Conversation: s.Conversation,
		Phase:        s.Phase.String(),
		Messages:     s.Messages,
		Presence:     s.Presence,
		Hints:        s.Hints,
		LastFailed:   s.LastFailed,
	}
	if resp.Messages == nil {
		resp.Messages = []*models.Message{}
	}
	if s.Conversation != nil {
		resp.ConversationID = s.Conversation.ID
	}
	return resp
}

type SendMessageResponse struct {
	Message *models.Message  `json:"message"`
	Session *SessionResponse `json:"session"`
}

// Event frame types on the session stream
const (
	EventState = "state"
)

// SessionEvent is one frame of the session event stream.
type SessionEvent struct {
	Type    string           `json:"type"`
	Session *SessionResponse `json:"session"`
}
