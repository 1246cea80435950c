package models

import (
	"strings"
	"time"
)

type MessageRole string

const (
	MessageRoleEndUser    MessageRole = "end_user"
	MessageRoleAssistant  MessageRole = "assistant"
	MessageRoleHumanAgent MessageRole = "human_agent"
	MessageRoleSystem     MessageRole = "system"
)

// Valid reports whether r is one of the known author roles.
func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleEndUser, MessageRoleAssistant, MessageRoleHumanAgent, MessageRoleSystem:
		return true
	}
	return false
}

// SyncStatus represents the synchronization state of a message
type SyncStatus string

const (
	// SyncStatusPending indicates the message exists locally but has no server id yet
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSynced indicates the message carries its server-assigned id
	SyncStatusSynced SyncStatus = "synced"
)

// Attachment references a file already uploaded to the ticket store.
type Attachment struct {
	ID       string `json:"id" msgpack:"id"`
	FileName string `json:"file_name" msgpack:"file_name"`
	MimeType string `json:"mime_type,omitempty" msgpack:"mime_type,omitempty"`
	URL      string `json:"url,omitempty" msgpack:"url,omitempty"`
}

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Role           MessageRole  `json:"role"`
	AuthorName     string       `json:"author_name,omitempty"`
	Body           string       `json:"body"`
	CreatedAt      time.Time    `json:"created_at"`
	Internal       bool         `json:"internal,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`

	// Optimistic write tracking
	LocalID    string     `json:"local_id,omitempty"`    // Client-generated ID before server assignment
	SyncStatus SyncStatus `json:"sync_status,omitempty"` // pending until the server copy is known
}

// NewMessage creates a server-confirmed message.
func NewMessage(id, conversationID string, role MessageRole, body string, createdAt time.Time) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Body:           body,
		CreatedAt:      createdAt.UTC(),
		SyncStatus:     SyncStatusSynced,
	}
}

// NewLocalMessage creates a message that exists only on this client. Its local id
// doubles as its timeline id until the server copy replaces it.
func NewLocalMessage(localID, conversationID string, role MessageRole, body string, createdAt time.Time) *Message {
	return &Message{
		ID:             localID,
		LocalID:        localID,
		ConversationID: conversationID,
		Role:           role,
		Body:           body,
		CreatedAt:      createdAt.UTC(),
		SyncStatus:     SyncStatusPending,
	}
}

func (m *Message) IsFromUser() bool {
	return m.Role == MessageRoleEndUser
}

func (m *Message) IsFromAssistant() bool {
	return m.Role == MessageRoleAssistant
}

// IsReply reports whether the message answers the end user: a visible message
// written by the assistant or a human agent.
func (m *Message) IsReply() bool {
	return !m.Internal && (m.Role == MessageRoleAssistant || m.Role == MessageRoleHumanAgent)
}

// IsPendingSync returns true if the message has no server id yet
func (m *Message) IsPendingSync() bool {
	return m.SyncStatus == SyncStatusPending
}

// NormalizedBody is the body used for content comparisons.
func (m *Message) NormalizedBody() string {
	return strings.TrimSpace(m.Body)
}

// Clone returns a deep copy so callers never share attachment slices with the timeline.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return &c
}
