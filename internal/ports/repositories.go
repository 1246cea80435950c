package ports

import (
	"context"

	"github.com/longregen/helpdesk/internal/domain/models"
)

// ResponseStore is the external ticket/response store holding the authoritative
// message history of every conversation.
type ResponseStore interface {
	// FetchMessages returns the full message list of a conversation ordered by
	// creation time.
	FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	// AppendMessage persists a new message and returns the server copy.
	AppendMessage(ctx context.Context, conversationID string, role models.MessageRole, body string, attachments []models.Attachment) (*models.Message, error)
	// GetConversation returns the conversation record, including its status.
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
}

// InsertHandler receives every message inserted into a subscribed conversation.
type InsertHandler func(message *models.Message)

// InsertSubscriber opens live subscriptions to a conversation's insert events.
type InsertSubscriber interface {
	// SubscribeInserts delivers insert events for one conversation until the
	// returned unsubscribe function is called. Unsubscribe is idempotent.
	SubscribeInserts(ctx context.Context, conversationID string, onInsert InsertHandler) (unsubscribe func(), err error)
}

// IDGenerator defines the interface for generating client-side IDs
type IDGenerator interface {
	GenerateConversationID() string
	GenerateLocalMessageID() string
	GenerateLocalReplyID() string
	GenerateNoticeID() string
}
