package ports

import (
	"context"

	"github.com/longregen/helpdesk/internal/domain/models"
)

// Assistant is the remote assistant invocation collaborator.
type Assistant interface {
	// InvokeAssistant runs the assistant function for a user message and
	// returns its direct reply.
	InvokeAssistant(ctx context.Context, conversationID, body string, caller models.CallerIdentity) (*models.AssistantReply, error)
	// InvokeAction requests an out-of-band conversation transition.
	InvokeAction(ctx context.Context, conversationID string, action models.ConversationAction) error
}
