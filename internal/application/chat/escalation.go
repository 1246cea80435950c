package chat

import (
	"context"
	"fmt"

	"github.com/longregen/helpdesk/internal/adapters/metrics"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Escalate hands the open conversation over to a human agent.
func (e *Engine) Escalate(ctx context.Context) error {
	return e.invokeAction(ctx, models.ActionEscalate)
}

// CloseWithResolution marks the open conversation as resolved.
func (e *Engine) CloseWithResolution(ctx context.Context) error {
	return e.invokeAction(ctx, models.ActionClose)
}

// invokeAction runs an out-of-band transition. It never touches the timeline or
// the send pipeline; on success the poll pass picks up the new status right away.
func (e *Engine) invokeAction(ctx context.Context, action models.ConversationAction) error {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()

	if sess == nil {
		return domain.ErrNoActiveConversation
	}
	conversationID := sess.ConversationID()

	ctx, span := e.tracer.Start(ctx, "chat.conversation_action",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("action", string(action)),
		))
	defer span.End()

	if err := e.assistant.InvokeAction(ctx, conversationID, action); err != nil {
		metrics.ConversationActions.WithLabelValues(string(action), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "action failed")
		e.logger.Warn("chat: conversation action failed",
			"conversation_id", conversationID,
			"action", action,
			"error", err)
		return fmt.Errorf("%w: %s: %w", domain.ErrActionFailed, action, err)
	}
	metrics.ConversationActions.WithLabelValues(string(action), "success").Inc()

	e.mu.Lock()
	if e.isActiveLocked(sess) && sess.poller != nil {
		sess.poller.Trigger()
	}
	e.mu.Unlock()

	e.logger.Info("chat: conversation action applied",
		"conversation_id", conversationID,
		"action", action)
	return nil
}
