package chat

import (
	"context"

	"github.com/longregen/helpdesk/internal/adapters/metrics"
)

// pollOnce reconciles sess with the store: it refreshes the conversation
// record and merges the full message list. Nothing is ever removed.
func (e *Engine) pollOnce(ctx context.Context, sess *Session) {
	conversationID := sess.ConversationID()

	ctx, span := e.tracer.Start(ctx, "chat.poll")
	defer span.End()

	conversation, convErr := e.store.GetConversation(ctx, conversationID)
	if convErr != nil {
		e.logger.Warn("chat: poll failed to refresh conversation",
			"conversation_id", conversationID,
			"error", convErr)
	}
	messages, msgErr := e.store.FetchMessages(ctx, conversationID)
	if msgErr != nil {
		e.logger.Warn("chat: poll failed to fetch messages",
			"conversation_id", conversationID,
			"error", msgErr)
	}
	if convErr != nil && msgErr != nil {
		metrics.PollPasses.WithLabelValues("error").Inc()
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActiveLocked(sess) || ctx.Err() != nil {
		metrics.StaleEventsDiscarded.WithLabelValues(string(sourcePoll)).Inc()
		return
	}

	changed := false
	if conversation != nil && conversation.ID == conversationID {
		if conversation.Status != sess.conversation.Status {
			e.logger.Info("chat: conversation status changed",
				"conversation_id", conversationID,
				"from", sess.conversation.Status,
				"to", conversation.Status)
			changed = true
		}
		sess.conversation = conversation
	}
	for _, m := range messages {
		if m == nil || m.ConversationID != conversationID {
			metrics.StaleEventsDiscarded.WithLabelValues(string(sourcePoll)).Inc()
			continue
		}
		if e.mergeLocked(sess, m, sourcePoll) {
			changed = true
		}
	}

	status := "success"
	if convErr != nil || msgErr != nil {
		status = "partial"
	}
	metrics.PollPasses.WithLabelValues(status).Inc()

	if changed {
		e.notifyLocked()
	}
}

// Refresh requests an immediate poll pass for the open conversation.
func (e *Engine) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil && e.session.poller != nil {
		e.session.poller.Trigger()
	}
}
