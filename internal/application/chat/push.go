package chat

import (
	"github.com/longregen/helpdesk/internal/adapters/metrics"
	"github.com/longregen/helpdesk/internal/domain/models"
)

// source labels where a merge candidate came from.
type source string

const (
	sourceInitial  source = "initial"
	sourceLocal    source = "local"
	sourceDirect   source = "direct"
	sourcePush     source = "push"
	sourcePoll     source = "poll"
	sourceWatchdog source = "watchdog"
)

// mergeLocked is the single entry point through which every source feeds the
// timeline.
func (e *Engine) mergeLocked(sess *Session, m *models.Message, src source) bool {
	inserted := sess.timeline.Merge(m)
	if inserted {
		metrics.MessagesMerged.WithLabelValues(string(src)).Inc()
	} else {
		metrics.MessagesDeduplicated.WithLabelValues(string(src)).Inc()
	}
	return inserted
}

// subscribe opens the push subscription of sess. A subscription that cannot be
// opened leaves the session on the poll pass alone.
func (e *Engine) subscribe(sess *Session) {
	if e.push == nil {
		return
	}

	conversationID := sess.ConversationID()
	unsubscribe, err := e.push.SubscribeInserts(sess.ctx, conversationID, func(m *models.Message) {
		e.onInsert(sess, m)
	})
	if err != nil {
		e.logger.Warn("chat: push subscription failed, falling back to polling",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	e.mu.Lock()
	if !e.isActiveLocked(sess) {
		e.mu.Unlock()
		unsubscribe()
		return
	}
	sess.unsubscribe = unsubscribe
	e.mu.Unlock()

	e.logger.Debug("chat: push subscription opened", "conversation_id", conversationID)
}

// onInsert handles one push event. A newly inserted reply resolves the send
// pipeline whichever attempt it answers.
func (e *Engine) onInsert(sess *Session, m *models.Message) {
	if m == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActiveLocked(sess) || m.ConversationID != sess.ConversationID() {
		metrics.StaleEventsDiscarded.WithLabelValues(string(sourcePush)).Inc()
		e.logger.Debug("chat: discarded stale push event",
			"conversation_id", m.ConversationID,
			"message_id", m.ID)
		return
	}

	if !e.mergeLocked(sess, m, sourcePush) {
		return
	}
	if m.IsReply() && sess.phase != PhaseIdle {
		e.logger.Debug("chat: push reply resolved pending send",
			"conversation_id", sess.ConversationID(),
			"message_id", m.ID,
			"role", m.Role)
		e.resolveLocked(sess)
	}
	e.notifyLocked()
}
