package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/longregen/helpdesk/internal/adapters/metrics"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// attempt is one pass of the send pipeline: remote persist, then assistant
// invocation, raced by its own watchdog. Fields other than body and localID are
// guarded by the engine lock.
type attempt struct {
	localID     string
	body        string
	persistedID string
	retry       bool
	watchdog    *watchdog
}

// SendMessage writes text optimistically to the timeline and starts a send
// attempt. It returns the optimistic message.
func (e *Engine) SendMessage(text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewDomainError(domain.ErrEmptyContent, "message cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.session
	if sess == nil {
		return nil, domain.ErrNoActiveConversation
	}
	if sess.conversation.Status == models.ConversationStatusClosed {
		return nil, domain.NewDomainError(domain.ErrConversationClosed, sess.ConversationID())
	}

	localID := e.ids.GenerateLocalMessageID()
	msg := models.NewLocalMessage(localID, sess.ConversationID(), models.MessageRoleEndUser, text, e.clock.Now())
	msg.AuthorName = e.opts.Caller.DisplayName
	e.mergeLocked(sess, msg, sourceLocal)

	sess.hints = Hints{}
	e.startAttemptLocked(sess, &attempt{localID: localID, body: text})
	e.notifyLocked()

	e.logger.Debug("chat: message sent", "conversation_id", sess.ConversationID(), "local_id", localID)
	return msg.Clone(), nil
}

// RetryLastFailed re-enters the send pipeline with the text of the last failed
// attempt. The failure notice is removed and the optimistic message is reused.
func (e *Engine) RetryLastFailed() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.session
	if sess == nil {
		return domain.ErrNoActiveConversation
	}
	if sess.phase != PhaseErrored || sess.lastFailed == nil {
		return domain.ErrNothingToRetry
	}

	failed := sess.lastFailed
	sess.lastFailed = nil
	if failed.ErrorMessageID != "" {
		sess.timeline.Remove(failed.ErrorMessageID)
	}

	// The optimistic message is gone only if its server copy replaced it.
	if failed.PersistedID == "" {
		if _, ok := sess.timeline.Get(failed.LocalID); !ok {
			msg := models.NewLocalMessage(failed.LocalID, sess.ConversationID(), models.MessageRoleEndUser, failed.Body, e.clock.Now())
			msg.AuthorName = e.opts.Caller.DisplayName
			e.mergeLocked(sess, msg, sourceLocal)
		}
	}

	e.startAttemptLocked(sess, &attempt{
		localID:     failed.LocalID,
		body:        failed.Body,
		persistedID: failed.PersistedID,
		retry:       true,
	})
	e.notifyLocked()

	e.logger.Info("chat: retrying failed message",
		"conversation_id", sess.ConversationID(),
		"local_id", failed.LocalID,
		"cause", failed.Cause)
	return nil
}

// LastFailed returns the retryable payload, or nil.
func (e *Engine) LastFailed() *models.PendingSend {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.session.lastFailed == nil {
		return nil
	}
	failed := *e.session.lastFailed
	return &failed
}

func (e *Engine) startAttemptLocked(sess *Session, att *attempt) {
	att.watchdog = newWatchdog(e.clock, e.opts.ReplyDeadline)
	sess.attempts[att] = struct{}{}
	sess.phase = PhaseSending
	att.watchdog.arm(func() { e.onExpired(sess, att) })

	kind := "send"
	if att.retry {
		kind = "retry"
	}
	metrics.SendAttempts.WithLabelValues(kind).Inc()

	go e.runAttempt(sess, att)
}

// runAttempt performs the remote half of an attempt. Results re-enter the
// engine through the lock; a session released meanwhile cancels the context
// and turns every result into a no-op.
func (e *Engine) runAttempt(sess *Session, att *attempt) {
	conversationID := sess.ConversationID()
	ctx, span := e.tracer.Start(sess.ctx, "chat.send_attempt",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.local_id", att.localID),
			attribute.Bool("retry", att.retry),
		))
	defer span.End()

	e.mu.Lock()
	persistedID := att.persistedID
	e.mu.Unlock()

	if persistedID == "" {
		persisted, err := e.store.AppendMessage(ctx, conversationID, models.MessageRoleEndUser, att.body, nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist failed")
			e.onFailure(sess, att, fmt.Errorf("%w: %w", domain.ErrPersistFailed, err))
			return
		}
		if !e.onPersisted(sess, att, persisted) {
			return
		}
	}

	start := time.Now()
	reply, err := e.assistant.InvokeAssistant(ctx, conversationID, att.body, e.opts.Caller)
	if err != nil {
		metrics.AssistantRequestDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "assistant failed")
		e.onFailure(sess, att, fmt.Errorf("%w: %w", domain.ErrAssistantFailed, err))
		return
	}
	metrics.AssistantRequestDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Bool("reply.present", reply.HasReply()),
		attribute.Bool("reply.ticket_created", reply.TicketCreated),
	)
	e.onReply(sess, att, reply)
}

// onPersisted swaps the optimistic message for its server copy. It reports
// whether the attempt should go on to invoke the assistant.
func (e *Engine) onPersisted(sess *Session, att *attempt, persisted *models.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActiveLocked(sess) {
		metrics.StaleEventsDiscarded.WithLabelValues(string(sourceLocal)).Inc()
		return false
	}

	att.persistedID = persisted.ID
	sess.timeline.Confirm(att.localID, persisted)
	if sess.lastFailed != nil && sess.lastFailed.LocalID == att.localID {
		sess.lastFailed.PersistedID = persisted.ID
	}
	e.notifyLocked()
	return true
}

// onReply applies the direct assistant response. The attempt's own watchdog is
// always disarmed. Other attempts are resolved only by a reply the timeline had
// not seen yet while att was still pending; a reply that lands after att's
// watchdog expired answers att alone.
func (e *Engine) onReply(sess *Session, att *attempt, reply *models.AssistantReply) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActiveLocked(sess) {
		metrics.StaleEventsDiscarded.WithLabelValues(string(sourceDirect)).Inc()
		return
	}

	inserted := false
	if reply.HasReply() {
		msg := models.NewLocalMessage(e.ids.GenerateLocalReplyID(), sess.ConversationID(),
			models.MessageRoleAssistant, reply.ReplyText, e.clock.Now())
		inserted = e.mergeLocked(sess, msg, sourceDirect)
	}
	sess.hints = Hints{TicketCreated: reply.TicketCreated, SuggestClose: reply.SuggestClose}

	pending := e.settleLocked(sess, att)
	switch {
	case inserted && pending:
		e.resolveLocked(sess)
	case inserted:
		if sess.lastFailed != nil && sess.lastFailed.LocalID == att.localID {
			e.clearFailedLocked(sess)
		}
		e.settledPhaseLocked(sess)
	case pending:
		e.settledPhaseLocked(sess)
	}
	e.notifyLocked()
}

// onFailure handles a rejected persist or assistant call.
func (e *Engine) onFailure(sess *Session, att *attempt, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActiveLocked(sess) {
		metrics.StaleEventsDiscarded.WithLabelValues(string(sourceDirect)).Inc()
		return
	}
	if !e.settleLocked(sess, att) {
		e.logger.Debug("chat: late failure of a settled attempt",
			"conversation_id", sess.ConversationID(),
			"local_id", att.localID,
			"error", err)
		return
	}

	e.logger.Warn("chat: send attempt failed",
		"conversation_id", sess.ConversationID(),
		"local_id", att.localID,
		"error", err)
	e.failLocked(sess, att, models.FailureTransport, FailureNotice)
}

// onExpired runs on the watchdog's goroutine when no answer arrived in time.
func (e *Engine) onExpired(sess *Session, att *attempt) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isActiveLocked(sess) {
		metrics.StaleEventsDiscarded.WithLabelValues(string(sourceWatchdog)).Inc()
		return
	}
	if !e.settleLocked(sess, att) {
		return
	}

	e.logger.Warn("chat: reply deadline exceeded",
		"conversation_id", sess.ConversationID(),
		"local_id", att.localID,
		"deadline", e.opts.ReplyDeadline)
	e.failLocked(sess, att, models.FailureTimeout, TimeoutNotice)
}

func (e *Engine) failLocked(sess *Session, att *attempt, cause models.FailureCause, notice string) {
	metrics.SendFailures.WithLabelValues(string(cause)).Inc()

	noticeID := e.ids.GenerateNoticeID()
	msg := models.NewLocalMessage(noticeID, sess.ConversationID(), models.MessageRoleSystem, notice, e.clock.Now())
	e.mergeLocked(sess, msg, sourceLocal)

	sess.lastFailed = &models.PendingSend{
		LocalID:        att.localID,
		Body:           att.body,
		Failed:         true,
		PersistedID:    att.persistedID,
		ErrorMessageID: noticeID,
		Cause:          cause,
	}
	// Another attempt still in flight keeps the pipeline sending.
	if len(sess.attempts) == 0 {
		sess.phase = PhaseErrored
	}
	e.notifyLocked()
}

// settleLocked is the single cancellation point of an attempt: it disarms the
// watchdog and forgets the attempt. It reports false when the attempt had
// already been settled by another path.
func (e *Engine) settleLocked(sess *Session, att *attempt) bool {
	if _, ok := sess.attempts[att]; !ok {
		return false
	}
	att.watchdog.disarm()
	delete(sess.attempts, att)
	return true
}

// settledPhaseLocked derives the phase once no attempt is in flight.
func (e *Engine) settledPhaseLocked(sess *Session) {
	if len(sess.attempts) > 0 {
		return
	}
	if sess.lastFailed != nil {
		sess.phase = PhaseErrored
	} else {
		sess.phase = PhaseIdle
	}
}

// clearFailedLocked drops the retryable payload and removes its notice from the
// timeline.
func (e *Engine) clearFailedLocked(sess *Session) {
	if sess.lastFailed == nil {
		return
	}
	if id := sess.lastFailed.ErrorMessageID; id != "" {
		sess.timeline.Remove(id)
	}
	sess.lastFailed = nil
}

// resolveLocked treats the pipeline as answered: every outstanding attempt is
// settled and the retryable payload is dropped.
func (e *Engine) resolveLocked(sess *Session) {
	for att := range sess.attempts {
		e.settleLocked(sess, att)
	}
	e.clearFailedLocked(sess)
	sess.phase = PhaseIdle
}
