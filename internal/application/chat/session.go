package chat

import (
	"context"

	"github.com/longregen/helpdesk/internal/application/timeline"
	"github.com/longregen/helpdesk/internal/domain/models"
)

// Session is the synchronization state of one opened conversation. It is
// created by OpenConversation and released when the conversation is closed or
// another one is opened. All fields are guarded by the engine lock.
type Session struct {
	// Current conversation record, refreshed by every poll pass
	conversation *models.Conversation

	timeline *timeline.Store

	// ctx bounds every goroutine started on behalf of this session
	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe func()
	poller      *poller

	// Send attempts still waiting for an answer
	attempts   map[*attempt]struct{}
	phase      Phase
	lastFailed *models.PendingSend
	hints      Hints
}

func newSession(conversation *models.Conversation, tl *timeline.Store) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conversation: conversation,
		timeline:     tl,
		ctx:          ctx,
		cancel:       cancel,
		attempts:     make(map[*attempt]struct{}),
		phase:        PhaseIdle,
	}
}

// ConversationID returns the ID of the session's conversation
func (s *Session) ConversationID() string {
	return s.conversation.ID
}

// release tears the session down: push subscription first, then the poller,
// then every armed watchdog, and finally the context of in-flight calls.
func (s *Session) release() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.poller != nil {
		s.poller.stop()
	}
	for att := range s.attempts {
		att.watchdog.disarm()
		delete(s.attempts, att)
	}
	s.cancel()
}
