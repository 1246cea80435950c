// Package timeline holds the canonical, deduplicated message sequence of one
// open conversation.
package timeline

import (
	"sort"
	"time"

	"github.com/longregen/helpdesk/internal/domain/models"
)

// DefaultDedupWindow is the largest creation-time distance at which two
// assistant messages with the same body are taken for one reply.
const DefaultDedupWindow = 10 * time.Second

type entry struct {
	msg *models.Message
	seq uint64
}

// Store is the message timeline of a single conversation.
//
// Merge is the only entry point used by the push and poll paths. Confirm and
// Remove exist for the send pipeline, which owns the optimistic and synthetic
// entries it created.
//
// Store is not safe for concurrent use; the chat engine serialises access.
type Store struct {
	conversationID string
	window         time.Duration

	entries map[string]*entry
	nextSeq uint64
}

// New creates an empty timeline for conversationID. A non-positive window
// falls back to DefaultDedupWindow.
func New(conversationID string, window time.Duration) *Store {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Store{
		conversationID: conversationID,
		window:         window,
		entries:        make(map[string]*entry),
	}
}

// ConversationID returns the conversation this timeline belongs to.
func (s *Store) ConversationID() string {
	return s.conversationID
}

// Merge inserts candidate unless the timeline already holds it and reports
// whether it was inserted.
//
// Identity is the message id. An assistant message is additionally matched by
// body against assistant entries created within the dedup window of it, because
// the same reply reaches the timeline from the direct response and from the
// push stream. That match needs a pending local message on at least one side:
// two server messages with distinct ids are always distinct replies. When the
// match pairs a pending local entry with a server copy, the entry adopts the
// server identity so later polls dedupe by id.
//
// Candidates for another conversation, internal messages and messages without
// an id are never inserted.
func (s *Store) Merge(candidate *models.Message) bool {
	if candidate == nil || candidate.ID == "" || candidate.Internal {
		return false
	}
	if candidate.ConversationID != s.conversationID {
		return false
	}
	if _, ok := s.entries[candidate.ID]; ok {
		return false
	}

	if candidate.Role == models.MessageRoleAssistant {
		if existing := s.recentAssistantMatch(candidate); existing != nil {
			if existing.msg.IsPendingSync() && !candidate.IsPendingSync() {
				s.rekey(existing, candidate)
			}
			return false
		}
	}

	s.insert(candidate.Clone())
	return true
}

// Confirm replaces the optimistic entry localID with its server copy. If the
// server copy already reached the timeline, the optimistic entry is dropped.
// Without a local entry, Confirm behaves like Merge. It reports whether the
// timeline changed.
func (s *Store) Confirm(localID string, confirmed *models.Message) bool {
	if confirmed == nil || confirmed.ConversationID != s.conversationID {
		return false
	}
	local, ok := s.entries[localID]
	if !ok {
		return s.Merge(confirmed)
	}
	if confirmed.ID == localID {
		return false
	}
	if _, dup := s.entries[confirmed.ID]; dup {
		delete(s.entries, localID)
		return true
	}
	s.rekey(local, confirmed)
	return true
}

// Remove deletes the entry with the given id and reports whether it existed.
func (s *Store) Remove(id string) bool {
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (*models.Message, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.msg.Clone(), true
}

// Len returns the number of messages in the timeline.
func (s *Store) Len() int {
	return len(s.entries)
}

// Snapshot returns copies of all messages ordered by creation time, ties broken
// by insertion order.
func (s *Store) Snapshot() []*models.Message {
	ordered := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.msg.CreatedAt.Before(b.msg.CreatedAt)
		}
		return a.seq < b.seq
	})

	out := make([]*models.Message, len(ordered))
	for i, e := range ordered {
		out[i] = e.msg.Clone()
	}
	return out
}

func (s *Store) insert(msg *models.Message) {
	s.nextSeq++
	s.entries[msg.ID] = &entry{msg: msg, seq: s.nextSeq}
}

// rekey swaps e's message for the server copy, keeping its insertion order.
func (s *Store) rekey(e *entry, server *models.Message) {
	localID := e.msg.ID
	replacement := server.Clone()
	if replacement.LocalID == "" {
		replacement.LocalID = localID
	}
	delete(s.entries, localID)
	e.msg = replacement
	s.entries[replacement.ID] = e
}

func (s *Store) recentAssistantMatch(candidate *models.Message) *entry {
	body := candidate.NormalizedBody()

	var match *entry
	for _, e := range s.entries {
		if e.msg.Role != models.MessageRoleAssistant || e.msg.NormalizedBody() != body {
			continue
		}
		if !e.msg.IsPendingSync() && !candidate.IsPendingSync() {
			continue
		}
		if absDuration(e.msg.CreatedAt.Sub(candidate.CreatedAt)) > s.window {
			continue
		}
		if match == nil || e.seq > match.seq {
			match = e
		}
	}
	return match
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
