package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/longregen/helpdesk/internal/application/chat"
	"github.com/longregen/helpdesk/internal/domain/models"
)

// renderer prints the parts of successive session states the terminal has not
// shown yet. Lines typed by the user are not echoed back.
type renderer struct {
	out      io.Writer
	printed  map[string]bool
	unsynced map[string]int
	awaiting bool
	status   models.ConversationStatus
	hints    chat.Hints
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:      out,
		printed:  make(map[string]bool),
		unsynced: make(map[string]int),
	}
}

// history prints the whole timeline, including the user's own messages.
func (r *renderer) history(st chat.State) {
	for _, m := range st.Messages {
		r.print(m)
	}
	r.track(st)
}

func (r *renderer) update(st chat.State) {
	for _, m := range st.Messages {
		if r.printed[m.ID] {
			continue
		}
		if m.IsFromUser() {
			r.printed[m.ID] = true
			continue
		}
		key := string(m.Role) + "|" + m.NormalizedBody()
		// The server copy of a reply already shown from the direct answer.
		if !m.IsPendingSync() && r.unsynced[key] > 0 {
			r.unsynced[key]--
			r.printed[m.ID] = true
			continue
		}
		if m.IsPendingSync() {
			r.unsynced[key]++
		}
		r.print(m)
	}

	if st.Presence.IsAwaitingReply && !r.awaiting {
		fmt.Fprintln(r.out, "  (assistant is typing...)")
	}
	if st.Hints.TicketCreated && !r.hints.TicketCreated {
		fmt.Fprintln(r.out, "  (a support ticket was created for this conversation)")
	}
	if st.Hints.SuggestClose && !r.hints.SuggestClose {
		fmt.Fprintln(r.out, "  (looks resolved? type /resolve to close the conversation)")
	}
	if st.Conversation != nil && r.status != "" && st.Conversation.Status != r.status {
		fmt.Fprintf(r.out, "  (conversation is now %s)\n", strings.ReplaceAll(string(st.Conversation.Status), "_", " "))
	}
	r.track(st)
}

func (r *renderer) track(st chat.State) {
	r.awaiting = st.Presence.IsAwaitingReply
	r.hints = st.Hints
	if st.Conversation != nil {
		r.status = st.Conversation.Status
	}
}

func (r *renderer) print(m *models.Message) {
	r.printed[m.ID] = true
	switch m.Role {
	case models.MessageRoleSystem:
		fmt.Fprintf(r.out, "! %s\n", m.Body)
	case models.MessageRoleEndUser:
		fmt.Fprintf(r.out, "You: %s\n", m.Body)
	default:
		fmt.Fprintf(r.out, "%s: %s\n", authorLabel(m), m.Body)
	}
}

func authorLabel(m *models.Message) string {
	if m.AuthorName != "" {
		return m.AuthorName
	}
	switch m.Role {
	case models.MessageRoleHumanAgent:
		return "Agent"
	default:
		return "Assistant"
	}
}
