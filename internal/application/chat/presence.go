package chat

// Phase is the send pipeline state of the open conversation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Presence is the UI-facing typing/presence projection of the pipeline phase.
type Presence struct {
	IsAwaitingReply bool `json:"is_awaiting_reply"`
	HasError        bool `json:"has_error"`
	CanCompose      bool `json:"can_compose"`
}

// PresenceFor projects a pipeline phase onto the presence flags. A reply that
// arrives over the push stream moves the pipeline back to idle even when it
// answers an attempt the push path did not start, so awaiting-reply clears
// with it.
func PresenceFor(p Phase) Presence {
	awaiting := p == PhaseSending
	return Presence{
		IsAwaitingReply: awaiting,
		HasError:        p == PhaseErrored,
		CanCompose:      !awaiting,
	}
}

// Hints are side effects reported by the assistant that the UI may surface.
// They are not part of the timeline.
type Hints struct {
	TicketCreated bool `json:"ticket_created"`
	SuggestClose  bool `json:"suggest_close"`
}
