package models

// FailureCause tells why a send attempt ended up retryable.
type FailureCause string

const (
	FailureTimeout   FailureCause = "timeout"
	FailureTransport FailureCause = "transport"
)

// PendingSend is an in-flight user message. It lives from the moment the user
// presses send until the attempt resolves; a failed one is kept as the single
// retryable payload.
type PendingSend struct {
	LocalID string `json:"local_id"`
	Body    string `json:"body"`
	Failed  bool   `json:"failed"`

	// PersistedID is the server id of the user message once the remote append
	// succeeded. A retry of a persisted send only re-invokes the assistant.
	PersistedID string `json:"persisted_id,omitempty"`

	// ErrorMessageID is the synthetic system message announcing the failure.
	ErrorMessageID string       `json:"error_message_id,omitempty"`
	Cause          FailureCause `json:"cause,omitempty"`
}

// CallerIdentity identifies the end user on whose behalf the assistant runs.
type CallerIdentity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Token       string `json:"-"`
}

// AssistantReply is the direct response of an assistant invocation.
type AssistantReply struct {
	ReplyText     string `json:"reply_text,omitempty"`
	TicketCreated bool   `json:"ticket_created,omitempty"`
	SuggestClose  bool   `json:"suggest_close,omitempty"`
}

// HasReply reports whether the assistant produced text for the timeline.
func (r *AssistantReply) HasReply() bool {
	return r != nil && r.ReplyText != ""
}
