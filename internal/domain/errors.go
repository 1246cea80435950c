package domain

import "errors"

// Common domain errors
var (
	// Conversation errors
	ErrConversationNotFound    = errors.New("conversation not found")
	ErrConversationClosed      = errors.New("conversation is closed")
	ErrInvalidStatusTransition = errors.New("invalid conversation status transition")
	ErrNoActiveConversation    = errors.New("no active conversation")
	ErrStaleConversation       = errors.New("conversation is no longer active")

	// Message errors
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidRole     = errors.New("invalid message role")

	// Send pipeline errors
	ErrNothingToRetry   = errors.New("no failed message to retry")
	ErrPersistFailed    = errors.New("failed to persist message")
	ErrAssistantFailed  = errors.New("assistant invocation failed")
	ErrAssistantOffline = errors.New("assistant service unavailable")

	// Action errors
	ErrInvalidAction = errors.New("invalid conversation action")
	ErrActionFailed  = errors.New("conversation action failed")

	// Push errors
	ErrSubscriptionFailed = errors.New("push subscription failed")

	// Validation errors
	ErrInvalidID    = errors.New("invalid ID format")
	ErrEmptyContent = errors.New("content cannot be empty")
)

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}
