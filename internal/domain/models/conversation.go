package models

import (
	"time"
)

type ConversationStatus string

const (
	ConversationStatusOpen       ConversationStatus = "open"
	ConversationStatusInProgress ConversationStatus = "in_progress"
	ConversationStatusResolved   ConversationStatus = "resolved"
	ConversationStatusClosed     ConversationStatus = "closed"
)

// Conversation is a support thread owned by the external ticket store. The
// synchronization engine treats it as read-mostly context.
type Conversation struct {
	ID        string             `json:"id"`
	Status    ConversationStatus `json:"status"`
	Category  string             `json:"category,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewConversation(id, category string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		Status:    ConversationStatusOpen,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the conversation still accepts messages.
func (c *Conversation) IsActive() bool {
	return c.Status == ConversationStatusOpen || c.Status == ConversationStatusInProgress
}

// ChangeStatus transitions the conversation to a new status with validation
func (c *Conversation) ChangeStatus(newStatus ConversationStatus) error {
	if err := ValidateTransition(c.Status, newStatus); err != nil {
		return err
	}
	c.Status = newStatus
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// CanTransitionTo checks if the conversation can transition to the given status
func (c *Conversation) CanTransitionTo(newStatus ConversationStatus) bool {
	return IsValidTransition(c.Status, newStatus)
}

// ConversationAction is an out-of-band state transition requested from the
// assistant service.
type ConversationAction string

const (
	ActionEscalate ConversationAction = "escalate"
	ActionClose    ConversationAction = "close"
)

func (a ConversationAction) Valid() bool {
	return a == ActionEscalate || a == ActionClose
}

// TargetStatus is the status the ticket store moves the conversation to once
// the action succeeds.
func (a ConversationAction) TargetStatus() ConversationStatus {
	if a == ActionClose {
		return ConversationStatusResolved
	}
	return ConversationStatusInProgress
}
