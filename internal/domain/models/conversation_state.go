package models

import (
	"fmt"
	"sort"
)

// ConversationTransition represents a state transition
type ConversationTransition struct {
	From ConversationStatus
	To   ConversationStatus
}

// validTransitions defines the allowed state transitions for conversations
var validTransitions = map[ConversationTransition]bool{
	// From open
	{ConversationStatusOpen, ConversationStatusInProgress}: true,
	{ConversationStatusOpen, ConversationStatusResolved}:   true,
	{ConversationStatusOpen, ConversationStatusClosed}:     true,

	// From in progress (a human agent picked it up)
	{ConversationStatusInProgress, ConversationStatusResolved}: true,
	{ConversationStatusInProgress, ConversationStatusClosed}:   true,

	// A resolved ticket reopens when the user writes again
	{ConversationStatusResolved, ConversationStatusInProgress}: true,
	{ConversationStatusResolved, ConversationStatusClosed}:     true,

	// Closed is terminal
}

// ValidateTransition checks if a state transition is valid and returns an error if not
func ValidateTransition(from, to ConversationStatus) error {
	if from == to {
		return nil
	}

	if !validTransitions[ConversationTransition{From: from, To: to}] {
		return NewInvalidTransitionError(from, to)
	}

	return nil
}

// IsValidTransition checks if a transition between two states is valid
func IsValidTransition(from, to ConversationStatus) bool {
	return ValidateTransition(from, to) == nil
}

// GetValidTransitions returns all valid transitions from a given state, sorted.
func GetValidTransitions(from ConversationStatus) []ConversationStatus {
	validStates := make([]ConversationStatus, 0)

	for transition := range validTransitions {
		if transition.From == from {
			validStates = append(validStates, transition.To)
		}
	}
	sort.Slice(validStates, func(i, j int) bool { return validStates[i] < validStates[j] })

	return validStates
}

// InvalidTransitionError represents an error for invalid state transitions
type InvalidTransitionError struct {
	From    ConversationStatus
	To      ConversationStatus
	Message string
}

func (e *InvalidTransitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("invalid conversation state transition from '%s' to '%s'", e.From, e.To)
}

// NewInvalidTransitionError creates a new InvalidTransitionError with a descriptive message
func NewInvalidTransitionError(from, to ConversationStatus) *InvalidTransitionError {
	var message string
	if from == ConversationStatusClosed {
		message = "cannot transition from closed state: conversation is permanently closed"
	} else if validStates := GetValidTransitions(from); len(validStates) > 0 {
		message = fmt.Sprintf("invalid transition from '%s' to '%s': valid transitions are %v", from, to, validStates)
	} else {
		message = fmt.Sprintf("invalid transition from '%s' to '%s': no valid transitions from this state", from, to)
	}
	return &InvalidTransitionError{
		From:    from,
		To:      to,
		Message: message,
	}
}
