// Package protocol defines the binary frames exchanged with the helpdesk
// realtime gateway.
package protocol

// MessageType represents the type of protocol message
type MessageType uint16

const (
	// TypeError (1) - Error notification
	TypeError MessageType = 1
	// TypeSubscribe (40) - Client subscribes to a ticket's inserts
	TypeSubscribe MessageType = 40
	// TypeUnsubscribe (41) - Client unsubscribes from a ticket
	TypeUnsubscribe MessageType = 41
	// TypeSubscribeAck (42) - Gateway acknowledges subscription
	TypeSubscribeAck MessageType = 42
	// TypeUnsubscribeAck (43) - Gateway acknowledges unsubscription
	TypeUnsubscribeAck MessageType = 43
	// TypeMessageInserted (44) - A response was inserted into a ticket
	TypeMessageInserted MessageType = 44
	// TypeHeartbeat (72) - Keepalive in either direction
	TypeHeartbeat MessageType = 72
)

// String returns the string representation of the message type
func (t MessageType) String() string {
	switch t {
	case TypeError:
		return "Error"
	case TypeSubscribe:
		return "Subscribe"
	case TypeUnsubscribe:
		return "Unsubscribe"
	case TypeSubscribeAck:
		return "SubscribeAck"
	case TypeUnsubscribeAck:
		return "UnsubscribeAck"
	case TypeMessageInserted:
		return "MessageInserted"
	case TypeHeartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}
