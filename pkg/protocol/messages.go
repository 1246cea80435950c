package protocol

type Error struct {
	Code           string `msgpack:"code" json:"code"`
	Message        string `msgpack:"message" json:"message"`
	ConversationID string `msgpack:"conversationId,omitempty" json:"conversationId,omitempty"`
}

// Subscribe asks the gateway for the inserts of one ticket. Token is the end
// user's access token.
type Subscribe struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Token          string `msgpack:"token,omitempty" json:"token,omitempty"`
}

type Unsubscribe struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
}

type SubscribeAck struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Success        bool   `msgpack:"success" json:"success"`
	Error          string `msgpack:"error,omitempty" json:"error,omitempty"`
}

type UnsubscribeAck struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Success        bool   `msgpack:"success" json:"success"`
}

type Attachment struct {
	ID       string `msgpack:"id" json:"id"`
	FileName string `msgpack:"fileName" json:"fileName"`
	MimeType string `msgpack:"mimeType,omitempty" json:"mimeType,omitempty"`
	URL      string `msgpack:"url,omitempty" json:"url,omitempty"`
}

// MessageInserted is one row inserted into ticket_responses. CreatedAt is in
// Unix milliseconds.
type MessageInserted struct {
	ID          string       `msgpack:"id" json:"id"`
	TicketID    string       `msgpack:"ticketId" json:"ticketId"`
	AuthorRole  string       `msgpack:"authorRole" json:"authorRole"`
	AuthorName  string       `msgpack:"authorName,omitempty" json:"authorName,omitempty"`
	Body        string       `msgpack:"body" json:"body"`
	IsInternal  bool         `msgpack:"isInternal,omitempty" json:"isInternal,omitempty"`
	Attachments []Attachment `msgpack:"attachments,omitempty" json:"attachments,omitempty"`
	CreatedAt   int64        `msgpack:"createdAt" json:"createdAt"`
}

type Heartbeat struct {
	Timestamp int64 `msgpack:"timestamp" json:"timestamp"`
}
