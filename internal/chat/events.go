package chat

import (
	"github.com/google/uuid"

	"github.com/crewcall/crewcall/pkg/models"
)

// Gateway event types. Client-to-server: join, leave, send, typing,
// mark_read. Server-to-client: joined, message, typing, receipt, presence,
// error.
const (
	EventJoin     = "join"
	EventLeave    = "leave"
	EventSend     = "send"
	EventTyping   = "typing"
	EventMarkRead = "mark_read"

	EventJoined   = "joined"
	EventMessage  = "message"
	EventReceipt  = "receipt"
	EventPresence = "presence"
	EventError    = "error"
)

// Event is the single envelope exchanged over the chat socket. Fields are
// populated per event type.
type Event struct {
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id,omitempty"`
	ClientMsgID    string          `json:"client_msg_id,omitempty"`
	Body           string          `json:"body,omitempty"`
	MessageID      uuid.UUID       `json:"message_id,omitempty"`
	UserID         uuid.UUID       `json:"user_id,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	ReadCount      int64           `json:"read_count,omitempty"`
	Online         bool            `json:"online,omitempty"`
	Duplicate      bool            `json:"duplicate,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func errorEvent(conversationID uuid.UUID, msg string) Event {
	return Event{Type: EventError, ConversationID: conversationID, Error: msg}
}
