package event

import "encoding/json"

// Client-to-server events.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventMarkAsRead  = "mark_as_read"
	EventStartTyping = "start_typing"
	EventStopTyping  = "stop_typing"
)

// Server-to-client events.
const (
	EventAck             = "ack"
	EventMessageReceived = "message_received"
	EventMessagesRead    = "messages_marked_read"
	EventTypingStarted   = "typing_started"
	EventTypingStopped   = "typing_stopped"
)

// WsEvent is the envelope for every frame on the socket. MessageId correlates
// a client request with its ack.
type WsEvent struct {
	Event          string          `json:"event"`
	ConversationID string          `json:"conversationId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	MessageId      string          `json:"messageId,omitempty"`
}
