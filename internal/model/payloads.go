package model

// Socket payloads exchanged with the chat gateway.

// JoinRoomPayload subscribes the connection to a conversation room.
type JoinRoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload posts a message over the socket path.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
}

// MarkReadPayload marks a conversation read over the socket path.
type MarkReadPayload struct {
	ConversationID string `json:"conversationId"`
}

// TypingPayload signals typing start/stop; relayed, never persisted.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// ReadReceiptEvent is pushed to a room when a participant marks it read.
type ReadReceiptEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// AckPayload reports the outcome of a socket request back to its sender.
// Failures come back through this payload; the connection stays open.
type AckPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
