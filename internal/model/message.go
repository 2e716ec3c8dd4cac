package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SystemSenderID is the sentinel sender for lifecycle narration messages.
const SystemSenderID = "system"

// Message types.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeVideo  = "video"
	MessageTypeSystem = "system"
)

// System message types narrating conversation lifecycle events.
const (
	SystemMessageCreated      = "created"
	SystemMessageUsersAdded   = "users_added"
	SystemMessageUserRemoved  = "user_removed"
	SystemMessageUserLeft     = "user_left"
	SystemMessageAdminChanged = "admin_changed"
	SystemMessageGroupUpdated = "group_updated"
)

// Message represents a chat message in MongoDB. Messages are immutable
// except for ReadBy appends.
type Message struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID    primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	SenderID          string             `json:"senderId" bson:"sender_id"`
	SenderName        string             `json:"senderName" bson:"sender_name"`
	Content           string             `json:"content" bson:"content"`
	MessageType       string             `json:"messageType" bson:"message_type"`
	ReadBy            []ReadReceipt      `json:"readBy" bson:"read_by"`
	IsSystemMessage   bool               `json:"isSystemMessage" bson:"is_system_message"`
	SystemMessageType string             `json:"systemMessageType,omitempty" bson:"system_message_type,omitempty"`
	CreatedAt         time.Time          `json:"createdAt" bson:"created_at"`
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID string    `json:"userId" bson:"user_id"`
	ReadAt time.Time `json:"readAt" bson:"read_at"`
}

// ReadByUser reports whether userID already appears in the receipt set.
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ValidMessageType reports whether t is a client-postable message type.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo:
		return true
	}
	return false
}
