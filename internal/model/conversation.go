package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation kinds.
const (
	ConversationTypePrivate = "private"
	ConversationTypeGroup   = "group"
)

// Participant roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Conversation represents a private or group messaging thread in MongoDB.
type Conversation struct {
	ID               primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	ConversationType string               `json:"conversationType" bson:"conversation_type"`
	Participants     []Participant        `json:"participants" bson:"participants"`
	ParticipantIDs   []string             `json:"participantIds" bson:"participant_ids"`
	Name             string               `json:"name,omitempty" bson:"name,omitempty"`
	Description      string               `json:"description,omitempty" bson:"description,omitempty"`
	Avatar           string               `json:"avatar,omitempty" bson:"avatar,omitempty"`
	AdminID          string               `json:"adminId,omitempty" bson:"admin_id,omitempty"`
	UnreadCounts     map[string]int       `json:"unreadCounts" bson:"unread_counts"`
	LastMessage      *LastMessage         `json:"lastMessage" bson:"last_message"`
	Settings         ConversationSettings `json:"settings" bson:"settings"`
	CreatedBy        string               `json:"createdBy" bson:"created_by"`
	CreatedAt        time.Time            `json:"createdAt" bson:"created_at"`
	UpdatedAt        time.Time            `json:"updatedAt" bson:"updated_at"`
}

// Participant is a user currently part of a conversation. DisplayName and
// Avatar are a snapshot taken at join time, never a live reference.
type Participant struct {
	UserID      string    `json:"userId" bson:"user_id"`
	DisplayName string    `json:"displayName" bson:"display_name"`
	Avatar      string    `json:"avatar" bson:"avatar"`
	Role        string    `json:"role" bson:"role"`
	JoinedAt    time.Time `json:"joinedAt" bson:"joined_at"`
}

// LastMessage stores the most recent message preview.
type LastMessage struct {
	SenderID    string    `json:"senderId" bson:"sender_id"`
	SenderName  string    `json:"senderName" bson:"sender_name"`
	Content     string    `json:"content" bson:"content"`
	MessageType string    `json:"messageType" bson:"message_type"`
	SentAt      time.Time `json:"sentAt" bson:"sent_at"`
}

// ConversationSettings holds group-level policy flags.
type ConversationSettings struct {
	AllowMemberInvites bool `json:"allowMemberInvites" bson:"allow_member_invites"`
	AllowNameChange    bool `json:"allowNameChange" bson:"allow_name_change"`
	AllowImageChange   bool `json:"allowImageChange" bson:"allow_image_change"`
	AllowMemberLeave   bool `json:"allowMemberLeave" bson:"allow_member_leave"`
}

// DefaultGroupSettings returns the settings a freshly created group starts with.
func DefaultGroupSettings() ConversationSettings {
	return ConversationSettings{
		AllowMemberInvites: true,
		AllowNameChange:    true,
		AllowImageChange:   true,
		AllowMemberLeave:   true,
	}
}

// IsGroup reports whether the conversation is a group thread.
func (c *Conversation) IsGroup() bool {
	return c.ConversationType == ConversationTypeGroup
}

// FindParticipant returns the participant with the given user id, or nil.
func (c *Conversation) FindParticipant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// HasParticipant reports whether userID is a current participant.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.FindParticipant(userID) != nil
}

// ConversationSummary is the shape returned by the conversation listing:
// the thread plus the caller's own unread count and, for private threads,
// the counterpart participant.
type ConversationSummary struct {
	Conversation
	UnreadCount int          `json:"unreadCount"`
	Counterpart *Participant `json:"counterpart,omitempty"`
}
