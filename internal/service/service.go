package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"converse/internal/model"
	"converse/internal/repo"
)

// Broadcaster fans service-level events out to live room subscribers. The hub
// implements it; disconnected participants catch up through unread counters
// and a later fetch.
type Broadcaster interface {
	BroadcastMessage(conversationID string, msg *model.Message)
	BroadcastRead(conversationID, userID string)
}

// NopBroadcaster drops every event. Used in tests and before the hub is wired.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastMessage(string, *model.Message) {}
func (NopBroadcaster) BroadcastRead(string, string)            {}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// appendSystemMessage persists a lifecycle narration message in the
// conversation's own log and pushes it to the room. Narration never touches
// unread counters or the last-message snapshot.
func appendSystemMessage(
	ctx context.Context,
	messages repo.MessageRepository,
	broadcaster Broadcaster,
	logger *zap.Logger,
	conversation *model.Conversation,
	systemType string,
	content string,
) *model.Message {
	msg := &model.Message{
		ConversationID:    conversation.ID,
		SenderID:          model.SystemSenderID,
		SenderName:        model.SystemSenderID,
		Content:           content,
		MessageType:       model.MessageTypeSystem,
		ReadBy:            []model.ReadReceipt{},
		IsSystemMessage:   true,
		SystemMessageType: systemType,
		CreatedAt:         time.Now().UTC(),
	}

	if _, err := messages.Insert(ctx, msg); err != nil {
		// Narration is best-effort; the triggering operation already
		// succeeded and must not be rolled back over a log entry.
		logger.Warn("failed to append system message",
			zap.String("conversation_id", conversation.ID.Hex()),
			zap.String("system_type", systemType),
			zap.Error(err),
		)
		return nil
	}

	broadcaster.BroadcastMessage(conversation.ID.Hex(), msg)
	return msg
}
