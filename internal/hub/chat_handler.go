package hub

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"converse/internal/apperr"
	"converse/internal/event"
	"converse/internal/model"
	"converse/internal/service"
)

// ChatHandler is the socket-side gateway. It translates socket events into
// calls on the same services the REST handlers use and reports failures back
// through acks instead of closing the connection.
type ChatHandler struct {
	hub           *Hub
	conversations service.ConversationService
	logger        *zap.Logger
}

// NewChatHandler creates the gateway.
// Note: call SetHub() after creating the Hub to complete the initialization.
func NewChatHandler(conversations service.ConversationService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		logger:        logger,
	}
}

// SetHub sets the hub reference. Must be called before events flow.
func (ch *ChatHandler) SetHub(hub *Hub) {
	ch.hub = hub
}

// HandleEvent dispatches one inbound socket event.
func (ch *ChatHandler) HandleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventJoinRoom:
		ch.handleJoinRoom(ev, c)
	case event.EventLeaveRoom:
		ch.handleLeaveRoom(ev, c)
	case event.EventSendMessage:
		ch.handleSendMessage(ev, c)
	case event.EventMarkAsRead:
		ch.handleMarkAsRead(ev, c)
	case event.EventStartTyping:
		ch.relayTyping(ev, c, event.EventTypingStarted)
	case event.EventStopTyping:
		ch.relayTyping(ev, c, event.EventTypingStopped)
	default:
		ch.logger.Warn("unknown event type", zap.String("event", ev.Event))
	}
}

func (ch *ChatHandler) handleJoinRoom(ev event.WsEvent, c *Client) {
	conversationID := ch.conversationID(ev)
	if conversationID == "" {
		ch.ack(c, ev, false, "conversationId is required")
		return
	}

	conversation, err := ch.conversations.Get(context.Background(), conversationID)
	if err != nil {
		ch.ack(c, ev, false, apperr.MessageOf(err))
		return
	}
	if !conversation.HasParticipant(c.userID) {
		ch.ack(c, ev, false, "user is not a participant of this conversation")
		return
	}

	ch.hub.JoinRoom(conversationID, c)
	ch.ack(c, ev, true, "")
}

func (ch *ChatHandler) handleLeaveRoom(ev event.WsEvent, c *Client) {
	conversationID := ch.conversationID(ev)
	if conversationID == "" {
		ch.ack(c, ev, false, "conversationId is required")
		return
	}

	ch.hub.LeaveRoom(conversationID, c)
	ch.ack(c, ev, true, "")
}

func (ch *ChatHandler) handleSendMessage(ev event.WsEvent, c *Client) {
	var payload model.SendMessagePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		ch.ack(c, ev, false, "failed to parse send_message payload")
		return
	}
	if payload.ConversationID == "" {
		payload.ConversationID = ev.ConversationID
	}

	_, err := ch.conversations.PostMessage(
		context.Background(),
		payload.ConversationID,
		c.userID,
		payload.Content,
		payload.MessageType,
	)
	if err != nil {
		ch.logger.Debug("send_message failed",
			zap.String("client_id", c.ID),
			zap.String("conversation_id", payload.ConversationID),
			zap.Error(err),
		)
		ch.ack(c, ev, false, apperr.MessageOf(err))
		return
	}

	// The service broadcasts message_received to the room; the sender only
	// needs the ack.
	ch.ack(c, ev, true, "")
}

func (ch *ChatHandler) handleMarkAsRead(ev event.WsEvent, c *Client) {
	var payload model.MarkReadPayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			ch.ack(c, ev, false, "failed to parse mark_as_read payload")
			return
		}
	}
	if payload.ConversationID == "" {
		payload.ConversationID = ev.ConversationID
	}

	if err := ch.conversations.MarkRead(context.Background(), payload.ConversationID, c.userID); err != nil {
		ch.ack(c, ev, false, apperr.MessageOf(err))
		return
	}

	ch.ack(c, ev, true, "")
}

// relayTyping forwards a typing signal to the room, excluding the sender.
// Typing is ephemeral: never persisted, silently dropped when nobody listens.
func (ch *ChatHandler) relayTyping(ev event.WsEvent, c *Client, outEvent string) {
	conversationID := ch.conversationID(ev)
	if conversationID == "" {
		return
	}

	payload, err := json.Marshal(model.TypingPayload{
		ConversationID: conversationID,
		UserID:         c.userID,
	})
	if err != nil {
		return
	}

	ch.hub.Publish(conversationID, event.WsEvent{
		Event:          outEvent,
		ConversationID: conversationID,
		Payload:        payload,
	}, c.ID)
}

func (ch *ChatHandler) conversationID(ev event.WsEvent) string {
	if ev.ConversationID != "" {
		return ev.ConversationID
	}
	var payload model.JoinRoomPayload
	if len(ev.Payload) > 0 && json.Unmarshal(ev.Payload, &payload) == nil {
		return payload.ConversationID
	}
	return ""
}

func (ch *ChatHandler) ack(c *Client, ev event.WsEvent, success bool, message string) {
	payload, err := json.Marshal(model.AckPayload{Success: success, Message: message})
	if err != nil {
		return
	}

	c.SafeSend(event.WsEvent{
		Event:          event.EventAck,
		ConversationID: ch.conversationID(ev),
		Payload:        payload,
		MessageId:      ev.MessageId,
	}, sendTimeout)
}
