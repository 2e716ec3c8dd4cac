package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"converse/internal/apperr"
	"converse/internal/identity"
	"converse/internal/model"
	"converse/internal/repo"
)

// ConversationService is the single core behind both ingress paths. REST
// handlers and the socket gateway call the same methods; neither duplicates
// business rules.
type ConversationService interface {
	CreateOrGetPrivate(ctx context.Context, initiatorID, otherID string) (*model.Conversation, error)
	CreateGroup(ctx context.Context, creatorID, name, description string, participantIDs []string) (*model.Conversation, error)
	PostMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
	ListMessages(ctx context.Context, conversationID string, page, pageSize int64) ([]model.Message, error)
	ListMine(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	UnreadTotal(ctx context.Context, userID string) (int, error)
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
}

type conversationService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	resolver      identity.Resolver
	broadcaster   Broadcaster
	logger        *zap.Logger
}

func NewConversationService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	resolver identity.Resolver,
	broadcaster Broadcaster,
	logger *zap.Logger,
) ConversationService {
	return &conversationService{
		conversations: conversations,
		messages:      messages,
		resolver:      resolver,
		broadcaster:   broadcaster,
		logger:        logger,
	}
}

func (s *conversationService) CreateOrGetPrivate(ctx context.Context, initiatorID, otherID string) (*model.Conversation, error) {
	if initiatorID == "" || otherID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	if initiatorID == otherID {
		return nil, apperr.InvalidArgument("cannot start a conversation with yourself")
	}

	existing, err := s.conversations.FindPrivateBetween(ctx, initiatorID, otherID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to look up conversation")
	}
	if existing != nil {
		return existing, nil
	}

	initiator, err := s.resolveUser(ctx, initiatorID)
	if err != nil {
		return nil, err
	}
	other, err := s.resolveUser(ctx, otherID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conversation := &model.Conversation{
		ConversationType: model.ConversationTypePrivate,
		Participants: []model.Participant{
			newParticipant(initiator, "", now),
			newParticipant(other, "", now),
		},
		ParticipantIDs: []string{initiatorID, otherID},
		UnreadCounts:   map[string]int{initiatorID: 0, otherID: 0},
		CreatedBy:      initiatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := s.conversations.Insert(ctx, conversation); err != nil {
		return nil, apperr.Unavailable(err, "failed to create conversation")
	}

	s.logger.Info("private conversation created",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("initiator", initiatorID),
		zap.String("other", otherID),
	)
	return conversation, nil
}

func (s *conversationService) CreateGroup(ctx context.Context, creatorID, name, description string, participantIDs []string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidArgument("group name is required")
	}
	if len(participantIDs) == 0 {
		return nil, apperr.InvalidArgument("a group needs at least one participant")
	}

	creator, err := s.resolveUser(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	participants := []model.Participant{newParticipant(creator, model.RoleAdmin, now)}
	unreadCounts := map[string]int{creatorID: 0}

	for _, userID := range participantIDs {
		if _, seen := unreadCounts[userID]; seen || userID == creatorID {
			continue
		}

		summary, err := s.resolver.Resolve(ctx, userID)
		if err != nil {
			return nil, apperr.Unavailable(err, "failed to resolve user")
		}
		if summary == nil {
			s.logger.Warn("skipping unresolvable participant", zap.String("user_id", userID))
			continue
		}

		participants = append(participants, newParticipant(summary, model.RoleMember, now))
		unreadCounts[userID] = 0
	}

	conversation := &model.Conversation{
		ConversationType: model.ConversationTypeGroup,
		Participants:     participants,
		ParticipantIDs:   lo.Map(participants, func(p model.Participant, _ int) string { return p.UserID }),
		Name:             name,
		Description:      description,
		AdminID:          creatorID,
		UnreadCounts:     unreadCounts,
		Settings:         model.DefaultGroupSettings(),
		CreatedBy:        creatorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if _, err := s.conversations.Insert(ctx, conversation); err != nil {
		return nil, apperr.Unavailable(err, "failed to create group")
	}

	appendSystemMessage(ctx, s.messages, s.broadcaster, s.logger, conversation,
		model.SystemMessageCreated,
		fmt.Sprintf("%s created the group", creator.DisplayName),
	)

	s.logger.Info("group conversation created",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("creator", creatorID),
		zap.Int("participants", len(participants)),
	)
	return conversation, nil
}

func (s *conversationService) PostMessage(ctx context.Context, conversationID, senderID, content, messageType string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.InvalidArgument("message content cannot be empty")
	}
	if messageType == "" {
		messageType = model.MessageTypeText
	}
	if !model.ValidMessageType(messageType) {
		return nil, apperr.InvalidArgument("unsupported message type %q", messageType)
	}

	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	sender := conversation.FindParticipant(senderID)
	if sender == nil {
		return nil, apperr.PermissionDenied("sender is not a participant of this conversation")
	}

	now := time.Now().UTC()
	msg := &model.Message{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		SenderName:     s.senderName(ctx, senderID, sender.DisplayName),
		Content:        content,
		MessageType:    messageType,
		ReadBy:         []model.ReadReceipt{{UserID: senderID, ReadAt: now}},
		CreatedAt:      now,
	}

	if _, err := s.messages.Insert(ctx, msg); err != nil {
		return nil, apperr.Unavailable(err, "failed to save message")
	}

	conversation.LastMessage = &model.LastMessage{
		SenderID:    senderID,
		SenderName:  msg.SenderName,
		Content:     content,
		MessageType: messageType,
		SentAt:      now,
	}
	if conversation.UnreadCounts == nil {
		conversation.UnreadCounts = make(map[string]int)
	}
	for _, p := range conversation.Participants {
		if p.UserID == senderID {
			continue
		}
		conversation.UnreadCounts[p.UserID]++
	}

	if err := s.conversations.Save(ctx, conversation); err != nil {
		return nil, apperr.Unavailable(err, "failed to update conversation")
	}

	s.broadcaster.BroadcastMessage(conversation.ID.Hex(), msg)
	return msg, nil
}

// MarkRead is idempotent: repeated or concurrent calls leave the counter at
// zero and never duplicate receipts.
func (s *conversationService) MarkRead(ctx context.Context, conversationID, userID string) error {
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(userID) {
		return apperr.PermissionDenied("user is not a participant of this conversation")
	}

	if conversation.UnreadCounts == nil {
		conversation.UnreadCounts = make(map[string]int)
	}
	conversation.UnreadCounts[userID] = 0
	if err := s.conversations.Save(ctx, conversation); err != nil {
		return apperr.Unavailable(err, "failed to update conversation")
	}

	if _, err := s.messages.MarkConversationRead(ctx, conversationID, userID, time.Now().UTC()); err != nil {
		return apperr.Unavailable(err, "failed to record read receipts")
	}

	s.broadcaster.BroadcastRead(conversationID, userID)
	return nil
}

// ListMessages returns one page in ascending chronological order. The store
// is queried newest first, so page 1 is the most recent batch.
func (s *conversationService) ListMessages(ctx context.Context, conversationID string, page, pageSize int64) ([]model.Message, error) {
	if _, err := s.loadConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	messages, err := s.messages.FindPage(ctx, conversationID, page, pageSize)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to fetch messages")
	}

	return lo.Reverse(messages), nil
}

func (s *conversationService) ListMine(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	if userID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}

	conversations, err := s.conversations.FindByParticipant(ctx, userID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to list conversations")
	}

	summaries := make([]model.ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		summary := model.ConversationSummary{
			Conversation: c,
			UnreadCount:  c.UnreadCounts[userID],
		}
		if !c.IsGroup() {
			summary.Counterpart = counterpartOf(&c, userID)
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return lastActivity(&summaries[i].Conversation).After(lastActivity(&summaries[j].Conversation))
	})
	return summaries, nil
}

func (s *conversationService) UnreadTotal(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, apperr.InvalidArgument("user id is required")
	}

	conversations, err := s.conversations.FindByParticipant(ctx, userID)
	if err != nil {
		return 0, apperr.Unavailable(err, "failed to list conversations")
	}

	return lo.SumBy(conversations, func(c model.Conversation) int {
		return c.UnreadCounts[userID]
	}), nil
}

func (s *conversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.loadConversation(ctx, conversationID)
}

func (s *conversationService) loadConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, apperr.InvalidArgument("conversation id is required")
	}

	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to fetch conversation")
	}
	if conversation == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	return conversation, nil
}

func (s *conversationService) resolveUser(ctx context.Context, userID string) (*identity.Summary, error) {
	summary, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to resolve user")
	}
	if summary == nil {
		return nil, apperr.NotFound("user %s not found", userID)
	}
	return summary, nil
}

// senderName prefers a fresh resolver lookup, falling back to the display
// snapshot taken at join time when the resolver no longer knows the user.
func (s *conversationService) senderName(ctx context.Context, senderID, snapshot string) string {
	summary, err := s.resolver.Resolve(ctx, senderID)
	if err != nil || summary == nil {
		return snapshot
	}
	return summary.DisplayName
}

func newParticipant(summary *identity.Summary, role string, joinedAt time.Time) model.Participant {
	return model.Participant{
		UserID:      summary.UserID,
		DisplayName: summary.DisplayName,
		Avatar:      summary.Avatar,
		Role:        role,
		JoinedAt:    joinedAt,
	}
}

func counterpartOf(c *model.Conversation, userID string) *model.Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}

func lastActivity(c *model.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.SentAt
	}
	return c.UpdatedAt
}
