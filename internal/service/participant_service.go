package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"converse/internal/apperr"
	"converse/internal/identity"
	"converse/internal/model"
	"converse/internal/repo"
)

// SettingsPatch carries the updatable group fields. Nil means "leave as is".
type SettingsPatch struct {
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	Image              *string `json:"image,omitempty"`
	AllowMemberInvites *bool   `json:"allowMemberInvites,omitempty"`
	AllowNameChange    *bool   `json:"allowNameChange,omitempty"`
	AllowImageChange   *bool   `json:"allowImageChange,omitempty"`
	AllowMemberLeave   *bool   `json:"allowMemberLeave,omitempty"`
}

// ParticipantService manages group membership, admin succession and group
// settings. Private threads have no membership lifecycle.
type ParticipantService interface {
	AddParticipants(ctx context.Context, conversationID, requesterID string, userIDs []string) ([]model.Participant, error)
	RemoveParticipant(ctx context.Context, conversationID, requesterID, targetID string) (*model.Participant, error)
	// Leave removes userID from the group. The returned flag is true when the
	// leaver was the last participant and the conversation was destroyed.
	Leave(ctx context.Context, conversationID, userID string) (bool, error)
	UpdateSettings(ctx context.Context, conversationID, requesterID string, patch SettingsPatch) (*model.Conversation, error)
}

type participantService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	resolver      identity.Resolver
	broadcaster   Broadcaster
	logger        *zap.Logger

	// pickSuccessor selects an index into the remaining participants when
	// the admin leaves. Uniformly random; swappable in tests.
	pickSuccessor func(n int) int
}

func NewParticipantService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	resolver identity.Resolver,
	broadcaster Broadcaster,
	logger *zap.Logger,
) ParticipantService {
	return &participantService{
		conversations: conversations,
		messages:      messages,
		resolver:      resolver,
		broadcaster:   broadcaster,
		logger:        logger,
		pickSuccessor: rand.Intn,
	}
}

func (s *participantService) AddParticipants(ctx context.Context, conversationID, requesterID string, userIDs []string) ([]model.Participant, error) {
	conversation, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.AdminID != requesterID {
		return nil, apperr.PermissionDenied("only the group admin can add participants")
	}

	now := nowUTC()
	var added []model.Participant
	for _, userID := range lo.Uniq(userIDs) {
		if conversation.HasParticipant(userID) {
			continue
		}

		summary, err := s.resolver.Resolve(ctx, userID)
		if err != nil {
			return nil, apperr.Unavailable(err, "failed to resolve user")
		}
		if summary == nil {
			s.logger.Warn("skipping unresolvable participant",
				zap.String("conversation_id", conversationID),
				zap.String("user_id", userID),
			)
			continue
		}

		added = append(added, newParticipant(summary, model.RoleMember, now))
	}

	if len(added) == 0 {
		return nil, apperr.Conflict("no new participants to add")
	}

	if conversation.UnreadCounts == nil {
		conversation.UnreadCounts = make(map[string]int)
	}
	for _, p := range added {
		conversation.Participants = append(conversation.Participants, p)
		conversation.ParticipantIDs = append(conversation.ParticipantIDs, p.UserID)
		conversation.UnreadCounts[p.UserID] = 0
	}

	if err := s.conversations.Save(ctx, conversation); err != nil {
		return nil, apperr.Unavailable(err, "failed to update conversation")
	}

	names := lo.Map(added, func(p model.Participant, _ int) string { return p.DisplayName })
	appendSystemMessage(ctx, s.messages, s.broadcaster, s.logger, conversation,
		model.SystemMessageUsersAdded,
		fmt.Sprintf("%s joined the group", strings.Join(names, ", ")),
	)

	s.logger.Info("participants added",
		zap.String("conversation_id", conversationID),
		zap.String("requester", requesterID),
		zap.Int("added", len(added)),
	)
	return added, nil
}

func (s *participantService) RemoveParticipant(ctx context.Context, conversationID, requesterID, targetID string) (*model.Participant, error) {
	conversation, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.AdminID != requesterID {
		return nil, apperr.PermissionDenied("only the group admin can remove participants")
	}
	if targetID == requesterID {
		return nil, apperr.InvalidArgument("admin cannot remove themselves; leave the group instead")
	}

	target := conversation.FindParticipant(targetID)
	if target == nil {
		return nil, apperr.NotFound("user is not a participant of this conversation")
	}
	removed := *target

	s.dropParticipant(conversation, targetID)

	if err := s.conversations.Save(ctx, conversation); err != nil {
		return nil, apperr.Unavailable(err, "failed to update conversation")
	}

	appendSystemMessage(ctx, s.messages, s.broadcaster, s.logger, conversation,
		model.SystemMessageUserRemoved,
		fmt.Sprintf("%s was removed from the group", removed.DisplayName),
	)

	s.logger.Info("participant removed",
		zap.String("conversation_id", conversationID),
		zap.String("requester", requesterID),
		zap.String("target", targetID),
	)
	return &removed, nil
}

func (s *participantService) Leave(ctx context.Context, conversationID, userID string) (bool, error) {
	conversation, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return false, err
	}

	leaver := conversation.FindParticipant(userID)
	if leaver == nil {
		return false, apperr.NotFound("user is not a participant of this conversation")
	}
	leaverName := leaver.DisplayName
	wasAdmin := conversation.AdminID == userID

	s.dropParticipant(conversation, userID)

	// Extinction: the last participant leaving destroys the conversation and
	// its entire log. There is no way back from this state.
	if len(conversation.Participants) == 0 {
		if _, err := s.messages.DeleteByConversation(ctx, conversationID); err != nil {
			return false, apperr.Unavailable(err, "failed to delete conversation messages")
		}
		if err := s.conversations.Delete(ctx, conversationID); err != nil {
			return false, apperr.Unavailable(err, "failed to delete conversation")
		}

		s.logger.Info("conversation destroyed",
			zap.String("conversation_id", conversationID),
			zap.String("last_participant", userID),
		)
		return true, nil
	}

	var successor *model.Participant
	if wasAdmin {
		successor = &conversation.Participants[s.pickSuccessor(len(conversation.Participants))]
		successor.Role = model.RoleAdmin
		conversation.AdminID = successor.UserID
	}

	if err := s.conversations.Save(ctx, conversation); err != nil {
		return false, apperr.Unavailable(err, "failed to update conversation")
	}

	// Succession is narrated before the departure.
	if successor != nil {
		appendSystemMessage(ctx, s.messages, s.broadcaster, s.logger, conversation,
			model.SystemMessageAdminChanged,
			fmt.Sprintf("%s is now the group admin", successor.DisplayName),
		)
	}
	appendSystemMessage(ctx, s.messages, s.broadcaster, s.logger, conversation,
		model.SystemMessageUserLeft,
		fmt.Sprintf("%s left the group", leaverName),
	)

	s.logger.Info("participant left",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
		zap.Bool("was_admin", wasAdmin),
	)
	return false, nil
}

func (s *participantService) UpdateSettings(ctx context.Context, conversationID, requesterID string, patch SettingsPatch) (*model.Conversation, error) {
	conversation, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	requester := conversation.FindParticipant(requesterID)
	if requester == nil {
		return nil, apperr.PermissionDenied("user is not a participant of this conversation")
	}
	isAdmin := conversation.AdminID == requesterID

	var changes []string

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.InvalidArgument("group name cannot be empty")
		}
		if name != conversation.Name {
			if !isAdmin && !conversation.Settings.AllowNameChange {
				return nil, apperr.PermissionDenied("only the group admin can change the name")
			}
			conversation.Name = name
			changes = append(changes, "name")
		}
	}

	if patch.Description != nil && *patch.Description != conversation.Description {
		if !isAdmin && !conversation.Settings.AllowNameChange {
			return nil, apperr.PermissionDenied("only the group admin can change the description")
		}
		conversation.Description = *patch.Description
		changes = append(changes, "description")
	}

	if patch.Image != nil && *patch.Image != conversation.Avatar {
		if !isAdmin && !conversation.Settings.AllowImageChange {
			return nil, apperr.PermissionDenied("only the group admin can change the image")
		}
		conversation.Avatar = *patch.Image
		changes = append(changes, "image")
	}

	policyChanges := []struct {
		value   *bool
		current *bool
		label   string
	}{
		{patch.AllowMemberInvites, &conversation.Settings.AllowMemberInvites, "invite policy"},
		{patch.AllowNameChange, &conversation.Settings.AllowNameChange, "name policy"},
		{patch.AllowImageChange, &conversation.Settings.AllowImageChange, "image policy"},
		{patch.AllowMemberLeave, &conversation.Settings.AllowMemberLeave, "leave policy"},
	}
	for _, pc := range policyChanges {
		if pc.value == nil || *pc.value == *pc.current {
			continue
		}
		if !isAdmin {
			return nil, apperr.PermissionDenied("only the group admin can change group policies")
		}
		*pc.current = *pc.value
		changes = append(changes, pc.label)
	}

	if len(changes) == 0 {
		return nil, apperr.InvalidArgument("nothing to update")
	}

	if err := s.conversations.Save(ctx, conversation); err != nil {
		return nil, apperr.Unavailable(err, "failed to update conversation")
	}

	appendSystemMessage(ctx, s.messages, s.broadcaster, s.logger, conversation,
		model.SystemMessageGroupUpdated,
		fmt.Sprintf("%s updated the group %s", requester.DisplayName, strings.Join(changes, " and ")),
	)

	s.logger.Info("group settings updated",
		zap.String("conversation_id", conversationID),
		zap.String("requester", requesterID),
		zap.Strings("changes", changes),
	)
	return conversation, nil
}

func (s *participantService) loadGroup(ctx context.Context, conversationID string) (*model.Conversation, error) {
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
	if !conversation.IsGroup() {
		return nil, apperr.InvalidArgument("not a group conversation")
	}
	return conversation, nil
}

// dropParticipant removes userID from the participant list, id index and
// unread counters, keeping the three views consistent.
func (s *participantService) dropParticipant(c *model.Conversation, userID string) {
	c.Participants = lo.Filter(c.Participants, func(p model.Participant, _ int) bool {
		return p.UserID != userID
	})
	c.ParticipantIDs = lo.Filter(c.ParticipantIDs, func(id string, _ int) bool {
		return id != userID
	})
	delete(c.UnreadCounts, userID)
}
