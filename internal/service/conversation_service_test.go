package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"converse/internal/apperr"
	"converse/internal/model"
)

type serviceFixture struct {
	conversations *fakeConversationRepo
	messages      *fakeMessageRepo
	resolver      *fakeResolver
	broadcaster   *recordingBroadcaster
	svc           ConversationService
	participants  ParticipantService
}

func newFixture(userIDs ...string) *serviceFixture {
	f := &serviceFixture{
		conversations: newFakeConversationRepo(),
		messages:      newFakeMessageRepo(),
		resolver:      newFakeResolver(userIDs...),
		broadcaster:   &recordingBroadcaster{},
	}
	logger := zap.NewNop()
	f.svc = NewConversationService(f.conversations, f.messages, f.resolver, f.broadcaster, logger)
	f.participants = NewParticipantService(f.conversations, f.messages, f.resolver, f.broadcaster, logger)
	return f
}

func (f *serviceFixture) createGroup(t *testing.T, creator, name string, members []string) *model.Conversation {
	t.Helper()
	conversation, err := f.svc.CreateGroup(context.Background(), creator, name, "", members)
	require.NoError(t, err)
	return conversation
}

func TestCreateOrGetPrivate_SameConversationEitherOrder(t *testing.T) {
	f := newFixture("alice", "bob")

	first, err := f.svc.CreateOrGetPrivate(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, model.ConversationTypePrivate, first.ConversationType)
	require.Equal(t, map[string]int{"alice": 0, "bob": 0}, first.UnreadCounts)

	second, err := f.svc.CreateOrGetPrivate(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	third, err := f.svc.CreateOrGetPrivate(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, first.ID, third.ID)
}

func TestCreateOrGetPrivate_SelfConversationRejected(t *testing.T) {
	f := newFixture("alice")

	_, err := f.svc.CreateOrGetPrivate(context.Background(), "alice", "alice")
	require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestCreateOrGetPrivate_UnknownOtherUser(t *testing.T) {
	f := newFixture("alice")

	_, err := f.svc.CreateOrGetPrivate(context.Background(), "alice", "ghost")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateGroup_CreatorIsAdminAndNarrated(t *testing.T) {
	f := newFixture("alice", "bob", "carol")

	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob", "carol", "bob", "ghost"})

	require.Len(t, conversation.Participants, 3)
	require.Equal(t, "alice", conversation.AdminID)
	admin := conversation.FindParticipant("alice")
	require.Equal(t, model.RoleAdmin, admin.Role)
	require.Equal(t, model.RoleMember, conversation.FindParticipant("bob").Role)
	require.Equal(t, map[string]int{"alice": 0, "bob": 0, "carol": 0}, conversation.UnreadCounts)

	msgs := f.messages.byConversation(conversation.ID.Hex())
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsSystemMessage)
	require.Equal(t, model.SystemMessageCreated, msgs[0].SystemMessageType)
	require.Contains(t, msgs[0].Content, "created the group")
}

func TestCreateGroup_Validation(t *testing.T) {
	f := newFixture("alice", "bob")

	_, err := f.svc.CreateGroup(context.Background(), "alice", "   ", "", []string{"bob"})
	require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.svc.CreateGroup(context.Background(), "alice", "Cooks", "", nil)
	require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.svc.CreateGroup(context.Background(), "ghost", "Cooks", "", []string{"bob"})
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestPostMessage_IncrementsOtherCountersOnly(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob", "carol"})
	id := conversation.ID.Hex()

	msg, err := f.svc.PostMessage(context.Background(), id, "alice", "hi", "")
	require.NoError(t, err)
	require.Equal(t, model.MessageTypeText, msg.MessageType)
	require.Len(t, msg.ReadBy, 1)
	require.Equal(t, "alice", msg.ReadBy[0].UserID)

	reloaded, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"alice": 0, "bob": 1, "carol": 1}, reloaded.UnreadCounts)
	require.Equal(t, "hi", reloaded.LastMessage.Content)
	require.Equal(t, "alice", reloaded.LastMessage.SenderID)
}

func TestPostMessage_UnreadSumGrowsPerRecipient(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob", "carol"})
	id := conversation.ID.Hex()

	const n = 5
	for i := 0; i < n; i++ {
		_, err := f.svc.PostMessage(context.Background(), id, "alice", "msg", "text")
		require.NoError(t, err)
	}

	reloaded, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.UnreadCounts["alice"])
	require.Equal(t, n*2, reloaded.UnreadCounts["bob"]+reloaded.UnreadCounts["carol"])
}

func TestPostMessage_BlankContentRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture("alice", "bob")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob"})
	id := conversation.ID.Hex()

	_, err := f.svc.PostMessage(context.Background(), id, "alice", "   ", "text")
	require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	reloaded, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, reloaded.LastMessage)
	require.Equal(t, 0, reloaded.UnreadCounts["bob"])

	// only the creation narration exists
	require.Len(t, f.messages.byConversation(id), 1)
}

func TestPostMessage_NonParticipantDenied(t *testing.T) {
	f := newFixture("alice", "bob", "mallory")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob"})

	_, err := f.svc.PostMessage(context.Background(), conversation.ID.Hex(), "mallory", "hi", "text")
	require.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))
}

func TestPostMessage_MissingConversation(t *testing.T) {
	f := newFixture("alice")

	_, err := f.svc.PostMessage(context.Background(), "652f1f77bcf86cd799439011", "alice", "hi", "text")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMarkRead_Idempotent(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob", "carol"})
	id := conversation.ID.Hex()

	_, err := f.svc.PostMessage(context.Background(), id, "alice", "hi", "text")
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(context.Background(), id, "bob"))

	reloaded, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.UnreadCounts["bob"])
	require.Equal(t, 1, reloaded.UnreadCounts["carol"])

	snapshot := f.messages.byConversation(id)

	// second call changes nothing
	require.NoError(t, f.svc.MarkRead(context.Background(), id, "bob"))

	reloaded, err = f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.UnreadCounts["bob"])
	require.Equal(t, snapshot, f.messages.byConversation(id))

	for _, m := range snapshot {
		if m.SenderID == "alice" && !m.IsSystemMessage {
			count := 0
			for _, r := range m.ReadBy {
				if r.UserID == "bob" {
					count++
				}
			}
			require.Equal(t, 1, count, "no duplicate receipts")
		}
	}
}

func TestMarkRead_ScenarioCounterReset(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob", "carol"})
	id := conversation.ID.Hex()

	_, err := f.svc.PostMessage(context.Background(), id, "alice", "hi", "text")
	require.NoError(t, err)

	reloaded, _ := f.svc.Get(context.Background(), id)
	require.Equal(t, map[string]int{"alice": 0, "bob": 1, "carol": 1}, reloaded.UnreadCounts)
	require.Equal(t, "hi", reloaded.LastMessage.Content)

	require.NoError(t, f.svc.MarkRead(context.Background(), id, "bob"))

	reloaded, _ = f.svc.Get(context.Background(), id)
	require.Equal(t, 0, reloaded.UnreadCounts["bob"])
	require.Equal(t, 1, reloaded.UnreadCounts["carol"])
}

func TestListMessages_AscendingWithinPage(t *testing.T) {
	f := newFixture("alice", "bob")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob"})
	id := conversation.ID.Hex()

	for _, content := range []string{"one", "two", "three"} {
		_, err := f.svc.PostMessage(context.Background(), id, "alice", content, "text")
		require.NoError(t, err)
	}

	// page 1 holds the newest two messages, in chronological order
	page1, err := f.svc.ListMessages(context.Background(), id, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.Equal(t, "two", page1[0].Content)
	require.Equal(t, "three", page1[1].Content)

	page2, err := f.svc.ListMessages(context.Background(), id, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.Equal(t, "one", page2[1].Content)
}

func TestListMessages_ClampsNonPositivePaging(t *testing.T) {
	f := newFixture("alice", "bob")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob"})
	id := conversation.ID.Hex()

	_, err := f.svc.PostMessage(context.Background(), id, "alice", "hi", "text")
	require.NoError(t, err)

	messages, err := f.svc.ListMessages(context.Background(), id, -3, 0)
	require.NoError(t, err)
	require.NotEmpty(t, messages)
}

func TestUnreadTotal_SumsAcrossConversations(t *testing.T) {
	f := newFixture("alice", "bob", "carol")

	group := f.createGroup(t, "alice", "Cooks", []string{"bob", "carol"})
	private, err := f.svc.CreateOrGetPrivate(context.Background(), "alice", "bob")
	require.NoError(t, err)

	_, err = f.svc.PostMessage(context.Background(), group.ID.Hex(), "alice", "group hello", "text")
	require.NoError(t, err)
	_, err = f.svc.PostMessage(context.Background(), private.ID.Hex(), "alice", "private hello", "text")
	require.NoError(t, err)
	_, err = f.svc.PostMessage(context.Background(), private.ID.Hex(), "alice", "again", "text")
	require.NoError(t, err)

	total, err := f.svc.UnreadTotal(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, 3, total)

	total, err = f.svc.UnreadTotal(context.Background(), "carol")
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestListMine_IncludesUnreadAndCounterpart(t *testing.T) {
	f := newFixture("alice", "bob", "carol")

	f.createGroup(t, "alice", "Cooks", []string{"carol"})
	private, err := f.svc.CreateOrGetPrivate(context.Background(), "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.PostMessage(context.Background(), private.ID.Hex(), "alice", "hey", "text")
	require.NoError(t, err)

	summaries, err := f.svc.ListMine(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].Counterpart)
	require.Equal(t, "alice", summaries[0].Counterpart.UserID)

	summaries, err = f.svc.ListMine(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	// most recently active first
	require.Equal(t, private.ID, summaries[0].ID)
}

func TestPostMessage_BroadcastsToRoom(t *testing.T) {
	f := newFixture("alice", "bob")
	conversation := f.createGroup(t, "alice", "Cooks", []string{"bob"})
	id := conversation.ID.Hex()

	_, err := f.svc.PostMessage(context.Background(), id, "alice", "hi", "text")
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkRead(context.Background(), id, "bob"))

	var kinds []string
	for _, ev := range f.broadcaster.events {
		require.Equal(t, id, ev.conversationID)
		kinds = append(kinds, ev.kind)
	}
	// creation narration, the posted message, then the read receipt
	require.Equal(t, []string{"message", "message", "read"}, kinds)
}
