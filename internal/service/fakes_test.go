package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"converse/internal/identity"
	"converse/internal/model"
)

// In-memory stand-ins for the mongo-backed repositories. They mirror the
// repository contracts, including (nil, nil) lookups for missing documents.

type fakeConversationRepo struct {
	mu    sync.Mutex
	store map[string]*model.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{store: make(map[string]*model.Conversation)}
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.Participants = append([]model.Participant(nil), c.Participants...)
	out.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	out.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return &out
}

func (r *fakeConversationRepo) Insert(_ context.Context, c *model.Conversation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = primitive.NewObjectID()
	r.store[c.ID.Hex()] = cloneConversation(c)
	return c.ID.Hex(), nil
}

func (r *fakeConversationRepo) FindByID(_ context.Context, id string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.store[id]
	if !ok {
		return nil, nil
	}
	return cloneConversation(c), nil
}

func (r *fakeConversationRepo) FindPrivateBetween(_ context.Context, a, b string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.store {
		if c.ConversationType != model.ConversationTypePrivate || len(c.ParticipantIDs) != 2 {
			continue
		}
		if c.HasParticipant(a) && c.HasParticipant(b) {
			return cloneConversation(c), nil
		}
	}
	return nil, nil
}

func (r *fakeConversationRepo) FindByParticipant(_ context.Context, userID string) ([]model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Conversation
	for _, c := range r.store {
		if c.HasParticipant(userID) {
			out = append(out, *cloneConversation(c))
		}
	}
	return out, nil
}

func (r *fakeConversationRepo) Save(_ context.Context, c *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.UpdatedAt = time.Now().UTC()
	r.store[c.ID.Hex()] = cloneConversation(c)
	return nil
}

func (r *fakeConversationRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, id)
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []model.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) Insert(_ context.Context, msg *model.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = primitive.NewObjectID()
	r.messages = append(r.messages, *msg)
	return msg.ID.Hex(), nil
}

func (r *fakeMessageRepo) FindPage(_ context.Context, conversationID string, page, pageSize int64) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var all []model.Message
	for _, m := range r.messages {
		if m.ConversationID.Hex() == conversationID {
			all = append(all, m)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	skip := (page - 1) * pageSize
	if skip >= int64(len(all)) {
		return nil, nil
	}
	end := skip + pageSize
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return append([]model.Message(nil), all[skip:end]...), nil
}

func (r *fakeMessageRepo) MarkConversationRead(_ context.Context, conversationID, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var modified int64
	for i := range r.messages {
		m := &r.messages[i]
		if m.ConversationID.Hex() != conversationID || m.SenderID == userID || m.ReadByUser(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, model.ReadReceipt{UserID: userID, ReadAt: at})
		modified++
	}
	return modified, nil
}

func (r *fakeMessageRepo) DeleteByConversation(_ context.Context, conversationID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []model.Message
	var deleted int64
	for _, m := range r.messages {
		if m.ConversationID.Hex() == conversationID {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return deleted, nil
}

func (r *fakeMessageRepo) byConversation(conversationID string) []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, m := range r.messages {
		if m.ConversationID.Hex() == conversationID {
			out = append(out, m)
		}
	}
	return out
}

type fakeResolver struct {
	users map[string]identity.Summary
}

func newFakeResolver(ids ...string) *fakeResolver {
	r := &fakeResolver{users: make(map[string]identity.Summary)}
	for _, id := range ids {
		r.users[id] = identity.Summary{UserID: id, DisplayName: "user " + id}
	}
	return r
}

func (r *fakeResolver) Resolve(_ context.Context, userID string) (*identity.Summary, error) {
	s, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type recordedEvent struct {
	kind           string
	conversationID string
	userID         string
	message        *model.Message
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) BroadcastMessage(conversationID string, msg *model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{kind: "message", conversationID: conversationID, message: msg})
}

func (b *recordingBroadcaster) BroadcastRead(conversationID, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{kind: "read", conversationID: conversationID, userID: userID})
}
