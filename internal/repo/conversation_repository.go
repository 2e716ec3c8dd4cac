package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"converse/internal/db"
	"converse/internal/model"
)

var (
	ErrInvalidConversationID = errors.New("invalid conversation ID: cannot be empty")
	ErrInvalidUserID         = errors.New("invalid user ID: cannot be empty")
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second
)

// ConversationRepository owns conversation aggregate persistence. Lookups
// return (nil, nil) when no document matches.
type ConversationRepository interface {
	Insert(ctx context.Context, conversation *model.Conversation) (string, error)
	FindByID(ctx context.Context, conversationID string) (*model.Conversation, error)
	FindPrivateBetween(ctx context.Context, userA, userB string) (*model.Conversation, error)
	FindByParticipant(ctx context.Context, userID string) ([]model.Conversation, error)
	Save(ctx context.Context, conversation *model.Conversation) error
	Delete(ctx context.Context, conversationID string) error
}

type conversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

func NewConversationRepository(mongoRepo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		mongoRepo: mongoRepo,
		logger:    logger,
	}
}

func (r *conversationRepository) Insert(ctx context.Context, conversation *model.Conversation) (string, error) {
	if conversation == nil {
		return "", errors.New("invalid conversation: cannot be nil")
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.Create(ctx, *conversation)
	if err != nil {
		r.logger.Error("failed to insert conversation", zap.Error(err))
		return "", fmt.Errorf("insert conversation failed: %w", err)
	}

	insertedID := ""
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		insertedID = oid.Hex()
		conversation.ID = oid
	}

	r.logger.Debug("conversation inserted",
		zap.String("conversation_id", insertedID),
		zap.String("type", conversation.ConversationType),
	)
	return insertedID, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conversation, err := r.mongoRepo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, primitive.ErrInvalidHex) {
			r.logger.Debug("conversation not found", zap.String("conversation_id", conversationID))
			return nil, nil
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	return conversation, nil
}

// FindPrivateBetween returns the private thread linking the two user ids,
// regardless of argument order.
func (r *conversationRepository) FindPrivateBetween(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_type", model.ConversationTypePrivate).
		All("participant_ids", []string{userA, userB}).
		Size("participant_ids", 2).
		Build()

	conversation, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("failed to look up private conversation",
			zap.String("user_a", userA),
			zap.String("user_b", userB),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to look up private conversation: %w", err)
	}

	return conversation, nil
}

func (r *conversationRepository) FindByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participant_ids", userID).Build()

	conversations, err := r.mongoRepo.FindAll(ctx, filter)
	if err != nil {
		r.logger.Error("failed to list conversations",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	r.logger.Debug("conversations retrieved",
		zap.String("user_id", userID),
		zap.Int("count", len(conversations)),
	)
	return conversations, nil
}

// Save overwrites the conversation document wholesale. Concurrent writers
// follow a read-modify-write discipline; last write wins on the aggregate.
func (r *conversationRepository) Save(ctx context.Context, conversation *model.Conversation) error {
	if conversation == nil || conversation.ID.IsZero() {
		return ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	conversation.UpdatedAt = time.Now().UTC()

	if _, err := r.mongoRepo.ReplaceByID(ctx, conversation.ID.Hex(), *conversation); err != nil {
		r.logger.Error("failed to save conversation",
			zap.String("conversation_id", conversation.ID.Hex()),
			zap.Error(err),
		)
		return fmt.Errorf("save conversation failed: %w", err)
	}

	return nil
}

func (r *conversationRepository) Delete(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.mongoRepo.DeleteByID(ctx, conversationID); err != nil {
		r.logger.Error("failed to delete conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return fmt.Errorf("delete conversation failed: %w", err)
	}

	r.logger.Info("conversation deleted", zap.String("conversation_id", conversationID))
	return nil
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
