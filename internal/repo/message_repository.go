package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"converse/internal/db"
	"converse/internal/model"
)

var (
	ErrInvalidMessage   = errors.New("invalid message: message cannot be nil")
	ErrOperationTimeout = errors.New("operation timeout exceeded")
)

const (
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// MessageRepository owns the append-only per-conversation message log.
type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (string, error)
	// FindPage returns one page of messages, newest first.
	FindPage(ctx context.Context, conversationID string, page, pageSize int64) ([]model.Message, error)
	// MarkConversationRead appends a read receipt for userID to every message
	// in the conversation that userID did not author and has not already
	// read. Returns the number of messages updated.
	MarkConversationRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error)
	DeleteByConversation(ctx context.Context, conversationID string) (int64, error)
}

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

func NewMessageRepository(mongoRepo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: mongoRepo,
		logger:    logger,
	}
}

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (string, error) {
	if msg == nil {
		return "", ErrInvalidMessage
	}
	if msg.ConversationID.IsZero() {
		return "", ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
				msg.ID = oid
			}

			m.logger.Debug("message inserted",
				zap.String("inserted_id", insertedID),
				zap.String("conversation_id", msg.ConversationID.Hex()),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err

		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID.Hex()),
	)
	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

func (m *messageRepository) FindPage(ctx context.Context, conversationID string, page, pageSize int64) ([]model.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()

	result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     page,
		PageSize: pageSize,
		SortBy:   "created_at",
		SortDesc: true,
	})
	if err != nil {
		return nil, m.handleReadError(err, conversationID)
	}

	m.logger.Debug("messages fetched",
		zap.String("conversation_id", conversationID),
		zap.Int("count", len(result.Data)),
		zap.Int64("page", result.Page),
		zap.Int64("total", result.Total),
	)
	return result.Data, nil
}

func (m *messageRepository) MarkConversationRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error) {
	if conversationID == "" {
		return 0, ErrInvalidConversationID
	}
	if userID == "" {
		return 0, ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// The filter is the existence check: only messages authored by someone
	// else where the reader has no receipt yet are touched, so repeated or
	// concurrent calls never duplicate receipts.
	filter := db.NewFilter().
		ObjectID("conversation_id", conversationID).
		Ne("sender_id", userID).
		Ne("read_by.user_id", userID).
		Build()

	update := bson.M{"$push": bson.M{"read_by": model.ReadReceipt{UserID: userID, ReadAt: at}}}

	result, err := m.mongoRepo.UpdateManyRaw(ctx, filter, update)
	if err != nil {
		m.logger.Error("failed to append read receipts",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("mark conversation read failed: %w", err)
	}

	m.logger.Debug("read receipts appended",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
		zap.Int64("modified", result.ModifiedCount),
	)
	return result.ModifiedCount, nil
}

func (m *messageRepository) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	if conversationID == "" {
		return 0, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()

	result, err := m.mongoRepo.DeleteMany(ctx, filter)
	if err != nil {
		m.logger.Error("failed to delete conversation messages",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("delete messages failed: %w", err)
	}

	m.logger.Info("conversation messages deleted",
		zap.String("conversation_id", conversationID),
		zap.Int64("deleted", result.DeletedCount),
	)
	return result.DeletedCount, nil
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

func (m *messageRepository) handleReadError(err error, conversationID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("conversation_id", conversationID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("conversation_id", conversationID))
		return err
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("conversation_id", conversationID))
	return fmt.Errorf("fetch messages failed: %w", err)
}
