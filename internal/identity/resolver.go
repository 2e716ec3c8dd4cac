// Package identity looks up display summaries for user ids. The conversation
// engine never owns identity records; it only snapshots display fields at
// participant-join time and for message sender names.
package identity

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"converse/internal/db"
	"converse/internal/model"
)

// Summary is the display snapshot of a user.
type Summary struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// Resolver resolves a user id to a display summary. A nil Summary with a nil
// error means the user does not exist.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (*Summary, error)
}

const resolveTimeout = 5 * time.Second

type directory struct {
	users  *db.Repository[model.User]
	logger *zap.Logger
}

// NewDirectory returns a Resolver backed by the users collection.
func NewDirectory(users *db.Repository[model.User], logger *zap.Logger) Resolver {
	return &directory{users: users, logger: logger}
}

func (d *directory) Resolve(ctx context.Context, userID string) (*Summary, error) {
	if userID == "" {
		return nil, nil
	}

	if _, hadDeadline := ctx.Deadline(); !hadDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, resolveTimeout)
		defer cancel()
	}

	user, err := d.users.FindOne(ctx, db.NewFilter().Eq("user_id", userID).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			d.logger.Debug("user not found", zap.String("user_id", userID))
			return nil, nil
		}
		d.logger.Error("failed to resolve user", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return &Summary{
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
		Avatar:      user.Avatar,
	}, nil
}
