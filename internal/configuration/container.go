package configuration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"converse/internal/db"
	"converse/internal/handler"
	"converse/internal/hub"
	"converse/internal/identity"
	"converse/internal/middleware"
	"converse/internal/model"
	"converse/internal/repo"
	"converse/internal/service"
)

type Container struct {
	ConversationHandler handler.ConversationHandler
	MonitorHandler      handler.MonitorHandler
	Hub                 *hub.Hub
	Limiter             *middleware.LimiterStore
	Config              Config
	Logger              *zap.Logger

	// private - for cleanup
	mongoDatabase *mongo.Database
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	con, err := db.OpenConnection(config.Mongo.URI, config.Mongo.Database)
	if err != nil {
		return nil, err
	}

	conversationRepo := repo.NewConversationRepository(
		db.NewRepository[model.Conversation](con, config.Mongo.ConversationsCollection), logger)
	messageRepo := repo.NewMessageRepository(
		db.NewRepository[model.Message](con, config.Mongo.MessagesCollection), logger)
	resolver := identity.NewDirectory(
		db.NewRepository[model.User](con, config.Mongo.UsersCollection), logger)

	h := hub.NewHub(logger)

	conversationService := service.NewConversationService(conversationRepo, messageRepo, resolver, h, logger)
	participantService := service.NewParticipantService(conversationRepo, messageRepo, resolver, h, logger)

	chatHandler := hub.NewChatHandler(conversationService, logger)
	chatHandler.SetHub(h)
	h.SetGateway(chatHandler)

	limiter := middleware.NewLimiterStore(config.Server.RateLimitPerMinute, config.Server.RateLimitBurst, time.Minute)

	return &Container{
		ConversationHandler: handler.NewConversationHandler(conversationService, participantService),
		MonitorHandler:      handler.NewMonitorHandler(hub.NewMonitorService(h)),
		Hub:                 h,
		Limiter:             limiter,
		Config:              *config,
		Logger:              logger,
		mongoDatabase:       con,
	}, nil
}

// Close gracefully shuts down all connections.
func (c *Container) Close() error {
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.Limiter != nil {
		c.Limiter.Stop()
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.mongoDatabase != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoDatabase.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
