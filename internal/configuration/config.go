package configuration

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type MongoConfig struct {
	URI                     string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017" validate:"required"`
	Database                string `envconfig:"MONGO_DATABASE" default:"converse" validate:"required"`
	ConversationsCollection string `envconfig:"MONGO_CONVERSATIONS_COLLECTION" default:"conversations" validate:"required"`
	MessagesCollection      string `envconfig:"MONGO_MESSAGES_COLLECTION" default:"messages" validate:"required"`
	UsersCollection         string `envconfig:"MONGO_USERS_COLLECTION" default:"users" validate:"required"`
}

type ServerConfig struct {
	AppPort            int      `envconfig:"APP_PORT" default:"8080" validate:"gt=0,lte=65535"`
	SocketPort         int      `envconfig:"SOCKET_PORT" default:"8081" validate:"gt=0,lte=65535"`
	SocketRoute        string   `envconfig:"SOCKET_ROUTE" default:"ws" validate:"required"`
	AllowedOrigins     []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:4200"`
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"300" validate:"gt=0"`
	RateLimitBurst     int      `envconfig:"RATE_LIMIT_BURST" default:"30" validate:"gt=0"`
}

type Config struct {
	Mongo  MongoConfig
	Server ServerConfig
}

// LoadConfig reads configuration from the environment, loading a local .env
// file first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var config Config
	if err := envconfig.Process("converse", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
