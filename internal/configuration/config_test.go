package configuration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "mongodb://localhost:27017", config.Mongo.URI)
	require.Equal(t, "converse", config.Mongo.Database)
	require.Equal(t, "conversations", config.Mongo.ConversationsCollection)
	require.Equal(t, 8080, config.Server.AppPort)
	require.Equal(t, 8081, config.Server.SocketPort)
	require.Equal(t, "ws", config.Server.SocketRoute)
	require.Equal(t, 300, config.Server.RateLimitPerMinute)
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://db.internal:27017")
	t.Setenv("MONGO_DATABASE", "converse_test")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com,https://admin.example.com")

	config, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "mongodb://db.internal:27017", config.Mongo.URI)
	require.Equal(t, "converse_test", config.Mongo.Database)
	require.Equal(t, 9090, config.Server.AppPort)
	require.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, config.Server.AllowedOrigins)
}

func TestLoadConfig_RejectsInvalidPort(t *testing.T) {
	t.Setenv("APP_PORT", "99999")

	_, err := LoadConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}
