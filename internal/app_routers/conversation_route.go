package approuters

import (
	"github.com/gin-gonic/gin"

	"converse/internal/configuration"
	"converse/internal/middleware"
)

func ConversationRouters(router *gin.Engine, container *configuration.Container) {
	h := container.ConversationHandler

	conversations := router.Group("/api/conversations")
	conversations.Use(middleware.RateLimit(container.Limiter))
	conversations.Use(middleware.RequireUser())
	{
		conversations.POST("/private", h.CreatePrivate)
		conversations.POST("/group", h.CreateGroup)
		conversations.GET("/mine", h.ListMine)
		conversations.GET("/unread-count", h.UnreadTotal)
		conversations.GET("/:conversationId/messages", h.ListMessages)
		conversations.POST("/:conversationId/messages", h.PostMessage)
		conversations.PUT("/:conversationId/read", h.MarkRead)
		conversations.POST("/:conversationId/participants", h.AddParticipants)
		conversations.DELETE("/:conversationId/participants/:userId", h.RemoveParticipant)
		conversations.DELETE("/:conversationId/leave", h.Leave)
		conversations.PUT("/:conversationId", h.UpdateSettings)
	}
}
