package router

import (
	"github.com/labstack/echo/v4"

	"talentos/internal/adapter/api/handler"
	"talentos/internal/adapter/api/middleware"
)

// SetupChatRouter sets up all chat-related routes (excluding WebSocket)
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/conversations")
	chatGroup.Use(authMiddleware.Authenticate) // All chat endpoints require authentication

	// Conversation management
	chatGroup.POST("/resolve", chatHandler.ResolveConversation) // POST /v1/conversations/resolve - Find or create the pair conversation
	chatGroup.GET("", chatHandler.ListConversations)            // GET /v1/conversations - Get caller's conversation list
	chatGroup.PUT("/:id/read", chatHandler.MarkConversationRead) // PUT /v1/conversations/:id/read - Mark conversation as read

	// Message management
	chatGroup.GET("/:id/messages", chatHandler.GetMessages) // GET /v1/conversations/:id/messages - Get messages, oldest first
	chatGroup.POST("/:id/messages", chatHandler.SendMessage) // POST /v1/conversations/:id/messages - Send message
	chatGroup.POST("/:id/media", chatHandler.UploadMedia)   // POST /v1/conversations/:id/media - Upload attachment
}
