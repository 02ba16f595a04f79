package router

import (
	"github.com/labstack/echo/v4"

	"talentos/internal/adapter/api/handler"
	"talentos/internal/adapter/api/middleware"
)

func Setup(e *echo.Echo, chatHandler *handler.ChatHandler, wsHandler *handler.WebSocketHandler, healthHandler *handler.HealthHandler, authMiddleware *middleware.AuthMiddleware) {
	SetupChatRouter(e, chatHandler, authMiddleware)
	SetupWebSocketRouter(e, wsHandler)
	SetupHealthRouter(e, healthHandler)
}
