package app

import (
	"github.com/gin-gonic/gin"

	"github.com/warungdigital/leadbot-backend/internal/observability"
	"github.com/warungdigital/leadbot-backend/internal/server"
)

func wireRouter(handlers Handlers, cfg Config) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		WAHAHandler:     handlers.WAHA,
		TelegramHandler: handlers.Telegram,
		JobsHandler:     handlers.Jobs,
		AllowOrigins:    cfg.AllowOrigins,
		Tracing:         observability.Enabled(),
		ServiceName:     "leadbot",
	})
}
