package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/warungdigital/leadbot-backend/internal/http/handlers"
)

type RouterConfig struct {
	WAHAHandler     *handlers.WAHAHandler
	TelegramHandler *handlers.TelegramHandler
	JobsHandler     *handlers.JobsHandler
	AllowOrigins    []string
	Tracing         bool
	ServiceName     string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	if cfg.Tracing {
		name := cfg.ServiceName
		if name == "" {
			name = "leadbot"
		}
		router.Use(otelgin.Middleware(name))
	}

	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		if cfg.WAHAHandler != nil {
			api.POST("/waha/webhook", cfg.WAHAHandler.Webhook)
		}
		if cfg.TelegramHandler != nil {
			api.POST("/telegram/webhook", cfg.TelegramHandler.Webhook)
		}
	}

	if cfg.JobsHandler != nil {
		internal := router.Group("/internal")
		internal.GET("/jobs/stats", cfg.JobsHandler.Stats)
	}

	return router
}
