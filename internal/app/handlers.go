package app

import (
	"github.com/warungdigital/leadbot-backend/internal/http/handlers"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

type Handlers struct {
	WAHA     *handlers.WAHAHandler
	Telegram *handlers.TelegramHandler
	Jobs     *handlers.JobsHandler
}

func wireHandlers(log *logger.Logger, services Services, repos Repos) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		WAHA:     handlers.NewWAHAHandler(log, services.Inbound, services.WAHA),
		Telegram: handlers.NewTelegramHandler(log, services.Inbound, services.Telegram),
		Jobs:     handlers.NewJobsHandler(log, repos.JobRun),
	}
}
