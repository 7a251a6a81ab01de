package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/warungdigital/leadbot-backend/internal/clients/telegram"
	"github.com/warungdigital/leadbot-backend/internal/identity"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/services"
)

// TelegramHandler receives bot API webhook updates. Telegram retries on
// non-200, so like the WhatsApp side we acknowledge everything and rely on
// the pipeline's own idempotency for replays.
type TelegramHandler struct {
	log     *logger.Logger
	inbound services.InboundService
	sender  telegram.Client
}

func NewTelegramHandler(log *logger.Logger, inbound services.InboundService, sender telegram.Client) *TelegramHandler {
	return &TelegramHandler{
		log:     log.With("handler", "TelegramHandler"),
		inbound: inbound,
		sender:  sender,
	}
}

func (h *TelegramHandler) Webhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.log.Warn("unparseable telegram update", "error", err)
		c.JSON(http.StatusOK, webhookResponse{Success: true, Type: "ignored"})
		return
	}

	msg, ok := identity.FromTelegramUpdate(update)
	if !ok {
		c.JSON(http.StatusOK, webhookResponse{Success: true, Type: "ignored"})
		return
	}
	if reason := identity.Validate(msg); reason != "" {
		h.log.Info("skipping telegram message", "reason", reason, "message_id", msg.MessageID)
		c.JSON(http.StatusOK, webhookResponse{Success: true, Type: reason})
		return
	}

	res, err := h.inbound.Handle(c.Request.Context(), msg)
	if err != nil {
		h.log.Error("inbound handling failed", "error", err, "message_id", msg.MessageID)
		c.JSON(http.StatusOK, webhookResponse{Success: false, Type: res.Type})
		return
	}

	if res.ShouldReply && res.ReplyText != "" && h.sender != nil {
		ctx := c.Request.Context()
		if err := h.sender.SendText(ctx, msg.UserID, res.ReplyText); err != nil {
			h.log.Error("reply delivery failed", "error", err, "chat_id", msg.UserID)
		} else if res.SecondaryText != "" {
			if err := h.sender.SendText(ctx, msg.UserID, res.SecondaryText); err != nil {
				h.log.Error("secondary delivery failed", "error", err, "chat_id", msg.UserID)
			}
		}
	}

	c.JSON(http.StatusOK, webhookResponse{Success: true, Type: res.Type})
}
