package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/warungdigital/leadbot-backend/internal/clients/waha"
	"github.com/warungdigital/leadbot-backend/internal/identity"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/services"
)

type webhookResponse struct {
	Success bool   `json:"success"`
	Type    string `json:"type,omitempty"`
}

// WAHAHandler receives WhatsApp webhook events. It always answers 200 so the
// gateway never re-delivers because of our own processing errors; redelivery
// is only wanted when we deliberately release the idempotency mark.
type WAHAHandler struct {
	log     *logger.Logger
	inbound services.InboundService
	sender  waha.Client
}

func NewWAHAHandler(log *logger.Logger, inbound services.InboundService, sender waha.Client) *WAHAHandler {
	return &WAHAHandler{
		log:     log.With("handler", "WAHAHandler"),
		inbound: inbound,
		sender:  sender,
	}
}

func (h *WAHAHandler) Webhook(c *gin.Context) {
	var hook identity.WAHAWebhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		h.log.Warn("unparseable waha webhook", "error", err)
		c.JSON(http.StatusOK, webhookResponse{Success: true, Type: "ignored"})
		return
	}

	if hook.Event != "message" && hook.Event != "message.any" {
		c.JSON(http.StatusOK, webhookResponse{Success: true, Type: "ignored_event"})
		return
	}

	msg := identity.FromWAHA(hook)
	if reason := identity.Validate(msg); reason != "" && reason != identity.ReasonOwnMessage {
		h.log.Info("skipping waha message", "reason", reason, "message_id", msg.MessageID)
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
		if err := h.sender.StartTyping(ctx, msg.UserID); err == nil {
			defer func() {
				_ = h.sender.StopTyping(ctx, msg.UserID)
			}()
		}
		if err := h.sender.SendTextPair(ctx, msg.UserID, res.ReplyText, res.SecondaryText); err != nil {
			h.log.Error("reply delivery failed", "error", err, "user_id", msg.UserID)
		}
	}

	c.JSON(http.StatusOK, webhookResponse{Success: true, Type: res.Type})
}
