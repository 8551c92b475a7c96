package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	convapp "github.com/tallyline/backend/internal/application/conversation"
	"github.com/tallyline/backend/internal/infrastructure/channel"
	"github.com/tallyline/backend/internal/infrastructure/logger"
	"github.com/tallyline/backend/internal/interfaces/http/dto"
	"github.com/tallyline/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// maxWebhookPayloadSize bounds webhook bodies; channel and provider
// callbacks are a few KB.
const maxWebhookPayloadSize = 256 << 10

// MessageSubmitter hands inbound messages to background processing
type MessageSubmitter interface {
	Submit(ctx context.Context, msg convapp.InboundMessage) error
}

// ChannelWebhookHandler receives the messaging channel's callbacks. It
// acknowledges deliveries before any business logic runs.
type ChannelWebhookHandler struct {
	BaseHandler
	submitter   MessageSubmitter
	verifyToken string
	appSecret   string
}

// NewChannelWebhookHandler creates a new ChannelWebhookHandler. An empty
// appSecret disables signature verification.
func NewChannelWebhookHandler(submitter MessageSubmitter, verifyToken, appSecret string) *ChannelWebhookHandler {
	return &ChannelWebhookHandler{
		submitter:   submitter,
		verifyToken: verifyToken,
		appSecret:   appSecret,
	}
}

// HandshakeQuery is the channel's subscription challenge
type HandshakeQuery struct {
	Mode      string `form:"hub.mode" binding:"required,eq=subscribe"`
	Token     string `form:"hub.verify_token" binding:"required"`
	Challenge string `form:"hub.challenge" binding:"required"`
}

// Verify godoc
//
//	@Summary		Channel subscription handshake
//	@Tags			webhooks
//	@Param			hub.mode			query		string	true	"Always subscribe"
//	@Param			hub.verify_token	query		string	true	"Shared verify token"
//	@Param			hub.challenge		query		string	true	"Value to echo"
//	@Success		200					{string}	string	"The challenge"
//	@Failure		403					{object}	dto.Response
//	@Router			/api/v1/channel/webhook [get]
func (h *ChannelWebhookHandler) Verify(c *gin.Context) {
	var q HandshakeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if h.verifyToken == "" || q.Token != h.verifyToken {
		h.Forbidden(c, "Verify token mismatch")
		return
	}
	c.String(http.StatusOK, q.Challenge)
}

// Receive godoc
//
//	@Summary		Receive inbound channel messages
//	@Tags			webhooks
//	@Accept			json
//	@Param			X-Hub-Signature-256	header	string	false	"sha256=<hex HMAC> when an app secret is configured"
//	@Success		200
//	@Failure		401	{object}	dto.Response
//	@Router			/api/v1/channel/webhook [post]
func (h *ChannelWebhookHandler) Receive(c *gin.Context) {
	log := logger.GetGinLogger(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil || len(body) > maxWebhookPayloadSize {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	if h.appSecret != "" && !channel.VerifySignature(h.appSecret, body, c.GetHeader(channel.SignatureHeader)) {
		log.Error("Channel webhook signature mismatch", zap.Bool("security_event", true))
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Webhook signature verification failed")
		return
	}

	messages, err := channel.ParseWebhook(body)
	// the channel retries anything but 200, and a retry cannot fix a bad body
	c.Status(http.StatusOK)
	if err != nil {
		log.Warn("Ignoring unparseable channel webhook", zap.Error(err))
		return
	}

	for _, m := range messages {
		msg := convapp.InboundMessage{
			ID:            m.ID,
			SenderAddress: m.From,
			Text:          m.Text,
			MessageType:   m.Type,
		}
		if err := h.submitter.Submit(c.Request.Context(), msg); err != nil {
			log.Error("Failed to submit inbound message", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}
