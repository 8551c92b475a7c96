package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tallyline/backend/internal/application/reconciliation"
	"github.com/tallyline/backend/internal/infrastructure/logger"
	"github.com/tallyline/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// DefaultPaymentSignatureHeader carries the provider's HMAC-SHA512 signature
const DefaultPaymentSignatureHeader = "X-Paystack-Signature"

// WebhookProcessor applies provider payment webhooks
type WebhookProcessor interface {
	Process(ctx context.Context, rawBody []byte, signature string) (*reconciliation.WebhookResult, error)
}

// PaymentWebhookHandler receives payment provider callbacks
type PaymentWebhookHandler struct {
	BaseHandler
	processor       WebhookProcessor
	signatureHeader string
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(processor WebhookProcessor, signatureHeader string) *PaymentWebhookHandler {
	if signatureHeader == "" {
		signatureHeader = DefaultPaymentSignatureHeader
	}
	return &PaymentWebhookHandler{
		processor:       processor,
		signatureHeader: signatureHeader,
	}
}

// Receive godoc
//
//	@Summary		Receive payment provider webhooks
//	@Description	Verifies the HMAC-SHA512 signature and records successful charges against the referenced invoice
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	dto.WebhookAck	"Applied, duplicate, ignored or unusable"
//	@Failure		401	{object}	dto.Response	"Invalid signature"
//	@Failure		500	{object}	dto.Response	"Transient failure, safe to retry"
//	@Router			/api/v1/payments/webhook [post]
func (h *PaymentWebhookHandler) Receive(c *gin.Context) {
	log := logger.GetGinLogger(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil || len(body) > maxWebhookPayloadSize {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	result, err := h.processor.Process(c.Request.Context(), body, c.GetHeader(h.signatureHeader))
	switch {
	case errors.Is(err, reconciliation.ErrSignatureMismatch):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Webhook signature verification failed")
		return
	case errors.Is(err, reconciliation.ErrInvalidPayload):
		// signed by the provider but unusable; a retry would carry the same body
		log.Error("Unusable payment webhook acknowledged", zap.Error(err))
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Message: "Payload could not be used"})
		return
	case err != nil:
		_ = c.Error(err)
		h.InternalError(c, "Webhook could not be processed, please retry")
		return
	}

	c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Outcome: string(result.Outcome)})
}
