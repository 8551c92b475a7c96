package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/infrastructure/config"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	// DefaultGraphBaseURL is the messaging API root
	DefaultGraphBaseURL = "https://graph.facebook.com/v20.0"
	// DefaultSendTimeout bounds one outbound message
	DefaultSendTimeout = 10 * time.Second

	maxErrorBody = 4 << 10
)

// SendError is returned when the messaging API rejects a message
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("messaging API returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later
func (e *SendError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CloudAPISender delivers text replies through the Cloud API messages endpoint
type CloudAPISender struct {
	client        *http.Client
	baseURL       string
	phoneNumberID string
	accessToken   string
	logger        *zap.Logger
}

// NewCloudAPISender creates a sender from channel configuration
func NewCloudAPISender(cfg config.ChannelConfig, logger *zap.Logger) *CloudAPISender {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	baseURL := strings.TrimRight(cfg.GraphBaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudAPISender{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:       baseURL,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		logger:        logger,
	}
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// SendText posts one text message to the address
func (s *CloudAPISender) SendText(ctx context.Context, to conversation.Address, text string) error {
	ctx, span := telemetry.StartSpan(ctx, "channel.send_text")
	defer span.End()

	payload, err := json.Marshal(textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to.String(),
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		sendErr := &SendError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		telemetry.RecordError(span, sendErr)
		return sendErr
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debug("Reply sent", zap.String("to", to.Masked()))
	return nil
}
