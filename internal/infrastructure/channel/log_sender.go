package channel

import (
	"context"

	"github.com/tallyline/backend/internal/domain/conversation"
	"go.uber.org/zap"
)

// LogSender writes replies to the log instead of a messaging API. It is the
// development sender.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a new LogSender
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// SendText logs the reply
func (s *LogSender) SendText(_ context.Context, to conversation.Address, text string) error {
	s.logger.Info("Outbound reply",
		zap.String("to", to.Masked()),
		zap.String("text", text),
	)
	return nil
}
