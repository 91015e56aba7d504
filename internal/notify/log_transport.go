package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogTransport writes messages to the logger instead of delivering them.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport constructs a transport for development environments.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

// SendSMS logs the text message.
func (t *LogTransport) SendSMS(_ context.Context, phoneNumber, text string) (string, error) {
	id := uuid.NewString()
	t.logger.Info("sms dispatched", zap.String("message_id", id), zap.String("to", phoneNumber), zap.Int("length", len(text)))
	return id, nil
}

// SendEmail logs the email envelope.
func (t *LogTransport) SendEmail(_ context.Context, msg EmailMessage) (string, error) {
	id := uuid.NewString()
	t.logger.Info("email dispatched", zap.String("message_id", id), zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return id, nil
}
