package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/config"
	"github.com/spec-kit/coop-member-import/internal/messaging"
	"github.com/spec-kit/coop-member-import/internal/notify"
)

// buildSMSTransport returns the configured SMS transport and, for amqp, the
// broker connection the caller must close.
func buildSMSTransport(cfg config.NotificationConfig, logger *zap.Logger) (notify.SMSTransport, *messaging.RabbitMQ, error) {
	switch cfg.SMSTransport {
	case config.TransportAMQP:
		mq, err := messaging.NewRabbitMQ(cfg.AMQPURL)
		if err != nil {
			return nil, nil, err
		}
		if err := mq.DeclareQueue(cfg.SMSQueue); err != nil {
			_ = mq.Close()
			return nil, nil, fmt.Errorf("declare sms queue: %w", err)
		}
		logger.Info("sms transport: amqp", zap.String("queue", cfg.SMSQueue))
		return notify.NewQueueSMSTransport(mq, cfg.SMSQueue), mq, nil
	default:
		logger.Info("sms transport: log")
		return notify.NewLogTransport(logger), nil, nil
	}
}

func buildEmailTransport(cfg config.NotificationConfig, logger *zap.Logger) notify.EmailTransport {
	switch cfg.EmailTransport {
	case config.TransportSendGrid:
		logger.Info("email transport: sendgrid")
		return notify.NewSendGridTransport(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
	case config.TransportSMTP:
		logger.Info("email transport: smtp", zap.String("host", cfg.SMTPHost), zap.Int("port", cfg.SMTPPort))
		return notify.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom, senderDomain(cfg.EmailFrom))
	default:
		logger.Info("email transport: log")
		return notify.NewLogTransport(logger)
	}
}

func senderDomain(from string) string {
	if at := strings.LastIndex(from, "@"); at >= 0 {
		return strings.TrimSuffix(from[at+1:], ">")
	}
	return ""
}
