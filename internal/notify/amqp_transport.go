package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueuePublisher publishes a message body to a named queue.
type QueuePublisher interface {
	Publish(ctx context.Context, queue, messageID string, body []byte) error
}

// SMSJob is the payload consumed by the SMS gateway.
type SMSJob struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	Text        string    `json:"text"`
	QueuedAt    time.Time `json:"queued_at"`
}

// QueueSMSTransport hands text messages to a gateway through a durable queue.
// A send succeeds once the broker accepts the job.
type QueueSMSTransport struct {
	publisher QueuePublisher
	queue     string
}

// NewQueueSMSTransport constructs the transport.
func NewQueueSMSTransport(publisher QueuePublisher, queue string) *QueueSMSTransport {
	return &QueueSMSTransport{publisher: publisher, queue: queue}
}

// SendSMS enqueues the message.
func (t *QueueSMSTransport) SendSMS(ctx context.Context, phoneNumber, text string) (string, error) {
	job := SMSJob{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		Text:        text,
		QueuedAt:    time.Now().UTC(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	if err := t.publisher.Publish(ctx, t.queue, job.ID, body); err != nil {
		return "", fmt.Errorf("publish sms job: %w", err)
	}
	return job.ID, nil
}
