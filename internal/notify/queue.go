package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the queue name used when none is configured.
const DefaultQueue = "gatekeeper.mail"

// MailJob is the payload published for an out-of-process mail sender.
type MailJob struct {
	Message
	QueuedAt time.Time `json:"queued_at"`
}

// QueueTransport publishes messages to a durable RabbitMQ queue instead of
// sending them directly. A connection is opened per publish.
type QueueTransport struct {
	url   string
	queue string
}

// NewQueueTransport returns a transport publishing to queue on the broker at
// url.
func NewQueueTransport(url, queue string) (*QueueTransport, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	if queue == "" {
		queue = DefaultQueue
	}
	return &QueueTransport{url: url, queue: queue}, nil
}

// Send publishes msg as a persistent JSON MailJob.
func (t *QueueTransport) Send(ctx context.Context, msg Message) error {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so jobs survive broker restarts.
	if _, err := ch.QueueDeclare(
		t.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	now := time.Now().UTC()
	body, err := json.Marshal(MailJob{Message: msg, QueuedAt: now})
	if err != nil {
		return fmt.Errorf("marshal mail job: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         msg.Kind,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		t.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}
