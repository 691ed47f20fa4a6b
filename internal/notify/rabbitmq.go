package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	PushExchange = "chat.push"
	PushQueue    = "push.jobs"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// amqp channels must not be shared by concurrent publishers
	publishMu sync.Mutex
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until it succeeds, attempts run out or ctx is
// done. The delay doubles after each failure.
func NewRabbitMQWithRetry(ctx context.Context, url string, attempts int) (*RabbitMQ, error) {
	delay := 500 * time.Millisecond
	var lastErr error
	for i := 1; i <= attempts; i++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}
		lastErr = err
		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", i),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		PushExchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare push exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		PushQueue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", PushQueue, err)
	}

	if err := r.channel.QueueBind(
		PushQueue,    // queue name
		"push.#",     // routing key
		PushExchange, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", PushQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishJob publishes job with routing key push.<kind>.
func (r *RabbitMQ) PublishJob(ctx context.Context, job *PushJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal push job: %w", err)
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	err = r.channel.PublishWithContext(
		ctx,
		PushExchange,
		"push."+job.Kind,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Unix(job.Timestamp, 0),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish push job: %w", err)
	}

	slog.Debug("published push job",
		slog.String("kind", job.Kind),
		slog.Int("recipients", len(job.Recipients)))
	return nil
}

// ConsumeJobs starts a manual-ack consumer on the push queue.
func (r *RabbitMQ) ConsumeJobs() (<-chan amqp.Delivery, error) {
	if err := r.channel.Qos(16, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := r.channel.Consume(
		PushQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming push jobs",
		slog.String("queue", PushQueue))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
