package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PushSender delivers a job to one recipient's devices.
type PushSender interface {
	Send(ctx context.Context, recipient string, job *PushJob) error
}

// LogSender logs jobs instead of delivering them. It is the default until a
// push provider is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, recipient string, job *PushJob) error {
	slog.Info("push notification",
		slog.String("recipient", recipient),
		slog.String("kind", job.Kind),
		slog.String("title", job.Title))
	return nil
}

// Dispatcher consumes push jobs and fans each one out to its recipients.
type Dispatcher struct {
	sender PushSender
}

func NewDispatcher(sender PushSender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Run processes deliveries until ctx is done or the channel closes.
// Malformed jobs are dropped; jobs with delivery failures are requeued once.
func (d *Dispatcher) Run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping push dispatcher")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("push job channel closed")
				return
			}

			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := d.handle(jobCtx, msg.Body)
			cancel()

			var malformed *malformedJobError
			switch {
			case err == nil:
				_ = msg.Ack(false)
			case errors.As(err, &malformed):
				slog.Error("dropping malformed push job", slog.String("error", err.Error()))
				_ = msg.Nack(false, false)
			default:
				slog.Error("push job failed", slog.String("error", err.Error()), slog.Bool("redelivered", msg.Redelivered))
				_ = msg.Nack(false, !msg.Redelivered)
			}
		}
	}
}

type malformedJobError struct{ err error }

func (e *malformedJobError) Error() string { return "malformed push job: " + e.err.Error() }
func (e *malformedJobError) Unwrap() error { return e.err }

func (d *Dispatcher) handle(ctx context.Context, body []byte) error {
	var job PushJob
	if err := json.Unmarshal(body, &job); err != nil {
		return &malformedJobError{err: err}
	}
	if job.Kind == "" || len(job.Recipients) == 0 {
		return &malformedJobError{err: fmt.Errorf("kind and recipients are required")}
	}

	failed := 0
	for _, recipient := range job.Recipients {
		if err := d.sender.Send(ctx, recipient, &job); err != nil {
			failed++
			slog.Warn("push delivery failed",
				slog.String("recipient", recipient),
				slog.String("kind", job.Kind),
				slog.String("error", err.Error()))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deliveries failed", failed, len(job.Recipients))
	}
	return nil
}
