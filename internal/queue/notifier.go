// Package queue implements the push-notification channel that wakes the
// worker when a job is inserted. The channel is a plain RabbitMQ queue and
// strictly an optimization: publishing is best-effort, the listener
// reconnects on its own, and polling makes progress even when the broker
// is down entirely.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const jobQueueName = "jobs.enqueued"

// JobEnqueuedEvent is published whenever a job is inserted. Consumers only
// use it as a wake-up signal; the job itself is claimed from the database.
type JobEnqueuedEvent struct {
	JobID uint64 `json:"job_id"`
	Type  string `json:"type"`
}

// Notifier publishes and consumes job wake-up signals. A zero URL disables
// both directions, degrading the worker to pure polling.
type Notifier struct {
	url string
	log *logrus.Entry
}

// NewNotifier returns a Notifier for the given AMQP URL. Pass an empty URL
// to disable push notifications.
func NewNotifier(url string, log *logrus.Entry) *Notifier {
	return &Notifier{url: url, log: log}
}

// Enabled reports whether a broker URL is configured.
func (n *Notifier) Enabled() bool { return n.url != "" }

// Publish announces a freshly enqueued job. Errors are logged and
// returned, never fatal: the job is already durable in the database and a
// poll will pick it up regardless.
func (n *Notifier) Publish(ctx context.Context, ev JobEnqueuedEvent) error {
	if !n.Enabled() {
		return nil
	}
	conn, err := amqp.Dial(n.url)
	if err != nil {
		n.log.WithError(err).Warn("job notifier: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		n.log.WithError(err).Warn("job notifier: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(jobQueueName, true, false, false, false, nil); err != nil {
		n.log.WithError(err).Warn("job notifier: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient, // a lost signal only costs one poll interval
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", jobQueueName, false, false, pub); err != nil {
		n.log.WithError(err).Warn("job notifier: publish failed")
		return err
	}
	return nil
}

// Listen consumes wake-up signals and forwards a token into wake for each
// one, dropping tokens when the channel is full (one pending wake-up is
// enough). It runs a reconnect loop with doubling backoff capped at 30s
// and returns only when ctx is cancelled.
func (n *Notifier) Listen(ctx context.Context, wake chan<- struct{}) {
	if !n.Enabled() {
		return
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(n.url)
		if err != nil {
			n.log.WithError(err).WithField("retry_in", backoff.String()).
				Warn("job notifier: dial failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := n.consumeLoop(ctx, conn, wake); err != nil {
			n.log.WithError(err).Info("job notifier: consume loop ended, reconnecting")
		}
		_ = conn.Close()
		if !sleepCtx(ctx, 2*time.Second) {
			return
		}
	}
}

func (n *Notifier) consumeLoop(ctx context.Context, conn *amqp.Connection, wake chan<- struct{}) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(jobQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(jobQueueName, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			var ev JobEnqueuedEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				n.log.WithError(err).Warn("job notifier: bad wake-up payload")
				continue
			}
			select {
			case wake <- struct{}{}:
			default: // a wake-up is already pending
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
