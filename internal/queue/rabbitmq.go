package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// DefaultQueueName is used when the config leaves queue_name empty.
const DefaultQueueName = "reelsmith.jobs"

// Channel is the subset of *amqp.Channel the broker backend uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

type jobMessage struct {
	JobID   string `json:"jobId"`
	VideoID string `json:"videoId"`
}

// RabbitMQ publishes job ids to a durable queue and consumes them with manual
// acks. Deliveries are always acked once the job is recorded, success or not,
// because jobs never retry automatically.
type RabbitMQ struct {
	*dispatcher

	ch       Channel
	conn     io.Closer
	queue    string
	workers  int
	consumer string

	base context.Context
	stop context.CancelFunc

	lifecycle sync.Mutex
	closed    bool
	started   bool
	wg        sync.WaitGroup
}

// DialRabbitMQ connects to url and returns the broker backend.
func DialRabbitMQ(url, queueName string, store *Store, runner Runner, videos Videos, opts Options) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "dial", "amqp_url is required", nil)
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, services.Wrap(services.ErrGateway, "queue", "dial", "connect to broker", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, services.Wrap(services.ErrGateway, "queue", "dial", "open channel", err)
	}
	q := NewRabbitMQ(ch, queueName, store, runner, videos, opts)
	q.conn = conn
	return q, nil
}

// NewRabbitMQ wraps an open channel.
func NewRabbitMQ(ch Channel, queueName string, store *Store, runner Runner, videos Videos, opts Options) *RabbitMQ {
	if strings.TrimSpace(queueName) == "" {
		queueName = DefaultQueueName
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	d := newDispatcher(store, runner, videos, opts)
	base, stop := context.WithCancel(context.Background())
	return &RabbitMQ{
		dispatcher: d,
		ch:         ch,
		queue:      queueName,
		workers:    workers,
		consumer:   "reelsmith-" + d.owner,
		base:       base,
		stop:       stop,
	}
}

// Start declares the queue and begins consuming with one goroutine per worker.
// Prefetch equals the worker count so the broker never hands this process more
// jobs than it can run.
func (q *RabbitMQ) Start(ctx context.Context) error {
	if _, err := q.ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		return services.Wrap(services.ErrGateway, "queue", "declare", q.queue, err)
	}
	if err := q.ch.Qos(q.workers, 0, false); err != nil {
		return services.Wrap(services.ErrGateway, "queue", "qos", q.queue, err)
	}
	deliveries, err := q.ch.Consume(q.queue, q.consumer, false, false, false, false, nil)
	if err != nil {
		return services.Wrap(services.ErrGateway, "queue", "consume", q.queue, err)
	}

	q.lifecycle.Lock()
	q.started = true
	q.lifecycle.Unlock()

	for range q.workers {
		q.wg.Add(1)
		go q.consume(deliveries)
	}
	go q.holdWaiting(q.base)
	q.logger.Info("broker consumer started",
		logging.String(logging.FieldEventType, "consumer_start"),
		logging.String("queue", q.queue),
		logging.Int("workers", q.workers),
	)
	return nil
}

func (q *RabbitMQ) consume(deliveries <-chan amqp.Delivery) {
	defer q.wg.Done()
	for delivery := range deliveries {
		var msg jobMessage
		if err := json.Unmarshal(delivery.Body, &msg); err != nil || strings.TrimSpace(msg.JobID) == "" {
			logging.WarnWithContext(q.logger, "dropping malformed job message", "message_malformed",
				logging.String(logging.FieldErrorHint, "only reelsmith should publish to this queue"),
				logging.Error(err),
			)
			_ = delivery.Nack(false, false)
			continue
		}
		q.execute(q.base, msg.JobID)
		if err := delivery.Ack(false); err != nil {
			q.logger.Warn("ack failed", logging.String(logging.FieldJobID, msg.JobID), logging.Error(err))
		}
	}
}

// Submit records the job and publishes it. A publish failure fails the job so
// the video lease is not held by a job no worker will ever see.
func (q *RabbitMQ) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	q.lifecycle.Lock()
	closed := q.closed
	q.lifecycle.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	job, err := q.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(jobMessage{JobID: job.ID, VideoID: job.VideoID})
	if err != nil {
		q.abandon(ctx, job.ID, "encode job message")
		return nil, fmt.Errorf("encode job message: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = q.ch.PublishWithContext(pubCtx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.CreatedAt,
		Body:         body,
	})
	if err != nil {
		wrapped := services.Wrap(services.ErrGateway, "queue", "publish", job.ID, err)
		q.abandon(ctx, job.ID, wrapped.Error())
		return nil, wrapped
	}
	return job, nil
}

func (q *RabbitMQ) Status(ctx context.Context, jobID string) (*Job, error) {
	return q.status(ctx, jobID)
}

func (q *RabbitMQ) Stats(ctx context.Context) (Stats, error) {
	return q.store.Stats(ctx)
}

func (q *RabbitMQ) Cancel(ctx context.Context, jobID string) error {
	return q.cancel(ctx, jobID)
}

// Shutdown cancels the consumer so no new deliveries arrive, waits for
// running jobs, then closes the channel and connection. Unacked deliveries go
// back to the broker for another instance.
func (q *RabbitMQ) Shutdown(ctx context.Context) error {
	q.lifecycle.Lock()
	q.closed = true
	started := q.started
	q.lifecycle.Unlock()

	if started {
		if err := q.ch.Cancel(q.consumer, false); err != nil {
			q.logger.Warn("consumer cancel failed", logging.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		q.stop()
		<-done
		waitErr = ctx.Err()
	}
	q.stop()

	if err := q.ch.Close(); err != nil && waitErr == nil {
		waitErr = err
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil && waitErr == nil {
			waitErr = err
		}
	}
	return waitErr
}
