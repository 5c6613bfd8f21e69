package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/videostore"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   string
	prefetch   int
	published  []amqp.Publishing
	publishErr error
	deliveries chan amqp.Delivery
	cancelled  bool
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	c.declared = name
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(_, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("consumer must use manual acks")
	}
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(string, bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cancelled {
		c.cancelled = true
		close(c.deliveries)
	}
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// deliverPublished hands every published message to the consumer.
func (c *fakeChannel) deliverPublished(ack *fakeAcker) {
	c.mu.Lock()
	msgs := append([]amqp.Publishing(nil), c.published...)
	c.published = nil
	c.mu.Unlock()
	for i, msg := range msgs {
		c.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: uint64(i + 1), Body: msg.Body, MessageId: msg.MessageId}
	}
}

type fakeAcker struct {
	mu     sync.Mutex
	acks   int
	nacks  int
	notify chan struct{}
}

func newFakeAcker() *fakeAcker { return &fakeAcker{notify: make(chan struct{}, 16)} }

func (a *fakeAcker) Ack(uint64, bool) error {
	a.mu.Lock()
	a.acks++
	a.mu.Unlock()
	a.notify <- struct{}{}
	return nil
}

func (a *fakeAcker) Nack(uint64, bool, bool) error {
	a.mu.Lock()
	a.nacks++
	a.mu.Unlock()
	a.notify <- struct{}{}
	return nil
}

func (a *fakeAcker) Reject(uint64, bool) error { return a.Nack(0, false, false) }

func (a *fakeAcker) wait(t *testing.T) {
	t.Helper()
	select {
	case <-a.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was never acknowledged")
	}
}

func startBroker(t *testing.T, f fixture, ch *fakeChannel, runner queue.Runner) *queue.RabbitMQ {
	t.Helper()
	q := queue.NewRabbitMQ(ch, "", f.store, runner, f.videos, queue.Options{Workers: 2, Owner: "broker-test"})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return q
}

func TestRabbitMQPublishesAndConsumes(t *testing.T) {
	f := newFixture(t)
	ch := newFakeChannel()
	runner := &funcRunner{}
	q := startBroker(t, f, ch, runner)
	video := testsupport.NewVideo(t, f.videos, "broker")
	ctx := context.Background()

	if ch.declared != queue.DefaultQueueName || ch.prefetch != 2 {
		t.Fatalf("declared %q prefetch %d", ch.declared, ch.prefetch)
	}

	job, err := q.Submit(ctx, queue.SubmitRequest{VideoID: video.ID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("published %d messages", len(ch.published))
	}
	msg := ch.published[0]
	if msg.DeliveryMode != amqp.Persistent || msg.MessageId != job.ID {
		t.Fatalf("publishing = %+v", msg)
	}
	var body map[string]string
	if err := json.Unmarshal(msg.Body, &body); err != nil || body["jobId"] != job.ID {
		t.Fatalf("body = %s (%v)", msg.Body, err)
	}
	if got, _ := q.Status(ctx, job.ID); got.Status != queue.StatusWaiting {
		t.Fatalf("job before delivery = %s", got.Status)
	}

	acker := newFakeAcker()
	ch.deliverPublished(acker)
	acker.wait(t)

	waitForStatus(t, f.store, job.ID, queue.StatusCompleted)
	if acker.acks != 1 || runner.callCount() != 1 {
		t.Fatalf("acks=%d runs=%d", acker.acks, runner.callCount())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !ch.cancelled || !ch.closed {
		t.Fatalf("channel cancelled=%v closed=%v", ch.cancelled, ch.closed)
	}
}

func TestRabbitMQSkipsCancelledJobAndDropsGarbage(t *testing.T) {
	f := newFixture(t)
	ch := newFakeChannel()
	runner := &funcRunner{}
	q := startBroker(t, f, ch, runner)
	video := testsupport.NewVideo(t, f.videos, "skip")
	ctx := context.Background()

	job, err := q.Submit(ctx, queue.SubmitRequest{VideoID: video.ID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	acker := newFakeAcker()
	ch.deliverPublished(acker)
	acker.wait(t)
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 9, Body: []byte("not json")}
	acker.wait(t)

	acker.mu.Lock()
	defer acker.mu.Unlock()
	if acker.acks != 1 || acker.nacks != 1 {
		t.Fatalf("acks=%d nacks=%d", acker.acks, acker.nacks)
	}
	if runner.callCount() != 0 {
		t.Fatal("cancelled job must not run")
	}
	_ = q.Shutdown(ctx)
}

func TestRabbitMQPublishFailureFailsJob(t *testing.T) {
	f := newFixture(t)
	ch := newFakeChannel()
	ch.publishErr = errors.New("channel closed")
	q := startBroker(t, f, ch, &funcRunner{})
	video := testsupport.NewVideo(t, f.videos, "unpublished")
	ctx := context.Background()

	if _, err := q.Submit(ctx, queue.SubmitRequest{VideoID: video.ID, UserID: "user-1"}); !errors.Is(err, services.ErrGateway) {
		t.Fatalf("Submit error = %v, want gateway failure", err)
	}
	stats, _ := q.Stats(ctx)
	if stats.Failed != 1 || stats.Waiting != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	view, _ := f.videos.Status(ctx, video.ID)
	if view.Status != videostore.StatusError {
		t.Fatalf("video status = %s", view.Status)
	}

	// The lease was released, so a retry is accepted.
	ch.mu.Lock()
	ch.publishErr = nil
	ch.mu.Unlock()
	if _, err := q.Submit(ctx, queue.SubmitRequest{VideoID: video.ID, UserID: "user-1"}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	_ = q.Shutdown(ctx)
}
