package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/metrics"
	"github.com/felixgeelhaar/solvetrack/internal/submission"
)

// VerdictHandler records one verdict
type VerdictHandler func(ctx context.Context, v *Verdict) (*Recorded, error)

// Recorder is the part of submission.Recorder the consumer needs
type Recorder interface {
	Record(ctx context.Context, in domain.SubmissionInput) (*submission.Result, error)
}

// RecordVerdicts adapts a Recorder into a VerdictHandler
func RecordVerdicts(r Recorder) VerdictHandler {
	return func(ctx context.Context, v *Verdict) (*Recorded, error) {
		res, err := r.Record(ctx, v.Input())
		if err != nil {
			return nil, err
		}
		return &Recorded{
			VerdictID:     v.ID,
			SubmissionID:  res.Submission.ID,
			UserID:        v.UserID,
			Status:        StatusRecorded,
			Success:       res.Submission.Success,
			FirstSolve:    res.Outcome.FirstSolve,
			StreakUpdated: res.StreakApplied,
		}, nil
	}
}

// recordedPublisher is satisfied by *Producer
type recordedPublisher interface {
	PublishRecorded(ctx context.Context, r *Recorded) error
}

// acknowledger is the ack surface of amqp.Delivery
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

// Consumer consumes verdicts from the queue
type Consumer struct {
	conn       *Connection
	handler    VerdictHandler
	publisher  recordedPublisher
	metrics    *metrics.Metrics
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // concurrent workers
	Prefetch int           // unacked messages per channel
	Timeout  time.Duration // per-verdict processing limit
	Metrics  *metrics.Metrics
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 3,
		Timeout:  30 * time.Second,
	}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return cfg
}

// NewConsumer creates a new verdict consumer
func NewConsumer(conn *Connection, handler VerdictHandler, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		conn:      conn,
		handler:   handler,
		publisher: NewProducer(conn),
		metrics:   cfg.Metrics,
		workers:   cfg.Workers,
		prefetch:  cfg.Prefetch,
		timeout:   cfg.Timeout,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		VerdictQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting verdict consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := range c.workers {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("worker stopping", "worker_id", id)
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}
			c.processMessage(ctx, id, msg.Body, msg.Redelivered, msg)
		}
	}
}

// processMessage records one verdict and settles the delivery. Malformed
// and invalid verdicts are dropped; store failures are requeued once.
func (c *Consumer) processMessage(ctx context.Context, workerID int, body []byte, redelivered bool, ack acknowledger) {
	start := time.Now()
	logger := slog.With("worker_id", workerID)

	var v Verdict
	if err := json.Unmarshal(body, &v); err != nil {
		logger.Error("failed to unmarshal verdict", "error", err)
		_ = ack.Reject(false)
		c.metrics.QueueMessage(metrics.QueueRejected)
		return
	}
	logger = logger.With("verdict_id", v.ID, "user_id", v.UserID)

	jobCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	recorded, err := c.handler(jobCtx, &v)
	duration := time.Since(start)

	switch {
	case err == nil:
		recorded.Duration = duration
		c.publish(ctx, logger, recorded)
		if err := ack.Ack(false); err != nil {
			logger.Error("failed to ack message", "error", err)
		}
		c.metrics.QueueMessage(metrics.QueueProcessed)
		logger.Info("verdict recorded", "submission_id", recorded.SubmissionID, "duration", duration)

	case errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound):
		logger.Warn("verdict rejected", "error", err)
		c.publish(ctx, logger, failure(&v, StatusRejected, err, duration))
		_ = ack.Reject(false)
		c.metrics.QueueMessage(metrics.QueueRejected)

	case !redelivered:
		logger.Warn("verdict failed, requeueing", "error", err)
		_ = ack.Nack(false, true)
		c.metrics.QueueMessage(metrics.QueueRequeued)

	default:
		logger.Error("verdict failed after redelivery", "error", err)
		c.publish(ctx, logger, failure(&v, StatusFailed, err, duration))
		_ = ack.Reject(false)
		c.metrics.QueueMessage(metrics.QueueFailed)
	}
}

func (c *Consumer) publish(ctx context.Context, logger *slog.Logger, r *Recorded) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishRecorded(ctx, r); err != nil {
		logger.Error("failed to publish recorded event", "error", err)
	}
}

func failure(v *Verdict, status string, err error, d time.Duration) *Recorded {
	return &Recorded{
		VerdictID: v.ID,
		UserID:    v.UserID,
		Status:    status,
		Error:     err.Error(),
		Duration:  d,
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}

// RecordedConsumer fans recorded events out to per-verdict subscribers.
// The CLI uses it to wait for the verdict it published. Each consumer reads
// its own exclusive queue bound to RecordedExchangeName, so concurrent
// clients all see every event.
type RecordedConsumer struct {
	conn       *Connection
	queue      string
	handlers   map[string]RecordedHandler
	handlersMu sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// RecordedHandler handles the recorded event of one verdict
type RecordedHandler func(r *Recorded)

// NewRecordedConsumer creates a recorded-event consumer
func NewRecordedConsumer(conn *Connection) *RecordedConsumer {
	return &RecordedConsumer{
		conn:     conn,
		handlers: make(map[string]RecordedHandler),
	}
}

// Subscribe registers a handler for a verdict ID
func (rc *RecordedConsumer) Subscribe(verdictID string, handler RecordedHandler) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	rc.handlers[verdictID] = handler
}

// Unsubscribe removes a handler
func (rc *RecordedConsumer) Unsubscribe(verdictID string) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	delete(rc.handlers, verdictID)
}

// Start binds a private queue to the recorded exchange and begins
// consuming. Events published before Start are not seen.
func (rc *RecordedConsumer) Start(ctx context.Context) error {
	name, err := rc.conn.DeclareEventQueue(RecordedExchangeName)
	if err != nil {
		return err
	}

	msgs, err := rc.conn.Channel().Consume(
		name,
		"",
		true, // auto-ack: events are informational
		true, // exclusive
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start recorded consumer: %w", err)
	}
	rc.queue = name
	ctx, rc.cancelFunc = context.WithCancel(ctx)
	rc.wg.Add(1)
	go rc.consume(ctx, msgs)
	return nil
}

func (rc *RecordedConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer rc.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			rc.dispatch(msg.Body)
		}
	}
}

func (rc *RecordedConsumer) dispatch(body []byte) {
	var r Recorded
	if err := json.Unmarshal(body, &r); err != nil {
		slog.Error("failed to unmarshal recorded event", "error", err)
		return
	}

	rc.handlersMu.RLock()
	handler, ok := rc.handlers[r.VerdictID.String()]
	rc.handlersMu.RUnlock()

	if ok {
		handler(&r)
	}
}

// Queue returns the name of the private queue, empty before Start
func (rc *RecordedConsumer) Queue() string { return rc.queue }

// Stop stops the recorded consumer
func (rc *RecordedConsumer) Stop() {
	if rc.cancelFunc != nil {
		rc.cancelFunc()
	}
	rc.wg.Wait()
}
