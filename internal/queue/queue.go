// Package queue carries graded verdicts from judge workers to the recorder
// over RabbitMQ, and publishes a recorded event once each verdict is stored.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// Broker names. Verdicts go to one durable work queue; recorded events
// fan out to every waiting client through RecordedExchangeName.
const (
	VerdictQueueName     = "solvetrack.verdicts"
	RecordedExchangeName = "solvetrack.recorded"
)

// recordedEventTTL bounds how long an unread recorded event waits in a
// client queue.
const recordedEventTTL = "60000"

// Verdict is a graded submission as published by a judge worker
type Verdict struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	ProblemID   uuid.UUID       `json:"problemId"`
	Language    string          `json:"language"`
	Code        string          `json:"code"`
	Status      string          `json:"status"`
	PassedCount int             `json:"passedCount"`
	TotalTests  int             `json:"totalTests"`
	StartTime   *time.Time      `json:"startTime,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Input converts the verdict into recorder input
func (v *Verdict) Input() domain.SubmissionInput {
	return domain.SubmissionInput{
		UserID:      v.UserID,
		ProblemID:   v.ProblemID,
		Language:    v.Language,
		Code:        v.Code,
		Status:      v.Status,
		PassedCount: v.PassedCount,
		TotalTests:  v.TotalTests,
		StartTime:   v.StartTime,
		Details:     v.Details,
	}
}

// Recorded outcome statuses
const (
	StatusRecorded = "recorded"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Recorded reports what happened to one verdict
type Recorded struct {
	VerdictID     uuid.UUID     `json:"verdictId"`
	SubmissionID  uuid.UUID     `json:"submissionId,omitempty"`
	UserID        uuid.UUID     `json:"userId"`
	Status        string        `json:"status"`
	Success       bool          `json:"success"`
	FirstSolve    bool          `json:"firstSolve"`
	StreakUpdated bool          `json:"streakUpdated"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	CompletedAt   time.Time     `json:"completedAt"`
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection dials url and declares the queues
func NewConnection(url string) (*Connection, error) {
	c := &Connection{url: url}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareTopology(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect()

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

func (c *Connection) declareTopology() error {
	// Verdicts are the source of truth for a recording; keep them until consumed.
	_, err := c.channel.QueueDeclare(
		VerdictQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare verdict queue: %w", err)
	}

	err = c.channel.ExchangeDeclare(
		RecordedExchangeName,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare recorded exchange: %w", err)
	}

	return nil
}

// DeclareEventQueue declares a server-named queue owned by this connection
// and binds it to exchange. The queue is deleted when the connection closes.
func (c *Connection) DeclareEventQueue(exchange string) (string, error) {
	ch := c.Channel()
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare event queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return "", fmt.Errorf("failed to bind %s to %s: %w", q.Name, exchange, err)
	}
	return q.Name, nil
}

// handleReconnect waits for the connection to drop and redials with
// exponential backoff.
func (c *Connection) handleReconnect() {
	c.mu.RLock()
	notifyClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	c.mu.RUnlock()

	err := <-notifyClose
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	slog.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	for i := range 10 {
		c.reconnects++
		time.Sleep(reconnectBackoff(i))

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}
		slog.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}
	slog.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

// reconnectBackoff doubles from one second, capped at 30 seconds
func reconnectBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return min(time.Duration(1<<attempt)*time.Second, 30*time.Second)
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a persistent JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	return c.publish(ctx, "", queue, data, amqp.Publishing{DeliveryMode: amqp.Persistent})
}

// BroadcastJSON publishes a transient JSON event to every queue bound to a
// fanout exchange.
func (c *Connection) BroadcastJSON(ctx context.Context, exchange string, data any) error {
	return c.publish(ctx, exchange, "", data, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		Expiration:   recordedEventTTL,
	})
}

func (c *Connection) publish(ctx context.Context, exchange, key string, data any, msg amqp.Publishing) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	msg.ContentType = "application/json"
	msg.Timestamp = time.Now()
	msg.Body = body

	return c.Channel().PublishWithContext(
		ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		msg,
	)
}

// sanitizeURL hides the password in an AMQP URL for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	return u.Redacted()
}
