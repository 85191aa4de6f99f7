package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Producer publishes verdicts and recorded events
type Producer struct {
	conn *Connection
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishVerdict publishes a graded verdict for recording. Missing IDs and
// timestamps are filled in.
func (p *Producer) PublishVerdict(ctx context.Context, v *Verdict) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, VerdictQueueName, v); err != nil {
		return fmt.Errorf("failed to publish verdict: %w", err)
	}

	slog.Info("published verdict",
		"verdict_id", v.ID,
		"user_id", v.UserID,
		"problem_id", v.ProblemID,
		"status", v.Status,
	)
	return nil
}

// PublishRecorded broadcasts the outcome of a verdict to every client
// waiting on recorded events.
func (p *Producer) PublishRecorded(ctx context.Context, r *Recorded) error {
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now()
	}

	if err := p.conn.BroadcastJSON(ctx, RecordedExchangeName, r); err != nil {
		return fmt.Errorf("failed to publish recorded event: %w", err)
	}

	slog.Debug("published recorded event",
		"verdict_id", r.VerdictID,
		"status", r.Status,
		"duration", r.Duration,
	)
	return nil
}
