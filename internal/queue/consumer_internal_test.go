package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/metrics"
)

type fakeAck struct {
	acked, nacked, rejected bool
	requeue                 bool
}

func (a *fakeAck) Ack(bool) error { a.acked = true; return nil }

func (a *fakeAck) Nack(_, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *fakeAck) Reject(requeue bool) error {
	a.rejected, a.requeue = true, requeue
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*Recorded
}

func (p *fakePublisher) PublishRecorded(_ context.Context, r *Recorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, r)
	return nil
}

func newTestConsumer(handler VerdictHandler) (*Consumer, *fakePublisher, *metrics.Metrics) {
	pub := &fakePublisher{}
	m := metrics.New()
	cfg := ConsumerConfig{Metrics: m}.withDefaults()
	return &Consumer{
		handler:   handler,
		publisher: pub,
		metrics:   m,
		workers:   cfg.Workers,
		prefetch:  cfg.Prefetch,
		timeout:   cfg.Timeout,
	}, pub, m
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func verdictBody(t *testing.T) ([]byte, Verdict) {
	t.Helper()
	v := Verdict{ID: uuid.New(), UserID: uuid.New(), ProblemID: uuid.New(), Language: "go", Code: "x", Status: "pass"}
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return body, v
}

func TestProcessMessage(t *testing.T) {
	tests := []struct {
		name        string
		handlerErr  error
		redelivered bool
		wantAck     bool
		wantNack    bool
		wantReject  bool
		wantStatus  string
		wantResult  string
	}{
		{"recorded", nil, false, true, false, false, StatusRecorded, metrics.QueueProcessed},
		{"invalid input rejected", domain.NewValidationError("code", "is required"), false, false, false, true, StatusRejected, metrics.QueueRejected},
		{"unknown user rejected", domain.ErrUserNotFound, false, false, false, true, StatusRejected, metrics.QueueRejected},
		{"store failure requeued", domain.Persist("insert", errors.New("db down")), false, false, true, false, "", metrics.QueueRequeued},
		{"store failure after redelivery", domain.Persist("insert", errors.New("db down")), true, false, false, true, StatusFailed, metrics.QueueFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, pub, m := newTestConsumer(func(_ context.Context, v *Verdict) (*Recorded, error) {
				if tt.handlerErr != nil {
					return nil, tt.handlerErr
				}
				return &Recorded{VerdictID: v.ID, Status: StatusRecorded, SubmissionID: uuid.New()}, nil
			})
			body, v := verdictBody(t)
			ack := &fakeAck{}

			c.processMessage(context.Background(), 0, body, tt.redelivered, ack)

			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.rejected != tt.wantReject {
				t.Errorf("ack = %+v; want ack=%v nack=%v reject=%v", *ack, tt.wantAck, tt.wantNack, tt.wantReject)
			}
			if tt.wantNack && !ack.requeue {
				t.Error("Nack should requeue")
			}
			if tt.wantReject && ack.requeue {
				t.Error("Reject should not requeue")
			}

			if tt.wantStatus == "" {
				if len(pub.events) != 0 {
					t.Errorf("published %d events; want none", len(pub.events))
				}
			} else {
				if len(pub.events) != 1 {
					t.Fatalf("published %d events; want 1", len(pub.events))
				}
				if ev := pub.events[0]; ev.Status != tt.wantStatus || ev.VerdictID != v.ID {
					t.Errorf("event = %+v; want status %q for %s", ev, tt.wantStatus, v.ID)
				}
			}

			want := fmt.Sprintf(`solvetrack_queue_messages_total{result=%q} 1`, tt.wantResult)
			if body := scrape(t, m); !strings.Contains(body, want) {
				t.Errorf("metrics missing %s", want)
			}
		})
	}
}

func TestProcessMessage_MalformedBody(t *testing.T) {
	called := false
	c, pub, _ := newTestConsumer(func(context.Context, *Verdict) (*Recorded, error) {
		called = true
		return nil, nil
	})
	ack := &fakeAck{}

	c.processMessage(context.Background(), 0, []byte("{not json"), false, ack)

	if called {
		t.Error("handler should not run for malformed messages")
	}
	if !ack.rejected || ack.requeue {
		t.Errorf("ack = %+v; want reject without requeue", *ack)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events; want none", len(pub.events))
	}
}

func TestProcessMessage_AppliesTimeout(t *testing.T) {
	c, _, _ := newTestConsumer(func(ctx context.Context, v *Verdict) (*Recorded, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return nil, fmt.Errorf("no deadline")
		}
		if time.Until(deadline) > 50*time.Millisecond {
			return nil, fmt.Errorf("deadline too far")
		}
		return &Recorded{VerdictID: v.ID, Status: StatusRecorded}, nil
	})
	c.timeout = 50 * time.Millisecond
	body, _ := verdictBody(t)
	ack := &fakeAck{}

	c.processMessage(context.Background(), 0, body, true, ack)

	if !ack.acked {
		t.Errorf("ack = %+v; handler saw no per-message deadline", *ack)
	}
}

func TestConsumerConfig_Defaults(t *testing.T) {
	cfg := ConsumerConfig{}.withDefaults()
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d; want 3", cfg.Workers)
	}
	if cfg.Prefetch != 3 {
		t.Errorf("Prefetch = %d; want Workers", cfg.Prefetch)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v; want 30s", cfg.Timeout)
	}

	custom := ConsumerConfig{Workers: 10, Prefetch: 5, Timeout: time.Second}.withDefaults()
	if custom.Workers != 10 || custom.Prefetch != 5 || custom.Timeout != time.Second {
		t.Errorf("custom config overridden: %+v", custom)
	}
}

func TestRecordedConsumer_SubscribeUnsubscribe(t *testing.T) {
	rc := &RecordedConsumer{handlers: make(map[string]RecordedHandler)}
	id := uuid.New()

	var got *Recorded
	rc.Subscribe(id.String(), func(r *Recorded) { got = r })

	body, _ := json.Marshal(Recorded{VerdictID: id, Status: StatusRecorded})
	rc.dispatch(body)
	if got == nil || got.VerdictID != id {
		t.Fatalf("handler not called for subscribed verdict")
	}

	got = nil
	rc.Unsubscribe(id.String())
	rc.dispatch(body)
	if got != nil {
		t.Error("handler called after Unsubscribe")
	}
}

func TestRecordedConsumer_IgnoresOtherVerdicts(t *testing.T) {
	rc := &RecordedConsumer{handlers: make(map[string]RecordedHandler)}
	called := false
	rc.Subscribe(uuid.NewString(), func(*Recorded) { called = true })

	body, _ := json.Marshal(Recorded{VerdictID: uuid.New()})
	rc.dispatch(body)
	rc.dispatch([]byte("garbage"))

	if called {
		t.Error("handler called for a different verdict")
	}
}

func TestRecordedConsumer_Subscribe_ConcurrentSafe(t *testing.T) {
	rc := &RecordedConsumer{handlers: make(map[string]RecordedHandler)}

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.NewString()
			rc.Subscribe(id, func(*Recorded) {})
			time.Sleep(time.Microsecond)
			rc.Unsubscribe(id)
		}()
	}
	wg.Wait()

	rc.handlersMu.RLock()
	defer rc.handlersMu.RUnlock()
	if len(rc.handlers) != 0 {
		t.Errorf("All handlers should be unsubscribed, got %d remaining", len(rc.handlers))
	}
}

func TestStop_NilCancelFunc(t *testing.T) {
	(&Consumer{}).Stop()
	(&RecordedConsumer{}).Stop()
}
