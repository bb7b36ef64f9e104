// Package telemetry implements the Telemetry Sink of spec section 4.I:
// an in-memory buffer with a periodic/buffer-full flush, an optional
// NATS remote endpoint and a critical-severity desktop alert path.
// The buffer/flush lifecycle and requeue-on-failure retry are modeled
// on the teacher's internal/events/bus.go sendWithBackpressure; the NATS
// publish path follows internal/nats/client.go's PublishJSON.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// FlushInterval is the periodic flush cadence.
const FlushInterval = 30 * time.Second

// MaxBufferSize triggers an immediate flush once reached.
const MaxBufferSize = 100

// EventFamily names one of the three accepted telemetry event families.
type EventFamily string

const (
	FamilyModeDetected      EventFamily = "mode_detected"
	FamilyFallbackTriggered EventFamily = "fallback_triggered"
	FamilyInvariantBreach   EventFamily = "invariant_breach"
)

// Event is one telemetry record.
type Event struct {
	Family    EventFamily     `json:"family"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	TenantID  string          `json:"tenant_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Severity  string          `json:"severity,omitempty"`
}

// AlertNotifier shows a desktop alert for critical breach events;
// internal/telemetry/alert.go's ToastNotifier is the production
// implementation (Windows-only, no-op elsewhere).
type AlertNotifier interface {
	Notify(title, message string) error
}

// Sink buffers telemetry events and flushes them periodically, on a
// buffer-full condition, or on demand.
type Sink struct {
	mu      sync.Mutex
	buffer  []Event
	nc      *nats.Conn
	subject string
	alert   AlertNotifier

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSink constructs a Sink. nc may be nil (no remote endpoint
// configured); alert may be nil (no desktop notification).
func NewSink(nc *nats.Conn, subject string, alert AlertNotifier) *Sink {
	return &Sink{nc: nc, subject: subject, alert: alert, stop: make(chan struct{})}
}

// Emit appends an event to the buffer, triggering an immediate flush
// when the buffer is full, and logs invariant-breach events at their
// derived severity.
func (s *Sink) Emit(ev Event) {
	if ev.Family == FamilyInvariantBreach {
		log.Printf("[TELEMETRY] invariant breach (%s): %s", ev.Severity, string(ev.Payload))
		if ev.Severity == "critical" && s.alert != nil {
			if err := s.alert.Notify("Invariant breach", string(ev.Payload)); err != nil {
				log.Printf("[TELEMETRY] alert notify failed: %v", err)
			}
		}
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, ev)
	full := len(s.buffer) >= MaxBufferSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
}

// Run drives the periodic flush timer until ctx is cancelled, flushing
// any remaining buffered events before returning (bounded drain).
func (s *Sink) Run(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-s.stop:
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

// Stop requests Run exit after completing a final flush.
func (s *Sink) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// flush drains the buffer and publishes it to the remote endpoint when
// configured. On publish failure the batch is requeued at the buffer's
// head so the next flush retries it first, mirroring sendWithBackpressure.
func (s *Sink) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if s.nc == nil {
		return
	}

	data, err := json.Marshal(batch)
	if err != nil {
		log.Printf("[TELEMETRY] failed to marshal batch: %v", err)
		return
	}

	if err := s.nc.Publish(s.subject, data); err != nil {
		log.Printf("[TELEMETRY] publish failed, requeuing %d event(s): %v", len(batch), err)
		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		s.mu.Unlock()
	}
}
