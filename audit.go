package tunzadent

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is a single security-relevant occurrence: a login outcome, a
// verification, an enrollment step. Events are emitted asynchronously; a
// slow sink never blocks the operation that produced the event.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's dispatcher. Emit is called
// from a single dispatcher goroutine, so a sink only needs to be safe
// against its own consumers.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards everything. It is the default when auditing is enabled
// but no sink was installed.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink hands events to application code over a buffered channel.
// The consumer must keep reading; once the buffer fills, Emit blocks the
// dispatcher until the context is cancelled.
type ChannelSink struct {
	out chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{out: make(chan AuditEvent, buffer)}
}

// Events is the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.out
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.out <- event:
	case <-ctx.Done():
	}
}

// JSONWriterSink appends events to a writer as newline-delimited JSON,
// one object per line. Suitable for an append-only audit log file.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}
