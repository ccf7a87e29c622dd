// Package events carries change notifications out of the tracker: to the
// websocket hub for the extension UI and, when configured, to a NATS bus.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topics published by the tracker.
const (
	TopicLibraryUpdated = "library.updated"
	TopicSweepProgress  = "sweep.progress"
	TopicImportDone     = "import.completed"
	TopicJobProgress    = "jobs.progress"
)

// Publisher delivers a payload under a topic. Implementations must be safe
// for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Envelope is the wire form of a published event.
type Envelope struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// NewEnvelope stamps a payload with an id and the current time.
func NewEnvelope(topic string, payload any) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Fanout publishes to every wrapped publisher. A failing publisher is logged
// and does not stop the others.
type Fanout struct {
	publishers []Publisher
	log        *zap.Logger
}

func NewFanout(log *zap.Logger, publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers, log: log.Named("events")}
}

func (f *Fanout) Publish(ctx context.Context, topic string, payload any) error {
	var first error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, topic, payload); err != nil {
			f.log.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Recorder keeps every published event in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, topic string, payload any) error {
	r.mu.Lock()
	r.events = append(r.events, NewEnvelope(topic, payload))
	r.mu.Unlock()
	return nil
}

// Events returns everything published so far.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// Topics returns the topic of every published event in order.
func (r *Recorder) Topics() []string {
	var topics []string
	for _, e := range r.Events() {
		topics = append(topics, e.Topic)
	}
	return topics
}
