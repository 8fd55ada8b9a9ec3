// Package event defines the envelope for domain events and how services
// hand them to the message bus.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
}

// New wraps data in an envelope
func New(aggregateID, aggregateType, eventType string, data any) (Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
	}, nil
}

// Decode unmarshals the payload into v
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher delivers events keyed by aggregate id
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, key string, event any) error { return nil }

// Emitter publishes events after the state change they describe has been
// committed. Publishing is best effort: failures are logged, never returned.
type Emitter struct {
	publisher Publisher
}

func NewEmitter(publisher Publisher) *Emitter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Emitter{publisher: publisher}
}

func (e *Emitter) Emit(ctx context.Context, aggregateID, aggregateType, eventType string, data any) {
	evt, err := New(aggregateID, aggregateType, eventType, data)
	if err != nil {
		log.Printf("[Events] Failed to build %s: %v", eventType, err)
		return
	}
	if err := e.publisher.Publish(ctx, aggregateID, evt); err != nil {
		log.Printf("[Events] Failed to publish %s for %s: %v", eventType, aggregateID, err)
	}
}

// Recorder is a Publisher that keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(ctx context.Context, key string, evt any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	if e, ok := evt.(Event); ok {
		r.events = append(r.events, e)
	}
	return nil
}

// Events returns the recorded events in publish order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.EventType
	}
	return types
}
