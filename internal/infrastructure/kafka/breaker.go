package kafka

import (
	"context"
	"log"
	"time"

	"github.com/example/ec-shop-core/internal/event"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes BreakerPublisher
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// BreakerPublisher stops calling an unhealthy broker until it recovers,
// so request paths do not wait on publish timeouts.
type BreakerPublisher struct {
	next event.Publisher
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerPublisher(next event.Publisher, settings BreakerSettings) *BreakerPublisher {
	threshold := settings.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-publisher",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Kafka] Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &BreakerPublisher{next: next, cb: cb}
}

func (b *BreakerPublisher) Publish(ctx context.Context, key string, evt any) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Publish(ctx, key, evt)
	})
	return err
}

// State reports the breaker state for health checks
func (b *BreakerPublisher) State() gobreaker.State {
	return b.cb.State()
}
