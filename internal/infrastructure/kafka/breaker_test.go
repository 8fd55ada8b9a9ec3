package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ec-shop-core/internal/event"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) Publish(ctx context.Context, key string, evt any) error {
	p.calls++
	return p.err
}

var _ event.Publisher = (*BreakerPublisher)(nil)

func TestBreakerPublisher_PassesThrough(t *testing.T) {
	next := &countingPublisher{}
	b := NewBreakerPublisher(next, DefaultBreakerSettings())

	for i := 0; i < 10; i++ {
		assert.NoError(t, b.Publish(context.Background(), "k", "v"))
	}
	assert.Equal(t, 10, next.calls)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerPublisher_OpensAfterFailures(t *testing.T) {
	brokerDown := errors.New("broker down")
	next := &countingPublisher{err: brokerDown}
	b := NewBreakerPublisher(next, BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Publish(context.Background(), "k", "v"), brokerDown)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	// Open breaker short-circuits without calling the broker
	err := b.Publish(context.Background(), "k", "v")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, next.calls)
}

func TestBreakerPublisher_RecoversAfterTimeout(t *testing.T) {
	next := &countingPublisher{err: errors.New("broker down")}
	b := NewBreakerPublisher(next, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: 10 * time.Millisecond})

	assert.Error(t, b.Publish(context.Background(), "k", "v"))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	next.err = nil
	time.Sleep(20 * time.Millisecond)

	assert.NoError(t, b.Publish(context.Background(), "k", "v"))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
