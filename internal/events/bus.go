package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"AegisVault/internal/model"
)

// Sink consumes observations. Handle is called from a single goroutine in
// commit order.
type Sink interface {
	Name() string
	Handle(ctx context.Context, obs model.Observation) error
}

// Bus decouples the vault from its consumers. Publish never blocks; when the
// buffer is full the observation is dropped and counted.
type Bus struct {
	ch      chan model.Observation
	mu      sync.RWMutex
	sinks   []Sink
	logger  *zap.Logger
	dropped atomic.Uint64
}

func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Bus{ch: make(chan model.Observation, buffer), logger: logger}
}

// Subscribe adds a sink. Sinks added after Run has started only see later
// observations.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
	b.logger.Info("events: sink subscribed", zap.String("sink", s.Name()))
}

// Publish enqueues obs for delivery.
func (b *Bus) Publish(obs model.Observation) {
	select {
	case b.ch <- obs:
	default:
		n := b.dropped.Add(1)
		b.logger.Warn("events: buffer full, observation dropped",
			zap.String("kind", string(obs.Kind)),
			zap.Uint64("seq", obs.Seq),
			zap.Uint64("dropped_total", n))
	}
}

// Dropped returns how many observations were discarded.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Run delivers observations until ctx is cancelled, then drains what is
// already buffered.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case obs := <-b.ch:
			b.deliver(ctx, obs)
		}
	}
}

func (b *Bus) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case obs := <-b.ch:
			b.deliver(ctx, obs)
		default:
			b.logger.Info("events: bus stopped", zap.Uint64("dropped_total", b.Dropped()))
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, obs model.Observation) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Handle(ctx, obs); err != nil {
			b.logger.Error("events: sink failed",
				zap.String("sink", s.Name()),
				zap.String("kind", string(obs.Kind)),
				zap.Uint64("seq", obs.Seq),
				zap.Error(err))
		}
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	Label string
	Fn    func(ctx context.Context, obs model.Observation) error
}

func (f SinkFunc) Name() string { return f.Label }

func (f SinkFunc) Handle(ctx context.Context, obs model.Observation) error { return f.Fn(ctx, obs) }
