package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"AegisVault/internal/model"
)

type collectSink struct {
	mu   sync.Mutex
	seqs []uint64
	fail bool
}

func (c *collectSink) Name() string { return "collect" }

func (c *collectSink) Handle(_ context.Context, obs model.Observation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seqs = append(c.seqs, obs.Seq)
	if c.fail {
		return errors.New("sink down")
	}
	return nil
}

func (c *collectSink) snapshot() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.seqs...)
}

func TestBus_DeliversInOrderToAllSinks(t *testing.T) {
	bus := NewBus(64, zap.NewNop())
	a, b := &collectSink{}, &collectSink{fail: true}
	bus.Subscribe(a)
	bus.Subscribe(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	for i := uint64(1); i <= 20; i++ {
		obs := model.NewObservation(model.ObservationDeposit, time.Now())
		obs.Seq = i
		bus.Publish(obs)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(a.snapshot()) < 20 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := a.snapshot()
	if len(got) != 20 {
		t.Fatalf("delivered %d, want 20", len(got))
	}
	for i, seq := range got {
		if seq != uint64(i+1) {
			t.Fatalf("out of order at %d: %d", i, seq)
		}
	}
	if len(b.snapshot()) != 20 {
		t.Errorf("failing sink should still receive every observation, got %d", len(b.snapshot()))
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(2, zap.NewNop())
	for i := 0; i < 5; i++ {
		bus.Publish(model.NewObservation(model.ObservationWithdraw, time.Now()))
	}
	if got := bus.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

func TestBus_DrainsOnShutdown(t *testing.T) {
	bus := NewBus(8, zap.NewNop())
	sink := &collectSink{}
	bus.Subscribe(sink)
	for i := uint64(1); i <= 4; i++ {
		obs := model.NewObservation(model.ObservationResumed, time.Now())
		obs.Seq = i
		bus.Publish(obs)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Run(ctx)
	if got := len(sink.snapshot()); got != 4 {
		t.Errorf("drained %d, want 4", got)
	}
}
