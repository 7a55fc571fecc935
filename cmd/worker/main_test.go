package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"almacen/pkg/logger"
)

type fakeRelay struct {
	mu      sync.Mutex
	batches []int
	err     error
	calls   int
	dlq     int
}

func (f *fakeRelay) ProcessBatch(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakeRelay) MoveToDLQ(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlq++
	return 1, nil
}

func TestWorker_DrainsUntilEmpty(t *testing.T) {
	relay := &fakeRelay{batches: []int{50, 50, 3}}
	w := NewWorker(relay, time.Second, logger.Nop())

	w.drain(context.Background())

	assert.Equal(t, 4, relay.calls)
	assert.Empty(t, relay.batches)
}

func TestWorker_StopsOnError(t *testing.T) {
	relay := &fakeRelay{batches: []int{50}, err: errors.New("connection refused")}
	w := NewWorker(relay, time.Second, logger.Nop())

	w.drain(context.Background())

	assert.Equal(t, 1, relay.calls)
}

func TestWorker_RunExitsOnCancel(t *testing.T) {
	relay := &fakeRelay{}
	w := NewWorker(relay, 5*time.Millisecond, logger.Nop())
	w.dlqInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		return relay.calls > 0 && relay.dlq > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
