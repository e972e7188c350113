package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/mailbox"
)

// W1: N callbacks that always return false each run exactly once, in push
// order.
func TestWorkerRunsEachCallbackOnce(t *testing.T) {
	outbox := mailbox.New()
	w := New(outbox, mailbox.New(), nil)
	defer func() { require.NoError(t, w.Halt(context.Background())) }()

	const n = 20
	var order []int
	done := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		i := i
		w.Push(func(_ *mailbox.Mailbox, _ any, _ any) bool {
			order = append(order, i)
			done <- struct{}{}
			return false
		}, nil)
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for callback %d", i)
		}
	}

	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

// W2: halting a worker with queued callbacks prevents them from running;
// Halt returns without error and the worker reaches StateHalted.
func TestWorkerHaltDropsQueuedCallbacks(t *testing.T) {
	outbox := mailbox.New()
	w := New(outbox, mailbox.New(), nil)

	block := make(chan struct{})
	started := make(chan struct{})
	w.Push(func(_ *mailbox.Mailbox, _ any, _ any) bool {
		close(started)
		<-block
		return false
	}, nil)

	<-started

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		w.Push(func(_ *mailbox.Mailbox, _ any, _ any) bool {
			ran.Add(1)
			return false
		}, nil)
	}

	haltDone := make(chan error, 1)
	go func() {
		haltDone <- w.Halt(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	close(block)

	select {
	case err := <-haltDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Halt did not return")
	}

	assert.Equal(t, int32(0), ran.Load())
	assert.Equal(t, StateHalted, w.State())
}

// W3: a self-restarting callback (true for M iterations then false) runs
// exactly M times.
func TestWorkerSelfRestartingCallback(t *testing.T) {
	outbox := mailbox.New()
	w := New(outbox, mailbox.New(), nil)
	defer func() { require.NoError(t, w.Halt(context.Background())) }()

	const m = 7
	var count atomic.Int32
	done := make(chan struct{})

	var cb Callback
	cb = func(_ *mailbox.Mailbox, _ any, _ any) bool {
		n := count.Add(1)
		if n >= m {
			close(done)
			return false
		}
		return true
	}
	w.Push(cb, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("self-restarting callback did not complete")
	}

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(m), count.Load())
}

func TestWorkerHaltTimeout(t *testing.T) {
	outbox := mailbox.New()
	w := New(outbox, mailbox.New(), nil)

	block := make(chan struct{})
	w.Push(func(_ *mailbox.Mailbox, _ any, _ any) bool {
		<-block
		return false
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Halt(ctx)
	assert.ErrorIs(t, err, ErrHaltTimeout)

	close(block)
}
