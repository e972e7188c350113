package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tagA Tag = 1
	tagB Tag = 2
)

// M1: same-tag writes are read back in write order.
func TestMailboxOrder(t *testing.T) {
	mb := New()
	mb.Write(tagA, 1)
	mb.Write(tagA, 2)
	mb.Write(tagA, 3)

	for _, want := range []int{1, 2, 3} {
		env := mb.Read()
		require.Equal(t, tagA, env.Tag)
		require.Equal(t, want, env.Payload)
	}
}

// M2: an urgent write jumps to the head of an otherwise-FIFO mailbox.
func TestMailboxUrgentPriority(t *testing.T) {
	mb := New()
	mb.Write(tagA, "x")
	mb.WriteUrgent(tagB, "y")
	mb.Write(tagA, "z")

	env := mb.Read()
	assert.Equal(t, tagB, env.Tag)
	assert.Equal(t, "y", env.Payload)

	env = mb.Read()
	assert.Equal(t, tagA, env.Tag)
	assert.Equal(t, "x", env.Payload)

	env = mb.Read()
	assert.Equal(t, tagA, env.Tag)
	assert.Equal(t, "z", env.Payload)
}

// M3: ReadOfType skips non-matching envelopes without discarding them.
func TestMailboxTypedSkip(t *testing.T) {
	mb := New()
	mb.Write(tagA, "x")
	mb.Write(tagB, "y")
	mb.Write(tagA, "z")

	assert.Equal(t, "x", mb.ReadOfType(tagA))
	assert.Equal(t, "z", mb.ReadOfType(tagA))

	env := mb.Read()
	assert.Equal(t, tagB, env.Tag)
	assert.Equal(t, "y", env.Payload)
}

// M4: ReadTimed on an empty mailbox waits at least the requested duration.
func TestMailboxReadTimed(t *testing.T) {
	mb := New()
	start := time.Now()
	_, err := mb.ReadTimed(50 * time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestMailboxReadTimedSucceedsBeforeDeadline(t *testing.T) {
	mb := New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		mb.Write(tagA, "late")
	}()

	env, err := mb.ReadTimed(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", env.Payload)
}

func TestMailboxPoll(t *testing.T) {
	mb := New()
	_, ok := mb.Poll()
	assert.False(t, ok)

	mb.Write(tagA, 42)
	env, ok := mb.Poll()
	require.True(t, ok)
	assert.Equal(t, 42, env.Payload)
}

func TestMailboxPollOfType(t *testing.T) {
	mb := New()
	mb.Write(tagB, "b")
	_, ok := mb.PollOfType(tagA)
	assert.False(t, ok)

	payload, ok := mb.PollOfType(tagB)
	require.True(t, ok)
	assert.Equal(t, "b", payload)
}

// A blocked Read is released by a concurrent Write.
func TestMailboxBlockingReadWakesOnWrite(t *testing.T) {
	mb := New()
	done := make(chan Envelope, 1)
	go func() {
		done <- mb.Read()
	}()

	time.Sleep(10 * time.Millisecond)
	mb.Write(tagA, "woke")

	select {
	case env := <-done:
		assert.Equal(t, "woke", env.Payload)
	case <-time.After(time.Second):
		t.Fatal("Read did not wake up on Write")
	}
}

func TestMailboxFinalizeDrains(t *testing.T) {
	mb := New()
	mb.Write(tagA, 1)
	mb.Write(tagA, 2)
	mb.Finalize()

	_, ok := mb.Poll()
	assert.False(t, ok)
}
