package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// B1: acquire followed by give is the identity on a single-threaded
// sequence.
func TestAcquireGiveIdentity(t *testing.T) {
	p := New(Params{AllocSize: 16, MaxBuffers: 2})

	buf := p.Acquire()
	require.NotNil(t, buf)
	assert.Equal(t, 1, p.Len())

	p.Give(buf)

	buf2 := p.Acquire()
	assert.Same(t, buf, buf2)
	assert.Equal(t, 1, p.Len())
	p.Give(buf2)
}

// B2: under max_buffers = k, acquiring k+1 blocks until one is given.
func TestAcquireBlocksAtCapacity(t *testing.T) {
	const k = 3
	p := New(Params{AllocSize: 4, MaxBuffers: k})

	var held []*Buffer
	for i := 0; i < k; i++ {
		b, ok := p.TryAcquire()
		require.True(t, ok)
		held = append(held, b)
	}

	_, ok := p.TryAcquire()
	assert.False(t, ok, "TryAcquire must fail once the pool is exhausted")

	done := make(chan *Buffer, 1)
	go func() {
		done <- p.Acquire()
	}()

	select {
	case <-done:
		t.Fatal("Acquire returned before any buffer was given back")
	case <-time.After(50 * time.Millisecond):
	}

	p.Give(held[0])

	select {
	case b := <-done:
		assert.Same(t, held[0], b)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after Give")
	}
}

// B3: with VM circularity, a buffer of size S satisfies buf[S+i] == buf[i].
func TestVMCircularityWrap(t *testing.T) {
	const size = 4096 / 8 // one page's worth of complex64 samples
	p := New(Params{AllocSize: size, MaxBuffers: 1, VMCircularity: true})

	buf := p.Acquire()
	defer p.Give(buf)

	if !buf.Circular() {
		t.Skip("VM circularity unavailable on this platform/build")
	}

	lower := buf.Window(0)
	for i := range lower {
		lower[i] = complex(float32(i), float32(-i))
	}

	upper := buf.Window(size / 2)
	for i := 0; i < size/2; i++ {
		assert.Equal(t, lower[i], upper[size/2+i], "buf[size+i] must alias buf[i]")
	}
}

func TestGivePanicsOnDoubleRelease(t *testing.T) {
	p := New(Params{AllocSize: 4, MaxBuffers: 1})
	buf := p.Acquire()
	p.Give(buf)

	assert.Panics(t, func() {
		p.Give(buf)
	})
}

func TestIncRefDefersReturnToPool(t *testing.T) {
	p := New(Params{AllocSize: 4, MaxBuffers: 1})
	buf := p.Acquire()
	buf.IncRef()

	p.Give(buf)
	_, ok := p.TryAcquire()
	assert.False(t, ok, "buffer must not be returned to the pool while a second reference is outstanding")

	p.Give(buf)
	b2, ok := p.TryAcquire()
	require.True(t, ok)
	assert.Same(t, buf, b2)
}
