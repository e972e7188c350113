// Package buffer implements the bounded, reference-counted sample-buffer
// pool of spec §4.3: fixed-capacity complex-sample buffers drawn from a
// pool backed by a mailbox free list, optionally double-mapped in the
// virtual address space so that a read spanning the logical wrap point
// sees a contiguous view without copying.
//
// Grounded on analyzer/pool.c / pool.h.
package buffer

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/cwsl/sdrcore/mailbox"
)

var log_ = log.New(os.Stderr, "buffer: ", log.LstdFlags)

const tagBuffer mailbox.Tag = 1

// Sample is the complex-baseband sample type used throughout sdrcore.
type Sample = complex64

// Buffer is a fixed-capacity complex-sample buffer borrowed from a Pool.
type Buffer struct {
	parent   *Pool
	raw      []Sample // length = Size() (plain) or 2*Size() (circular double mapping)
	size     int
	circular bool
	rindex   int

	acquired bool

	refMu    sync.Mutex
	refCount int

	// Userdata is an opaque, per-buffer slot the spectral tuner uses to
	// cache an FFT plan keyed to this buffer's backing storage.
	Userdata any
}

// Size returns the buffer's logical capacity in complex samples.
func (b *Buffer) Size() int { return b.size }

// Circular reports whether this buffer is backed by a doubled virtual
// mapping, allowing Window to return a contiguous view across the wrap
// point.
func (b *Buffer) Circular() bool { return b.circular }

// Window returns the size-sample slice starting at offset. For a circular
// buffer, offset may range over [0, size] and the returned slice wraps
// seamlessly because the backing storage is mapped twice; for a
// non-circular buffer only offset 0 is valid.
func (b *Buffer) Window(offset int) []Sample {
	if !b.circular {
		if offset != 0 {
			panic(fmt.Sprintf("buffer: Window(%d) on non-circular buffer of size %d", offset, b.size))
		}
		return b.raw[:b.size]
	}
	if offset < 0 || offset > b.size {
		panic(fmt.Sprintf("buffer: Window(%d) out of range for circular buffer of size %d", offset, b.size))
	}
	return b.raw[offset : offset+b.size]
}

// IncRef adds one additional reader reference. The buffer is only
// returned to its pool once every IncRef (plus the one implicit reference
// held by the acquirer) has been matched by a Give.
func (b *Buffer) IncRef() {
	b.refMu.Lock()
	b.refCount++
	b.refMu.Unlock()
}

// release drops one reference and reports whether this was the last one.
func (b *Buffer) release() bool {
	b.refMu.Lock()
	b.refCount--
	last := b.refCount <= 0
	b.refMu.Unlock()
	return last
}

// Params configures a Pool.
type Params struct {
	// AllocSize is the fixed buffer capacity in complex samples.
	AllocSize int
	// MaxBuffers bounds how many buffers the pool will ever allocate.
	MaxBuffers int
	// VMCircularity requests double virtual-address-space mapping so
	// Window can return contiguous wrapped views. If the doubled mapping
	// cannot be established (unsupported platform, non-page-aligned
	// size), the pool falls back to a plain allocation for that buffer
	// and Buffer.Circular reports false.
	VMCircularity bool
}

// Pool is a bounded pool of ref-counted sample buffers.
type Pool struct {
	params Params

	mu      sync.Mutex
	buffers []*Buffer

	freeMQ *mailbox.Mailbox
}

// New creates an empty pool. Buffers are allocated lazily, up to
// params.MaxBuffers.
func New(params Params) *Pool {
	return &Pool{
		params: params,
		freeMQ: mailbox.New(),
	}
}

func (p *Pool) newBuffer(rindex int) *Buffer {
	b := &Buffer{parent: p, size: p.params.AllocSize, rindex: rindex}

	if p.params.VMCircularity {
		if raw, ok := newDoubleMapping(p.params.AllocSize); ok {
			b.raw = raw
			b.circular = true
			return b
		}
		log_.Printf("VM circularity requested but unavailable for alloc_size=%d; falling back to plain allocation", p.params.AllocSize)
	}

	b.raw = make([]Sample, p.params.AllocSize)
	b.circular = false
	return b
}

// TryAcquire returns a buffer immediately: an existing free buffer if one
// is queued, otherwise a freshly allocated one if the pool has not yet
// reached MaxBuffers. It returns ok=false only when the pool is both out
// of free buffers and at capacity.
func (p *Pool) TryAcquire() (buf *Buffer, ok bool) {
	if env, found := p.freeMQ.Poll(); found {
		buf = env.Payload.(*Buffer)
		buf.acquired = true
		buf.refCount = 1
		return buf, true
	}

	p.mu.Lock()
	if len(p.buffers) >= p.params.MaxBuffers {
		p.mu.Unlock()
		return nil, false
	}
	buf = p.newBuffer(len(p.buffers))
	p.buffers = append(p.buffers, buf)
	p.mu.Unlock()

	buf.acquired = true
	buf.refCount = 1
	return buf, true
}

// Acquire returns a buffer, blocking if the pool is at capacity and every
// buffer is currently out.
func (p *Pool) Acquire() *Buffer {
	if buf, ok := p.TryAcquire(); ok {
		return buf
	}

	env := p.freeMQ.Read()
	buf := env.Payload.(*Buffer)
	buf.acquired = true
	buf.refCount = 1
	return buf
}

// Give returns one reference to buf. buf must belong to this pool and be
// currently acquired; violating either is a programmer bug and panics, per
// spec §4.3. The buffer is actually returned to the free list only once
// its reference count (1 plus any IncRef calls) reaches zero.
func (p *Pool) Give(buf *Buffer) {
	if !buf.acquired {
		panic("buffer: Give on a buffer that is not acquired")
	}
	if buf.parent != p {
		panic("buffer: attempting to return a buffer to the wrong pool")
	}

	p.mu.Lock()
	validIndex := buf.rindex >= 0 && buf.rindex < len(p.buffers) && p.buffers[buf.rindex] == buf
	p.mu.Unlock()
	if !validIndex {
		panic("buffer: buffer rindex does not match its pool's buffer list")
	}

	if !buf.release() {
		return
	}

	buf.acquired = false
	p.freeMQ.Write(tagBuffer, buf)
}

// Len reports how many buffers the pool has allocated so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers)
}
