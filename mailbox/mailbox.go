// Package mailbox implements the FIFO messaging primitive used for every
// inter-thread communication path in sdrcore: client-to-analyzer commands,
// analyzer-to-client results, worker inboxes and halt acknowledgements, and
// the sample-buffer pool's internal free list.
//
// Grounded on analyzer/mq.c and analyzer/mq.h from the original source: an
// envelope carries a type tag and an opaque payload, ownership of the
// payload passes into the mailbox on Write and out on Read, and envelope
// structures are drawn from a freelist to reduce allocator pressure.
package mailbox

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"
)

// Tag identifies the kind of an envelope's payload. Analogous to the
// uint32_t type field of struct suscan_msg.
type Tag uint32

// PoolWarningThreshold is the freelist size above which Mailbox logs a
// warning, mirroring SUSCAN_MQ_POOL_WARNING_THRESHOLD.
const PoolWarningThreshold = 100

// PoolOverflowThreshold is the freelist size above which Mailbox logs an
// overflow warning and stops growing the pool's retained freelist,
// mirroring SUSCAN_MQ_POOL_OVERFLOW_THRESHOLD. It does not bound
// correctness: envelopes beyond this size are simply not recycled.
const PoolOverflowThreshold = 300

var log_ = log.New(os.Stderr, "mailbox: ", log.LstdFlags)

// ErrTimeout is returned by the timed read operations when
// the deadline elapses before a matching envelope arrives.
var ErrTimeout = errors.New("mailbox: read timed out")

// Envelope is one FIFO entry: a tag plus its opaque payload.
type Envelope struct {
	Tag     Tag
	Payload any
}

type node struct {
	env      Envelope
	next     *node
	freeNext *node
}

// Mailbox is a FIFO queue of envelopes with urgent (head) insertion,
// blocking/timed/polling reads, and typed (tag-filtered) reads that leave
// non-matching envelopes in place. The zero value is not usable; use New.
type Mailbox struct {
	mu   sync.Mutex
	cond *sync.Cond
	head *node
	tail *node

	freeMu       sync.Mutex
	free         *node
	freeLen      int
	freePeak     int
	warnedOnce   bool
	overflowOnce bool
}

// New creates an empty, ready-to-use mailbox.
func New() *Mailbox {
	mb := &Mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

// Finalize drains and destroys all remaining envelopes. It is the caller's
// responsibility to ensure no other goroutine is blocked in a read when
// Finalize runs.
func (mb *Mailbox) Finalize() {
	mb.mu.Lock()
	for mb.head != nil {
		n := mb.head
		mb.head = n.next
		mb.releaseNode(n)
	}
	mb.tail = nil
	mb.mu.Unlock()
}

func (mb *Mailbox) allocNode() *node {
	mb.freeMu.Lock()
	if mb.free != nil {
		n := mb.free
		mb.free = n.freeNext
		mb.freeLen--
		mb.freeMu.Unlock()
		n.next = nil
		n.freeNext = nil
		return n
	}
	mb.freeMu.Unlock()
	return &node{}
}

func (mb *Mailbox) releaseNode(n *node) {
	n.env = Envelope{}
	n.next = nil

	mb.freeMu.Lock()
	if mb.freeLen >= PoolOverflowThreshold {
		mb.freeMu.Unlock()
		return
	}
	n.freeNext = mb.free
	mb.free = n
	mb.freeLen++
	if mb.freeLen > mb.freePeak {
		mb.freePeak = mb.freeLen
	}
	peak := mb.freePeak
	mb.freeMu.Unlock()

	if peak >= PoolOverflowThreshold {
		log_.Printf("envelope freelist grew to %d elements (overflow threshold)", peak)
	} else if peak >= PoolWarningThreshold && peak%PoolWarningThreshold == 0 {
		log_.Printf("envelope freelist grew to %d elements", peak)
	}
}

// Write enqueues (tag, payload) at the tail. It never blocks.
func (mb *Mailbox) Write(tag Tag, payload any) {
	n := mb.allocNode()
	n.env = Envelope{Tag: tag, Payload: payload}

	mb.mu.Lock()
	if mb.tail != nil {
		mb.tail.next = n
	} else {
		mb.head = n
	}
	mb.tail = n
	mb.cond.Broadcast()
	mb.mu.Unlock()
}

// WriteUrgent enqueues (tag, payload) at the head, ahead of every envelope
// currently queued, including any previously-urgent-written envelope that
// has not yet been popped: a second urgent write pushes in front of the
// first.
func (mb *Mailbox) WriteUrgent(tag Tag, payload any) {
	n := mb.allocNode()
	n.env = Envelope{Tag: tag, Payload: payload}

	mb.mu.Lock()
	n.next = mb.head
	mb.head = n
	if mb.tail == nil {
		mb.tail = n
	}
	mb.cond.Broadcast()
	mb.mu.Unlock()
}

// popHeadLocked must be called with mb.mu held. It removes and returns the head
// envelope, or ok=false if the mailbox is empty.
func (mb *Mailbox) popHeadLocked() (Envelope, bool) {
	n := mb.head
	if n == nil {
		return Envelope{}, false
	}
	mb.head = n.next
	if mb.head == nil {
		mb.tail = nil
	}
	env := n.env
	mb.releaseNode(n)
	return env, true
}

// popTypeLocked must be called with mb.mu held. It scans from the head and
// removes the first envelope whose tag equals `tag`, leaving every skipped
// envelope in its original relative order.
func (mb *Mailbox) popTypeLocked(tag Tag) (Envelope, bool) {
	var prev *node
	cur := mb.head
	for cur != nil {
		if cur.env.Tag == tag {
			if prev == nil {
				mb.head = cur.next
			} else {
				prev.next = cur.next
			}
			if cur == mb.tail {
				mb.tail = prev
			}
			env := cur.env
			mb.releaseNode(cur)
			return env, true
		}
		prev = cur
		cur = cur.next
	}
	return Envelope{}, false
}

// Len reports the number of envelopes currently queued, for
// instrumentation (metrics.SetQueueDepth); it does not consume anything.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for cur := mb.head; cur != nil; cur = cur.next {
		n++
	}
	return n
}

// Read blocks until any envelope is available, then returns it (FIFO
// order).
func (mb *Mailbox) Read() Envelope {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for {
		if env, ok := mb.popHeadLocked(); ok {
			return env
		}
		mb.cond.Wait()
	}
}

// ReadTimed blocks until any envelope is available or the timeout elapses,
// whichever comes first.
func (mb *Mailbox) ReadTimed(timeout time.Duration) (Envelope, error) {
	deadline := time.Now().Add(timeout)
	return mb.waitLocked(func() (Envelope, bool) {
		return mb.popHeadLocked()
	}, deadline)
}

// ReadOfType blocks until an envelope with the given tag is available,
// skipping (but not discarding) envelopes of other tags.
func (mb *Mailbox) ReadOfType(tag Tag) any {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for {
		if env, ok := mb.popTypeLocked(tag); ok {
			return env.Payload
		}
		mb.cond.Wait()
	}
}

// ReadOfTypeTimed is the timed variant of ReadOfType.
func (mb *Mailbox) ReadOfTypeTimed(tag Tag, timeout time.Duration) (any, error) {
	deadline := time.Now().Add(timeout)
	env, err := mb.waitLocked(func() (Envelope, bool) {
		return mb.popTypeLocked(tag)
	}, deadline)
	if err != nil {
		return nil, err
	}
	return env.Payload, nil
}

// waitLocked is the shared blocking-with-deadline loop used by ReadTimed
// and ReadOfTypeTimed. Go's sync.Cond has no native deadline support, so a
// timer is armed to force one extra wakeup at the deadline; this mirrors
// suscan_mq_timedwait_unsafe's pthread_cond_timedwait translated to Go's
// condvar idiom.
func (mb *Mailbox) waitLocked(pop func() (Envelope, bool), deadline time.Time) (Envelope, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for {
		if env, ok := pop(); ok {
			return env, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Envelope{}, ErrTimeout
		}

		timer := time.AfterFunc(remaining, func() {
			mb.mu.Lock()
			mb.cond.Broadcast()
			mb.mu.Unlock()
		})
		mb.cond.Wait()
		timer.Stop()
	}
}

// Poll performs a non-blocking read; ok is false if the mailbox is empty.
func (mb *Mailbox) Poll() (Envelope, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.popHeadLocked()
}

// PollOfType performs a non-blocking typed read.
func (mb *Mailbox) PollOfType(tag Tag) (any, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	env, ok := mb.popTypeLocked(tag)
	return env.Payload, ok
}
