// Package worker implements the single-thread task executor of the
// original spec's §4.2: a Worker owns one goroutine and a private inbox
// mailbox, runs pushed callbacks to completion (honoring a "restart by
// return value" self-rescheduling convention), and halts cooperatively by
// exchanging an urgent Halt envelope with its caller.
//
// Grounded on analyzer/worker.c / worker.h.
package worker

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwsl/sdrcore/mailbox"
)

var log_ = log.New(os.Stderr, "worker: ", log.LstdFlags)

// State is the Worker's lifecycle state, monotonically Created -> Running
// -> Halted.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Callback is the single callback type a Worker consumes. It returns
// restart=true to have the envelope re-queued at the inbox tail (so the
// worker thread keeps calling it, e.g. a persistent source-drain loop)
// or false to have it dropped after this invocation.
type Callback func(outbox *mailbox.Mailbox, workerPrivate any, cbPrivate any) (restart bool)

const (
	tagCallback mailbox.Tag = 1
	tagHalt     mailbox.Tag = 2
)

// ErrHaltTimeout is returned by Halt when the worker does not acknowledge
// within the caller's deadline. The worker goroutine is left running, per
// spec §5 ("the worker thread is not forcibly killed").
var ErrHaltTimeout = errors.New("worker: halt acknowledgement timed out")

type callbackEnvelope struct {
	fn      Callback
	private any
}

// Worker is a single-thread task executor driven by a private inbox. It
// writes pushed-callback output to outbox and its own halt acknowledgement
// to control - two logically distinct mailboxes that must never be the
// same instance a client also reads from, since the halt protocol's tag
// can collide with a public message tag of the same numeric value.
type Worker struct {
	Name string

	inbox   *mailbox.Mailbox
	outbox  *mailbox.Mailbox
	control *mailbox.Mailbox
	private any

	state   atomic.Int32
	haltReq atomic.Bool
	wg      sync.WaitGroup
}

// New spawns a worker named "worker". See NewNamed.
func New(outbox, control *mailbox.Mailbox, private any) *Worker {
	return NewNamed("worker", outbox, control, private)
}

// NewNamed is New with an explicit name, used as the log prefix for this
// worker's goroutine (Go has no portable pthread_setname_np equivalent;
// this is the logging analogue of the original's named worker threads).
// outbox receives whatever a pushed callback chooses to write; control
// receives only this worker's own halt acknowledgement and must be private
// to the owner driving Halt, never a mailbox a client also reads.
func NewNamed(name string, outbox, control *mailbox.Mailbox, private any) *Worker {
	w := &Worker{
		Name:    name,
		inbox:   mailbox.New(),
		outbox:  outbox,
		control: control,
		private: private,
	}
	w.state.Store(int32(StateRunning))
	w.wg.Add(1)
	go w.run()
	return w
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) run() {
	defer w.wg.Done()

	for !w.haltReq.Load() {
		env := w.inbox.Read()
		if !w.handle(env) {
			break
		}

		for !w.haltReq.Load() {
			env, ok := w.inbox.Poll()
			if !ok {
				break
			}
			if !w.handle(env) {
				goto done
			}
		}
	}

done:
	w.control.WriteUrgent(tagHalt, w)
	w.state.Store(int32(StateHalted))
	w.drain()
}

// handle processes one envelope. It returns false when a Halt envelope was
// observed, signalling the run loop to stop.
func (w *Worker) handle(env mailbox.Envelope) bool {
	switch env.Tag {
	case tagCallback:
		cb := env.Payload.(*callbackEnvelope)
		if cb.fn(w.outbox, w.private, cb.private) {
			w.inbox.Write(tagCallback, cb)
		}
		return true
	case tagHalt:
		return false
	default:
		log_.Printf("%s: unexpected envelope tag %d", w.Name, env.Tag)
		return true
	}
}

// drain discards any callback envelopes left in the inbox after halting,
// per spec: "the worker... drains its inbox destroying callback
// envelopes and exits."
func (w *Worker) drain() {
	for {
		env, ok := w.inbox.Poll()
		if !ok {
			return
		}
		_ = env // callback envelopes carry no resources beyond GC-managed memory
	}
}

// Push enqueues a callback invocation on this worker's inbox.
func (w *Worker) Push(fn Callback, private any) {
	w.inbox.Write(tagCallback, &callbackEnvelope{fn: fn, private: private})
}

// RequestHalt asks the worker to stop after its current callback (if any)
// returns, without waiting for acknowledgement.
func (w *Worker) RequestHalt() {
	w.haltReq.Store(true)
	w.inbox.WriteUrgent(tagHalt, nil)
}

// Halt requests a halt and blocks until the worker acknowledges by writing
// a Halt envelope to control, or until ctx is done. The caller must be
// prepared to drain control of unrelated envelopes while waiting, since
// Halt itself only recognizes envelopes tagged as this worker's ack.
//
// On timeout, Halt returns ErrHaltTimeout and the worker goroutine is left
// running (never force-killed), matching spec §5's halt-timeout policy.
//
// When several workers share one control mailbox (e.g. the inspector
// scheduler's worker pool), callers must halt them one at a time: Halt
// only recognizes its own worker's ack by identity, but a concurrent Halt
// on a sibling worker could otherwise consume this one's ack envelope
// first.
func (w *Worker) Halt(ctx context.Context) error {
	w.RequestHalt()

	for w.State() != StateHalted {
		select {
		case <-ctx.Done():
			log_.Printf("%s: halt acknowledgement timed out", w.Name)
			return ErrHaltTimeout
		default:
		}

		env, err := w.control.ReadOfTypeTimed(tagHalt, 50*time.Millisecond)
		if err == nil {
			if ackedWorker, ok := env.(*Worker); ok && ackedWorker == w {
				break
			}
		}
	}

	w.wg.Wait()
	return nil
}
