package sdrcore

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/cwsl/sdrcore/inspector"
	"github.com/cwsl/sdrcore/message"
)

// globalHandleTable maps client-visible inspector handles to the
// inspector they name, per spec §4.11's "register the inspector in the
// analyzer's global handle map (64-bit random handle rejecting
// collisions...)". The original rejects a -1 sentinel value; this
// redesign (spec §9) uses an unsigned handle space with 0 reserved as
// "no inspector" instead.
type globalHandleTable struct {
	mu    sync.Mutex
	byID  map[message.Handle]*inspector.Inspector
}

func newGlobalHandleTable() *globalHandleTable {
	return &globalHandleTable{byID: make(map[message.Handle]*inspector.Inspector)}
}

func randomHandle() message.Handle {
	var b [8]byte
	_, _ = rand.Read(b[:])
	h := message.Handle(binary.BigEndian.Uint64(b[:]))
	if h == 0 {
		h = 1
	}
	return h
}

// register assigns a fresh random handle to insp, retrying on
// collision, takes the global_handle reference, and returns the
// assigned handle.
func (t *globalHandleTable) register(insp *inspector.Inspector) message.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		h := randomHandle()
		if _, taken := t.byID[h]; taken {
			continue
		}
		t.byID[h] = insp
		insp.IncRef(inspector.RefGlobalHandle)
		return h
	}
}

func (t *globalHandleTable) lookup(h message.Handle) (*inspector.Inspector, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	insp, ok := t.byID[h]
	return insp, ok
}

// unregister removes h from the table and drops the global_handle
// reference, per spec §4.11's Close handler.
func (t *globalHandleTable) unregister(h message.Handle) {
	t.mu.Lock()
	insp, ok := t.byID[h]
	if ok {
		delete(t.byID, h)
	}
	t.mu.Unlock()
	if ok {
		insp.Release(inspector.RefGlobalHandle)
	}
}
