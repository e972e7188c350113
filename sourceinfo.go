package sdrcore

import (
	"sync"

	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/message"
)

// sourceInfoTracker is the mutable source-info structure of spec
// §4.12: every setter that touches an advertised field writes it back
// here, then publishes a full snapshot.
type sourceInfoTracker struct {
	mu   sync.Mutex
	info message.SourceInfo

	outbox *mailbox.Mailbox
}

func newSourceInfoTracker(outbox *mailbox.Mailbox, initial message.SourceInfo) *sourceInfoTracker {
	return &sourceInfoTracker{info: initial, outbox: outbox}
}

// commitSourceInfo is the idempotent publish primitive spec §4.12 calls
// out as provided "for remote implementations": it emits the current
// snapshot unconditionally.
func (t *sourceInfoTracker) commitSourceInfo() {
	t.mu.Lock()
	snapshot := t.info
	t.mu.Unlock()
	t.outbox.Write(message.TagSourceInfo, &snapshot)
}

func (t *sourceInfoTracker) update(mutate func(*message.SourceInfo)) {
	t.mu.Lock()
	mutate(&t.info)
	t.mu.Unlock()
	t.commitSourceInfo()
}

func (t *sourceInfoTracker) snapshot() message.SourceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}
