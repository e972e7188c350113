// Package reqmgr implements the overridable-request coalescing layer of
// spec §4.8: tuning requests arrive faster than the source loop can
// apply them, but only the latest request per inspector matters, so at
// most one pending record is kept per inspector.
//
// Grounded on analyzer/source.c's request-coalescing logic (the
// original keeps this inline in the source loop; it is split out here
// as its own package so inspector/factory can depend on it without
// inspector needing to).
package reqmgr

import (
	"sync"

	"github.com/cwsl/sdrcore/inspector"
)

// FactoryOps is the subset of inspector-factory behavior the request
// manager needs to apply a committed request, kept as a local
// interface so this package never imports inspector/factory (which
// itself imports reqmgr) - avoiding an import cycle.
type FactoryOps interface {
	SetInspectorFreq(insp *inspector.Inspector, newFreqHz float64) error
	SetInspectorBandwidth(insp *inspector.Inspector, newBandwidthHz float64) error
}

// Request is the overridable request record of spec §3: "target
// inspector (strong ref), dead flag, pair {new_frequency,
// frequency_set} and pair {new_bandwidth, bandwidth_set}."
type Request struct {
	insp *inspector.Inspector
	dead bool

	newFrequency float64
	frequencySet bool

	newBandwidth float64
	bandwidthSet bool
}

// SetFrequency stages a frequency override on this pending record.
func (r *Request) SetFrequency(hz float64) {
	r.newFrequency = hz
	r.frequencySet = true
}

// SetBandwidth stages a bandwidth override on this pending record.
func (r *Request) SetBandwidth(hz float64) {
	r.newBandwidth = hz
	r.bandwidthSet = true
}

// Manager owns the freelist/alloc-list of overridable records, per spec
// §4.8.
type Manager struct {
	factory FactoryOps

	mu    sync.Mutex
	free  []*Request
	alloc map[*inspector.Inspector]*Request
}

// New constructs a request manager that applies committed requests
// through factory.
func New(factory FactoryOps) *Manager {
	return &Manager{
		factory: factory,
		alloc:   make(map[*inspector.Inspector]*Request),
	}
}

func (m *Manager) acquireRecordLocked() *Request {
	n := len(m.free)
	if n == 0 {
		return &Request{}
	}
	r := m.free[n-1]
	m.free = m.free[:n-1]
	*r = Request{}
	return r
}

// AcquireOverridable returns the pending record for insp, creating one
// if none exists. It fails (returns false) if insp is not Running. The
// manager's mutex is held across Acquire/Submit or Acquire/Discard,
// per spec §4.8 ("mutex still held").
func (m *Manager) AcquireOverridable(insp *inspector.Inspector) (*Request, bool) {
	m.mu.Lock()
	if insp.State() != inspector.Running {
		m.mu.Unlock()
		return nil, false
	}
	if existing, ok := m.alloc[insp]; ok {
		return existing, true
	}
	return m.acquireRecordLocked(), true
}

// SubmitOverridable installs record as insp's pending request if it
// was not already installed, takes the overridable ref, and releases
// the mutex held since AcquireOverridable.
func (m *Manager) SubmitOverridable(insp *inspector.Inspector, record *Request) {
	defer m.mu.Unlock()
	if _, already := m.alloc[insp]; already {
		return
	}
	record.insp = insp
	insp.IncRef(inspector.RefOverridable)
	m.alloc[insp] = record
}

// DiscardOverridable returns record to the freelist and releases the
// mutex held since AcquireOverridable, used when a caller decides not
// to change anything after all.
func (m *Manager) DiscardOverridable(record *Request) {
	defer m.mu.Unlock()
	m.free = append(m.free, record)
}

// CommitOverridable applies every pending, non-dead record, per spec
// §4.8. Called from the analyzer loop between source reads.
func (m *Manager) CommitOverridable() {
	m.mu.Lock()
	pending := make([]*Request, 0, len(m.alloc))
	for insp, r := range m.alloc {
		pending = append(pending, r)
		delete(m.alloc, insp)
	}
	m.mu.Unlock()

	for _, r := range pending {
		if !r.dead {
			insp := r.insp
			if r.frequencySet {
				_ = m.factory.SetInspectorFreq(insp, r.newFrequency)
			}
			if r.bandwidthSet {
				_ = m.factory.SetInspectorBandwidth(insp, r.newBandwidth)
				insp.NotifyBandwidth(r.newBandwidth)
			}
			insp.Release(inspector.RefOverridable)
		} else if r.insp != nil {
			r.insp.Release(inspector.RefOverridable)
		}
		m.mu.Lock()
		m.free = append(m.free, r)
		m.mu.Unlock()
	}
}

// ClearRequests removes any pending record for insp without applying
// it, used when halting an inspector (spec §4.8).
func (m *Manager) ClearRequests(insp *inspector.Inspector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.alloc[insp]
	if !ok {
		return
	}
	delete(m.alloc, insp)
	r.dead = true
	insp.Release(inspector.RefOverridable)
	m.free = append(m.free, r)
}
