// Package factory implements the inspector factory of spec §4.6: the
// sub-channel-side vtable, the owned-inspector list, and the join point
// between inspector, inspsched (the scheduler) and reqmgr (the
// overridable-request coalescer) - the only package that imports both,
// so neither of those needs to know about the other.
//
// Grounded on analyzer/inspector/factory.c / factory.h, built on a
// spectral tuner that partitions the source's full-rate baseband into
// independently tunable sub-channels.
package factory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwsl/sdrcore/corrector"
	"github.com/cwsl/sdrcore/inspector"
	"github.com/cwsl/sdrcore/internal/inspsched"
	"github.com/cwsl/sdrcore/internal/reqmgr"
	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/message"
	"github.com/cwsl/sdrcore/metrics"
)

var log_ = log.New(os.Stderr, "factory: ", log.LstdFlags)

// OpenArgs are the caller-supplied parameters for opening a new
// sub-channel, per spec's end-to-end "Open inspector of class psk at
// {fc, bw, precise}" scenario.
type OpenArgs struct {
	Class       string
	FrequencyHz float64
	BandwidthHz float64
	Precise     bool
}

// VTable is the sub-channel-side contract spec §4.6 requires of the
// factory's backing spectral tuner (or any other sub-channel
// provider).
type VTable interface {
	// Open chooses the inspector class, populates the sampling
	// descriptor for the new sub-channel, and returns an opaque
	// per-inspector handle used by the remaining VTable methods.
	Open(args OpenArgs) (perInspPrivate any, class inspector.Class, sampling inspector.SamplingInfo, err error)
	// Bind wires insp to its sub-channel and takes a strong reference
	// for the sub-channel side.
	Bind(perInspPrivate any, insp *inspector.Inspector) error
	// Close tears down the sub-channel.
	Close(perInspPrivate any)

	SetFrequency(perInspPrivate any, hz float64) error
	SetBandwidth(perInspPrivate any, hz float64) error
	SetDomain(perInspPrivate any, isFrequencyDomain bool) error
	SetFreqCorrection(perInspPrivate any, deltaHz float64) error
	GetAbsFreq(perInspPrivate any) float64
	GetTime(perInspPrivate any) time.Time

	// FeedMaster hands the full-rate baseband buffer to the spectral
	// tuner; it reports whether the tuner produced fresh decimated data
	// for at least one bound sub-channel, each of which the tuner routes
	// internally to Factory.Feed.
	FeedMaster(samples []complex64) (newData bool)

	// RetuneCenter moves the spectral tuner's full-rate center
	// frequency, used by the wide-spectrum hop strategy (spec §4.10).
	RetuneCenter(hz float64) error
}

type ownedInspector struct {
	insp    *inspector.Inspector
	private any
}

// Factory owns a list of inspectors, a scheduler, and a request
// manager, per spec §3's "Inspector factory" data model entry.
type Factory struct {
	vtable  VTable
	outbox  *mailbox.Mailbox
	control *mailbox.Mailbox

	sched   *inspsched.Scheduler
	reqs    *reqmgr.Manager

	listMu sync.Mutex
	owned  map[message.Handle]*ownedInspector

	orbitReportEvery time.Duration
	lastOrbitReport  map[message.Handle]time.Time
}

// New constructs a Factory driving sub-channels through vtable and
// publishing to outbox, with a scheduler of workerCount workers (<=0
// selects inspsched.WorkerCount()). control is the factory's private
// mailbox for scheduler worker halt acknowledgement; it must never be a
// mailbox a client also reads from, since a worker's halt-ack tag can
// collide numerically with a public message tag. If control is nil, New
// allocates a private one.
func New(vtable VTable, outbox, control *mailbox.Mailbox, workerCount int) *Factory {
	if control == nil {
		control = mailbox.New()
	}
	f := &Factory{
		vtable:          vtable,
		outbox:          outbox,
		control:         control,
		sched:           inspsched.New(control, workerCount),
		owned:           make(map[message.Handle]*ownedInspector),
		lastOrbitReport: make(map[message.Handle]time.Time),
	}
	f.reqs = reqmgr.New(f)
	return f
}

// SetOrbitReportInterval configures how often Feed emits an OrbitReport
// message for inspectors bound to an applicable corrector, per spec §6.
func (f *Factory) SetOrbitReportInterval(d time.Duration) {
	f.orbitReportEvery = d
}

// SetMetrics wires a Prometheus collector set into the factory's
// scheduler.
func (f *Factory) SetMetrics(m *metrics.Collectors) {
	f.sched.SetMetrics(m)
}

func newHandle() message.Handle {
	// A 64-bit non-zero-niche handle, per spec §9's redesign note;
	// derived from a UUID's low 64 bits rather than a sequential
	// counter, so handles remain meaningful across factory restarts.
	id := uuid.New()
	h := message.Handle(0)
	for _, b := range id[8:16] {
		h = h<<8 | message.Handle(b)
	}
	if h == 0 {
		h = 1
	}
	return h
}

// Open performs spec §4.6's four-step open sequence: invoke
// vtable.Open, construct the Inspector, prune halted inspectors and
// append the new one under the list mutex, then vtable.Bind.
func (f *Factory) Open(args OpenArgs, corr corrector.Corrector) (*inspector.Inspector, error) {
	private, class, sampling, err := f.vtable.Open(args)
	if err != nil {
		return nil, fmt.Errorf("factory: open: %w", err)
	}

	handle := newHandle()
	insp := inspector.New(inspector.Config{
		Handle:   handle,
		Class:    class,
		Sampling: sampling,
		Outbox:   f.outbox,
		Control:  f.control,
	})
	insp.Corrector = corr

	f.listMu.Lock()
	f.pruneHaltedLocked()
	insp.IncRef(inspector.RefFactory)
	f.owned[handle] = &ownedInspector{insp: insp, private: private}
	f.listMu.Unlock()

	if err := f.vtable.Bind(private, insp); err != nil {
		f.listMu.Lock()
		delete(f.owned, handle)
		f.listMu.Unlock()
		insp.Release(inspector.RefFactory)
		return nil, fmt.Errorf("factory: bind: %w", err)
	}
	insp.SetRunning()
	return insp, nil
}

func (f *Factory) pruneHaltedLocked() {
	for h, o := range f.owned {
		if o.insp.State() == inspector.Halted {
			delete(f.owned, h)
			o.insp.Release(inspector.RefFactory)
		}
	}
}

// Feed implements spec §4.6's factory.feed: it updates frequency
// correction, allocates a task-info record, and enqueues it on the
// scheduler - except when the inspector is Halted (fail) or Halting
// (tear the sub-channel down and mark Halted instead of scheduling
// more work).
func (f *Factory) Feed(insp *inspector.Inspector, data []complex64) bool {
	private, ok := f.privateOf(insp)
	if !ok {
		return false
	}

	switch insp.State() {
	case inspector.Halted:
		return false
	case inspector.Halting:
		f.vtable.Close(private)
		insp.MarkHalted()
		return true
	}

	f.updateFreqCorrection(insp, private)

	task := f.sched.AcquireTaskInfo(insp, f.vtable.GetTime(private), data)
	f.sched.QueueTask(task)
	return true
}

func (f *Factory) updateFreqCorrection(insp *inspector.Inspector, private any) {
	if insp.Corrector == nil {
		return
	}
	sourceTime := f.vtable.GetTime(private)
	absFreq := f.vtable.GetAbsFreq(private)
	if !insp.Corrector.Applicable(sourceTime) {
		return
	}
	delta := insp.Corrector.Correction(sourceTime, absFreq)
	if err := f.vtable.SetFreqCorrection(private, delta); err != nil {
		log_.Printf("set_freq_correction failed: %v", err)
		return
	}

	if f.orbitReportEvery <= 0 {
		return
	}
	last := f.lastOrbitReport[insp.Handle]
	if sourceTime.Sub(last) < f.orbitReportEvery {
		return
	}
	f.lastOrbitReport[insp.Handle] = sourceTime
	f.outbox.Write(message.TagInspector, &message.InspectorMessage{
		Kind:         message.KindOrbitReport,
		Handle:       insp.Handle,
		CorrectionHz: delta,
	})
}

// HaltInspector transitions insp from Running to Halting under the
// factory's list mutex; actual teardown happens lazily in Feed, per
// spec §4.6.
func (f *Factory) HaltInspector(insp *inspector.Inspector) {
	f.listMu.Lock()
	insp.RequestHalt()
	f.listMu.Unlock()
	f.reqs.ClearRequests(insp)
}

// Lookup returns the owned inspector for handle, if any.
func (f *Factory) Lookup(handle message.Handle) (*inspector.Inspector, bool) {
	f.listMu.Lock()
	defer f.listMu.Unlock()
	o, ok := f.owned[handle]
	if !ok {
		return nil, false
	}
	return o.insp, true
}

func (f *Factory) privateOf(insp *inspector.Inspector) (any, bool) {
	f.listMu.Lock()
	defer f.listMu.Unlock()
	o, ok := f.owned[insp.Handle]
	if !ok {
		return nil, false
	}
	return o.private, true
}

// SetInspectorFreq retunes insp's sub-channel, satisfying
// reqmgr.FactoryOps so the request manager can apply committed
// overridable frequency changes (spec §4.8).
func (f *Factory) SetInspectorFreq(insp *inspector.Inspector, newFreqHz float64) error {
	private, ok := f.privateOf(insp)
	if !ok {
		return fmt.Errorf("factory: set frequency: unknown inspector")
	}
	return f.vtable.SetFrequency(private, newFreqHz)
}

// SetInspectorBandwidth retunes insp's sub-channel bandwidth,
// satisfying reqmgr.FactoryOps (spec §4.8).
func (f *Factory) SetInspectorBandwidth(insp *inspector.Inspector, newBandwidthHz float64) error {
	private, ok := f.privateOf(insp)
	if !ok {
		return fmt.Errorf("factory: set bandwidth: unknown inspector")
	}
	return f.vtable.SetBandwidth(private, newBandwidthHz)
}

// Requests exposes the factory's request manager for the analyzer loop
// to drive AcquireOverridable/SubmitOverridable/CommitOverridable, per
// spec §4.8.
func (f *Factory) Requests() *reqmgr.Manager {
	return f.reqs
}

// Halt stops every scheduler worker.
func (f *Factory) Halt(ctx context.Context) error {
	return f.sched.Halt(ctx)
}

// Sync forces quiescence across the scheduler's worker pool, per spec
// §4.7; the analyzer's source-worker calls this after the spectral
// tuner reports new data, before acknowledging it.
func (f *Factory) Sync() {
	f.sched.Sync()
}

// VTableFeedMaster hands buf to the backing spectral tuner, per spec
// §4.10 step 5.
func (f *Factory) VTableFeedMaster(buf []complex64) bool {
	return f.vtable.FeedMaster(buf)
}

// VTableRetuneCenter moves the spectral tuner's full-rate center
// frequency, used by the wide-spectrum hop strategy (spec §4.10).
func (f *Factory) VTableRetuneCenter(hz float64) error {
	return f.vtable.RetuneCenter(hz)
}
