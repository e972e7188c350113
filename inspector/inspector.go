// Package inspector implements the per-sub-channel analysis unit of
// spec §3/§4.9: an Inspector owns a sampling descriptor, a sampler
// output ring, a set of estimators and spectrum sources, and an
// optional frequency corrector, and is driven one arrived buffer at a
// time by ProcessBuffer.
//
// Grounded on analyzer/inspector.c / inspector.h.
package inspector

import (
	"errors"
	"sync"
	"time"

	"github.com/cwsl/sdrcore/corrector"
	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/message"
)

// State is the inspector's lifecycle state, per spec §3. Transitions
// are Created -> Running -> Halting -> Halted, monotonic.
type State int

const (
	Created State = iota
	Running
	Halting
	Halted
)

// RefKind names one of the reference-counted holders of an inspector,
// per spec §3's ownership summary: "at minimum: factory, global_handle,
// global_handle_user, specttuner, task_info, overridable".
type RefKind int

const (
	RefFactory RefKind = iota
	RefGlobalHandle
	RefGlobalHandleUser
	RefSpecTuner
	RefTaskInfo
	RefOverridable
	refKindCount
)

var ErrNotRunning = errors.New("inspector: not running")

// Inspector is the analysis unit bound to one sub-channel, per spec §3.
type Inspector struct {
	Handle message.Handle
	UserID uint32

	Class   Class
	private any // factory-specific per-inspector object, opaque here

	Sampling SamplingInfo

	Ring      *SampleRing
	Watermark int

	Estimators      []Estimator
	EstimatorNames  []string
	lastEstimatorAt time.Time
	estimatorEvery  time.Duration

	SpectrumSources []SpectrumSource
	SpectSrcIndex   int // 0 = none selected; index-1 selects SpectrumSources
	lastSpectrumAt  time.Time
	spectrumEvery   time.Duration

	Corrector corrector.Corrector

	Outbox *mailbox.Mailbox

	// Control is the owning factory's private scheduler-worker control
	// mailbox, carried here only so collaborators that need to reach it
	// (e.g. a VTable implementation driving its own worker pool) can,
	// without reusing Outbox for internal halt traffic.
	Control *mailbox.Mailbox

	mu    sync.Mutex
	state State

	refs [refKindCount]int32

	paramsRequested   bool
	bandwidthNotified float64
	bandwidthDirty    bool
}

// Config bundles Inspector construction parameters.
type Config struct {
	Handle    message.Handle
	UserID    uint32
	Class     Class
	Sampling  SamplingInfo
	Watermark int
	RingCap   int
	Outbox    *mailbox.Mailbox
	Control   *mailbox.Mailbox
}

// New constructs an Inspector in the Created state, per spec §3.
func New(cfg Config) *Inspector {
	return &Inspector{
		Handle:    cfg.Handle,
		UserID:    cfg.UserID,
		Class:     cfg.Class,
		Sampling:  cfg.Sampling,
		Watermark: cfg.Watermark,
		Ring:      NewSampleRing(cfg.RingCap),
		Outbox:    cfg.Outbox,
		Control:   cfg.Control,
		state:     Created,
	}
}

// State returns the inspector's current lifecycle state.
func (i *Inspector) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// SetRunning transitions Created -> Running, called once factory.bind
// succeeds (spec §4.6).
func (i *Inspector) SetRunning() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == Created {
		i.state = Running
	}
}

// RequestHalt transitions Running -> Halting, per spec §4.6's
// halt_inspector: "under list-mutex, transition Running -> Halting.
// Actual teardown happens lazily in feed."
func (i *Inspector) RequestHalt() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == Running {
		i.state = Halting
	}
}

// MarkHalted transitions Halting -> Halted, called once the owning
// factory has torn the sub-channel down.
func (i *Inspector) MarkHalted() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = Halted
}

// IncRef takes a named reference, per spec §3's ownership summary.
func (i *Inspector) IncRef(kind RefKind) {
	i.mu.Lock()
	i.refs[kind]++
	i.mu.Unlock()
}

// Release drops a named reference and reports whether all named
// reference counts have reached zero, meaning the inspector can now be
// destroyed, per spec §3: "An inspector is destroyed only when all
// these counts reach zero."
func (i *Inspector) Release(kind RefKind) (destroyable bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.refs[kind] > 0 {
		i.refs[kind]--
	}
	for _, n := range i.refs {
		if n > 0 {
			return false
		}
	}
	return true
}

// RequestParamsCommit marks that the class's CommitConfig should run
// before the next Feed, per spec §4.9's params_requested assertion.
func (i *Inspector) RequestParamsCommit() {
	i.mu.Lock()
	i.paramsRequested = true
	i.mu.Unlock()
}

// NotifyBandwidth marks a bandwidth change to be delivered to the class
// before the next Feed, per spec §4.8's insp.notify_bandwidth hook.
func (i *Inspector) NotifyBandwidth(newBandwidthHz float64) {
	i.mu.Lock()
	i.bandwidthNotified = newBandwidthHz
	i.bandwidthDirty = true
	i.mu.Unlock()
}

// SetEstimatorInterval configures how often the estimator loop runs.
func (i *Inspector) SetEstimatorInterval(d time.Duration) {
	i.mu.Lock()
	i.estimatorEvery = d
	i.mu.Unlock()
}

// SetSpectrumInterval configures how often the spectrum loop runs.
func (i *Inspector) SetSpectrumInterval(d time.Duration) {
	i.mu.Lock()
	i.spectrumEvery = d
	i.mu.Unlock()
}

// ProcessBuffer runs the three per-buffer loops of spec §4.9 -
// estimator, spectrum, sampler - in that order, over one arrived
// buffer. It is invoked from a scheduler worker (package inspsched),
// never concurrently for the same inspector.
func (i *Inspector) ProcessBuffer(now time.Time, samples []complex64) error {
	if i.State() != Running {
		return ErrNotRunning
	}

	i.commitPendingConfig()

	i.runEstimatorLoop(now, samples)
	i.runSpectrumLoop(now, samples)
	return i.runSamplerLoop(samples)
}

func (i *Inspector) commitPendingConfig() {
	i.mu.Lock()
	requested := i.paramsRequested
	i.paramsRequested = false
	bwDirty := i.bandwidthDirty
	bw := i.bandwidthNotified
	i.bandwidthDirty = false
	i.mu.Unlock()

	if requested {
		i.mu.Lock()
		_ = i.Class.CommitConfig()
		i.mu.Unlock()
	}
	if bwDirty {
		if n, ok := i.Class.(BandwidthNotifiable); ok {
			n.NotifyBandwidth(bw)
		}
	}
}

func (i *Inspector) runEstimatorLoop(now time.Time, samples []complex64) {
	i.mu.Lock()
	due := i.estimatorEvery == 0 || now.Sub(i.lastEstimatorAt) >= i.estimatorEvery
	if due {
		i.lastEstimatorAt = now
	}
	estimators := i.Estimators
	outbox := i.Outbox
	handle := i.Handle
	i.mu.Unlock()

	if !due || outbox == nil {
		return
	}
	for _, e := range estimators {
		if v, ok := e.Feed(samples); ok {
			outbox.Write(message.TagInspector, &message.InspectorMessage{
				Kind:   message.KindEstimator,
				Handle: handle,
				Estimator: message.EstimatorMessage{
					InspectorID: uint32(handle),
					Name:        e.Name(),
					Value:       v,
				},
			})
		}
	}
}

func (i *Inspector) runSpectrumLoop(now time.Time, samples []complex64) {
	i.mu.Lock()
	idx := i.SpectSrcIndex
	if idx <= 0 || idx > len(i.SpectrumSources) {
		i.mu.Unlock()
		return
	}
	due := i.spectrumEvery == 0 || now.Sub(i.lastSpectrumAt) >= i.spectrumEvery
	domain := i.Class.Domain()
	src := i.SpectrumSources[idx-1]
	outbox := i.Outbox
	handle := i.Handle
	if due && domain == FrequencyDomain {
		i.lastSpectrumAt = now
	}
	i.mu.Unlock()

	if domain == TimeDomain {
		// Time-domain sources emit internally via their own callback.
		src.Feed(samples, now)
		return
	}
	if !due || outbox == nil {
		return
	}
	if spec := src.Feed(samples, now); spec != nil {
		outbox.Write(message.TagInspector, &message.InspectorMessage{
			Kind:   message.KindSpectrum,
			Handle: handle,
			Spectrum: message.SpectrumMessage{
				InspectorID: uint32(handle),
				Index:       idx,
				Data:        spec,
			},
		})
	}
}

func (i *Inspector) runSamplerLoop(samples []complex64) error {
	if err := i.Class.Feed(i.Ring, samples); err != nil {
		return err
	}

	i.mu.Lock()
	watermark := i.Watermark
	outbox := i.Outbox
	handle := i.Handle
	i.mu.Unlock()

	if i.Ring.Len() >= watermark || i.Ring.Full() {
		if batch := i.Ring.Flush(); len(batch) > 0 && outbox != nil {
			outbox.Write(message.TagSamples, &message.SamplesMessage{
				InspectorID: uint32(handle),
				Samples:     batch,
			})
		}
	}
	return nil
}
