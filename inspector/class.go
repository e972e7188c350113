package inspector

import "time"

// Domain distinguishes frequency-domain inspectors (spectrum analysis
// native to a windowed FFT) from time-domain ones (spectrum computed,
// if at all, by the source itself), per spec §4.9.
type Domain int

const (
	FrequencyDomain Domain = iota
	TimeDomain
)

// SamplingInfo is the sub-channel descriptor an inspector class
// populates on Open, per spec §3: "sampling info (equivalent sample
// rate, normalized bandwidth, normalized center frequency, FFT size and
// decimation of the underlying sub-channel)".
type SamplingInfo struct {
	EquivSampleRate    float64
	NormalizedBandwidth float64
	NormalizedFreq     float64
	FFTSize            int
	Decimation         int
}

// Class is the per-inspector-type behavior an inspector factory binds
// an Inspector to, grounded on the per-class vtables under
// analyzer/inspector/*.c (psd, audio, raw, etc). It is deliberately
// narrower than the factory vtable of spec §4.6: Class is the
// inspector-side contract, Factory (package factory) is the
// sub-channel-side one.
type Class interface {
	// Domain reports whether this class computes spectra natively in
	// the frequency domain or hands raw samples to a spectrum source.
	Domain() Domain

	// Feed pushes count decoded samples into the class's sampler
	// pipeline; each accepted sample is appended to ring via ring.Push,
	// honoring ring.Avail per spec §4.9.
	Feed(ring *SampleRing, samples []complex64) error

	// CommitConfig applies a previously-requested configuration change.
	// Called with the inspector's mutex held, per spec §4.9's
	// "params_requested" assertion.
	CommitConfig() error
}

// BandwidthNotifiable is implemented by classes that need to react to
// an overridable bandwidth change taking effect (spec §4.8's
// "insp.notify_bandwidth(new_bw)" hook). Optional: most classes do not
// implement it.
type BandwidthNotifiable interface {
	NotifyBandwidth(newBandwidthHz float64)
}

// Estimator is one enabled scalar estimator instance, per spec §4.9's
// estimator loop.
type Estimator interface {
	Name() string
	// Feed processes one buffer and reports whether it produced a fresh
	// value.
	Feed(samples []complex64) (value float64, ok bool)
}

// SpectrumSource is one selectable spectrum-producing instance, per
// spec §4.9's spectrum loop. Time-domain sources emit internally via
// Callback rather than returning data synchronously.
type SpectrumSource interface {
	// Feed processes one buffer. Frequency-domain sources return the
	// instantaneous power spectrum; time-domain sources return nil and
	// instead invoke their own callback.
	Feed(samples []complex64, now time.Time) (spectrum []float32)
}
