// Package sdrcore implements the top-level analyzer loop of spec §4.10-
// §4.12: the state machine that drives a source backend, dispatches
// inspector commands, coordinates throttling and baseband filtering,
// and publishes status/source-info/PSD messages.
//
// Source backends (file, SoapySDR, wav, remote), concrete DSP blocks,
// and persisted configuration are explicitly out of scope (spec §1):
// they are referenced here only through the Source and BasebandFilter
// interface contracts.
//
// Grounded on analyzer/analyzer.c / source.c.
package sdrcore

import (
	"time"

	"github.com/cwsl/sdrcore/message"
)

// Source is the external collaborator contract for a radio backend,
// per spec §1/§6. The core drives it through this interface only; any
// concrete backend (file playback, SoapySDR, a remote relay) implements
// it independently of this module.
type Source interface {
	// Read fills buf with up to len(buf) samples, returning how many
	// were actually read. io.EOF (or a backend-specific error) signals
	// end of stream, mapped to EOS/ReadError per spec §7.
	Read(buf []complex64) (n int, err error)

	// Info returns the current, backend-reported source-info snapshot.
	Info() message.SourceInfo

	SetFrequency(hz float64) error
	SetBandwidth(hz float64) error
	SetGain(element string, valueDb float64) error
	SetAntenna(name string) error
	SetPPM(ppm float64) error
	SetDCRemove(enabled bool) error
	SetIQReverse(enabled bool) error
	SetAGC(enabled bool) error

	// Seekable reports whether Seek is meaningful for this backend.
	Seekable() bool
	Seek(t time.Time) error

	// ForceEOS unblocks a Read that is not itself honoring a context
	// deadline, per spec §5's cancellation model: "the source
	// implementation is expected to provide force_eos to unblock
	// [reads] from outside."
	ForceEOS()
}

// BasebandFilter is one registered filter run, in priority order, over
// each freshly-read buffer before it is handed to the spectral tuner
// and PSD worker, per spec §4.10 step 4. Concrete filters (DC blockers,
// channel equalizers, ...) are out of scope collaborators.
type BasebandFilter interface {
	Priority() int
	Apply(buf []complex64) error
}

// SourceConfig carries the construction-time parameters consumed from
// the source-config external collaborator, per spec §6's
// "Source-config (consumed from external collaborator)" entry.
type SourceConfig struct {
	Type                string
	EffectiveSampleRate float64
	Frequency           float64
	LNBFrequency        float64
	Antenna             string
	Bandwidth           float64
	PPM                 float64
	DCRemove            bool
	IQReverse           bool
	AGC                 bool
	QTH                 *struct {
		LatDeg, LonDeg, HeightM float64
	}
	Gains []message.GainElement
}
