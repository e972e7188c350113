// Package throttle implements the real-time pacing primitive of spec §4.4,
// used to keep non-realtime sources (files, replay) from being drained
// faster than their nominal sample rate. Realtime sources bypass it
// entirely.
//
// Grounded on analyzer/throttle.c / throttle.h.
package throttle

import (
	"sync"
	"time"
)

// lateReaderThreshold mirrors SUSCAN_THROTTLE_LATE_READER_THRESHOLD_NS:
// above this elapsed time, avoid the nanosecond-precision multiply
// (which could overflow for very large elapsed values) and use a coarser
// whole-seconds estimate instead.
const lateReaderThreshold = 10 * time.Second

// resetThreshold mirrors SUSCAN_THROTTLE_RESET_THRESHOLD: if a reader is
// so far behind that more than this many samples are "available", the
// accounting is reset rather than left to grow unbounded.
const resetThreshold = 1 << 24

// maxReadUnitFrac mirrors SUSCAN_THROTTLE_MAX_READ_UNIT_FRAC: the fraction
// of the requested read's duration slept when the stream is momentarily
// exhausted.
const maxReadUnitFrac = 0.25

// startupSettle mirrors suscan_throttle_init's 100ms sleep after capturing
// t0, which avoids an initial full-speed read burst on fast/low-resolution
// clocks where the first elapsed-time sample could read as zero.
const startupSettle = 100 * time.Millisecond

// Throttle paces a single logical stream at samp_rate samples/second.
type Throttle struct {
	mu        sync.Mutex
	sampRate  uint64
	t0        time.Time
	sampCount int64

	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a throttle at the given sample rate and performs the
// startup settle sleep.
func New(sampRate uint64) *Throttle {
	t := &Throttle{sleep: time.Sleep, now: time.Now}
	t.Reset(sampRate)
	return t
}

// Reset reinitializes the throttle's rate and time origin, including the
// startup settle delay.
func (t *Throttle) Reset(sampRate uint64) {
	t.mu.Lock()
	t.sampRate = sampRate
	t.sampCount = 0
	t.t0 = t.now()
	t.mu.Unlock()

	t.sleep(startupSettle)
}

// SetSampleRate changes the pacing rate without resetting accounting,
// used when the analyzer's Throttle command overrides the effective
// sample rate mid-stream (0 meaning "use the source's nominal rate",
// handled by the caller before this is invoked).
func (t *Throttle) SetSampleRate(sampRate uint64) {
	t.mu.Lock()
	t.sampRate = sampRate
	t.mu.Unlock()
}

// GetPortion returns how many of the `requested` samples may be consumed
// right now, sleeping internally when the stream is momentarily
// exhausted, per spec §4.4 steps 1-5.
func (t *Throttle) GetPortion(requested uint64) uint64 {
	if requested == 0 {
		return 0
	}

	for {
		t.mu.Lock()
		tn := t.now()
		sub := tn.Sub(t.t0)

		var avail int64
		if sub > lateReaderThreshold {
			avail = int64(t.sampRate)*int64(sub/time.Second) - t.sampCount
		} else {
			avail = int64(float64(t.sampRate)*sub.Seconds()) - t.sampCount
		}

		if avail == 0 {
			t.sampCount = 0
			t.t0 = tn
			samps := float64(requested) * maxReadUnitFrac
			nsecs := time.Duration(samps / float64(t.sampRate) * float64(time.Second))
			t.mu.Unlock()
			t.sleep(nsecs)
			continue
		}

		if avail > resetThreshold {
			t.sampCount = 0
			t.t0 = tn
		}

		allowed := requested
		if avail >= 0 && uint64(avail) < allowed {
			allowed = uint64(avail)
		}
		t.mu.Unlock()
		return allowed
	}
}

// Advance records that `got` samples were actually consumed.
func (t *Throttle) Advance(got uint64) {
	t.mu.Lock()
	t.sampCount += int64(got)
	t.mu.Unlock()
}
