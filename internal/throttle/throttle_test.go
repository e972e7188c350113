package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests control elapsed time deterministically without
// sleeping in wall-clock time.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func newTestThrottle(sampRate uint64) (*Throttle, *fakeClock) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	th := &Throttle{sleep: func(d time.Duration) { clk.advance(d) }, now: clk.now}
	th.Reset(sampRate)
	return th, clk
}

// T1: over a long window, the sum of GetPortion results tracks
// samp_rate * elapsed within a small constant.
func TestThrottleConservesRate(t *testing.T) {
	const sampRate = 1_000_000
	th, clk := newTestThrottle(sampRate)

	var total uint64
	for i := 0; i < 2000; i++ {
		got := th.GetPortion(1024)
		th.Advance(got)
		total += got
		clk.advance(time.Millisecond)
	}

	elapsed := clk.t.Sub(th.t0Snapshot())
	expected := float64(sampRate) * elapsed.Seconds()

	assert.InDelta(t, expected, float64(total), expected*0.05+1024)
}

// T2: a caller requesting more than available sleeps at least
// (requested/samp_rate)*0.25 seconds.
func TestThrottleSleepsWhenExhausted(t *testing.T) {
	const sampRate = 1000
	th, clk := newTestThrottle(sampRate)

	var sleptTotal time.Duration
	th.sleep = func(d time.Duration) {
		sleptTotal += d
		clk.advance(d)
	}

	// Reset's settle sleep advanced the fake clock past t0, so a few
	// samples are available at first. Consuming them leaves avail at
	// exactly 0: the stream is momentarily exhausted and the next
	// GetPortion must sleep.
	th.Advance(th.GetPortion(sampRate))

	const requested = 4000
	got := th.GetPortion(requested)
	th.Advance(got)

	minExpected := time.Duration(float64(requested) / float64(sampRate) * 0.25 * float64(time.Second))
	assert.GreaterOrEqual(t, sleptTotal, minExpected)
}

// t0Snapshot exposes the throttle's time origin for test assertions.
func (t *Throttle) t0Snapshot() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t0
}
