package corrector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePropagator struct {
	rangeRate float64
	calls     int
}

func (f *fakePropagator) RangeRate(t time.Time, l1, l2 string, qth QTH) (float64, error) {
	f.calls++
	return f.rangeRate, nil
}

func TestTLECorrectorDopplerSign(t *testing.T) {
	prop := &fakePropagator{rangeRate: 1000} // receding at 1 km/s
	qthCache := NewQTHCache(func() (QTH, error) {
		return QTH{LatDeg: 40, LonDeg: -3, HeightM: 650}, nil
	})

	c, err := NewTLECorrector(TLEParams{Propagator: prop, QTH: qthCache})
	require.NoError(t, err)

	delta := c.Correction(time.Now(), 100_000_000)
	assert.Less(t, delta, 0.0, "a receding satellite must shift the observed carrier down")
	assert.InDelta(t, -1000.0/SpeedOfLight*100_000_000, delta, 1e-6)
}

func TestQTHCacheCollapsesConcurrentFirstReads(t *testing.T) {
	var calls int
	cache := NewQTHCache(func() (QTH, error) {
		calls++
		return QTH{LatDeg: 1, LonDeg: 2}, nil
	})

	const n = 16
	done := make(chan QTH, n)
	for i := 0; i < n; i++ {
		go func() {
			q, err := cache.Get()
			require.NoError(t, err)
			done <- q
		}()
	}
	for i := 0; i < n; i++ {
		q := <-done
		assert.Equal(t, 1.0, q.LatDeg)
	}

	assert.Equal(t, 1, calls, "concurrent first reads must collapse into a single provider call")
}

func TestCorrectorRegistry(t *testing.T) {
	assert.Contains(t, Classes(), "tle")

	_, err := New("does-not-exist", nil)
	assert.Error(t, err)
}
