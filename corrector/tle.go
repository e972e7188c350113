package corrector

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SpeedOfLight is c in meters/second, used to convert a satellite's
// observer-relative range rate into a Doppler frequency shift.
const SpeedOfLight = 299_792_458.0

// QTH is the observer's position in the WGS-84 frame, per spec's
// glossary entry for QTH.
type QTH struct {
	LatDeg  float64
	LonDeg  float64
	HeightM float64
}

// Propagator is the out-of-scope collaborator spec §1 calls out ("SGDP4
// satellite propagation... referenced only through their interface
// contracts"): it reports a satellite's observer-relative range rate at a
// given time for a given TLE.
type Propagator interface {
	// RangeRate returns the line-of-sight velocity of the satellite
	// relative to the observer at t, in meters/second, positive when the
	// satellite is receding.
	RangeRate(t time.Time, tleLine1, tleLine2 string, qth QTH) (metersPerSecond float64, err error)
}

// QTHProvider loads the observer's position. Implementations typically
// read this from persisted configuration, which is itself out of scope
// here (spec §1 lists "persisted configuration" among the external
// collaborators).
type QTHProvider func() (QTH, error)

// QTHCache makes the observer's QTH process-wide and cached after first
// read, per spec §9's design note. Concurrent first-readers collapse
// into a single provider call via singleflight, rather than racing to
// populate the cache redundantly.
type QTHCache struct {
	provider QTHProvider
	group    singleflight.Group

	mu     sync.RWMutex
	cached *QTH
}

// NewQTHCache wraps provider with the process-wide cache.
func NewQTHCache(provider QTHProvider) *QTHCache {
	return &QTHCache{provider: provider}
}

// Get returns the cached QTH, fetching it on the first call.
func (c *QTHCache) Get() (QTH, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return *c.cached, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("qth", func() (any, error) {
		return c.provider()
	})
	if err != nil {
		return QTH{}, err
	}

	qth := v.(QTH)
	c.mu.Lock()
	c.cached = &qth
	c.mu.Unlock()
	return qth, nil
}

// Invalidate clears the cache, forcing the next Get to re-query provider.
func (c *QTHCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// TLEParams are the class-specific construction parameters for the "tle"
// corrector class.
type TLEParams struct {
	Line1      string
	Line2      string
	Propagator Propagator
	QTH        *QTHCache
}

// TLECorrector integrates a satellite propagator to compute the Doppler
// shift a TLE-tracked satellite imposes on a nominal carrier frequency,
// at the source's current time, for the configured observer QTH.
type TLECorrector struct {
	line1, line2 string
	propagator   Propagator
	qth          *QTHCache
}

// NewTLECorrector constructs a TLECorrector directly (bypassing the
// registry), useful for tests and for callers that already hold typed
// parameters.
func NewTLECorrector(params TLEParams) (*TLECorrector, error) {
	if params.Propagator == nil {
		return nil, fmt.Errorf("corrector: tle: propagator is required")
	}
	if params.QTH == nil {
		return nil, fmt.Errorf("corrector: tle: observer QTH is required")
	}
	return &TLECorrector{
		line1:      params.Line1,
		line2:      params.Line2,
		propagator: params.Propagator,
		qth:        params.QTH,
	}, nil
}

// Applicable always returns true once constructed: a TLE corrector is
// either wired in with a usable propagator or not installed at all (spec
// §4.5: replacing a corrector with none is how it's disabled).
func (c *TLECorrector) Applicable(sourceTime time.Time) bool {
	return true
}

// Correction returns the Doppler shift, in Hz, at sourceTime for carrier
// absFreqHz: delta = -rangeRate/c * absFreqHz (a receding satellite, positive
// range rate, shifts the observed carrier down).
func (c *TLECorrector) Correction(sourceTime time.Time, absFreqHz float64) float64 {
	qth, err := c.qth.Get()
	if err != nil {
		return 0
	}

	rangeRate, err := c.propagator.RangeRate(sourceTime, c.line1, c.line2, qth)
	if err != nil {
		return 0
	}

	return -rangeRate / SpeedOfLight * absFreqHz
}

func init() {
	Register("tle", func(params any) (Corrector, error) {
		p, ok := params.(TLEParams)
		if !ok {
			return nil, fmt.Errorf("corrector: tle: expected TLEParams, got %T", params)
		}
		return NewTLECorrector(p)
	})
}
