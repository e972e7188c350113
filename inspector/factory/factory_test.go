package factory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/inspector"
	"github.com/cwsl/sdrcore/mailbox"
)

type fakeClass struct{}

func (fakeClass) Domain() inspector.Domain                                       { return inspector.FrequencyDomain }
func (fakeClass) Feed(ring *inspector.SampleRing, samples []complex64) error      { return nil }
func (fakeClass) CommitConfig() error                                            { return nil }

type fakeVTable struct {
	mu      sync.Mutex
	freq    map[any]float64
	bw      map[any]float64
	closed  map[any]bool
	absFreq float64
}

func newFakeVTable() *fakeVTable {
	return &fakeVTable{freq: map[any]float64{}, bw: map[any]float64{}, closed: map[any]bool{}}
}

func (v *fakeVTable) Open(args OpenArgs) (any, inspector.Class, inspector.SamplingInfo, error) {
	key := new(int)
	return key, fakeClass{}, inspector.SamplingInfo{EquivSampleRate: 48000}, nil
}
func (v *fakeVTable) Bind(private any, insp *inspector.Inspector) error { return nil }
func (v *fakeVTable) Close(private any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed[private] = true
}
func (v *fakeVTable) SetFrequency(private any, hz float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.freq[private] = hz
	return nil
}
func (v *fakeVTable) SetBandwidth(private any, hz float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bw[private] = hz
	return nil
}
func (v *fakeVTable) SetDomain(private any, isFrequencyDomain bool) error { return nil }
func (v *fakeVTable) SetFreqCorrection(private any, deltaHz float64) error { return nil }
func (v *fakeVTable) GetAbsFreq(private any) float64                      { return v.absFreq }
func (v *fakeVTable) GetTime(private any) time.Time                       { return time.Now() }
func (v *fakeVTable) FeedMaster(samples []complex64) bool                 { return false }
func (v *fakeVTable) RetuneCenter(hz float64) error                       { return nil }

func TestOpenBindAssignsRunningInspector(t *testing.T) {
	vt := newFakeVTable()
	f := New(vt, mailbox.New(), nil, 2)
	defer f.Halt(context.Background())

	insp, err := f.Open(OpenArgs{Class: "psk", FrequencyHz: 12_000, BandwidthHz: 2_000}, nil)
	require.NoError(t, err)
	assert.Equal(t, inspector.Running, insp.State())
	assert.NotZero(t, insp.Handle)

	got, ok := f.Lookup(insp.Handle)
	require.True(t, ok)
	assert.Same(t, insp, got)
}

func TestFeedSkipsHaltedInspector(t *testing.T) {
	vt := newFakeVTable()
	f := New(vt, mailbox.New(), nil, 2)
	defer f.Halt(context.Background())

	insp, err := f.Open(OpenArgs{Class: "psk"}, nil)
	require.NoError(t, err)

	insp.RequestHalt()
	insp.MarkHalted()

	ok := f.Feed(insp, []complex64{1})
	assert.False(t, ok, "feed must fail once an inspector has reached Halted")
}

func TestFeedClosesSubChannelWhileHalting(t *testing.T) {
	vt := newFakeVTable()
	f := New(vt, mailbox.New(), nil, 2)
	defer f.Halt(context.Background())

	insp, err := f.Open(OpenArgs{Class: "psk"}, nil)
	require.NoError(t, err)

	insp.RequestHalt()
	ok := f.Feed(insp, []complex64{1})
	assert.True(t, ok)
	assert.Equal(t, inspector.Halted, insp.State())
}

func TestSetInspectorFreqAndBandwidthRouteThroughVTable(t *testing.T) {
	vt := newFakeVTable()
	f := New(vt, mailbox.New(), nil, 2)
	defer f.Halt(context.Background())

	insp, err := f.Open(OpenArgs{Class: "psk"}, nil)
	require.NoError(t, err)

	require.NoError(t, f.SetInspectorFreq(insp, 15_000))
	require.NoError(t, f.SetInspectorBandwidth(insp, 3_000))

	private, ok := f.privateOf(insp)
	require.True(t, ok)
	assert.Equal(t, 15_000.0, vt.freq[private])
	assert.Equal(t, 3_000.0, vt.bw[private])
}
