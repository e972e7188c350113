package sdrcore

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/inspector"
	"github.com/cwsl/sdrcore/inspector/factory"
	"github.com/cwsl/sdrcore/internal/buffer"
	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/message"
)

type fakeSource struct {
	mu         sync.Mutex
	freq       float64
	iqReverse  bool
	stopped    bool
	denyTuning bool // when true, Info() advertises no tuning permissions
}

func (s *fakeSource) Read(buf []complex64) (int, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return 0, io.EOF
	}
	for i := range buf {
		buf[i] = complex64(complex(1, 0))
	}
	time.Sleep(time.Millisecond)
	return len(buf), nil
}

func (s *fakeSource) Info() message.SourceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var perms message.Permissions
	if !s.denyTuning {
		perms = perms.With(message.PermSetFreq).With(message.PermSetBandwidth)
	}
	return message.SourceInfo{Frequency: s.freq, EffectiveSampleRate: 48000, Seekable: false, Permissions: perms}
}

func (s *fakeSource) SetFrequency(hz float64) error {
	s.mu.Lock()
	s.freq = hz
	s.mu.Unlock()
	return nil
}
func (s *fakeSource) SetBandwidth(float64) error         { return nil }
func (s *fakeSource) SetGain(string, float64) error      { return nil }
func (s *fakeSource) SetAntenna(string) error             { return nil }
func (s *fakeSource) SetPPM(float64) error                { return nil }
func (s *fakeSource) SetDCRemove(bool) error              { return nil }
func (s *fakeSource) SetIQReverse(v bool) error           { s.iqReverse = v; return nil }
func (s *fakeSource) SetAGC(bool) error                   { return nil }
func (s *fakeSource) Seekable() bool                      { return false }
func (s *fakeSource) Seek(time.Time) error                { return nil }
func (s *fakeSource) ForceEOS() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

type passThroughClass struct{}

func (passThroughClass) Domain() inspector.Domain { return inspector.FrequencyDomain }
func (passThroughClass) Feed(ring *inspector.SampleRing, samples []complex64) error {
	for _, s := range samples {
		ring.Push(s)
	}
	return nil
}
func (passThroughClass) CommitConfig() error { return nil }

// fakeVTable is a stand-in spectral tuner satisfying factory.VTable: every
// sub-channel shares the single inspector opened against it, keyed by the
// *int private handle fakeVTable.Open hands back.
type fakeVTable struct {
	mu          sync.Mutex
	freq        map[*int]float64
	lastPrivate *int
}

func newFakeVTable() *fakeVTable { return &fakeVTable{freq: map[*int]float64{}} }

func (v *fakeVTable) Open(args factory.OpenArgs) (any, inspector.Class, inspector.SamplingInfo, error) {
	key := new(int)
	v.mu.Lock()
	v.lastPrivate = key
	v.mu.Unlock()
	return key, passThroughClass{}, inspector.SamplingInfo{EquivSampleRate: 48000, NormalizedFreq: args.FrequencyHz, NormalizedBandwidth: args.BandwidthHz}, nil
}
func (v *fakeVTable) Bind(private any, insp *inspector.Inspector) error { return nil }
func (v *fakeVTable) Close(private any)                                {}
func (v *fakeVTable) SetFrequency(private any, hz float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.freq[private.(*int)] = hz
	return nil
}
func (v *fakeVTable) SetBandwidth(private any, hz float64) error           { return nil }
func (v *fakeVTable) SetDomain(private any, isFrequencyDomain bool) error  { return nil }
func (v *fakeVTable) SetFreqCorrection(private any, deltaHz float64) error { return nil }
func (v *fakeVTable) GetAbsFreq(private any) float64                       { return 0 }
func (v *fakeVTable) GetTime(private any) time.Time                        { return time.Now() }
func (v *fakeVTable) FeedMaster(samples []complex64) bool                  { return false }
func (v *fakeVTable) RetuneCenter(hz float64) error                        { return nil }

func (v *fakeVTable) freqOf(private any) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.freq[private.(*int)]
}

func (v *fakeVTable) lastOpenedPrivate() *int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastPrivate
}

func newTestAnalyzer(t *testing.T, vt factory.VTable) (*Analyzer, *fakeSource) {
	t.Helper()
	src := &fakeSource{}
	a, err := New(Config{
		Params:     message.AnalyzerParams{SampleRate: 48000},
		Source:     src,
		VTable:     vt,
		PoolParams: buffer.Params{AllocSize: 256, MaxBuffers: 4},
	})
	require.NoError(t, err)
	go a.Run()
	return a, src
}

func TestAnalyzerEmitsSourceInitAndSourceInfoOnStartup(t *testing.T) {
	a, _ := newTestAnalyzer(t, nil)
	defer haltAnalyzer(t, a)

	env := a.Read()
	assert.Equal(t, message.TagSourceInit, env.Tag)

	env = drainUntil(a, message.TagSourceInfo)
	assert.Equal(t, message.TagSourceInfo, env.Tag)
}

func TestOpenAndTuneLeavesTheMostRecentSetFreqApplied(t *testing.T) {
	vt := newFakeVTable()
	a, _ := newTestAnalyzer(t, vt)
	defer haltAnalyzer(t, a)

	drainUntil(a, message.TagSourceInfo)

	a.Inbox().Write(message.TagInspector, &message.InspectorMessage{
		Kind:        message.KindOpen,
		Class:       "psk",
		FrequencyHz: 12_000,
		BandwidthHz: 2_000,
	})
	resp := readInspectorResponse(t, a)
	require.Equal(t, message.KindOpen, resp.Kind, resp.Error)
	handle := resp.Handle
	require.NotZero(t, handle)

	a.Inbox().Write(message.TagInspector, &message.InspectorMessage{Kind: message.KindSetFreq, Handle: handle, NewFrequencyHz: 14_000})
	readInspectorResponse(t, a)
	a.Inbox().Write(message.TagInspector, &message.InspectorMessage{Kind: message.KindSetFreq, Handle: handle, NewFrequencyHz: 15_000})
	readInspectorResponse(t, a)

	private := vt.lastOpenedPrivate()
	require.NotNil(t, private)

	assert.Eventually(t, func() bool {
		return vt.freqOf(private) == 15_000
	}, 2*time.Second, 10*time.Millisecond, "the most recently submitted SetFreq must be the frequency left on the sub-channel")
}

func TestCloseUnknownHandleReturnsWrongHandle(t *testing.T) {
	a, _ := newTestAnalyzer(t, nil)
	defer haltAnalyzer(t, a)

	a.Inbox().Write(message.TagInspector, &message.InspectorMessage{Kind: message.KindClose, Handle: 0xdead})
	resp := readInspectorResponse(t, a)
	assert.Equal(t, message.KindWrongHandle, resp.Kind)
}

func TestSetFreqWithoutPermissionReturnsInvalidArgument(t *testing.T) {
	vt := newFakeVTable()
	src := &fakeSource{denyTuning: true}
	a, err := New(Config{
		Params:     message.AnalyzerParams{SampleRate: 48000},
		Source:     src,
		VTable:     vt,
		PoolParams: buffer.Params{AllocSize: 256, MaxBuffers: 4},
	})
	require.NoError(t, err)
	go a.Run()
	defer haltAnalyzer(t, a)

	drainUntil(a, message.TagSourceInfo)

	a.Inbox().Write(message.TagInspector, &message.InspectorMessage{
		Kind:        message.KindOpen,
		Class:       "psk",
		FrequencyHz: 12_000,
		BandwidthHz: 2_000,
	})
	resp := readInspectorResponse(t, a)
	require.Equal(t, message.KindOpen, resp.Kind, resp.Error)

	a.Inbox().Write(message.TagInspector, &message.InspectorMessage{Kind: message.KindSetFreq, Handle: resp.Handle, NewFrequencyHz: 14_000})
	denied := readInspectorResponse(t, a)
	assert.Equal(t, message.KindInvalidArgument, denied.Kind)
}

func TestOpenWithoutVTableReturnsInvalidChannel(t *testing.T) {
	a, _ := newTestAnalyzer(t, nil)
	defer haltAnalyzer(t, a)

	a.Inbox().Write(message.TagInspector, &message.InspectorMessage{Kind: message.KindOpen, Class: "psk"})
	resp := readInspectorResponse(t, a)
	assert.Equal(t, message.KindInvalidChannel, resp.Kind)
}

func readInspectorResponse(t *testing.T, a *Analyzer) *message.InspectorMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		env, err := a.ReadTimed(2 * time.Second)
		require.NoError(t, err)
		if env.Tag == message.TagInspector {
			return env.Payload.(*message.InspectorMessage)
		}
	}
	t.Fatal("no inspector response observed")
	return nil
}

func drainUntil(a *Analyzer, tag message.Tag) mailbox.Envelope {
	for {
		e := a.Read()
		if e.Tag == tag {
			return e
		}
	}
}

func haltAnalyzer(t *testing.T, a *Analyzer) {
	t.Helper()
	a.Inbox().WriteUrgent(message.TagHalt, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			t.Fatal("analyzer did not halt in time")
			return
		default:
		}
		env, err := a.ReadTimed(100 * time.Millisecond)
		if err == nil && env.Tag == message.TagHalt {
			return
		}
	}
}
