package reqmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/inspector"
)

type fakeFactory struct {
	freqCalls []float64
	bwCalls   []float64
}

func (f *fakeFactory) SetInspectorFreq(insp *inspector.Inspector, hz float64) error {
	f.freqCalls = append(f.freqCalls, hz)
	return nil
}

func (f *fakeFactory) SetInspectorBandwidth(insp *inspector.Inspector, hz float64) error {
	f.bwCalls = append(f.bwCalls, hz)
	return nil
}

func newRunningInspector() *inspector.Inspector {
	insp := inspector.New(inspector.Config{Handle: 1, RingCap: 8})
	insp.SetRunning()
	return insp
}

func TestAcquireSubmitCoalescesToOneRecordPerInspector(t *testing.T) {
	factory := &fakeFactory{}
	mgr := New(factory)
	insp := newRunningInspector()

	r1, ok := mgr.AcquireOverridable(insp)
	require.True(t, ok)
	r1.SetFrequency(14_000)
	mgr.SubmitOverridable(insp, r1)

	r2, ok := mgr.AcquireOverridable(insp)
	require.True(t, ok)
	assert.Same(t, r1, r2, "a second acquire before commit must return the same pending record")
	r2.SetFrequency(15_000)
	mgr.SubmitOverridable(insp, r2)

	mgr.CommitOverridable()

	require.Len(t, factory.freqCalls, 1, "at most one record may be committed per inspector")
	assert.Equal(t, 15_000.0, factory.freqCalls[0], "the committed value must be the most recent set_frequency")
}

func TestAcquireFailsWhenInspectorNotRunning(t *testing.T) {
	mgr := New(&fakeFactory{})
	insp := inspector.New(inspector.Config{Handle: 1, RingCap: 8})

	_, ok := mgr.AcquireOverridable(insp)
	assert.False(t, ok)
}

func TestClearRequestsRemovesPendingRecord(t *testing.T) {
	factory := &fakeFactory{}
	mgr := New(factory)
	insp := newRunningInspector()

	r, ok := mgr.AcquireOverridable(insp)
	require.True(t, ok)
	r.SetBandwidth(5_000)
	mgr.SubmitOverridable(insp, r)

	mgr.ClearRequests(insp)
	mgr.CommitOverridable()

	assert.Empty(t, factory.bwCalls, "a cleared request must not be applied on commit")
}

func TestDiscardOverridableReturnsRecordWithoutInstalling(t *testing.T) {
	factory := &fakeFactory{}
	mgr := New(factory)
	insp := newRunningInspector()

	r, ok := mgr.AcquireOverridable(insp)
	require.True(t, ok)
	mgr.DiscardOverridable(r)

	mgr.CommitOverridable()
	assert.Empty(t, factory.freqCalls)
	assert.Empty(t, factory.bwCalls)
}
