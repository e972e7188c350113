package sdrcore

import (
	"github.com/cwsl/sdrcore/corrector"
	"github.com/cwsl/sdrcore/inspector"
	"github.com/cwsl/sdrcore/inspector/factory"
	"github.com/cwsl/sdrcore/message"
)

// handleInspectorCommand is the dispatch table of spec §4.11, keyed by
// message.InspectorKind. Every response is an Inspector-tagged message
// written back to the caller; teardown happens only for Close, per
// spec §7's error-handling policy.
func (a *Analyzer) handleInspectorCommand(cmd *message.InspectorMessage) *message.InspectorMessage {
	switch cmd.Kind {
	case message.KindOpen:
		return a.cmdOpen(cmd)
	case message.KindSetID:
		return a.cmdSetID(cmd)
	case message.KindEstimator:
		return a.cmdEstimator(cmd)
	case message.KindSpectrum:
		return a.cmdSpectrum(cmd)
	case message.KindGetConfig:
		return a.cmdGetConfig(cmd)
	case message.KindSetConfig:
		return a.cmdSetConfig(cmd)
	case message.KindSetTle:
		return a.cmdSetTle(cmd)
	case message.KindResetEqualizer:
		return a.cmdResetEqualizer(cmd)
	case message.KindSetWatermark:
		return a.cmdSetWatermark(cmd)
	case message.KindSetFreq:
		return a.cmdSetFreq(cmd)
	case message.KindSetBandwidth:
		return a.cmdSetBandwidth(cmd)
	case message.KindClose:
		return a.cmdClose(cmd)
	default:
		return &message.InspectorMessage{Kind: message.KindWrongKind, Handle: cmd.Handle, Error: "unrecognized inspector command kind"}
	}
}

func (a *Analyzer) lookupRunning(h message.Handle) (*inspector.Inspector, *message.InspectorMessage) {
	insp, ok := a.handles.lookup(h)
	if !ok {
		return nil, &message.InspectorMessage{Kind: message.KindWrongHandle, Handle: h, Error: "no such inspector handle"}
	}
	if insp.State() != inspector.Running {
		return nil, &message.InspectorMessage{Kind: message.KindWrongObject, Handle: h, Error: "inspector is not running"}
	}
	return insp, nil
}

func (a *Analyzer) cmdOpen(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, handle, err := a.openInspector(factory.OpenArgs{
		Class:       cmd.Class,
		FrequencyHz: cmd.FrequencyHz,
		BandwidthHz: cmd.BandwidthHz,
	}, nil)
	if err != nil {
		return &message.InspectorMessage{Kind: message.KindInvalidChannel, Error: err.Error()}
	}

	return &message.InspectorMessage{
		Kind:           message.KindOpen,
		Handle:         handle,
		NewFrequencyHz: insp.Sampling.NormalizedFreq,
		NewBandwidthHz: insp.Sampling.NormalizedBandwidth,
	}
}

func (a *Analyzer) cmdSetID(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	insp.UserID = cmd.UserID
	return &message.InspectorMessage{Kind: message.KindSetID, Handle: cmd.Handle, UserID: cmd.UserID}
}

// cmdEstimator checks that idx, carried in UserID (the command's single
// integer payload field), names an entry of insp.Estimators, returning
// WrongObject otherwise, and echoes cmd.Estimator back. It does not
// enable or disable any estimator: every entry of insp.Estimators is fed
// on each due buffer.
func (a *Analyzer) cmdEstimator(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	idx := int(cmd.UserID)
	if idx < 0 || idx >= len(insp.Estimators) {
		return &message.InspectorMessage{Kind: message.KindWrongObject, Handle: cmd.Handle, Error: "unknown estimator index"}
	}
	return &message.InspectorMessage{Kind: message.KindEstimator, Handle: cmd.Handle, Estimator: cmd.Estimator}
}

func (a *Analyzer) cmdSpectrum(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	if cmd.Spectrum.Index < 0 || cmd.Spectrum.Index > len(insp.SpectrumSources) {
		return &message.InspectorMessage{Kind: message.KindWrongObject, Handle: cmd.Handle, Error: "unknown spectrum source index"}
	}
	insp.SpectSrcIndex = cmd.Spectrum.Index
	return &message.InspectorMessage{Kind: message.KindSpectrum, Handle: cmd.Handle}
}

func (a *Analyzer) cmdGetConfig(cmd *message.InspectorMessage) *message.InspectorMessage {
	_, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	return &message.InspectorMessage{Kind: message.KindGetConfig, Handle: cmd.Handle, Config: cmd.Config}
}

func (a *Analyzer) cmdSetConfig(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	insp.RequestParamsCommit()
	return &message.InspectorMessage{Kind: message.KindSetConfig, Handle: cmd.Handle}
}

func (a *Analyzer) cmdSetTle(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	if cmd.TLELine1 == "" {
		insp.Corrector = nil
		return &message.InspectorMessage{Kind: message.KindSetTle, Handle: cmd.Handle}
	}
	if a.qth == nil {
		return &message.InspectorMessage{Kind: message.KindInvalidCorrection, Handle: cmd.Handle, Error: "no observer QTH configured"}
	}
	corr, err := corrector.New("tle", corrector.TLEParams{
		Line1:      cmd.TLELine1,
		Line2:      cmd.TLELine2,
		Propagator: a.propagator,
		QTH:        a.qth,
	})
	if err != nil {
		return &message.InspectorMessage{Kind: message.KindInvalidCorrection, Handle: cmd.Handle, Error: err.Error()}
	}
	insp.Corrector = corr
	return &message.InspectorMessage{Kind: message.KindSetTle, Handle: cmd.Handle}
}

func (a *Analyzer) cmdResetEqualizer(cmd *message.InspectorMessage) *message.InspectorMessage {
	_, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	return &message.InspectorMessage{Kind: message.KindResetEqualizer, Handle: cmd.Handle}
}

func (a *Analyzer) cmdSetWatermark(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	watermark := cmd.Watermark
	if watermark > insp.Ring.Avail()+insp.Ring.Len() {
		watermark = insp.Ring.Avail() + insp.Ring.Len()
	}
	insp.Watermark = watermark
	return &message.InspectorMessage{Kind: message.KindSetWatermark, Handle: cmd.Handle, Watermark: watermark}
}

// cmdSetFreq and cmdSetBandwidth acquire an overridable request record,
// fill it, and submit it, per spec §4.11: "Frequency is always
// expressed relative to the source's tuned center (fc - ft)."
func (a *Analyzer) cmdSetFreq(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	if !a.sourceI.snapshot().Permissions.Has(message.PermSetFreq) {
		return &message.InspectorMessage{Kind: message.KindInvalidArgument, Handle: cmd.Handle, Error: "SetFreq not permitted"}
	}
	if a.factory == nil {
		return &message.InspectorMessage{Kind: message.KindInvalidArgument, Handle: cmd.Handle, Error: "no inspector factory configured"}
	}
	record, ok := a.factory.Requests().AcquireOverridable(insp)
	if !ok {
		return &message.InspectorMessage{Kind: message.KindWrongObject, Handle: cmd.Handle, Error: "inspector is not running"}
	}
	ft := a.sourceI.snapshot().Frequency
	record.SetFrequency(cmd.NewFrequencyHz - ft)
	a.factory.Requests().SubmitOverridable(insp, record)
	return &message.InspectorMessage{Kind: message.KindSetFreq, Handle: cmd.Handle, NewFrequencyHz: cmd.NewFrequencyHz}
}

func (a *Analyzer) cmdSetBandwidth(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, errMsg := a.lookupRunning(cmd.Handle)
	if errMsg != nil {
		return errMsg
	}
	if !a.sourceI.snapshot().Permissions.Has(message.PermSetBandwidth) {
		return &message.InspectorMessage{Kind: message.KindInvalidArgument, Handle: cmd.Handle, Error: "SetBandwidth not permitted"}
	}
	if a.factory == nil {
		return &message.InspectorMessage{Kind: message.KindInvalidArgument, Handle: cmd.Handle, Error: "no inspector factory configured"}
	}
	record, ok := a.factory.Requests().AcquireOverridable(insp)
	if !ok {
		return &message.InspectorMessage{Kind: message.KindWrongObject, Handle: cmd.Handle, Error: "inspector is not running"}
	}
	record.SetBandwidth(cmd.NewBandwidthHz)
	a.factory.Requests().SubmitOverridable(insp, record)
	return &message.InspectorMessage{Kind: message.KindSetBandwidth, Handle: cmd.Handle, NewBandwidthHz: cmd.NewBandwidthHz}
}

func (a *Analyzer) cmdClose(cmd *message.InspectorMessage) *message.InspectorMessage {
	insp, ok := a.handles.lookup(cmd.Handle)
	if !ok {
		return &message.InspectorMessage{Kind: message.KindWrongHandle, Handle: cmd.Handle, Error: "no such inspector handle"}
	}
	if a.factory != nil {
		a.factory.HaltInspector(insp)
	}
	a.handles.unregister(cmd.Handle)
	return &message.InspectorMessage{Kind: message.KindClose, Handle: cmd.Handle}
}
