// Package message defines the in-process message shapes the analyzer and
// its clients exchange (spec §6's message tag catalog) plus the
// permission bitset (§6) and the source-info / params snapshots (§3)
// those messages carry. It intentionally stops short of an on-the-wire
// encoding: spec.md is explicit that the core "does not define the wire
// protocol between local and remote analyzers."
package message

import "github.com/cwsl/sdrcore/mailbox"

// Tag identifies a message's kind on an analyzer mailbox.
type Tag = mailbox.Tag

// Analyzer <-> client message tags, per spec §6's catalog.
const (
	TagSourceInfo Tag = iota + 1
	TagSourceInit
	TagChannel
	TagEOS
	TagReadError
	TagInternal
	TagSamplesLost
	TagInspector
	TagPSD
	TagSamples
	TagThrottle
	TagParams
	TagGetParams
	TagHalt
)

// InspectorKind sub-discriminates an Inspector-tagged message, per spec
// §4.11 / §6.
type InspectorKind int

const (
	KindOpen InspectorKind = iota
	KindSetID
	KindGetConfig
	KindSetConfig
	KindEstimator
	KindSpectrum
	KindResetEqualizer
	KindClose
	KindSetFreq
	KindSetBandwidth
	KindSetWatermark
	KindSetTle
	KindOrbitReport
	KindSignal
	KindWrongHandle
	KindWrongObject
	KindInvalidArgument
	KindWrongKind
	KindInvalidChannel
	KindInvalidCorrection
)

func (k InspectorKind) String() string {
	switch k {
	case KindOpen:
		return "Open"
	case KindSetID:
		return "SetId"
	case KindGetConfig:
		return "GetConfig"
	case KindSetConfig:
		return "SetConfig"
	case KindEstimator:
		return "Estimator"
	case KindSpectrum:
		return "Spectrum"
	case KindResetEqualizer:
		return "ResetEqualizer"
	case KindClose:
		return "Close"
	case KindSetFreq:
		return "SetFreq"
	case KindSetBandwidth:
		return "SetBandwidth"
	case KindSetWatermark:
		return "SetWatermark"
	case KindSetTle:
		return "SetTle"
	case KindOrbitReport:
		return "OrbitReport"
	case KindSignal:
		return "Signal"
	case KindWrongHandle:
		return "WrongHandle"
	case KindWrongObject:
		return "WrongObject"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindWrongKind:
		return "WrongKind"
	case KindInvalidChannel:
		return "InvalidChannel"
	case KindInvalidCorrection:
		return "InvalidCorrection"
	default:
		return "Unknown"
	}
}
