package message

// Handle identifies an inspector across the command/response protocol.
// Redesigned from the original's 32-bit signed handle (-1 sentinel) to
// a 64-bit non-zero-niche handle per spec §9: zero is never issued and
// always means "no inspector".
type Handle uint64

// InspectorMessage is the single, Kind-discriminated payload carried on
// TagInspector in both directions, per spec §6's "Inspector command or
// response (sub-discriminated by Kind)" and the sub-tag catalog in §6.
//
// Only the fields relevant to Kind are populated; the rest are zero
// value. This mirrors the original's single tagged-union message
// struct rather than one Go type per Kind, since the command/response
// dispatch table in spec §4.11 switches on Kind alone.
type InspectorMessage struct {
	Kind   InspectorKind
	Handle Handle
	UserID uint32

	// Open
	Class        string
	FrequencyHz  float64
	BandwidthHz  float64

	// SetFreq / SetBandwidth
	NewFrequencyHz float64
	NewBandwidthHz float64

	// SetWatermark
	Watermark int

	// GetConfig / SetConfig: an opaque property bag, class-specific.
	Config map[string]any

	// Estimator
	Estimator EstimatorMessage

	// Spectrum
	Spectrum SpectrumMessage

	// SetTle
	TLELine1 string
	TLELine2 string

	// OrbitReport
	RangeRateMPS  float64
	CorrectionHz  float64

	// Signal is a class-specific signal notification (e.g. squelch
	// open/close), carried as an opaque payload.
	Signal any

	// Error kinds (WrongHandle, WrongObject, InvalidArgument, WrongKind,
	// InvalidChannel, InvalidCorrection) carry only a human-readable
	// explanation; no teardown occurs, per spec §7.
	Error string
}
