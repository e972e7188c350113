package sdrcore

import "github.com/cwsl/sdrcore/message"

// detectorParams mirrors message.AnalyzerParams' detector-specific
// subset, split out so analyzer.go can compare "did the parameter set
// that requires rebuilding the detector actually change" without
// re-deriving it from the full params struct each time, per spec
// §4.10's Params dispatch: "rebuild the detector if its parameter set
// changed."
type detectorParams struct {
	windowSize int
	windowFunc string
	sampleRate float64
	decimation int
	alpha      float64
}

func detectorParamsOf(p message.AnalyzerParams) detectorParams {
	return detectorParams{
		windowSize: p.WindowSize,
		windowFunc: p.WindowFunc,
		sampleRate: p.SampleRate,
		decimation: p.Decimation,
		alpha:      p.Alpha,
	}
}
