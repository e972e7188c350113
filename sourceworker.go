package sdrcore

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/message"
)

// measuredRateAlpha smooths the measured-sample-rate EWMA the source
// worker updates each iteration. The per-iteration CPU-usage figure is
// not smoothed.
const measuredRateAlpha = 0.1

// minPostHopFFTs is the number of source buffers (one per source-worker
// iteration) whose PSD is skipped after a wide-spectrum hop before the
// next PSD frame is emitted. The count is in buffers, not in FFT-size
// sample blocks.
const minPostHopFFTs = 2

type bySlicePriority []BasebandFilter

func (s bySlicePriority) Len() int           { return len(s) }
func (s bySlicePriority) Less(i, j int) bool { return s[i].Priority() < s[j].Priority() }
func (s bySlicePriority) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

func sortFilters(filters []BasebandFilter) []BasebandFilter {
	sorted := append([]BasebandFilter(nil), filters...)
	sort.Sort(bySlicePriority(sorted))
	return sorted
}

// sourceWorkerCallback is the persistent callback driving the source
// read/feed/PSD-handoff loop of spec §4.10. It returns true (restart)
// unless the analyzer has been asked to stop or the source read fails.
func (a *Analyzer) sourceWorkerCallback(outbox *mailbox.Mailbox, _ any, _ any) bool {
	if !a.running.get() {
		return false
	}

	a.loopMu.Lock()
	defer a.loopMu.Unlock()

	a.metrics.SetWorkerBusy("source", true)
	defer a.metrics.SetWorkerBusy("source", false)
	a.metrics.SetQueueDepth("inbox", a.inbox.Len())
	a.metrics.SetQueueDepth("outbox", a.outbox.Len())
	a.metrics.SetQueueDepth("control", a.control.Len())

	if a.factory != nil {
		a.factory.Requests().CommitOverridable()
	}

	if a.mode == message.ModeWideSpectrum {
		a.maybeHop()
	}

	buf := a.pool.Acquire()
	defer a.pool.Give(buf)
	a.metrics.BufferPoolTotal.Set(float64(a.pool.Len()))

	offset := 0
	if buf.Circular() {
		offset = a.hop.nextHalf(buf.Size())
	}
	window := buf.Window(offset)

	readStart := time.Now()
	n, err := a.source.Read(window)
	processStart := time.Now()
	if err != nil {
		a.outbox.Write(message.TagReadError, &message.EOSMessage{Message: err.Error()})
		a.running.set(false)
		return false
	}
	data := window[:n]

	if a.sourceI.snapshot().IQReverse {
		conjugate(data)
	}
	for _, f := range sortFilters(a.filters) {
		if err := f.Apply(data); err != nil {
			log_.Printf("baseband filter failed: %v", err)
		}
	}

	a.maybeEmitPSD(data)

	if a.factory != nil {
		if a.factory.VTableFeedMaster(data) {
			a.factory.Sync()
		}
	}

	processEnd := time.Now()
	a.updateMeasuredRate(n, readStart, processStart, processEnd)

	return true
}

func conjugate(data []complex64) {
	for i, s := range data {
		data[i] = complex(real(s), -imag(s))
	}
}

func (a *Analyzer) maybeEmitPSD(data []complex64) {
	a.hop.mu.Lock()
	discarding := a.hop.discarding
	if discarding > 0 {
		a.hop.discarding--
	}
	a.hop.mu.Unlock()
	if discarding > 0 {
		return
	}

	now := time.Now()
	if a.psdEvery > 0 && now.Sub(a.lastPSD) < a.psdEvery {
		return
	}
	a.metrics.ObservePSDInterval(a.lastPSD)
	a.lastPSD = now

	batch := append([]complex64(nil), data...)
	a.psdWorker.Push(func(outbox *mailbox.Mailbox, _ any, cbPrivate any) bool {
		a.metrics.SetWorkerBusy("psd", true)
		defer a.metrics.SetWorkerBusy("psd", false)
		samples := cbPrivate.([]complex64)
		psd, n0 := a.detector.feed(samples)
		if psd == nil {
			return false
		}
		info := a.sourceI.snapshot()
		outbox.Write(message.TagPSD, &message.PSDMessage{
			FC:               info.Frequency,
			SampRate:         info.EffectiveSampleRate,
			MeasuredSampRate: info.MeasuredSampleRate,
			N0:               n0,
			PSD:              psd,
		})
		return false
	}, batch)
}

func (a *Analyzer) updateMeasuredRate(n int, readStart, processStart, processEnd time.Time) {
	elapsed := processEnd.Sub(readStart).Seconds()
	if elapsed <= 0 {
		return
	}
	rate := float64(n) / elapsed

	a.measuredRateMu.Lock()
	if a.measuredRate == 0 {
		a.measuredRate = rate
	} else {
		a.measuredRate = measuredRateAlpha*rate + (1-measuredRateAlpha)*a.measuredRate
	}
	measured := a.measuredRate
	a.measuredRateMu.Unlock()

	cpuUsage := processEnd.Sub(processStart).Seconds() / math.Max(elapsed, 1e-9)

	a.sourceI.update(func(info *message.SourceInfo) {
		info.MeasuredSampleRate = measured
		_ = cpuUsage // computed but neither stored on SourceInfo nor exported as a metric
	})
}

// nextHalf alternates between the upper and lower half offsets of one
// doubly-mapped circular buffer across iterations, per spec §4.10 step
// 3, so the tuner always reads a contiguous window.
func (h *hopState) nextHalf(size int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.half ^= 1
	if h.half == 0 {
		return 0
	}
	return size / 2
}

// maybeHop advances the wide-spectrum sweep cursor, per spec §4.10's
// "Wide-spectrum variant": Stochastic or Progressive strategy over
// [min, max] sweep frequency, partitioned in fixed steps of 0.8 ×
// sample rate. There is no Continuous partitioning; a Progressive step
// past max wraps back to min.
func (a *Analyzer) maybeHop() {
	a.paramsMu.Lock()
	min, max := a.params.MinSweepFreq, a.params.MaxSweepFreq
	sampleRate := a.params.SampleRate
	a.paramsMu.Unlock()

	if max <= min || sampleRate <= 0 {
		return
	}

	const relBW = 0.8
	partitionBW := sampleRate * relBW

	var next float64
	if a.hopStrategy == HopStochastic {
		next = stochasticNext(min, max, partitionBW)
		a.metrics.IncHop("stochastic")
	} else {
		a.metrics.IncHop("progressive")
		a.hop.mu.Lock()
		a.hop.k++
		k := a.hop.k
		a.hop.mu.Unlock()

		next = min + float64(k)*partitionBW
		if next > max {
			next = min
			a.hop.mu.Lock()
			a.hop.k = 0
			a.hop.mu.Unlock()
		}
	}

	if a.factory != nil {
		if err := a.factory.VTableRetuneCenter(next); err != nil {
			log_.Printf("hop retune failed: %v", err)
			return
		}
	}
	if err := a.source.SetFrequency(next); err != nil {
		log_.Printf("hop retune failed: %v", err)
		return
	}

	a.hop.mu.Lock()
	a.hop.discarding = minPostHopFFTs
	a.hop.mu.Unlock()
}

// stochasticNext computes the Stochastic hop target, per spec §4.10:
// "next = min + floor(U * (max-min) / partition_bw) * partition_bw".
func stochasticNext(min, max, partitionBW float64) float64 {
	u := rand.Float64()
	steps := math.Floor(u * (max - min) / partitionBW)
	return min + steps*partitionBW
}
