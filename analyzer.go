package sdrcore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cwsl/sdrcore/corrector"
	"github.com/cwsl/sdrcore/inspector"
	"github.com/cwsl/sdrcore/inspector/factory"
	"github.com/cwsl/sdrcore/internal/buffer"
	"github.com/cwsl/sdrcore/internal/throttle"
	"github.com/cwsl/sdrcore/internal/worker"
	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/message"
	"github.com/cwsl/sdrcore/metrics"
)

var log_ = log.New(os.Stderr, "sdrcore: ", log.LstdFlags)

// WorkerDestroyTimeout bounds how long the analyzer waits for a worker
// to acknowledge a halt request before giving up and leaving it
// running, per spec §5 (WORKER_DESTROY_TIMEOUT_MS, ~1s default).
const WorkerDestroyTimeout = time.Second

// HopStrategy selects how the wide-spectrum sweep picks its next
// center frequency, per spec §4.10.
type HopStrategy int

const (
	HopProgressive HopStrategy = iota
	HopStochastic
)

// Config bundles Analyzer construction parameters, per spec §6's
// "Constructor taking {params, source-config, outbox-mailbox}."
type Config struct {
	Params       message.AnalyzerParams
	SourceConfig SourceConfig
	Outbox       *mailbox.Mailbox

	Source Source
	VTable factory.VTable

	PoolParams buffer.Params

	// FilterChain is applied, in ascending Priority() order, to every
	// freshly-read buffer before it reaches the spectral tuner and the
	// PSD worker, per spec §4.10 step 4.
	FilterChain []BasebandFilter

	// SchedulerWorkers overrides the inspector scheduler's worker
	// count; <=0 selects inspsched.WorkerCount().
	SchedulerWorkers int

	// HopStrategy selects the wide-spectrum sweep cursor algorithm.
	HopStrategy HopStrategy

	// QTHProvider and Propagator wire the frequency-corrector
	// integration point of spec §4.5: a SetTle command only succeeds
	// once both are configured.
	QTHProvider corrector.QTHProvider
	Propagator  corrector.Propagator

	// Metrics is optional; when nil the analyzer constructs its own
	// isolated collector set so instrumentation is never a hard
	// dependency for embedders that don't scrape Prometheus.
	Metrics *metrics.Collectors
}

// Analyzer is the top-level state machine of spec §4.10: it owns the
// inbox/outbox mailbox pair, the source-worker and PSD-worker threads,
// the sample-buffer pool, the inspector factory, and the request
// manager, and dispatches every client command.
type Analyzer struct {
	inbox  *mailbox.Mailbox
	outbox *mailbox.Mailbox

	// control is the analyzer's private mailbox for worker and scheduler
	// halt acknowledgement. It is never exposed to a client: a worker's
	// halt-ack tag can collide numerically with a public message tag, so
	// halt traffic must stay off outbox entirely.
	control *mailbox.Mailbox

	source Source
	pool   *buffer.Pool

	factory  *factory.Factory
	handles  *globalHandleTable
	sourceI  *sourceInfoTracker
	throttle *throttle.Throttle
	detector *detector
	filters  []BasebandFilter

	loopMu sync.Mutex

	paramsMu sync.Mutex
	params   message.AnalyzerParams

	mode        message.AnalyzerMode
	running     atomicBool
	haltOnce    sync.Once

	sourceWorker *worker.Worker
	psdWorker    *worker.Worker
	slowWorker   *worker.Worker

	psdEvery     time.Duration
	lastPSD      time.Time
	channelEvery time.Duration

	hop         hopState
	hopStrategy HopStrategy

	qth        *corrector.QTHCache
	propagator corrector.Propagator

	measuredRateMu sync.Mutex
	measuredRate   float64

	metrics *metrics.Collectors
}

type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) set(v bool) { a.mu.Lock(); a.v = v; a.mu.Unlock() }
func (a *atomicBool) get() bool  { a.mu.Lock(); defer a.mu.Unlock(); return a.v }

// New constructs an Analyzer, starts its source-worker and PSD-worker
// threads, and emits the initial SourceInit and SourceInfo messages,
// per spec §4.10's "Initial actions."
func New(cfg Config) (*Analyzer, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("sdrcore: source is required")
	}
	if cfg.Outbox == nil {
		cfg.Outbox = mailbox.New()
	}
	if cfg.PoolParams.AllocSize <= 0 {
		cfg.PoolParams.AllocSize = 8192
	}
	if cfg.PoolParams.MaxBuffers <= 0 {
		cfg.PoolParams.MaxBuffers = 4
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	a := &Analyzer{
		inbox:    mailbox.New(),
		outbox:   cfg.Outbox,
		control:  mailbox.New(),
		source:   cfg.Source,
		pool:     buffer.New(cfg.PoolParams),
		handles:  newGlobalHandleTable(),
		params:   cfg.Params,
		mode:     cfg.Params.Mode,
		filters:  cfg.FilterChain,
		throttle:    throttle.New(uint64(cfg.Params.SampleRate)),
		detector:    newDetector(detectorParamsOf(cfg.Params)),
		hopStrategy: cfg.HopStrategy,
		propagator:  cfg.Propagator,
		metrics:     cfg.Metrics,
	}
	if cfg.QTHProvider != nil {
		a.qth = corrector.NewQTHCache(cfg.QTHProvider)
	}
	a.psdEvery = cfg.Params.PSDUpdateInterval
	a.channelEvery = cfg.Params.ChannelUpdateInterval

	if cfg.VTable != nil {
		a.factory = factory.New(cfg.VTable, a.outbox, a.control, cfg.SchedulerWorkers)
		a.factory.SetMetrics(cfg.Metrics)
	}

	info := cfg.Source.Info()
	a.sourceI = newSourceInfoTracker(a.outbox, info)

	a.sourceWorker = worker.NewNamed("source", a.outbox, a.control, nil)
	a.psdWorker = worker.NewNamed("psd", a.outbox, a.control, nil)
	a.slowWorker = worker.NewNamed("slow", a.outbox, a.control, nil)

	a.running.set(true)
	a.sourceWorker.Push(a.sourceWorkerCallback, nil)

	a.outbox.Write(message.TagSourceInit, &message.SourceInitMessage{Success: true})
	a.sourceI.commitSourceInfo()

	return a, nil
}

// Inbox returns the mailbox clients write commands to.
func (a *Analyzer) Inbox() *mailbox.Mailbox { return a.inbox }

// Outbox returns the mailbox clients read results/status from.
func (a *Analyzer) Outbox() *mailbox.Mailbox { return a.outbox }

// Read blocks for the next outbox envelope, per spec §6's
// synchronous `read` helper.
func (a *Analyzer) Read() mailbox.Envelope { return a.outbox.Read() }

// ReadTimed is Read bounded by timeout.
func (a *Analyzer) ReadTimed(timeout time.Duration) (mailbox.Envelope, error) {
	return a.outbox.ReadTimed(timeout)
}

// WaitUntilReady reads outbox messages until a SourceInfo arrives or a
// terminal message (EOS/ReadError/Halt) is seen, per spec §6.
func (a *Analyzer) WaitUntilReady() (*message.SourceInfo, error) {
	for {
		env := a.outbox.Read()
		switch env.Tag {
		case message.TagSourceInfo:
			info := env.Payload.(*message.SourceInfo)
			return info, nil
		case message.TagEOS, message.TagReadError:
			msg := env.Payload.(*message.EOSMessage)
			return nil, fmt.Errorf("sdrcore: %s", msg.Message)
		case message.TagHalt:
			return nil, fmt.Errorf("sdrcore: analyzer halted before becoming ready")
		}
	}
}

// Run drives the analyzer's main dispatch loop (spec §4.10's "Main
// loop") until a Halt command is processed. Run is intended to be
// called from its own goroutine by the embedding application; it is
// the in-process analogue of the original's dedicated analyzer thread.
func (a *Analyzer) Run() {
	for {
		env := a.inbox.Read()
		if !a.dispatch(env) {
			return
		}
		for {
			env, ok := a.inbox.Poll()
			if !ok {
				break
			}
			if !a.dispatch(env) {
				return
			}
		}
	}
}

// dispatch handles one inbox envelope, returning false when a Halt was
// processed and the loop should exit, per spec §4.10 step 2.
func (a *Analyzer) dispatch(env mailbox.Envelope) bool {
	switch env.Tag {
	case message.TagHalt:
		a.shutdown()
		a.outbox.WriteUrgent(message.TagHalt, nil)
		return false

	case message.TagInspector:
		cmd := env.Payload.(*message.InspectorMessage)
		a.outbox.Write(message.TagInspector, a.handleInspectorCommand(cmd))

	case message.TagThrottle:
		msg := env.Payload.(*message.ThrottleMessage)
		if msg.SampleRate == 0 {
			a.throttle.Reset(uint64(a.currentSampleRate()))
		} else {
			a.throttle.SetSampleRate(msg.SampleRate)
		}

	case message.TagParams:
		p := env.Payload.(*message.AnalyzerParams)
		a.applyParams(*p)

	case message.TagGetParams:
		a.paramsMu.Lock()
		p := a.params
		a.paramsMu.Unlock()
		a.outbox.Write(message.TagParams, &p)

	case message.TagChannel, message.TagEOS, message.TagReadError:
		a.outbox.Write(env.Tag, env.Payload)

	default:
		log_.Printf("analyzer: unhandled inbox tag %d", env.Tag)
	}
	return true
}

func (a *Analyzer) currentSampleRate() float64 {
	a.paramsMu.Lock()
	defer a.paramsMu.Unlock()
	return a.params.SampleRate
}

// applyParams updates the detector params atomically, rebuilds the
// detector only if the parameter set materially changed, adjusts the
// channel/PSD intervals, and re-publishes, per spec §4.10's Params
// dispatch.
func (a *Analyzer) applyParams(p message.AnalyzerParams) {
	a.paramsMu.Lock()
	old := detectorParamsOf(a.params)
	a.params = p
	a.mode = p.Mode
	a.psdEvery = p.PSDUpdateInterval
	a.channelEvery = p.ChannelUpdateInterval
	newDP := detectorParamsOf(p)
	a.paramsMu.Unlock()

	if newDP != old {
		a.detector.rebuild(newDP)
	}

	a.outbox.Write(message.TagParams, &p)
}

// shutdown halts every owned worker and the inspector scheduler,
// bounded by WorkerDestroyTimeout per spec §5, and never force-kills a
// worker that misses the deadline.
func (a *Analyzer) shutdown() {
	a.haltOnce.Do(func() {
		a.running.set(false)

		ctx, cancel := context.WithTimeout(context.Background(), WorkerDestroyTimeout)
		defer cancel()
		for _, w := range []*worker.Worker{a.sourceWorker, a.psdWorker, a.slowWorker} {
			if err := w.Halt(ctx); err != nil {
				log_.Printf("%v", err)
			}
		}
		if a.factory != nil {
			ctx2, cancel2 := context.WithTimeout(context.Background(), WorkerDestroyTimeout)
			defer cancel2()
			if err := a.factory.Halt(ctx2); err != nil {
				log_.Printf("%v", err)
			}
		}
		a.source.ForceEOS()
	})
}

// hopState tracks the wide-spectrum hop cursor of spec §4.10's
// "Wide-spectrum variant."
type hopState struct {
	mu         sync.Mutex
	k          int
	half       int
	discarding int
}

// openInspector is a convenience wrapper bridging the factory and
// global handle table, used by the inspector command server.
func (a *Analyzer) openInspector(args factory.OpenArgs, corr corrector.Corrector) (*inspector.Inspector, message.Handle, error) {
	if a.factory == nil {
		return nil, 0, fmt.Errorf("sdrcore: no inspector factory configured")
	}
	insp, err := a.factory.Open(args, corr)
	if err != nil {
		return nil, 0, err
	}
	h := a.handles.register(insp)
	return insp, h, nil
}
