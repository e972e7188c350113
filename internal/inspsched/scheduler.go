// Package inspsched implements the inspector scheduler of spec §4.7: a
// pool of Workers sharing the owning factory's private control mailbox
// for halt acknowledgement, a barrier used to force quiescence between
// buffers, and a free list of task-info records.
//
// Grounded on analyzer/inspsched.c / inspsched.h.
package inspsched

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/cwsl/sdrcore/inspector"
	"github.com/cwsl/sdrcore/internal/worker"
	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/metrics"
)

var log_ = log.New(os.Stderr, "inspsched: ", log.LstdFlags)

// Task is the freelist-backed record of spec §3's "free-list of task-
// info records": one pending (inspector, buffer) pairing to be run on a
// scheduler worker.
type Task struct {
	insp *inspector.Inspector
	data []complex64
	now  time.Time
}

// WorkerCount computes N = max(online-cores - 1, 2), per spec §4.7. It
// falls back to 2 if the core count cannot be determined.
func WorkerCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return 2
	}
	if n-1 > 2 {
		return n - 1
	}
	return 2
}

// Scheduler is the pool of N workers that run an inspector's per-buffer
// processing loops, plus the N+1-party barrier used by Sync.
type Scheduler struct {
	control *mailbox.Mailbox
	workers []*worker.Worker
	last    int

	barrierMu    sync.Mutex
	barrierCond  *sync.Cond
	barrierCount int
	barrierGen   int

	freeMu sync.Mutex
	free   []*Task
	mu     sync.Mutex

	metrics *metrics.Collectors
}

// SetMetrics wires a Prometheus collector set into the scheduler; nil
// is valid and disables instrumentation (the default).
func (s *Scheduler) SetMetrics(m *metrics.Collectors) {
	s.metrics = m
}

// New starts a scheduler of n workers (n <= 0 selects WorkerCount())
// sharing control as their private halt-acknowledgement mailbox. control
// must not be a mailbox any client reads from: QueueTask's callbacks never
// write application results through a worker's outbox, only through the
// inspector's own Outbox, so control is never exposed to callback code.
func New(control *mailbox.Mailbox, n int) *Scheduler {
	if n <= 0 {
		n = WorkerCount()
	}
	s := &Scheduler{control: control}
	s.barrierCond = sync.NewCond(&s.barrierMu)
	s.workers = make([]*worker.Worker, n)
	for i := range s.workers {
		s.workers[i] = worker.NewNamed("inspsched", control, control, nil)
	}
	return s
}

// AcquireTaskInfo pops a task record from the freelist (growing it
// lazily), takes a task_info ref on insp, and returns the record filled
// with data and now, per spec §4.7.
func (s *Scheduler) AcquireTaskInfo(insp *inspector.Inspector, now time.Time, data []complex64) *Task {
	s.freeMu.Lock()
	var t *Task
	if n := len(s.free); n > 0 {
		t = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		t = &Task{}
	}
	s.freeMu.Unlock()

	t.insp = insp
	t.data = data
	t.now = now
	insp.IncRef(inspector.RefTaskInfo)
	return t
}

// ReturnTaskInfo drops the task_info ref and moves the record back to
// the freelist.
func (s *Scheduler) ReturnTaskInfo(t *Task) {
	t.insp.Release(inspector.RefTaskInfo)
	t.insp = nil
	t.data = nil

	s.freeMu.Lock()
	s.free = append(s.free, t)
	s.freeMu.Unlock()
}

// QueueTask writes a callback envelope to the next worker in round-
// robin order. The callback runs the inspector's estimator, spectrum,
// and sampler loops over task.data; on any failure, the inspector
// transitions to Halting and the task-info is returned, per spec §4.7.
func (s *Scheduler) QueueTask(t *Task) {
	s.mu.Lock()
	w := s.workers[s.last]
	s.last = (s.last + 1) % len(s.workers)
	s.mu.Unlock()

	workerName := w.Name
	w.Push(func(_ *mailbox.Mailbox, _ any, cbPrivate any) bool {
		task := cbPrivate.(*Task)
		if task.insp.State() == inspector.Halted {
			s.ReturnTaskInfo(task)
			return false
		}
		if s.metrics != nil {
			s.metrics.SetWorkerBusy(workerName, true)
		}
		start := time.Now()
		if err := task.insp.ProcessBuffer(task.now, task.data); err != nil {
			log_.Printf("task failed, halting inspector: %v", err)
			task.insp.RequestHalt()
		}
		if s.metrics != nil {
			s.metrics.ObserveTaskLatency(workerName, time.Since(start))
			s.metrics.SetWorkerBusy(workerName, false)
		}
		s.ReturnTaskInfo(task)
		return false
	}, t)
}

// Sync pushes a barrier-waiting callback onto every worker and blocks
// until all of them, plus this caller, have reached the barrier,
// forcing quiescence across the whole pool before the caller advances
// shared state (e.g. a spectral tuner's internal state), per spec
// §4.7.
func (s *Scheduler) Sync() {
	gen := s.enterBarrier()

	for _, w := range s.workers {
		w.Push(func(_ *mailbox.Mailbox, _ any, _ any) bool {
			s.enterBarrier()
			return false
		}, nil)
	}

	s.waitBarrier(gen)
}

func (s *Scheduler) enterBarrier() int {
	s.barrierMu.Lock()
	defer s.barrierMu.Unlock()
	gen := s.barrierGen
	s.barrierCount++
	if s.barrierCount == len(s.workers)+1 {
		s.barrierCount = 0
		s.barrierGen++
		s.barrierCond.Broadcast()
	}
	return gen
}

func (s *Scheduler) waitBarrier(gen int) {
	s.barrierMu.Lock()
	defer s.barrierMu.Unlock()
	for s.barrierGen == gen {
		s.barrierCond.Wait()
	}
}

// Halt stops every worker in the pool, sequentially (per worker.Halt's
// documented requirement for workers sharing one control mailbox).
func (s *Scheduler) Halt(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.Halt(ctx); err != nil {
			return err
		}
	}
	return nil
}
