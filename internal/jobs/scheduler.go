package jobs

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"docjobs/internal/eventbus"
	"docjobs/pkg/queue"
	logx "docjobs/pkg/logx"
)

// Scheduler owns one worker goroutine, a priority queue of pending jobs and
// the single active-job slot.
//
// Any goroutine may call Schedule, Cancel and CancelAll. Exactly one worker
// executes job bodies, so Do implementations never interleave with each
// other. One mutex/cond pair guards both the queue and the active slot;
// every transition another goroutine may be waiting on (queue non-empty,
// active slot vacated) broadcasts to all waiters, because several producers
// may be preempting or cancelling concurrently.
//
// Start, Stop and Schedule panic on protocol misuse (double start, stop
// while stopped, schedule before start, restart after stop): those indicate
// a caller bug, not a runtime condition to recover from.
type Scheduler struct {
	name string
	log  logx.Logger
	warn logx.Logger
	bus  eventbus.Bus

	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue[Job]
	active  Job
	running bool
	stopped bool

	done chan struct{}
}

// New creates a scheduler. bus may be nil when nobody consumes lifecycle
// events (tests, one-shot tools).
func New(name string, log logx.Logger, bus eventbus.Bus) *Scheduler {
	s := &Scheduler{
		name:    name,
		log:     log.With(logx.String("scheduler", name)),
		bus:     bus,
		pending: queue.New[Job](),
	}
	// Budget warnings fire per execution; keep a misbehaving kind from
	// flooding the sinks.
	s.warn = s.log.Throttled(1, 5)
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Scheduler) Name() string { return s.name }

// Running reports whether Start has been called and Stop has not.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start spawns the worker goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		panic(fmt.Sprintf("jobs: scheduler %q started twice", s.name))
	}
	if s.stopped {
		s.mu.Unlock()
		panic(fmt.Sprintf("jobs: scheduler %q restarted after Stop", s.name))
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("scheduler starting")
	go s.run()
}

// Stop shuts the worker down and joins it. A job in progress finishes (or
// keeps running until it chooses to return: Stop does not request it to
// stop); pending jobs are discarded with no drain guarantee. The scheduler
// cannot be restarted afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		panic(fmt.Sprintf("jobs: scheduler %q stopped while not running", s.name))
	}
	s.log.Info("scheduler stopping")
	s.running = false
	s.stopped = true
	done := s.done
	s.cond.Broadcast()
	s.mu.Unlock()

	<-done
	s.log.Info("scheduler stopped")
}

// Schedule queues a job. If a strictly lower-priority Stopper is active it
// is preempted: stopped with willResume=true, and re-queued at its original
// priority (with a fresh tie-break sequence) once it vacates the worker.
// Schedule blocks only for that stop latency. An active job that cannot
// stop is left to finish; the new job simply waits its turn.
func (s *Scheduler) Schedule(j Job) {
	// Captured before taking the lock: the stack walk is not free.
	stack := logx.StackTrace(3, 16)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		panic(fmt.Sprintf("jobs: scheduler %q is not running; cannot schedule %s", s.name, j))
	}

	st := j.state()
	st.mu.Lock()
	st.submitStack = stack
	st.mu.Unlock()

	s.log.Debug("queuing job", logx.String("job", j.String()), logx.Int("priority", j.Priority()))
	s.pending.Push(j, j.Priority())
	s.publish(EventScheduled, j, Event{})

	if act := s.active; act != nil && act.Priority() < j.Priority() {
		if s.stopActiveLocked(true) {
			// act has vacated the worker; retry it later at its
			// original priority. The fresh sequence keeps it
			// behind equal-priority jobs queued before it.
			s.pending.Push(act, act.Priority())
		}
	}
	s.cond.Broadcast()
}

// Cancel removes the job from the pending queue, or, if it is the active
// job, requests it to stop for good (willResume=false). Cancelling a job
// the scheduler doesn't hold is a no-op.
func (s *Scheduler) Cancel(target Job) {
	s.log.Debug("cancelling job", logx.String("job", target.String()))
	s.cancelMatching(func(j Job) bool { return j == target })
}

// CancelAll cancels every pending or active job produced by the given
// factory. Used when a whole class of work becomes obsolete, e.g. the
// document it concerns was closed.
func (s *Scheduler) CancelAll(f *Factory) {
	s.log.Debug("cancelling all jobs", logx.String("factory", f.Name()))
	s.cancelMatching(func(j Job) bool { return j.Factory() == f })
}

func (s *Scheduler) cancelMatching(match func(Job) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.pending.RemoveIf(match) {
		s.log.Debug("job cancelled", logx.String("job", j.String()))
		s.publish(EventCancelled, j, Event{})
	}
	if s.active != nil && match(s.active) {
		s.stopActiveLocked(false)
	}
}

// stopActiveLocked asks the active job to stop and waits until it vacates
// the worker. It reports whether the job was actually told to stop: an
// active job without Stop is only warned about, and the caller must not
// expect it to vacate.
//
// Called with s.mu held; the cond wait releases it while blocking.
func (s *Scheduler) stopActiveLocked(willResume bool) bool {
	act := s.active
	stopper, ok := act.(Stopper)
	if !ok {
		s.log.Warn("job cannot be preempted, letting it finish",
			logx.String("job", act.String()))
		return false
	}

	stopper.Stop(willResume)

	start := time.Now()
	for s.active == act {
		s.cond.Wait()
	}
	took := time.Since(start)
	if took > MaxStopTime {
		s.warn.Warn("job took too long to stop",
			logx.String("job", act.String()),
			logx.Duration("took", took),
			logx.Duration("max", MaxStopTime))
	}
	s.log.Debug("job halted", logx.String("job", act.String()), logx.Bool("will_resume", willResume))
	s.publish(EventStopped, act, Event{WillResume: willResume})
	return true
}

func (s *Scheduler) run() {
	defer close(s.done)
	s.log.Info("scheduler started")

	for {
		s.mu.Lock()
		for s.pending.Len() == 0 {
			if !s.running {
				s.mu.Unlock()
				return
			}
			s.cond.Wait()
		}
		if !s.running {
			s.mu.Unlock()
			return
		}
		j, _ := s.pending.Pop()
		s.active = j
		s.mu.Unlock()

		// We are the only goroutine writing s.active, so the job can
		// be executed without holding the lock.
		s.execute(j)

		s.mu.Lock()
		s.active = nil
		s.cond.Broadcast()
		stillRunning := s.running
		s.mu.Unlock()

		if !stillRunning {
			return
		}
	}
}

func (s *Scheduler) execute(j Job) {
	started := time.Now()
	s.publish(EventStarted, j, Event{Started: started})

	err, panicStack := s.runRecovered(j)
	took := time.Since(started)

	if err != nil {
		s.log.Error("job failed",
			logx.String("job", j.String()),
			logx.Err(err),
			logx.Duration("took", took),
			logx.Stack(panicStack))
		if sub := submitStackOf(j); sub != "" {
			s.log.Error("job was scheduled by",
				logx.String("job", j.String()),
				logx.Stack(sub))
		}
		s.publish(EventFailed, j, Event{Started: started, Duration: took, Error: err.Error()})
	} else {
		s.publish(EventFinished, j, Event{Started: started, Duration: took})
	}

	if _, canStop := j.(Stopper); canStop || took <= MaxUnstoppableRunTime {
		s.log.Debug("job done", logx.String("job", j.String()), logx.Duration("took", took))
	} else {
		s.warn.Warn("unstoppable job exceeded its run budget",
			logx.String("job", j.String()),
			logx.Duration("took", took),
			logx.Duration("max", MaxUnstoppableRunTime))
	}
}

// runRecovered runs Do, converting a panic into an error plus the stack of
// the panicking goroutine. One job blowing up must never take the worker
// down with it.
func (s *Scheduler) runRecovered(j Job) (err error, panicStack string) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			panicStack = string(debug.Stack())
		}
	}()
	err = j.Do()
	return
}

func (s *Scheduler) publish(typ string, j Job, ev Event) {
	if s.bus == nil {
		return
	}
	ev.Scheduler = s.name
	ev.Factory = j.Factory().Name()
	ev.JobID = j.ID()
	ev.Priority = j.Priority()
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func submitStackOf(j Job) string {
	st := j.state()
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.submitStack
}

// Snapshot is a point-in-time diagnostic view.
type Snapshot struct {
	Name    string
	Running bool
	Active  string
	Pending []string
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Name: s.name, Running: s.running}
	if s.active != nil {
		snap.Active = s.active.String()
	}
	for _, it := range s.pending.Snapshot() {
		snap.Pending = append(snap.Pending, it.Value.String())
	}
	return snap
}
