package jobs

import (
	"fmt"
	"sync"
	"time"
)

// Soft timing budgets. Violations are logged, not enforced (the scheduler
// cannot forcibly preempt its worker goroutine).
const (
	// MaxUnstoppableRunTime is how long a job without Stop may keep the
	// worker. Longer jobs must implement Stopper.
	MaxUnstoppableRunTime = 500 * time.Millisecond

	// MaxStopTime is how long a Stopper may take to vacate the worker
	// after Stop is called.
	MaxStopTime = 500 * time.Millisecond
)

// Job is a unit of schedulable work.
//
// Do runs synchronously on the scheduler's single worker goroutine and must
// not assume any other thread affinity. Identity is reference identity: two
// Job values are the same job only if they are the same instance.
//
// Concrete kinds embed Base (the unexported state method makes that a
// compile-time requirement).
type Job interface {
	Factory() *Factory
	ID() uint64
	Priority() int
	String() string

	// Do performs the work. It may return an error or panic; either is
	// recovered and logged by the scheduler without stopping the worker.
	Do() error

	state() *baseState
}

// Stopper is implemented by jobs that can be interrupted.
//
// Stop is called from a producer goroutine, must not block, and must cause
// the in-progress Do to return promptly (soft budget MaxStopTime).
// willResume tells the job whether it will be re-submitted later, so it can
// decide whether to keep partial progress. A typical implementation sets a
// flag and calls Interrupt to wake a pending Wait.
type Stopper interface {
	Job
	Stop(willResume bool)
}

// baseState carries the mutable per-job state shared between the worker and
// producer goroutines. It lives behind a pointer so Base stays copyable.
type baseState struct {
	mu          sync.Mutex
	wake        chan struct{}
	remaining   time.Duration
	armed       bool
	submitStack string
}

// Base supplies the identity and the interruptible-wait primitive every job
// kind needs. Construct it with MakeBase.
type Base struct {
	factory  *Factory
	id       uint64
	priority int
	st       *baseState
}

// MakeBase builds the embeddable core of a job: a fresh child id from the
// factory and the given priority (higher runs first, 0 is the default for
// background work).
func MakeBase(f *Factory, priority int) Base {
	return Base{factory: f, id: f.nextID(), priority: priority, st: &baseState{}}
}

func (b Base) Factory() *Factory { return b.factory }
func (b Base) ID() uint64        { return b.id }
func (b Base) Priority() int     { return b.priority }

func (b Base) String() string {
	if b.factory == nil {
		return fmt.Sprintf("?:%d", b.id)
	}
	return fmt.Sprintf("%s:%d", b.factory.Name(), b.id)
}

func (b Base) state() *baseState { return b.st }

// Wait blocks for d, or until Interrupt is called, whichever comes first.
//
// The wait is resumable: the first call arms a remaining-duration counter
// with d, and every call (interrupted or not) subtracts the time it
// actually slept. A job whose Stop interrupts a Wait can call Wait again
// after being resumed and only sleep out the remainder. ResetWait re-arms
// the counter for the next pause.
func (b Base) Wait(d time.Duration) {
	s := b.st
	s.mu.Lock()
	if !s.armed {
		s.remaining = d
		s.armed = true
	}
	rem := s.remaining
	if rem <= 0 {
		s.mu.Unlock()
		return
	}
	if s.wake == nil {
		s.wake = make(chan struct{})
	}
	wake := s.wake
	s.mu.Unlock()

	start := time.Now()
	t := time.NewTimer(rem)
	defer t.Stop()
	select {
	case <-t.C:
	case <-wake:
	}

	s.mu.Lock()
	s.remaining -= time.Since(start)
	s.mu.Unlock()
}

// Interrupt wakes a Wait in progress. It is non-blocking and safe to call
// from any goroutine; an interrupt with no waiter is lost, not remembered.
// Stop implementations call this after flagging the job to bail out.
func (b Base) Interrupt() {
	s := b.st
	s.mu.Lock()
	if s.wake != nil {
		close(s.wake)
		s.wake = nil
	}
	s.mu.Unlock()
}

// ResetWait clears the remaining-duration counter so the next Wait starts a
// full pause.
func (b Base) ResetWait() {
	s := b.st
	s.mu.Lock()
	s.armed = false
	s.remaining = 0
	s.mu.Unlock()
}

// Remaining reports the unexpired part of the current armed wait.
func (b Base) Remaining() time.Duration {
	s := b.st
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return 0
	}
	return s.remaining
}

// SubmitStack returns the stack captured when the job was last scheduled.
// Diagnostic only.
func (b Base) SubmitStack() string {
	s := b.st
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitStack
}

// ---- Closure-backed jobs ----

// funcJob adapts a closure so collaborators don't need a struct per ad-hoc
// task. The closure receives the Base for Wait/Remaining access.
type funcJob struct {
	Base
	run func(b Base) error
}

func (j *funcJob) Do() error { return j.run(j.Base) }

type stoppableFuncJob struct {
	funcJob
	stop func(willResume bool)
}

func (j *stoppableFuncJob) Stop(willResume bool) {
	if j.stop != nil {
		j.stop(willResume)
	}
	j.Interrupt()
}

// NewFunc returns a non-stoppable job running the given closure. It must
// respect MaxUnstoppableRunTime.
func NewFunc(f *Factory, priority int, run func(b Base) error) Job {
	return &funcJob{Base: MakeBase(f, priority), run: run}
}

// NewStoppableFunc returns an interruptible job. stop may be nil; the
// returned job always wakes a pending Wait when stopped.
func NewStoppableFunc(f *Factory, priority int, run func(b Base) error, stop func(willResume bool)) Stopper {
	return &stoppableFuncJob{
		funcJob: funcJob{Base: MakeBase(f, priority), run: run},
		stop:    stop,
	}
}
