// Package cmdjob runs configured external commands as scheduler jobs.
//
// The scheduler core deliberately implements no OCR, rendering or indexing;
// operators point a command job at whatever tool does the heavy lifting.
// The job's value is the serialization: no two commands from any factory
// ever run at the same time.
//
// A stoppable command job reacts to preemption by killing its process and,
// when resumed, re-runs the command from scratch. Commands are therefore
// expected to be idempotent; that is the operator's side of the contract.
package cmdjob

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"docjobs/internal/jobs"
	logx "docjobs/pkg/logx"
)

// Command describes what a factory's jobs execute.
type Command struct {
	Argv []string
	Dir  string

	// Stoppable jobs may be preempted or cancelled mid-run; the process
	// is killed and the job vacates the worker promptly.
	Stoppable bool

	// Retries re-runs a failing command. The delay between attempts uses
	// the job's interruptible wait, so a stop request during backoff is
	// honored immediately and the remaining delay survives a
	// preempt/resume cycle.
	Retries    int
	RetryDelay time.Duration
}

// Factory produces jobs for one configured command. It wraps a jobs.Factory
// so CancelAll can target everything this command ever queued.
type Factory struct {
	fac *jobs.Factory
	cmd Command
	log logx.Logger
}

func NewFactory(name string, cmd Command, log logx.Logger) *Factory {
	return &Factory{
		fac: jobs.NewFactory(name),
		cmd: cmd,
		log: log.With(logx.String("factory", name)),
	}
}

func (f *Factory) Name() string { return f.fac.Name() }

// Jobs returns the grouping identity for Scheduler.CancelAll.
func (f *Factory) Jobs() *jobs.Factory { return f.fac }

// NewJob builds a job running the factory's command with extra arguments
// appended (e.g. the directory a watcher saw change).
func (f *Factory) NewJob(priority int, extra ...string) jobs.Job {
	if f.cmd.Stoppable {
		j := &stoppableRunJob{}
		j.Base = jobs.MakeBase(f.fac, priority)
		j.f = f
		j.extra = extra
		return j
	}
	return &runJob{
		Base:  jobs.MakeBase(f.fac, priority),
		f:     f,
		extra: extra,
	}
}

var errStopped = errors.New("stopped")

type runJob struct {
	jobs.Base
	f     *Factory
	extra []string

	mu      sync.Mutex
	proc    *exec.Cmd
	stopReq bool
}

func (j *runJob) Do() error {
	j.mu.Lock()
	j.stopReq = false
	j.mu.Unlock()

	cmd := j.f.cmd
	delay := cmd.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var err error
	for attempt := 1; attempt <= cmd.Retries+1; attempt++ {
		err = j.runOnce()
		if err == nil {
			return nil
		}
		if errors.Is(err, errStopped) {
			// A requested stop is an interruption, not a failure.
			return nil
		}
		if attempt > cmd.Retries {
			break
		}
		j.f.log.Debug("command retry scheduled",
			logx.String("job", j.String()),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err))
		j.Wait(delay)
		if j.stopRequested() {
			return nil
		}
		// The next backoff starts from a full delay.
		j.ResetWait()
	}
	return fmt.Errorf("%s: %w", cmd.Argv[0], err)
}

func (j *runJob) runOnce() error {
	argv := append(append([]string(nil), j.f.cmd.Argv...), j.extra...)
	c := exec.Command(argv[0], argv[1:]...)
	c.Dir = j.f.cmd.Dir
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	j.mu.Lock()
	if j.stopReq {
		j.mu.Unlock()
		return errStopped
	}
	if err := c.Start(); err != nil {
		j.mu.Unlock()
		return err
	}
	j.proc = c
	j.mu.Unlock()

	err := c.Wait()

	j.mu.Lock()
	j.proc = nil
	stopped := j.stopReq
	j.mu.Unlock()

	if stopped {
		return errStopped
	}
	if err != nil {
		if tail := outputTail(out.Bytes(), 512); tail != "" {
			return fmt.Errorf("%w: %s", err, tail)
		}
		return err
	}
	return nil
}

func (j *runJob) requestStop() {
	j.mu.Lock()
	j.stopReq = true
	if j.proc != nil && j.proc.Process != nil {
		_ = j.proc.Process.Kill()
	}
	j.mu.Unlock()
}

func (j *runJob) stopRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopReq
}

type stoppableRunJob struct {
	runJob
}

// Stop kills the running process (if any) and wakes a retry backoff in
// progress. Non-blocking: the worker observes the kill via Wait returning.
func (j *stoppableRunJob) Stop(willResume bool) {
	j.f.log.Debug("stopping command job",
		logx.String("job", j.String()),
		logx.Bool("will_resume", willResume))
	j.requestStop()
	j.Interrupt()
}

func outputTail(b []byte, maxN int) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ""
	}
	if len(s) > maxN {
		s = "..." + s[len(s)-maxN:]
	}
	return strings.ReplaceAll(s, "\n", " | ")
}
