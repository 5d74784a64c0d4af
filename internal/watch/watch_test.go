package watch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docjobs/internal/jobs"
	logx "docjobs/pkg/logx"
)

func newScheduler(t *testing.T) *jobs.Scheduler {
	t.Helper()
	s := jobs.New("test", logx.Nop(), nil)
	s.Start()
	t.Cleanup(func() {
		if s.Running() {
			s.Stop()
		}
	})
	return s
}

func startWatcher(t *testing.T, cfg Config, sched *jobs.Scheduler) *Watcher {
	t.Helper()
	w := New(cfg, sched, logx.Nop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestSubmitAfterSettle(t *testing.T) {
	dir := t.TempDir()
	sched := newScheduler(t)
	ran := make(chan string, 4)

	fac := jobs.NewFactory("import")
	startWatcher(t, Config{
		Name:   "inbox",
		Path:   dir,
		Settle: 100 * time.Millisecond,
		Make: func(d string) jobs.Job {
			return jobs.NewFunc(fac, 5, func(jobs.Base) error {
				ran <- d
				return nil
			})
		},
	}, sched)

	touch(t, filepath.Join(dir, "scan-001.png"))

	select {
	case d := <-ran:
		if d != dir {
			t.Fatalf("job got dir %q, want %q", d, dir)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no job submitted after settle")
	}
}

func TestBurstCoalesces(t *testing.T) {
	dir := t.TempDir()
	sched := newScheduler(t)
	ran := make(chan string, 16)

	fac := jobs.NewFactory("import")
	startWatcher(t, Config{
		Name:   "inbox",
		Path:   dir,
		Settle: 300 * time.Millisecond,
		Make: func(d string) jobs.Job {
			return jobs.NewFunc(fac, 5, func(jobs.Base) error {
				ran <- d
				return nil
			})
		},
	}, sched)

	// A multi-file burst inside one settle window.
	for i := 0; i < 5; i++ {
		touch(t, filepath.Join(dir, "page-"+string(rune('0'+i))+".png"))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatalf("no job submitted")
	}
	// The burst must not produce a second submission.
	select {
	case <-ran:
		t.Fatalf("burst produced more than one job")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestNewBurstReplacesQueuedJob(t *testing.T) {
	dir := t.TempDir()
	sched := newScheduler(t)

	// Park the worker so submitted jobs stay queued.
	gateFac := jobs.NewFactory("gate")
	started := make(chan struct{})
	release := make(chan struct{})
	sched.Schedule(jobs.NewFunc(gateFac, 1000, func(jobs.Base) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	ran := make(chan struct{}, 16)
	fac := jobs.NewFactory("import")
	w := New(Config{
		Name:       "inbox",
		Path:       dir,
		Settle:     50 * time.Millisecond,
		RatePerSec: 100,
		Make: func(string) jobs.Job {
			return jobs.NewFunc(fac, 5, func(jobs.Base) error {
				ran <- struct{}{}
				return nil
			})
		},
	}, sched, logx.Nop())

	// Drive submit directly; the fs plumbing is covered above.
	w.submit()
	w.submit()
	w.submit()

	n := 0
	for _, p := range sched.Snapshot().Pending {
		if strings.HasPrefix(p, "import:") {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("pending import jobs = %d, want 1", n)
	}

	close(release)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("surviving job never ran")
	}
	select {
	case <-ran:
		t.Fatalf("cancelled job ran")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStartFailsOnMissingDir(t *testing.T) {
	sched := newScheduler(t)
	w := New(Config{Name: "gone", Path: "/does/not/exist"}, sched, logx.Nop())
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatalf("Start succeeded on a missing directory")
	}
}

func TestStopWithoutStart(t *testing.T) {
	w := New(Config{Name: "idle", Path: "/tmp"}, nil, logx.Nop())
	w.Stop()
}
