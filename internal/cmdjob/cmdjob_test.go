package cmdjob

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docjobs/internal/jobs"
	logx "docjobs/pkg/logx"
)

func shellFactory(t *testing.T, name, script string, mod func(*Command)) *Factory {
	t.Helper()
	cmd := Command{Argv: []string{"sh", "-c", script}}
	if mod != nil {
		mod(&cmd)
	}
	return NewFactory(name, cmd, logx.Nop())
}

func TestRunSuccess(t *testing.T) {
	f := shellFactory(t, "ok", "exit 0", nil)
	if err := f.NewJob(10).Do(); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestRunFailureCarriesOutput(t *testing.T) {
	f := shellFactory(t, "bad", "echo oh no >&2; exit 3", nil)
	err := f.NewJob(10).Do()
	if err == nil {
		t.Fatalf("failing command reported success")
	}
	if !strings.Contains(err.Error(), "oh no") {
		t.Fatalf("error lost the output tail: %v", err)
	}
}

func TestExtraArgsAppended(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	f := NewFactory("args", Command{Argv: []string{"sh", "-c", `echo "$0" > ` + out}}, logx.Nop())
	if err := f.NewJob(10, "settled-dir").Do(); err != nil {
		t.Fatalf("Do: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.TrimSpace(string(b)); got != "settled-dir" {
		t.Fatalf("extra arg = %q", got)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "attempts")
	// Fail until the third attempt.
	script := `echo x >> ` + marker + `; test $(wc -l < ` + marker + `) -ge 3`
	f := shellFactory(t, "retry", script, func(c *Command) {
		c.Retries = 5
		c.RetryDelay = 10 * time.Millisecond
	})
	if err := f.NewJob(10).Do(); err != nil {
		t.Fatalf("Do: %v", err)
	}
	b, _ := os.ReadFile(marker)
	if got := strings.Count(string(b), "x"); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	f := shellFactory(t, "never", "exit 1", func(c *Command) {
		c.Retries = 2
		c.RetryDelay = 5 * time.Millisecond
	})
	if err := f.NewJob(10).Do(); err == nil {
		t.Fatalf("exhausted retries reported success")
	}
}

func TestStopKillsRunningProcess(t *testing.T) {
	f := shellFactory(t, "slow", "sleep 30", func(c *Command) {
		c.Stoppable = true
	})
	j, ok := f.NewJob(10).(jobs.Stopper)
	if !ok {
		t.Fatalf("stoppable command did not yield a Stopper")
	}

	done := make(chan error, 1)
	go func() { done <- j.Do() }()

	// Give the process time to start before killing it.
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	j.Stop(false)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stopped job reported failure: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Do did not return after Stop")
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("stop took %v", took)
	}
}

func TestStopDuringRetryBackoff(t *testing.T) {
	f := shellFactory(t, "backoff", "exit 1", func(c *Command) {
		c.Stoppable = true
		c.Retries = 3
		c.RetryDelay = 10 * time.Second
	})
	j := f.NewJob(10).(jobs.Stopper)

	done := make(chan error, 1)
	go func() { done <- j.Do() }()

	// The first attempt fails fast; the job should now be in backoff.
	time.Sleep(100 * time.Millisecond)
	j.Stop(false)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stopped job reported failure: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Do did not return after Stop during backoff")
	}
}

func TestOutputTail(t *testing.T) {
	if got := outputTail(nil, 10); got != "" {
		t.Fatalf("empty tail = %q", got)
	}
	if got := outputTail([]byte("a\nb\n"), 10); got != "a | b" {
		t.Fatalf("tail = %q", got)
	}
	long := strings.Repeat("z", 100)
	got := outputTail([]byte(long), 10)
	if !strings.HasPrefix(got, "...") || len(got) != 13 {
		t.Fatalf("truncated tail = %q", got)
	}
}
