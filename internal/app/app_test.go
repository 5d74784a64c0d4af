package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docjobs.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfgPath := writeConfig(t, "triggers:\n  - name: a\n    command:\n      argv: [\"x\"]\n")
	if _, err := New(cfgPath); err == nil {
		t.Fatalf("config without a trigger spec accepted")
	}
}

func TestNewRejectsMissingFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing config file accepted")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	watched := t.TempDir()
	out := filepath.Join(t.TempDir(), "ran")

	cfgPath := writeConfig(t, `
logging:
  level: error
  console: false
history:
  enabled: true
  path: `+filepath.Join(t.TempDir(), "history.db")+`
triggers:
  - name: upkeep
    spec: "@hourly"
    command:
      argv: ["true"]
watches:
  - name: inbox
    path: `+watched+`
    settle: 100ms
    priority: 10
    command:
      argv: ["sh", "-c", "echo ran > `+out+`"]
`)

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if err := os.WriteFile(filepath.Join(watched, "scan.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(out); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watch job never ran the command")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestStartFailsOnMissingWatchDir(t *testing.T) {
	cfgPath := writeConfig(t, `
logging:
  console: false
watches:
  - name: gone
    path: /does/not/exist
    command:
      argv: ["true"]
`)
	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(); err == nil {
		a.Stop()
		t.Fatalf("Start succeeded with a missing watch directory")
	}
}
