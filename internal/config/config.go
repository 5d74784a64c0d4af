// Package config loads the docjobsd configuration.
//
// Files may be YAML or JSON. YAML is coerced to JSON bytes first so both
// formats go through the same strict decoder (DisallowUnknownFields): a
// typoed key is an error, not silently ignored. Durations are Go duration
// strings ("500ms", "2s", "15m").
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	History  HistoryConfig   `json:"history,omitempty"`
	Triggers []TriggerConfig `json:"triggers,omitempty"`
	Watches  []WatchConfig   `json:"watches,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// HistoryConfig controls the sqlite job-run history store.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
	// Keep bounds the number of retained runs. 0 uses the default (500).
	Keep        int    `json:"keep,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// CommandConfig describes the external command a job runs. The command is
// the unit the scheduler serializes; it should be idempotent, because a
// preempted run is retried from scratch.
type CommandConfig struct {
	Argv []string `json:"argv"`
	Dir  string   `json:"dir,omitempty"`
	// Stoppable jobs are killed on preemption/cancel and re-run later.
	Stoppable  bool   `json:"stoppable,omitempty"`
	Retries    int    `json:"retries,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
}

// TriggerConfig registers a periodic job submission.
type TriggerConfig struct {
	Name string `json:"name"`
	// Spec is a cron expression (5- or 6-field) or a descriptor such as
	// "@hourly" or "@every 15m".
	Spec     string `json:"spec"`
	Priority int    `json:"priority,omitempty"`
	// ReplacePrevious cancels still-queued runs of this trigger before
	// submitting a new one, so slow runs don't pile up.
	ReplacePrevious bool          `json:"replace_previous,omitempty"`
	Command         CommandConfig `json:"command"`
}

// WatchConfig submits a job when files under a directory settle.
type WatchConfig struct {
	Name string `json:"name"`
	Path string `json:"path"`
	// Settle is how long the directory must stay quiet before a job is
	// submitted. Default 2s.
	Settle     string `json:"settle,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Priority   int    `json:"priority,omitempty"`
	// Command runs with the settled directory appended to Argv.
	Command CommandConfig `json:"command"`
}

// Load reads, decodes and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config bytes. path is only used to pick the format by
// extension.
func Parse(path string, b []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// Reject trailing tokens (e.g. concatenated JSON documents).
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("trailing data after config document")
		}
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		return errors.New("history.path is required when history is enabled")
	}
	seen := map[string]bool{}
	for i, t := range c.Triggers {
		p := fmt.Sprintf("triggers[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%s: name is required", p)
		}
		if seen["t:"+t.Name] {
			return fmt.Errorf("%s: duplicate trigger name %q", p, t.Name)
		}
		seen["t:"+t.Name] = true
		if strings.TrimSpace(t.Spec) == "" {
			return fmt.Errorf("%s: spec is required", p)
		}
		if err := t.Command.validate(p + ".command"); err != nil {
			return err
		}
	}
	for i, w := range c.Watches {
		p := fmt.Sprintf("watches[%d]", i)
		if strings.TrimSpace(w.Name) == "" {
			return fmt.Errorf("%s: name is required", p)
		}
		if seen["w:"+w.Name] {
			return fmt.Errorf("%s: duplicate watch name %q", p, w.Name)
		}
		seen["w:"+w.Name] = true
		if strings.TrimSpace(w.Path) == "" {
			return fmt.Errorf("%s: path is required", p)
		}
		if _, err := ParseDurationField(p+".settle", w.Settle); err != nil {
			return err
		}
		if err := w.Command.validate(p + ".command"); err != nil {
			return err
		}
	}
	return nil
}

func (c CommandConfig) validate(path string) error {
	if len(c.Argv) == 0 || strings.TrimSpace(c.Argv[0]) == "" {
		return fmt.Errorf("%s: argv is required", path)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%s: retries must be >= 0", path)
	}
	if _, err := ParseDurationField(path+".retry_delay", c.RetryDelay); err != nil {
		return err
	}
	return nil
}

// ParseDurationField parses a non-negative Go duration string, treating an
// empty value as zero. path shows up in the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for the
// zero/omitted case.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
