// Package history persists a bounded record of job runs.
//
// The scheduler itself is persistence-free; history is a collaborator fed
// by the event bus. Losing an entry (slow subscriber, full channel) costs a
// diagnostic row, never correctness.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "docjobs/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const defaultKeep = 500

type Config struct {
	Path string
	// Keep bounds the number of retained runs.
	Keep        int
	BusyTimeout time.Duration
}

// Run is one terminal job outcome. Keep it compact and schema-stable.
type Run struct {
	At        time.Time
	Scheduler string
	Factory   string
	JobID     uint64
	Priority  int
	// Outcome is "finished", "failed", "stopped" or "cancelled".
	Outcome    string
	Error      string
	TookMS     int64
	WillResume bool
}

type Store struct {
	db   *sql.DB
	log  logx.Logger
	keep int

	opCount    atomic.Uint64
	pruneEvery uint64
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("history: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	keep := cfg.Keep
	if keep <= 0 {
		keep = defaultKeep
	}
	st := &Store{db: db, log: log, keep: keep, pruneEvery: 100}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, r Run) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, scheduler, factory, job_id, priority, outcome, err, took_ms, will_resume)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.At.Format(time.RFC3339Nano), r.Scheduler, r.Factory, r.JobID, r.Priority,
		r.Outcome, nullStr(r.Error), r.TookMS, r.WillResume,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Warn("history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, scheduler, factory, job_id, priority, outcome, err, took_ms, will_resume
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var at string
		var errStr sql.NullString
		if err := rows.Scan(&at, &r.Scheduler, &r.Factory, &r.JobID, &r.Priority,
			&r.Outcome, &errStr, &r.TookMS, &r.WillResume); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.Error = errStr.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// prune keeps the newest s.keep rows.
func (s *Store) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)`,
		s.keep)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
