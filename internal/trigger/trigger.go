// Package trigger submits jobs to the scheduler on a cron cadence.
//
// Triggers are registration-only: execution, priorities and preemption stay
// with the job scheduler. A trigger with ReplacePrevious set cancels its
// still-pending jobs before submitting the next one, so a run that is
// slower than its period cannot pile the queue up.
package trigger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"docjobs/internal/jobs"
	logx "docjobs/pkg/logx"
	"docjobs/pkg/queue"
)

// Entry describes one periodic submission.
type Entry struct {
	Name string
	// Spec is a cron expression (5-field, or 6-field with seconds) or a
	// descriptor: "@hourly", "@daily", "@every 15m".
	Spec            string
	Priority        int
	ReplacePrevious bool

	// Factory groups this trigger's jobs for ReplacePrevious
	// cancellation. Required when ReplacePrevious is set.
	Factory *jobs.Factory
	// Make builds a fresh job for each firing.
	Make func() jobs.Job
}

type entryDef struct {
	Entry
	cronID cron.EntryID
}

type Service struct {
	log    logx.Logger
	sched  *jobs.Scheduler
	parser cron.Parser

	mu   sync.Mutex
	c    *cron.Cron
	defs []*entryDef
}

func New(sched *jobs.Scheduler, log logx.Logger) *Service {
	return &Service{
		log:   log.With(logx.String("comp", "trigger")),
		sched: sched,
		parser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

// Add registers an entry. Registering while stopped is supported; the entry
// is applied on the next Start.
func (s *Service) Add(e Entry) error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("trigger: name is required")
	}
	if e.Make == nil {
		return fmt.Errorf("trigger %q: Make is required", e.Name)
	}
	if e.ReplacePrevious && e.Factory == nil {
		return fmt.Errorf("trigger %q: ReplacePrevious requires Factory", e.Name)
	}
	if _, err := s.parser.Parse(e.Spec); err != nil {
		return fmt.Errorf("trigger %q: bad spec %q: %w", e.Name, e.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d := &entryDef{Entry: e}
	s.defs = append(s.defs, d)
	if s.c != nil {
		return s.registerLocked(d)
	}
	return nil
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.c = cron.New(cron.WithParser(s.parser))
	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			// Specs were validated in Add; a failure here is a bug.
			s.log.Error("trigger registration failed", logx.String("trigger", d.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("triggers started", logx.Int("entries", len(s.defs)))
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info("triggers stopped")
}

func (s *Service) registerLocked(d *entryDef) error {
	id, err := s.c.AddFunc(d.Spec, func() { s.fire(d) })
	if err != nil {
		return err
	}
	d.cronID = id
	return nil
}

func (s *Service) fire(d *entryDef) {
	if d.ReplacePrevious {
		s.sched.CancelAll(d.Factory)
	}
	j := d.Make()
	s.log.Debug("trigger fired", logx.String("trigger", d.Name), logx.String("job", j.String()))
	s.sched.Schedule(j)
}

// EntryView is a diagnostic row.
type EntryView struct {
	Name     string
	Spec     string
	Priority int
	Next     time.Time
}

// Snapshot lists registered entries ordered the way the scheduler would
// order their jobs: descending priority, then registration order.
func (s *Service) Snapshot() []EntryView {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := queue.New[*entryDef]()
	for _, d := range s.defs {
		q.Push(d, d.Priority)
	}
	out := make([]EntryView, 0, q.Len())
	for _, it := range q.Snapshot() {
		v := EntryView{
			Name:     it.Value.Name,
			Spec:     it.Value.Spec,
			Priority: it.Value.Priority,
		}
		if s.c != nil && it.Value.cronID != 0 {
			v.Next = s.c.Entry(it.Value.cronID).Next
		}
		out = append(out, v)
	}
	return out
}
