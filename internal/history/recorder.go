package history

import (
	"context"
	"time"

	"docjobs/internal/eventbus"
	"docjobs/internal/jobs"
	logx "docjobs/pkg/logx"
)

// Recorder drains job lifecycle events off the bus and stores the terminal
// ones. It owns one goroutine between Start and Stop.
type Recorder struct {
	store *Store
	log   logx.Logger

	unsub func()
	done  chan struct{}
}

func NewRecorder(store *Store, log logx.Logger) *Recorder {
	return &Recorder{store: store, log: log.With(logx.String("comp", "history"))}
}

func (r *Recorder) Start(bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(64, "job.")
	r.unsub = unsub
	r.done = make(chan struct{})
	go r.loop(ch)
}

func (r *Recorder) Stop() {
	if r.unsub == nil {
		return
	}
	r.unsub()
	<-r.done
}

func (r *Recorder) loop(ch <-chan eventbus.Event) {
	defer close(r.done)
	for e := range ch {
		outcome := outcomeFor(e.Type)
		if outcome == "" {
			continue
		}
		ev, ok := e.Data.(jobs.Event)
		if !ok {
			continue
		}
		run := Run{
			At:         e.Time,
			Scheduler:  ev.Scheduler,
			Factory:    ev.Factory,
			JobID:      ev.JobID,
			Priority:   ev.Priority,
			Outcome:    outcome,
			Error:      ev.Error,
			TookMS:     ev.Duration.Milliseconds(),
			WillResume: ev.WillResume,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		if err := r.store.Record(ctx, run); err != nil {
			r.log.Warn("record failed", logx.Err(err))
		}
		cancel()
	}
}

func outcomeFor(typ string) string {
	switch typ {
	case jobs.EventFinished:
		return "finished"
	case jobs.EventFailed:
		return "failed"
	case jobs.EventStopped:
		return "stopped"
	case jobs.EventCancelled:
		return "cancelled"
	default:
		return ""
	}
}
