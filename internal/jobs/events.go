package jobs

import "time"

// Event types published on the bus. Subscribers typically filter on the
// "job." prefix.
const (
	EventScheduled = "job.scheduled"
	EventStarted   = "job.started"
	EventFinished  = "job.finished"
	EventFailed    = "job.failed"
	EventStopped   = "job.stopped"
	EventCancelled = "job.cancelled"
)

// Event is the payload carried by every job lifecycle event.
type Event struct {
	Scheduler string        `json:"scheduler"`
	Factory   string        `json:"factory"`
	JobID     uint64        `json:"job_id"`
	Priority  int           `json:"priority"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`

	// WillResume is set on EventStopped when the job was preempted and
	// will be re-queued, as opposed to stopped for cancellation.
	WillResume bool `json:"will_resume,omitempty"`
}
