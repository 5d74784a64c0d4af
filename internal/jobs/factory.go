package jobs

import "sync/atomic"

// Factory is the identity of a job kind. One Factory is created per kind at
// startup and lives for the process lifetime; every job it produces carries
// its name plus a monotonically increasing child id.
//
// Factories compare by pointer. CancelAll uses that to match "all jobs
// produced by this factory" regardless of individual job parameters, so a
// kind must not create a second factory with the same name and expect bulk
// cancellation to cover both.
//
// Concrete kinds expose their own constructors (taking whatever parameters
// the kind needs) and call MakeBase to stamp the job; see NewFunc for the
// closure-backed convenience kind.
type Factory struct {
	name string
	seq  atomic.Uint64
}

func NewFactory(name string) *Factory {
	return &Factory{name: name}
}

func (f *Factory) Name() string { return f.name }

func (f *Factory) nextID() uint64 { return f.seq.Add(1) }
