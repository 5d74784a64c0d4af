// Package jobs serializes long-running, non-thread-safe work onto a single
// background goroutine.
//
// # Overview
//
// A major issue in document tooling is non-thread-safe dependencies
// (renderers, OCR engines, index writers). The fix here is to have exactly
// one goroutine besides the interactive control loop: the job scheduler's
// worker. Any long action runs there so the control loop never blocks, and
// no two heavyweight actions ever interleave.
//
// # Jobs and factories
//
// A Job is a unit of schedulable work with a priority (higher runs first).
// Concrete kinds embed Base and implement Do; kinds that can be interrupted
// additionally implement Stop and are recognized through the Stopper
// interface. A Factory is the identity of a job kind: it hands out child
// ids and is the handle for bulk cancellation (CancelAll).
//
// # Scheduling policy
//
// Strict priority with preemption, FIFO among equal priorities,
// non-preemptible jobs run to completion. Scheduling a higher-priority job
// while a lower-priority Stopper is active stops the active job
// (willResume=true), lets the new job run, and re-queues the stopped one at
// its original priority. A preempted job gets a fresh tie-break sequence,
// so it never jumps ahead of equal-priority work queued before it.
//
// # Timing budgets
//
// The scheduler cannot forcibly interrupt a running Do. Budgets are soft:
// an unstoppable job should return within MaxUnstoppableRunTime and a
// Stopper should vacate within MaxStopTime of a stop request. Violations
// are logged as warnings, never enforced by killing the job.
//
// # Notifications
//
// The scheduler publishes lifecycle events (scheduled, started, finished,
// failed, stopped, cancelled) on an eventbus.Bus. How results reach the UI
// or stores is the subscriber's concern; the scheduler only guarantees that
// Do ran, and when.
package jobs
