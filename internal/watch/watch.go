// Package watch submits a job when a watched directory settles.
//
// The typical setup points a watcher at a scanner's output directory: new
// files trigger an import/index job once the directory has been quiet for
// the settle window. Bursts (a multi-page scan landing file by file)
// coalesce into one submission, and a token bucket caps the submission rate
// regardless of how noisy the directory is. A new burst cancels the
// previous still-queued job rather than stacking a second one behind it.
package watch

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"docjobs/internal/jobs"
	logx "docjobs/pkg/logx"
)

const defaultSettle = 2 * time.Second

type Config struct {
	Name string
	// Path is the directory to watch (non-recursive).
	Path string
	// Settle is the quiet window required before submitting.
	Settle     time.Duration
	RatePerSec int
	// Make builds the job to submit; it receives the watched path.
	Make func(dir string) jobs.Job
}

type Watcher struct {
	cfg   Config
	log   logx.Logger
	sched *jobs.Scheduler

	fw  *fsnotify.Watcher
	lim *rate.Limiter

	stopCh chan struct{}
	done   chan struct{}

	mu   sync.Mutex
	last jobs.Job
}

func New(cfg Config, sched *jobs.Scheduler, log logx.Logger) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Watcher{
		cfg:   cfg,
		log:   log.With(logx.String("watch", cfg.Name)),
		sched: sched,
		lim:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.cfg.Path); err != nil {
		_ = fw.Close()
		return err
	}
	w.fw = fw
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop()
	w.log.Info("watching", logx.String("path", w.cfg.Path), logx.Duration("settle", w.cfg.Settle))
	return nil
}

func (w *Watcher) Stop() {
	if w.fw == nil {
		return
	}
	close(w.stopCh)
	_ = w.fw.Close()
	<-w.done
	w.log.Info("watch stopped")
}

func (w *Watcher) loop() {
	defer close(w.done)

	settle := time.NewTimer(w.cfg.Settle)
	if !settle.Stop() {
		<-settle.C
	}

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.log.Trace("fs event", logx.String("op", ev.Op.String()), logx.String("file", ev.Name))
			resetTimer(settle, w.cfg.Settle)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", logx.Err(err))
		case <-settle.C:
			if !w.lim.Allow() {
				// Over budget; look again shortly instead of dropping
				// the settled state on the floor.
				w.log.Debug("submission rate limited")
				resetTimer(settle, time.Second)
				continue
			}
			w.submit()
		}
	}
}

func (w *Watcher) submit() {
	j := w.cfg.Make(w.cfg.Path)

	w.mu.Lock()
	prev := w.last
	w.last = j
	w.mu.Unlock()

	if prev != nil {
		// No-op if the previous job already ran.
		w.sched.Cancel(prev)
	}
	w.log.Debug("submitting job", logx.String("job", j.String()))
	w.sched.Schedule(j)
}

// resetTimer re-arms a timer whose channel is selected on in loop().
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
