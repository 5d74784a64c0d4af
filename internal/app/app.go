// Package app wires the daemon together: config, logging, event bus,
// history store, the job scheduler and its submission sources.
package app

import (
	"fmt"

	"docjobs/internal/cmdjob"
	"docjobs/internal/config"
	"docjobs/internal/eventbus"
	"docjobs/internal/history"
	"docjobs/internal/jobs"
	"docjobs/internal/trigger"
	"docjobs/internal/watch"
	logx "docjobs/pkg/logx"
)

type App struct {
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store *history.Store
	rec   *history.Recorder

	sched    *jobs.Scheduler
	trig     *trigger.Service
	watchers []*watch.Watcher
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	a := &App{
		log:  log,
		logs: logs,
		bus:  eventbus.New(),
	}

	a.sched = jobs.New("main", logs.Logger(), a.bus)

	if cfg.History.Enabled {
		busyTimeout, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err := history.Open(history.Config{
			Path:        cfg.History.Path,
			Keep:        cfg.History.Keep,
			BusyTimeout: busyTimeout,
		}, logs.Logger())
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		a.store = store
		a.rec = history.NewRecorder(store, logs.Logger())
	}

	a.trig = trigger.New(a.sched, logs.Logger())
	for _, t := range cfg.Triggers {
		cmd, err := commandFromConfig("triggers", t.Name, t.Command)
		if err != nil {
			return nil, err
		}
		fac := cmdjob.NewFactory("trigger:"+t.Name, cmd, logs.Logger())
		priority := t.Priority
		entry := trigger.Entry{
			Name:            t.Name,
			Spec:            t.Spec,
			Priority:        priority,
			ReplacePrevious: t.ReplacePrevious,
			Factory:         fac.Jobs(),
			Make:            func() jobs.Job { return fac.NewJob(priority) },
		}
		if err := a.trig.Add(entry); err != nil {
			return nil, err
		}
	}

	for _, w := range cfg.Watches {
		cmd, err := commandFromConfig("watches", w.Name, w.Command)
		if err != nil {
			return nil, err
		}
		settle, err := config.ParseDurationField("watches."+w.Name+".settle", w.Settle)
		if err != nil {
			return nil, err
		}
		fac := cmdjob.NewFactory("watch:"+w.Name, cmd, logs.Logger())
		priority := w.Priority
		a.watchers = append(a.watchers, watch.New(watch.Config{
			Name:       w.Name,
			Path:       w.Path,
			Settle:     settle,
			RatePerSec: w.RatePerSec,
			Make:       func(dir string) jobs.Job { return fac.NewJob(priority, dir) },
		}, a.sched, logs.Logger()))
	}

	return a, nil
}

func commandFromConfig(section, name string, c config.CommandConfig) (cmdjob.Command, error) {
	retryDelay, err := config.ParseDurationField(
		fmt.Sprintf("%s.%s.command.retry_delay", section, name), c.RetryDelay)
	if err != nil {
		return cmdjob.Command{}, err
	}
	return cmdjob.Command{
		Argv:       c.Argv,
		Dir:        c.Dir,
		Stoppable:  c.Stoppable,
		Retries:    c.Retries,
		RetryDelay: retryDelay,
	}, nil
}

func (a *App) Start() error {
	a.sched.Start()
	if a.rec != nil {
		a.rec.Start(a.bus)
	}
	a.trig.Start()
	for _, w := range a.watchers {
		if err := w.Start(); err != nil {
			a.log.Error("watcher failed to start", logx.Err(err))
			a.stopStarted()
			return err
		}
	}
	a.log.Info("docjobs started")
	return nil
}

// Stop tears the app down in reverse order: submission sources first so
// nothing schedules into a stopping scheduler.
func (a *App) Stop() {
	a.stopStarted()
	a.log.Info("docjobs stopped")
	_ = a.logs.Close()
}

func (a *App) stopStarted() {
	for _, w := range a.watchers {
		w.Stop()
	}
	a.trig.Stop()
	if a.sched.Running() {
		a.sched.Stop()
	}
	if a.rec != nil {
		a.rec.Stop()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
