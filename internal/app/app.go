package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"taskschedd/internal/config"
	"taskschedd/internal/eventbus"
	"taskschedd/internal/observability/status"
	"taskschedd/internal/runtime/supervisor"
	"taskschedd/internal/storage"
	"taskschedd/internal/task/dispatcher"
	logx "taskschedd/pkg/logx"
)

// App wires config, logging, run history and the dispatcher together.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	disp  *dispatcher.Dispatcher
	stat  *status.Service

	actions ActionFactory
}

type Option func(*App)

// WithActions overrides the action built for configured tasks.
func WithActions(f ActionFactory) Option {
	return func(a *App) {
		if f != nil {
			a.actions = f
		}
	}
}

// WithOutput sends the default task output to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.actions = PrintAction(w) }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.NewService(mapLogConfig(cfg))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := StorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
		log.Info("run history enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	statCfg, err := mapStatusConfig(cfg)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	disp := dispatcher.New(mapDispatcherConfig(cfg), log.With(logx.String("comp", "dispatcher")), bus)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		disp:    disp,
		stat:    status.New(statCfg, disp, store, log.With(logx.String("comp", "status"))),
		actions: PrintAction(os.Stdout),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Dispatcher exposes the dispatcher so callers can add their own tasks.
func (a *App) Dispatcher() *dispatcher.Dispatcher { return a.disp }

// Store returns the run history store, or nil when history is disabled.
func (a *App) Store() storage.Store { return a.store }

// Err returns the first background failure, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	cfg := a.cfgm.Get()
	a.disp.Start()
	n := a.registerTasks(cfg.Tasks)

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, dispatcher.EventCompleted, dispatcher.EventFailed)
		a.sup.Go("history.recorder", func(c context.Context) error {
			defer unsub()
			return recordRuns(c, events, a.store, a.log.With(logx.String("comp", "history")))
		})
	}

	if a.log.Enabled(logx.LevelTrace) {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	if a.stat.Enabled() {
		a.sup.GoRestart("status.http", a.stat.Run, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := cfg
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.log.Info("app started", logx.String("config", a.cfgPath), logx.Int("tasks", n))
	return nil
}

// applyConfig reacts to a reloaded config: logging is applied in place and
// tasks are reconciled by id. Dispatcher and storage settings need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, tasks := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogConfig(newCfg))
		case "dispatcher", "storage", "status":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		case "tasks":
			a.reconcileTasks(tasks, newCfg)
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Dispatcher first: its final run events still reach the recorder.
	a.step(ctx, "dispatcher", 5*time.Second, func(context.Context) error { return a.disp.Close() })
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Stop)
	if a.store != nil {
		a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	}

	snap := a.disp.Snapshot()
	a.log.Info("app stopped",
		logx.Uint64("executed", snap.Executed),
		logx.Uint64("failed", snap.Failed),
		logx.Uint64("events_dropped", a.bus.Dropped()),
	)
	return a.logs.Close()
}

// step runs one shutdown step, bounded by max and by ctx. A step that
// overruns is abandoned (and logged) so the others still run.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
