// Package app wires the transport, the reconciliation engine and the delivery
// chain together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"msgwatch/internal/config"
	"msgwatch/internal/delivery"
	"msgwatch/internal/eventbus"
	"msgwatch/internal/reconcile"
	"msgwatch/internal/report"
	"msgwatch/internal/runtime/supervisor"
	"msgwatch/internal/snapshot"
	"msgwatch/internal/storage"
	"msgwatch/internal/transport"
	"msgwatch/internal/transport/telegram/adapter"
	"msgwatch/internal/transport/telegram/botapi"
	"msgwatch/pkg/logx"
)

const defaultUpdateBuffer = 256

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *adapter.Adapter
	bot     *botapi.Client
	disp    *delivery.Dispatcher
	engine  *reconcile.Engine
	report  *report.Service
	cmds    *commands
	sd      *sdNotifier

	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateRuntime(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		OwnerIDs:    cfg.Telegram.OwnerUserIDs,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// The Telegram sink warns when enabled without a target, so the target is
	// set before the final Apply.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(groupLogChat(cfg))
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("journal enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	timeout, err := config.ParseDurationOrDefault("delivery.timeout", cfg.Delivery.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	bot, err := botapi.New(botapi.Config{
		Token:      cfg.Delivery.BotToken,
		ChatID:     cfg.Delivery.ChatID,
		BaseURL:    cfg.Delivery.APIBase,
		Timeout:    timeout,
		RatePerSec: cfg.Delivery.RatePerSec,
	}, log.With(logx.String("comp", "botapi")))
	if err != nil {
		return nil, err
	}

	disp := delivery.New(ad, bot, delivery.Config{
		SelfChatID: cfg.SelfChatID(),
		PreferSelf: cfg.PreferSelf(),
		TempDir:    cfg.Delivery.TempDir,
	}, log.With(logx.String("comp", "delivery")))

	bus := eventbus.New()
	engine := reconcile.New(snapshot.NewCache(cfg.Cache.MaxPerScope), disp, reconcile.Options{
		Log:     log.With(logx.String("comp", "engine")),
		Bus:     bus,
		Journal: store,
	})

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		bot:     bot,
		disp:    disp,
		engine:  engine,
		sd:      newSDNotifier(log.With(logx.String("comp", "systemd"))),
	}
	a.cmds = &commands{
		send:    ad,
		config:  cfgm.Get,
		engine:  engine,
		store:   store,
		started: time.Now(),
		log:     log.With(logx.String("comp", "commands")),
	}
	a.report = report.New(mapReportConfig(cfg), a.cmds.sendReport, log.With(logx.String("comp", "report")))
	a.cmds.loc = a.report.Location

	buf := cfg.Telegram.UpdateBuffer
	if buf <= 0 {
		buf = defaultUpdateBuffer
	}
	a.updates = make(chan transport.Update, buf)
	return a, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateRuntime(cfg)
	})

	engineIn := make(chan transport.Update)
	cmdIn := make(chan transport.Command, 16)
	a.sup.Go("engine", func(c context.Context) error {
		return a.engine.Run(c, engineIn)
	})
	a.sup.Go0("updates.route", func(c context.Context) {
		route(c, a.updates, engineIn, cmdIn, a.log)
	})
	a.sup.Go0("commands", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case cmd := <-cmdIn:
				a.cmds.handle(c, cmd)
			}
		}
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.report.Start(a.sup.Context()); err != nil {
		a.log.Warn("report not scheduled", logx.Err(err))
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", a.sd.runWatchdog)

	a.logDeliveryMode(a.cfgm.Get())
	a.sd.ready()
	a.log.Info("app started")
	return nil
}

// route splits the adapter stream: commands go to their own worker so that a
// command reading engine state never waits on the engine loop it feeds.
func route(ctx context.Context, in <-chan transport.Update, engineIn chan<- transport.Update, cmds chan<- transport.Command, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-in:
			if !ok {
				close(engineIn)
				return
			}
			if u.Kind == transport.UpdateCommand {
				if u.Command == nil {
					continue
				}
				select {
				case cmds <- *u.Command:
				default:
					log.Warn("command dropped (busy)", logx.String("cmd", u.Command.Name))
				}
				continue
			}
			select {
			case engineIn <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *App) logDeliveryMode(cfg *config.Config) {
	switch {
	case !cfg.PreferSelf():
		a.log.Info("delivery: bot api primary, self fallback",
			logx.String("chat_id", cfg.Delivery.ChatID),
			logx.Bool("self_fallback", a.disp.SelfAvailable()))
	default:
		a.log.Info("delivery: self (owner's private chat with the bot)",
			logx.Int64("chat_id", cfg.SelfChatID()),
			logx.Bool("bot_configured", a.bot.Configured()))
	}
}

// applyConfig fans a committed config out to the live components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, fields := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.SetTelegramTarget(groupLogChat(next))
	a.logs.Apply(mapLogConfig(next))

	a.adapter.SetOwners(next.Telegram.OwnerUserIDs)

	if err := a.engine.SetMaxPerScope(ctx, next.Cache.MaxPerScope); err != nil {
		a.log.Warn("cache cap not applied", logx.Err(err))
	}
	if err := a.report.Apply(mapReportConfig(next)); err != nil {
		a.log.Warn("report schedule not applied", logx.Err(err))
	}

	if restart := config.RestartRequired(prev, next); len(restart) > 0 {
		a.log.Warn("restart required for some changes", logx.String("settings", strings.Join(restart, ",")))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("stats", a.engine.Stats().String()))
	a.sd.stopping()
	a.sup.Cancel()

	a.step(ctx, "report", time.Second, func(context.Context) error { a.report.Stop(); return nil })
	a.step(ctx, "adapter", 3*time.Second, a.adapter.Stop)
	// The engine journals until its loop exits, so storage closes after the wait.
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Uint64("events_dropped", a.bus.Dropped()))
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and by ctx. A step that overruns
// is left running and logged when it finishes.
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
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
