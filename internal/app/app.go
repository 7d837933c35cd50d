package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/eventbus"
	"smsrelay/internal/forward"
	"smsrelay/internal/poll"
	"smsrelay/internal/relay"
	rtsup "smsrelay/internal/runtime/supervisor"
	"smsrelay/internal/server"
	"smsrelay/internal/storage"
	"smsrelay/internal/transport"
	"smsrelay/internal/trigger"
	"smsrelay/internal/webhook"
	logx "smsrelay/pkg/logx"
	"smsrelay/pkg/systemd"
)

// restartSections are read once at startup.
var restartSections = []string{"storage", "transport", "kafka"}

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store relay.Store

	settings atomic.Pointer[relay.Settings]
	identity atomic.Pointer[string]

	ledger *relay.Ledger
	notif  *webhook.Notifier
	disp   *relay.Dispatcher
	poll   *poll.Service
	trig   *trigger.Ingestor
	kafka  *trigger.Consumer
	fwd    *forward.Forwarder
	srv    *server.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO")
	logSvc, log := logx.New(mapLoggingConfig(cfg), newLogSender(cfg, bootLog))
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgPath: cfgPath, cfgm: cfgm, log: log, logs: logSvc, bus: eventbus.New()}
	if err := a.applySettings(cfg); err != nil {
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a.ledger = relay.NewLedger(relay.DefaultLedgerCapacity, a.store, log.With(logx.String("comp", "ledger")))
	loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := a.ledger.Load(loadCtx); err != nil {
		// A corrupt or unreachable document starts an empty ledger.
		log.Warn("ledger load failed; starting empty", logx.String("driver", sc.Driver), logx.Err(err))
	}
	cancel()

	tc, deliverTimeout, err := mapTransportConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	tr, err := transport.Open(tc, log.With(logx.String("comp", "transport")))
	if err != nil {
		return nil, a.abort(err)
	}

	wc, err := mapWebhookConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	a.notif = webhook.New(wc, log.With(logx.String("comp", "webhook")), a.bus, a.identityValue)

	a.disp = relay.NewDispatcher(relay.Options{
		Ledger:         a.ledger,
		Transport:      tr,
		Webhooks:       a.notif,
		Log:            log.With(logx.String("comp", "dispatch")),
		Bus:            a.bus,
		DeliverTimeout: deliverTimeout,
	})

	pc, err := mapPollConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	a.poll, err = poll.New(pc, a.disp, a.currentSettings, nil, log.With(logx.String("comp", "poll")))
	if err != nil {
		return nil, a.abort(err)
	}

	a.trig = trigger.New(a.disp, a.currentSettings, log.With(logx.String("comp", "trigger")))
	if kc, enabled, err := mapKafkaConfig(cfg); err != nil {
		return nil, a.abort(err)
	} else if enabled {
		r, err := trigger.NewKafkaReader(kc)
		if err != nil {
			return nil, a.abort(err)
		}
		a.kafka = trigger.NewConsumer(a.trig, r, log)
		log.Info("kafka trigger source enabled", logx.String("topic", kc.Topic), logx.String("group", kc.GroupID))
	}

	a.fwd = forward.New(tc.Timeout, log.With(logx.String("comp", "forward")))

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	a.srv = server.New(srvCfg, server.Handlers{
		Trigger: a.trig,
		Inbound: func(ctx context.Context, from, message string) error {
			return a.fwd.Forward(ctx, from, message, a.currentSettings())
		},
		History: a.ledger,
		Health:  a.health,
	}, log)

	return a, nil
}

func (a *App) abort(err error) error {
	if a.store != nil {
		_ = a.store.Close()
	}
	return err
}

// Dispatcher exposes the pipeline for embedding and tests.
func (a *App) Dispatcher() *relay.Dispatcher { return a.disp }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) currentSettings() relay.Settings {
	if s := a.settings.Load(); s != nil {
		return *s
	}
	return relay.Settings{}
}

func (a *App) identityValue() string {
	if p := a.identity.Load(); p != nil {
		return *p
	}
	return ""
}

func (a *App) applySettings(cfg *config.Config) error {
	s, err := cfg.Gateway.Settings()
	if err != nil {
		return err
	}
	id := strings.TrimSpace(cfg.Gateway.SubscriberID)
	a.settings.Store(&s)
	a.identity.Store(&id)
	return nil
}

func (a *App) health() error {
	if a.sup == nil {
		return nil
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	runCtx := a.sup.Context()

	// Queues drain during Stop, so they outlive the run context.
	drainCtx := context.WithoutCancel(runCtx)
	a.notif.Start(drainCtx)
	a.fwd.Start(drainCtx)

	a.srv.Start(runCtx)
	if a.kafka != nil {
		a.kafka.Start(runCtx)
	}
	if err := a.syncPoll(runCtx); err != nil {
		return err
	}

	a.logEvents()

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.apply(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	if every, err := systemd.WatchdogInterval(); err != nil {
		a.log.Warn("systemd watchdog misconfigured", logx.Err(err))
	} else if every > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return systemd.Watchdog(c, every, func() bool { return a.health() == nil })
		})
		a.log.Info("systemd watchdog enabled", logx.Duration("every", every))
	}

	s := a.currentSettings()
	a.log.Info("app started",
		logx.Bool("enabled", s.Enabled),
		logx.String("mode", string(s.OperatingMode)),
		logx.String("validation", string(s.ValidationMode)),
		logx.Int("history", len(a.ledger.Snapshot())),
	)
	return nil
}

// syncPoll runs the poll loop exactly when the gateway is in polled mode.
func (a *App) syncPoll(ctx context.Context) error {
	want := a.currentSettings().OperatingMode == relay.ModePolled
	switch {
	case want && !a.poll.Running():
		a.log.Info("poll mode active")
		return a.poll.Start(ctx)
	case !want && a.poll.Running():
		a.log.Info("poll mode inactive")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return a.poll.Stop(stopCtx)
	}
	return nil
}

func (a *App) logEvents() {
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
				switch d := e.Data.(type) {
				case relay.DispatchEvent:
					a.log.Debug("event", logx.String("type", e.Type), logx.String("state", string(d.State)),
						logx.String("cid", d.CorrelationID), logx.Duration("took", d.Took))
				case webhook.Event:
					a.log.Debug("event", logx.String("type", e.Type), logx.String("kind", d.Kind), logx.String("cid", d.CorrelationID))
				default:
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		}
	})
}

// apply hot-reloads newCfg. Each section keeps its previous value when its
// mapping fails; the validator makes that unlikely.
func (a *App) apply(ctx context.Context, prev, newCfg *config.Config) {
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	sections, attrs := config.SummarizeConfigChange(prev, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		if slices.Contains(restartSections, s) {
			a.log.Warn(fmt.Sprintf("%s config changed; restart required for changes to take effect", s))
		}
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	if err := a.applySettings(newCfg); err != nil {
		a.log.Warn("invalid gateway config; keeping previous", logx.Err(err))
	}

	if wc, err := mapWebhookConfig(newCfg); err != nil {
		a.log.Warn("invalid webhook config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(wc)
	}

	if pc, err := mapPollConfig(newCfg); err != nil {
		a.log.Warn("invalid poll config; keeping previous", logx.Err(err))
	} else if err := a.poll.Apply(pc); err != nil {
		a.log.Warn("poll config rejected", logx.Err(err))
	}
	if err := a.syncPoll(ctx); err != nil {
		a.log.Warn("poll toggle failed", logx.Err(err))
	}

	if sc, err := mapServerConfig(newCfg); err != nil {
		a.log.Warn("invalid server config; keeping previous", logx.Err(err))
	} else {
		a.srv.Reconfigure(ctx, sc)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	_, _ = systemd.Stopping()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
		}
	}

	// Intake first, then the queues that intake feeds.
	step("server", 2*time.Second, func(c context.Context) error { a.srv.Stop(c); return nil })
	step("kafka", 2*time.Second, func(c context.Context) error {
		if a.kafka != nil {
			return a.kafka.Stop(c)
		}
		return nil
	})
	step("poll", 2*time.Second, a.poll.Stop)
	step("forward", 2*time.Second, a.fwd.Stop)
	step("webhook", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
