package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oggyb/wa-notifier/internal/cache"
	rediscache "github.com/oggyb/wa-notifier/internal/cache/redis"
	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/config"
	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/db/gormdb"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
	"github.com/oggyb/wa-notifier/internal/domain/autoreply"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/domain/schedule"
	"github.com/oggyb/wa-notifier/internal/domain/template"
	"github.com/oggyb/wa-notifier/internal/events"
	"github.com/oggyb/wa-notifier/internal/gateway"
	"github.com/oggyb/wa-notifier/internal/handler"
	"github.com/oggyb/wa-notifier/internal/logging"
	gormrepo "github.com/oggyb/wa-notifier/internal/repository/gorm"
	auditRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/audit"
	ruleRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/autoreply"
	contactRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/contact"
	deviceRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/device"
	mesgRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/message"
	scheduleRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/schedule"
	templateRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/template"
	"github.com/oggyb/wa-notifier/internal/repository/memory"
	routes "github.com/oggyb/wa-notifier/internal/router"
	"github.com/oggyb/wa-notifier/internal/scheduler"
	"github.com/oggyb/wa-notifier/internal/server"
	"github.com/oggyb/wa-notifier/internal/service"
	"github.com/oggyb/wa-notifier/internal/supervisor"
)

// @title						WhatsApp Notification API
// @version					1.0
// @description				Attendance notification dispatch over a WhatsApp gateway.
// @BasePath					/
// @securityDefinitions.apikey	WebhookSecret
// @in							header
// @name						X-Webhook-Secret
func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("[Main] Startup failed")
	}
}

// repositories is the set of storage ports the services need.
type repositories struct {
	messages  message.Repository
	devices   device.Repository
	schedules schedule.Repository
	rules     autoreply.Repository
	contacts  contact.Repository
	templates template.Repository
	audit     audit.Repository
}

func run() error {
	// Base context for the whole application lifetime.
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clk := clock.Real{}

	// Storage and cache.
	repos, c, checks, cleanup, err := openStorage(rootCtx, cfg, loc, clk)
	if err != nil {
		return err
	}
	defer cleanup()

	// Gateway client with a breaker per device session.
	var gw gateway.Client = gateway.NewWebhookClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.SendTimeout)
	if cfg.Gateway.BreakerFailures > 0 {
		gw = gateway.NewBreakerClient(gw, gateway.BreakerConfig{
			ConsecutiveFailures: cfg.Gateway.BreakerFailures,
			OpenTimeout:         cfg.Gateway.BreakerOpenTimeout,
			HalfOpenRequests:    1,
		})
	}
	if err := gw.Health(rootCtx); err != nil {
		logging.Warn().Err(err).Str("url", cfg.Gateway.BaseURL).Msg("[Main] Gateway not reachable yet, sends will be retried")
	}

	// Services.
	registry := service.NewRegistry(repos.devices, repos.audit, clk, cfg.Quota.DeviceErrorThreshold)
	msgSvc := service.NewMessageService(repos.messages, registry, repos.audit, clk, cfg.Defaults.CountryCode)
	schSvc := service.NewScheduleService(
		repos.schedules,
		repos.messages,
		registry,
		repos.audit,
		clk,
		cfg.Defaults.CountryCode,
		cfg.Scheduler.BatchSize,
		cfg.Defaults.MaxRetries,
	)
	msgSvc.SetTerminalNotifier(schSvc)

	dispatcher := service.NewDispatcher(repos.messages, registry, gw, c, schSvc, repos.audit, clk, service.DispatcherConfig{
		BatchSize:   cfg.Dispatcher.BatchSize,
		MaxWorkers:  cfg.Dispatcher.MaxWorkers,
		SendTimeout: cfg.Gateway.SendTimeout,
		Backoff:     service.Backoff{Base: cfg.Dispatcher.BackoffBase, Max: cfg.Dispatcher.BackoffMax},
	})
	replier := service.NewAutoReplier(repos.rules, msgSvc, clk, loc)
	webhooks := service.NewWebhookProcessor(repos.messages, registry, repos.contacts, replier, c, repos.audit, clk, cfg.Defaults.CountryCode)
	composer := service.NewComposer(repos.templates, repos.contacts, msgSvc, schSvc, clk, service.ComposerConfig{
		DefaultLanguage: cfg.Defaults.Language,
		SchoolName:      cfg.Defaults.SchoolName,
		Location:        loc,
	})

	// Event bus.
	bus := events.NewBus(256)
	defer func() { _ = bus.Close() }()
	consumer := events.NewConsumer(bus, composer, events.ConsumerConfig{})

	// Background runners. The dispatch pair is controlled through /scheduler.
	autoStart := restoreSchedulerState(rootCtx, c, cfg.Scheduler.AutoStart)
	dispatch := scheduler.New(dispatcher, scheduler.Config{
		Name:         "dispatcher",
		Interval:     cfg.Dispatcher.Interval,
		BatchTimeout: cfg.Scheduler.BatchTimeout,
		Jitter:       cfg.Dispatcher.Interval / 10,
		AutoStart:    autoStart,
		Clock:        clk,
	})
	sweep := scheduler.New(schSvc, scheduler.Config{
		Name:         "schedule-sweep",
		Interval:     cfg.Scheduler.Interval,
		BatchTimeout: cfg.Scheduler.BatchTimeout,
		AutoStart:    autoStart,
		Clock:        clk,
	})
	quota := scheduler.New(scheduler.BatchFunc(func(ctx context.Context) error {
		n, err := registry.ResetQuotas(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logging.Info().Int64("devices", n).Msg("[Quota] Quota windows reset")
		}
		return nil
	}), scheduler.Config{
		Name:         "quota-reset",
		Interval:     cfg.Quota.SweepInterval,
		BatchTimeout: cfg.Scheduler.BatchTimeout,
		AutoStart:    true,
		Clock:        clk,
	})

	// HTTP dependencies & server wiring.
	deps := routes.AppDeps{
		Home:             handler.NewHomeHandler(cfg.App.Name, checks),
		Message:          handler.NewMessageHandler(msgSvc),
		Schedule:         handler.NewScheduleHandler(schSvc),
		Device:           handler.NewDeviceHandler(registry, clk),
		Event:            handler.NewEventHandler(bus),
		Webhook:          handler.NewWebhookHandler(webhooks),
		Scheduler:        handler.NewSchedulerHandler(scheduler.Group{dispatch, sweep}, c),
		WebhookSecret:    cfg.Webhook.Secret,
		WebhookRateLimit: cfg.API.WebhookRateLimit,
	}
	srv := server.New(cfg.Addr(), deps)

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.API.ShutdownTimeout})
	tree.AddWorker(dispatch)
	tree.AddWorker(sweep)
	tree.AddWorker(quota)
	tree.AddWorker(consumer)
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, cfg.API.ShutdownTimeout))

	logging.Info().
		Str("addr", cfg.Addr()).
		Str("env", cfg.App.Env).
		Str("storage", cfg.Storage.Driver).
		Bool("dispatch_running", autoStart).
		Msg("[Main] Starting")

	err = tree.Serve(rootCtx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, u := range report {
			logging.Warn().Str("service", u.Name).Msg("[Main] Service did not stop in time")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Info().Msg("[Main] Shutdown complete")
	return nil
}

// openStorage builds the repositories and cache for the configured driver.
// The returned checks feed /health.
func openStorage(
	ctx context.Context,
	cfg *config.Config,
	loc *time.Location,
	clk clock.Clock,
) (*repositories, cache.Cache, map[string]handler.Pinger, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore()
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("start in-process redis: %w", err)
		}
		c := rediscache.New(mr.Addr(), "", 0)

		fx, err := config.LoadFixtures(cfg.Fixtures.Path)
		if err != nil {
			_ = c.Close()
			mr.Close()
			return nil, nil, nil, nil, err
		}
		if err := fx.Apply(ctx, store.Devices, store.Rules, store.Templates, loc, clk.Now()); err != nil {
			_ = c.Close()
			mr.Close()
			return nil, nil, nil, nil, fmt.Errorf("apply fixtures: %w", err)
		}
		logging.Info().Int("devices", len(fx.Devices)).Str("path", cfg.Fixtures.Path).Msg("[Main] In-memory store seeded from fixtures")

		repos := &repositories{
			messages:  store.Messages,
			devices:   store.Devices,
			schedules: store.Schedules,
			rules:     store.Rules,
			contacts:  store.Contacts,
			templates: store.Templates,
			audit:     store.Audit,
		}
		cleanup := func() {
			_ = c.Close()
			mr.Close()
		}
		return repos, c, map[string]handler.Pinger{"cache": c}, cleanup, nil

	default:
		c := rediscache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}

		conn, err := gormdb.New(cfg.PostgresDSN(), db.PoolConfig{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			_ = c.Close()
			return nil, nil, nil, nil, fmt.Errorf("connect db: %w", err)
		}
		if err := gormrepo.AutoMigrate(conn); err != nil {
			_ = conn.Close()
			_ = c.Close()
			return nil, nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}

		repos := &repositories{
			messages:  mesgRepo.NewRepository(conn),
			devices:   deviceRepo.NewRepository(conn),
			schedules: scheduleRepo.NewRepository(conn),
			rules:     ruleRepo.NewRepository(conn),
			contacts:  contactRepo.NewRepository(conn),
			templates: templateRepo.NewRepository(conn),
			audit:     auditRepo.NewRepository(conn),
		}
		cleanup := func() {
			_ = conn.Close()
			_ = c.Close()
		}
		return repos, c, map[string]handler.Pinger{"cache": c, "db": conn}, cleanup, nil
	}
}

// restoreSchedulerState honours the last start/stop issued through the API.
func restoreSchedulerState(ctx context.Context, c cache.Cache, fallback bool) bool {
	state, err := c.Get(ctx, handler.SchedulerStateKey)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return fallback
	case err != nil:
		logging.Warn().Err(err).Msg("[Main] Could not read scheduler state, using default")
		return fallback
	}
	return state == handler.StateRunning
}
