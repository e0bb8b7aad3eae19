package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"tally/internal/cli"
	"tally/internal/clock"
	"tally/internal/events"
	"tally/internal/log"
	"tally/internal/monitor"
	"tally/internal/notify"
	"tally/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger().WithComponent(log.ComponentWorker)

	logger.Info("Starting billing-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	store := cli.OpenStore(logger, cfg.SQLiteDBPath)
	defer store.Close()

	// The broker is optional: without it payments are still recorded, the
	// events are just dropped and reminders stay in-process only.
	var publisher events.Publisher = events.NopPublisher{}
	var eventsClient *events.Client
	if cfg.AMQPURL != "" {
		var err error
		eventsClient, err = events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.PaymentQueue, cfg.ReminderQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			eventsClient = nil
		} else {
			defer eventsClient.Close()
			publisher = eventsClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - events will not be published")
	}

	platform := notify.NewLocalPlatform(publisher)
	defer platform.Close()

	registry := services.NewRegistry(store.KV(), platform)
	scheduler := services.NewReminderScheduler(store, platform, registry, cfg.ReminderLead)
	obligations := services.NewObligationService(store, scheduler, publisher, clock.System{})
	processor := services.NewBillingProcessor(store, obligations)
	mon := monitor.New(processor, clock.System{}, cfg.CheckThrottle, cfg.TickInterval)

	executor := monitor.NewExecutor()
	if err := executor.Register(monitor.Task{
		Name:        "due-sweep",
		MinInterval: cfg.BackgroundInterval,
		Run: func(ctx context.Context) error {
			_, ran := mon.MaybeCheck(ctx)
			if !ran {
				logger.Debug("Background sweep throttled")
			}
			return nil
		},
	}); err != nil {
		logger.Error("Failed to register background sweep", "error", err)
		os.Exit(1)
	}
	if err := executor.Register(monitor.Task{
		Name:        "registry-sync",
		MinInterval: cfg.BackgroundInterval,
		Run:         registry.Sync,
	}); err != nil {
		logger.Error("Failed to register registry sync", "error", err)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Billing monitor configured",
		"throttle", cfg.CheckThrottle,
		"tick", cfg.TickInterval,
		"background", cfg.BackgroundInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(ctx) })
	g.Go(func() error { return executor.Run(ctx) })
	if eventsClient != nil {
		g.Go(func() error {
			return eventsClient.ConsumeReminderFired(ctx, func(ev *events.ReminderFired) error {
				return scheduler.HandleReminderFired(ctx, ev)
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Billing-worker stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("Billing-worker shutdown complete")
}
