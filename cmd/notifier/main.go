package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"tally/internal/cli"
	"tally/internal/events"
	"tally/internal/log"
)

// The notifier is the delivery edge: it consumes reminder and payment
// events from the broker and hands them to the user-facing channel. Here
// that channel is the structured log; a real deployment swaps in push or
// email delivery behind the same consume loops.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger().WithComponent(log.ComponentNotify)

	logger.Info("Starting notifier")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("Notifier requires an AMQP broker, set AMQP_URL")
		os.Exit(1)
	}

	client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.PaymentQueue, cfg.ReminderQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeReminderFired(ctx, func(ev *events.ReminderFired) error {
			logger.Info("Reminder delivered",
				"obligation_id", ev.ObligationID,
				"notification_id", ev.NotificationID,
				"due_at", ev.DueAt)
			return nil
		})
	})
	g.Go(func() error {
		return client.ConsumeObligationMaterialized(ctx, func(ev *events.ObligationMaterialized) error {
			logger.Info("Payment recorded",
				"obligation_id", ev.ObligationID,
				"occurrence_id", ev.OccurrenceID,
				"account_id", ev.AccountID,
				"amount_cents", ev.AmountCents,
				"direction", ev.Direction,
				"due_at", ev.DueAt)
			return nil
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Notifier stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("Notifier shutdown complete")
}
