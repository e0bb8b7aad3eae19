package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/core"
	"tally/internal/events"
	"tally/internal/notify"
	"tally/internal/storage"
)

// fallbackRepeat is the fixed period used when a frequency has no matching
// platform trigger shape.
const fallbackRepeat = 30 * 24 * time.Hour

// ReminderScheduler keeps one platform notification armed per obligation,
// firing one lead interval (a calendar day by default) before the due date.
// Scheduling is advisory: every failure path degrades to "no reminder" and
// never blocks a payment.
type ReminderScheduler struct {
	store    *storage.Repository
	platform notify.Platform
	registry *Registry
	lead     time.Duration
}

func NewReminderScheduler(store *storage.Repository, platform notify.Platform, registry *Registry, lead time.Duration) *ReminderScheduler {
	if lead <= 0 {
		lead = 24 * time.Hour
	}
	return &ReminderScheduler{
		store:    store,
		platform: platform,
		registry: registry,
		lead:     lead,
	}
}

// Schedule arms the reminder for the definition's next due date. When the
// definition has notifications disabled it cancels any existing reminder
// instead. Returns the notification id and whether a reminder is now armed.
func (s *ReminderScheduler) Schedule(ctx context.Context, def core.Transaction) (string, bool) {
	if !def.NotifyEnabled {
		s.Cancel(ctx, def.ID)
		return "", false
	}

	// A new reminder always supersedes the previous one for the same
	// obligation.
	if rec, ok := s.registry.Lookup(ctx, def.ID); ok {
		if err := s.platform.Cancel(ctx, rec.NotificationID); err != nil {
			slog.WarnContext(ctx, "Failed to cancel superseded reminder",
				"obligation_id", def.ID,
				"notification_id", rec.NotificationID,
				"error", err)
		}
	}

	trigger := s.triggerFor(def)
	id, err := s.platform.Schedule(ctx, trigger, notify.Payload{
		ObligationID: def.ID,
		Title:        "Upcoming payment",
		Body:         def.Note,
		DueAt:        def.NextDueAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to schedule reminder",
			"obligation_id", def.ID,
			"next_due_at", def.NextDueAt,
			"error", err)
		return "", false
	}

	if err := s.registry.Upsert(ctx, def.ID, id, def.NextDueAt); err != nil {
		slog.WarnContext(ctx, "Failed to record reminder in registry",
			"obligation_id", def.ID,
			"notification_id", id,
			"error", err)
	}

	slog.InfoContext(ctx, "Reminder scheduled",
		"obligation_id", def.ID,
		"notification_id", id,
		"trigger_kind", string(trigger.Kind),
		"fires_at", trigger.At,
		"next_due_at", def.NextDueAt)
	return id, true
}

// Cancel removes the obligation's reminder, reporting whether one existed.
func (s *ReminderScheduler) Cancel(ctx context.Context, obligationID string) bool {
	rec, ok := s.registry.Lookup(ctx, obligationID)
	if !ok {
		return false
	}
	if err := s.platform.Cancel(ctx, rec.NotificationID); err != nil {
		slog.WarnContext(ctx, "Failed to cancel reminder on platform",
			"obligation_id", obligationID,
			"notification_id", rec.NotificationID,
			"error", err)
	}
	if err := s.registry.Remove(ctx, obligationID); err != nil {
		slog.WarnContext(ctx, "Failed to remove reminder record",
			"obligation_id", obligationID, "error", err)
	}
	return true
}

// HandleReminderFired reacts to the platform delivering a reminder. The
// platform's repeating trigger cannot track variable-length months and
// years, so the next reminder is recomputed from the previous due date by
// the definition's own frequency rule and re-armed.
func (s *ReminderScheduler) HandleReminderFired(ctx context.Context, ev *events.ReminderFired) error {
	def, err := s.store.GetDefinition(ctx, ev.ObligationID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			// Transient failure: keep the reminder and let the consume
			// loop requeue the event.
			return fmt.Errorf("load definition %s: %w", ev.ObligationID, err)
		}
		// Definition deleted since scheduling; drop the orphan reminder.
		slog.InfoContext(ctx, "Reminder fired for unknown obligation, cancelling",
			"obligation_id", ev.ObligationID,
			"notification_id", ev.NotificationID)
		s.Cancel(ctx, ev.ObligationID)
		if err := s.platform.Cancel(ctx, ev.NotificationID); err != nil {
			slog.WarnContext(ctx, "Failed to cancel orphan notification",
				"notification_id", ev.NotificationID, "error", err)
		}
		return nil
	}

	if def.Ended || !def.NotifyEnabled {
		s.Cancel(ctx, def.ID)
		return nil
	}

	// Advance from the fired due date unless the billing processor has
	// already moved the definition further along.
	nextDue := core.NextAfter(def.Frequency, ev.DueAt)
	if def.NextDueAt.After(nextDue) {
		nextDue = def.NextDueAt
	}
	if core.EndedBy(nextDue, def.EndAt) {
		s.Cancel(ctx, def.ID)
		return nil
	}

	def.NextDueAt = nextDue
	s.Schedule(ctx, def)
	return nil
}

func (s *ReminderScheduler) triggerFor(def core.Transaction) notify.Trigger {
	at := def.NextDueAt.Add(-s.lead)
	switch def.Frequency {
	case core.Daily:
		return notify.Trigger{Kind: notify.TriggerDaily, At: at}
	case core.Weekly:
		return notify.Trigger{Kind: notify.TriggerWeekly, At: at}
	case core.Monthly:
		return notify.Trigger{Kind: notify.TriggerMonthly, At: at}
	case core.Yearly:
		return notify.Trigger{Kind: notify.TriggerYearly, At: at}
	default:
		return notify.Trigger{Kind: notify.TriggerInterval, At: at, Every: fallbackRepeat}
	}
}
