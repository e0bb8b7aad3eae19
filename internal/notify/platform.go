// Package notify abstracts the device notification facility the reminder
// scheduler talks to. The core only sees the Platform port; adapters decide
// how a trigger actually fires.
package notify

import (
	"context"
	"time"
)

const (
	TriggerDaily    TriggerKind = "daily"
	TriggerWeekly   TriggerKind = "weekly"
	TriggerMonthly  TriggerKind = "monthly"
	TriggerYearly   TriggerKind = "yearly"
	TriggerInterval TriggerKind = "interval"
)

type (
	// TriggerKind selects the repeat shape of a scheduled notification.
	// Calendar kinds repeat on calendar boundaries; TriggerInterval is the
	// fixed-period fallback for shapes the platform cannot express.
	TriggerKind string

	// Trigger describes when a notification first fires and how it repeats.
	Trigger struct {
		Kind  TriggerKind
		At    time.Time     // first fire instant
		Every time.Duration // repeat period for TriggerInterval
	}

	// Payload is what the platform shows when the trigger fires.
	Payload struct {
		ObligationID string
		Title        string
		Body         string
		DueAt        time.Time
	}

	// Scheduled is a notification currently armed on the platform.
	Scheduled struct {
		ID      string
		Trigger Trigger
		Payload Payload
	}

	// Platform is the device notification service.
	Platform interface {
		Schedule(ctx context.Context, trigger Trigger, payload Payload) (string, error)
		Cancel(ctx context.Context, id string) error
		Pending(ctx context.Context) ([]Scheduled, error)
	}
)

// Next returns the first fire instant strictly after the given time. A
// trigger never fires before its At instant.
func (t Trigger) Next(after time.Time) time.Time {
	next := t.At
	for !next.After(after) {
		step := t.advance(next)
		if !step.After(next) {
			// Degenerate trigger (zero interval); refuse to spin.
			return time.Time{}
		}
		next = step
	}
	return next
}

func (t Trigger) advance(from time.Time) time.Time {
	switch t.Kind {
	case TriggerDaily:
		return from.AddDate(0, 0, 1)
	case TriggerWeekly:
		return from.AddDate(0, 0, 7)
	case TriggerMonthly:
		return from.AddDate(0, 1, 0)
	case TriggerYearly:
		return from.AddDate(1, 0, 0)
	case TriggerInterval:
		return from.Add(t.Every)
	default:
		return from
	}
}
