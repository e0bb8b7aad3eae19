package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/core"
	"tally/internal/notify"
	"tally/internal/storage"
)

const reminderKeyPrefix = "reminder/"

// Registry is the notification dedup registry: one persisted ReminderRecord
// per obligation, reconciled against the platform's actual notification set.
// It is an explicitly constructed instance injected into the reminder
// scheduler, not a package-level map.
type Registry struct {
	kv       *storage.KV
	platform notify.Platform
}

func NewRegistry(kv *storage.KV, platform notify.Platform) *Registry {
	return &Registry{kv: kv, platform: platform}
}

func reminderKey(obligationID string) string {
	return reminderKeyPrefix + obligationID
}

// Lookup returns the stored record for an obligation, if any.
func (r *Registry) Lookup(ctx context.Context, obligationID string) (core.ReminderRecord, bool) {
	raw, err := r.kv.Get(ctx, reminderKey(obligationID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Registry lookup failed",
				"obligation_id", obligationID, "error", err)
		}
		return core.ReminderRecord{}, false
	}
	var rec core.ReminderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		slog.WarnContext(ctx, "Registry record corrupted, discarding",
			"obligation_id", obligationID, "error", err)
		_ = r.kv.Delete(ctx, reminderKey(obligationID))
		return core.ReminderRecord{}, false
	}
	return rec, true
}

// IsScheduled reports whether a reminder for exactly this due date is on
// record.
func (r *Registry) IsScheduled(ctx context.Context, obligationID string, dueAt time.Time) bool {
	rec, ok := r.Lookup(ctx, obligationID)
	return ok && rec.DueAt.Equal(dueAt)
}

// NeedsReschedule is true when no record exists for the obligation or the
// stored due date differs from newDueAt.
func (r *Registry) NeedsReschedule(ctx context.Context, obligationID string, newDueAt time.Time) bool {
	rec, ok := r.Lookup(ctx, obligationID)
	return !ok || !rec.DueAt.Equal(newDueAt)
}

// Upsert records the obligation's current reminder, superseding any prior
// record.
func (r *Registry) Upsert(ctx context.Context, obligationID, notificationID string, dueAt time.Time) error {
	rec := core.ReminderRecord{
		ObligationID:   obligationID,
		NotificationID: notificationID,
		DueAt:          dueAt,
		ScheduledAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reminder record: %w", err)
	}
	if err := r.kv.Put(ctx, reminderKey(obligationID), raw); err != nil {
		return fmt.Errorf("store reminder record: %w", err)
	}
	return nil
}

// Remove drops the obligation's record. Removing an absent record is fine.
func (r *Registry) Remove(ctx context.Context, obligationID string) error {
	return r.kv.Delete(ctx, reminderKey(obligationID))
}

// Sync reconciles the record set against the platform's pending
// notifications, discarding records whose notification no longer exists
// (fired or externally cancelled). Best effort: a failed sync leaves stale
// entries for the next attempt.
func (r *Registry) Sync(ctx context.Context) error {
	pending, err := r.platform.Pending(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Registry sync: cannot list platform notifications", "error", err)
		return fmt.Errorf("list pending notifications: %w", err)
	}
	alive := make(map[string]bool, len(pending))
	for _, s := range pending {
		alive[s.ID] = true
	}

	records, err := r.kv.List(ctx, reminderKeyPrefix)
	if err != nil {
		slog.WarnContext(ctx, "Registry sync: cannot list records", "error", err)
		return fmt.Errorf("list reminder records: %w", err)
	}

	removed := 0
	for key, raw := range records {
		var rec core.ReminderRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.WarnContext(ctx, "Registry sync: discarding corrupted record", "key", key, "error", err)
			_ = r.kv.Delete(ctx, key)
			removed++
			continue
		}
		if alive[rec.NotificationID] {
			continue
		}
		if err := r.kv.Delete(ctx, key); err != nil {
			slog.WarnContext(ctx, "Registry sync: delete failed",
				"obligation_id", rec.ObligationID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.InfoContext(ctx, "Registry sync complete",
			"records", len(records),
			"removed", removed,
			"platform_pending", len(pending))
	}
	return nil
}
