package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/events"
	"tally/internal/notify"
)

func TestScheduleTriggerShapes(t *testing.T) {
	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		frequency core.Frequency
		wantKind  notify.TriggerKind
		wantEvery time.Duration
	}{
		{core.Daily, notify.TriggerDaily, 0},
		{core.Weekly, notify.TriggerWeekly, 0},
		{core.Monthly, notify.TriggerMonthly, 0},
		{core.Yearly, notify.TriggerYearly, 0},
		{core.Frequency("quarterly"), notify.TriggerInterval, fallbackRepeat},
	}
	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			id, ok := env.scheduler.Schedule(ctx, core.Transaction{
				ID:            "ob-1",
				Note:          "rent",
				IsRecurring:   true,
				Frequency:     tt.frequency,
				NextDueAt:     due,
				NotifyEnabled: true,
			})
			require.True(t, ok)

			armed, ok := env.platform.Get(id)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, armed.Trigger.Kind)
			assert.True(t, armed.Trigger.At.Equal(due.Add(-24*time.Hour)))
			assert.Equal(t, tt.wantEvery, armed.Trigger.Every)
		})
	}
}

func TestScheduleSupersedesPreviousReminder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	def := core.Transaction{
		ID:            "ob-1",
		IsRecurring:   true,
		Frequency:     core.Weekly,
		NextDueAt:     due,
		NotifyEnabled: true,
	}
	first, ok := env.scheduler.Schedule(ctx, def)
	require.True(t, ok)

	def.NextDueAt = due.AddDate(0, 0, 7)
	second, ok := env.scheduler.Schedule(ctx, def)
	require.True(t, ok)
	assert.NotEqual(t, first, second)

	assert.Contains(t, env.platform.Cancelled(), first)
	pending, err := env.platform.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)
}

// Disabling notifications makes Schedule cancel the armed reminder and
// report none; a following Sync finds nothing stale to clean up.
func TestScheduleDisabledCancelsExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	def := core.Transaction{
		ID:            "ob-1",
		IsRecurring:   true,
		Frequency:     core.Weekly,
		NextDueAt:     due,
		NotifyEnabled: true,
	}
	notificationID, ok := env.scheduler.Schedule(ctx, def)
	require.True(t, ok)

	def.NotifyEnabled = false
	id, ok := env.scheduler.Schedule(ctx, def)
	assert.False(t, ok)
	assert.Empty(t, id)

	assert.Contains(t, env.platform.Cancelled(), notificationID)
	_, found := env.registry.Lookup(ctx, "ob-1")
	assert.False(t, found)

	require.NoError(t, env.registry.Sync(ctx))
	pending, err := env.platform.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCancelReportsExistence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, ok := env.scheduler.Schedule(ctx, core.Transaction{
		ID:            "ob-1",
		IsRecurring:   true,
		Frequency:     core.Monthly,
		NextDueAt:     time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		NotifyEnabled: true,
	})
	require.True(t, ok)

	assert.True(t, env.scheduler.Cancel(ctx, "ob-1"))
	assert.False(t, env.scheduler.Cancel(ctx, "ob-1"))
}

// A fired reminder re-arms for the next due date computed by the
// definition's own frequency rule, not the platform's fixed repeat.
func TestHandleReminderFiredReschedules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	due := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	id, err := env.obligations.CreateDefinition(ctx, env.weeklyParams(due))
	require.NoError(t, err)
	rec, ok := env.registry.Lookup(ctx, id)
	require.True(t, ok)
	fired, err := env.platform.Fire(rec.NotificationID)
	require.NoError(t, err)

	require.NoError(t, env.scheduler.HandleReminderFired(ctx, &events.ReminderFired{
		ObligationID:   id,
		NotificationID: fired.ID,
		DueAt:          due,
	}))

	rec, ok = env.registry.Lookup(ctx, id)
	require.True(t, ok)
	assert.True(t, rec.DueAt.Equal(due.AddDate(0, 0, 7)))
	armed, ok := env.platform.Get(rec.NotificationID)
	require.True(t, ok)
	assert.True(t, armed.Trigger.At.Equal(due.AddDate(0, 0, 7).Add(-24*time.Hour)))
}

// When the billing processor already advanced the definition past the fired
// due date, the reminder follows the stored schedule instead of stepping
// from the stale event.
func TestHandleReminderFiredFollowsAdvancedSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	due := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	id, err := env.obligations.CreateDefinition(ctx, env.weeklyParams(due))
	require.NoError(t, err)

	def, err := env.obligations.GetDefinition(ctx, id)
	require.NoError(t, err)
	_, err = env.obligations.Materialize(ctx, def, due)
	require.NoError(t, err)
	def, err = env.obligations.GetDefinition(ctx, id)
	require.NoError(t, err)
	_, err = env.obligations.Materialize(ctx, def, due.AddDate(0, 0, 7))
	require.NoError(t, err)

	require.NoError(t, env.scheduler.HandleReminderFired(ctx, &events.ReminderFired{
		ObligationID: id,
		DueAt:        due,
	}))

	rec, ok := env.registry.Lookup(ctx, id)
	require.True(t, ok)
	assert.True(t, rec.DueAt.Equal(due.AddDate(0, 0, 14)))
}

// A storage failure while loading the definition is not "definition
// deleted": the handler must surface the error (so the consumer requeues
// the event) and leave the armed reminder alone.
func TestHandleReminderFiredStorageErrorKeepsReminder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	due := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	id, err := env.obligations.CreateDefinition(ctx, env.weeklyParams(due))
	require.NoError(t, err)
	rec, ok := env.registry.Lookup(ctx, id)
	require.True(t, ok)

	require.NoError(t, env.store.Close())

	err = env.scheduler.HandleReminderFired(ctx, &events.ReminderFired{
		ObligationID: id,
		DueAt:        due,
	})
	require.Error(t, err)

	_, armed := env.platform.Get(rec.NotificationID)
	assert.True(t, armed)
	assert.NotContains(t, env.platform.Cancelled(), rec.NotificationID)
}

func TestHandleReminderFiredUnknownObligation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	orphanID, err := env.platform.Schedule(ctx,
		notify.Trigger{Kind: notify.TriggerWeekly, At: time.Now()},
		notify.Payload{ObligationID: "gone"})
	require.NoError(t, err)

	require.NoError(t, env.scheduler.HandleReminderFired(ctx, &events.ReminderFired{
		ObligationID:   "gone",
		NotificationID: orphanID,
		DueAt:          time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
	}))

	assert.Contains(t, env.platform.Cancelled(), orphanID)
	pending, err := env.platform.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleReminderFiredPastEndDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	due := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	params := env.weeklyParams(due)
	params.EndAt = due // the fired occurrence was the last one
	id, err := env.obligations.CreateDefinition(ctx, params)
	require.NoError(t, err)

	require.NoError(t, env.scheduler.HandleReminderFired(ctx, &events.ReminderFired{
		ObligationID: id,
		DueAt:        due,
	}))

	_, ok := env.registry.Lookup(ctx, id)
	assert.False(t, ok)
	pending, err := env.platform.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
