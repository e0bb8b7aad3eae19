package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tally/internal/clock"
	"tally/internal/core"
	"tally/internal/events"
	"tally/internal/notify"
	"tally/internal/storage"
)

// testEnv wires the billing core against a real temp-file SQLite store, the
// in-memory notification platform, and the in-memory event publisher.
type testEnv struct {
	store       *storage.Repository
	platform    *notify.MemoryPlatform
	publisher   *events.MemoryPublisher
	registry    *Registry
	scheduler   *ReminderScheduler
	obligations *ObligationService
	processor   *BillingProcessor
	ledger      *LedgerService
	clk         *clock.Fake
	accountID   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewRepository(filepath.Join(t.TempDir(), "tally.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	platform := notify.NewMemoryPlatform()
	publisher := events.NewMemoryPublisher()
	registry := NewRegistry(store.KV(), platform)
	scheduler := NewReminderScheduler(store, platform, registry, 24*time.Hour)
	clk := clock.NewFake(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	obligations := NewObligationService(store, scheduler, publisher, clk)
	processor := NewBillingProcessor(store, obligations)
	ledger := NewLedgerService(store)

	accountID, err := store.CreateAccount(context.Background(), core.Account{
		Name:        "Checking",
		BaseBalance: core.Money{Cents: 100000},
	})
	require.NoError(t, err)

	return &testEnv{
		store:       store,
		platform:    platform,
		publisher:   publisher,
		registry:    registry,
		scheduler:   scheduler,
		obligations: obligations,
		processor:   processor,
		ledger:      ledger,
		clk:         clk,
		accountID:   accountID,
	}
}

func (e *testEnv) weeklyParams(firstDue time.Time) DefinitionParams {
	return DefinitionParams{
		AccountID:     e.accountID,
		AmountCents:   20000,
		Direction:     core.Expense,
		Note:          "gym membership",
		Frequency:     core.Weekly,
		FirstDueAt:    firstDue,
		NotifyEnabled: true,
	}
}
