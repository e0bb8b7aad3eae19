package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

// SweepResult aggregates one due sweep for observability.
type SweepResult struct {
	Processed int
	Errors    int
}

// BillingProcessor materializes every obligation due "today" into a real
// ledger entry. Obligations are processed strictly sequentially so per-item
// failures stay isolated and ordering is deterministic; one failure never
// aborts the batch, and nothing is retried within the same sweep.
type BillingProcessor struct {
	store       *storage.Repository
	obligations *ObligationService

	// Serializes sweeps from the foreground monitor and the background
	// executor. The conditional schedule advance in Materialize keeps an
	// overlap from double-charging even across processes.
	mu sync.Mutex
}

func NewBillingProcessor(store *storage.Repository, obligations *ObligationService) *BillingProcessor {
	return &BillingProcessor{store: store, obligations: obligations}
}

// RunDueSweep materializes all definitions due within asOf's day and
// returns how many were processed and how many failed. Running it again for
// the same day with nothing newly due processes zero more.
func (p *BillingProcessor) RunDueSweep(ctx context.Context, asOf time.Time) (SweepResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	from, to := core.DueWindow(asOf)
	due, err := p.store.DueDefinitions(ctx, from, to)
	if err != nil {
		return SweepResult{}, err
	}

	slog.InfoContext(ctx, "Due sweep started",
		"as_of", asOf.Format("2006-01-02"),
		"due", len(due))

	var result SweepResult
	for _, def := range due {
		_, err := p.obligations.Materialize(ctx, def, asOf)
		if errors.Is(err, ErrAlreadyMaterialized) {
			// Another trigger path claimed it between the query and
			// the advance; nothing was charged twice.
			slog.InfoContext(ctx, "Skipping already materialized obligation",
				"obligation_id", def.ID,
				"due_at", def.NextDueAt)
			continue
		}
		if err != nil {
			result.Errors++
			slog.ErrorContext(ctx, "Failed to materialize due obligation",
				"obligation_id", def.ID,
				"due_at", def.NextDueAt,
				"error", err)
			continue
		}
		result.Processed++
	}

	slog.InfoContext(ctx, "Due sweep complete",
		"as_of", asOf.Format("2006-01-02"),
		"processed", result.Processed,
		"errors", result.Errors)
	return result, nil
}
