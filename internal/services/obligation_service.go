package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/clock"
	"tally/internal/core"
	"tally/internal/events"
	"tally/internal/storage"
)

// ErrAlreadyMaterialized means another sweep claimed the same due date
// first; the losing caller records nothing.
var ErrAlreadyMaterialized = errors.New("obligation already materialized for this due date")

// DefinitionParams is the user-facing shape for creating or updating a
// recurring obligation definition.
type DefinitionParams struct {
	AccountID     string
	AmountCents   int64
	Direction     core.Direction
	CategoryID    string
	Note          string
	Frequency     core.Frequency
	FirstDueAt    time.Time
	EndAt         time.Time
	NotifyEnabled bool
}

// ObligationService owns the recurring definition lifecycle: CRUD,
// quick-pay, and materialization of due obligations into real ledger
// entries.
type ObligationService struct {
	store     *storage.Repository
	scheduler *ReminderScheduler
	publisher events.Publisher
	clk       clock.Clock
}

func NewObligationService(store *storage.Repository, scheduler *ReminderScheduler, publisher events.Publisher, clk clock.Clock) *ObligationService {
	if clk == nil {
		clk = clock.System{}
	}
	return &ObligationService{
		store:     store,
		scheduler: scheduler,
		publisher: publisher,
		clk:       clk,
	}
}

func (p DefinitionParams) definition() core.Transaction {
	return core.Transaction{
		AccountID:           p.AccountID,
		Amount:              core.Money{Cents: p.AmountCents},
		Direction:           p.Direction,
		CategoryID:          p.CategoryID,
		Note:                p.Note,
		IsRecurring:         true,
		Frequency:           p.Frequency,
		NextDueAt:           p.FirstDueAt,
		EndAt:               p.EndAt,
		ExcludedFromBalance: true,
		NotifyEnabled:       p.NotifyEnabled,
	}
}

// CreateDefinition stores a new Scheduled definition and arms its reminder.
// Storage errors propagate; reminder scheduling is advisory.
func (s *ObligationService) CreateDefinition(ctx context.Context, params DefinitionParams) (string, error) {
	def := params.definition()
	id, err := s.store.InsertTransaction(ctx, def)
	if err != nil {
		return "", fmt.Errorf("create definition: %w", err)
	}
	def.ID = id

	s.scheduler.Schedule(ctx, def)

	slog.InfoContext(ctx, "Obligation definition created",
		"obligation_id", id,
		"account_id", def.AccountID,
		"amount_cents", def.Amount.Cents,
		"frequency", string(def.Frequency),
		"next_due_at", def.NextDueAt)
	return id, nil
}

// UpdateDefinition rewrites a definition and re-arms (or cancels) its
// reminder to match.
func (s *ObligationService) UpdateDefinition(ctx context.Context, id string, params DefinitionParams) error {
	existing, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return err
	}

	def := params.definition()
	def.ID = id
	def.Ended = existing.Ended
	if err := s.store.UpdateDefinition(ctx, def); err != nil {
		return fmt.Errorf("update definition: %w", err)
	}

	s.scheduler.Schedule(ctx, def)

	slog.InfoContext(ctx, "Obligation definition updated",
		"obligation_id", id,
		"next_due_at", def.NextDueAt)
	return nil
}

// DeleteDefinition removes the definition and its reminder.
func (s *ObligationService) DeleteDefinition(ctx context.Context, id string) error {
	if err := s.store.DeleteDefinition(ctx, id); err != nil {
		return err
	}
	s.scheduler.Cancel(ctx, id)
	slog.InfoContext(ctx, "Obligation definition deleted", "obligation_id", id)
	return nil
}

// GetDefinition fetches a single definition.
func (s *ObligationService) GetDefinition(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetDefinition(ctx, id)
}

// ListDefinitions returns all definitions that have not ended.
func (s *ObligationService) ListDefinitions(ctx context.Context) ([]core.Transaction, error) {
	return s.store.ListDefinitions(ctx)
}

// DueToday returns the active definitions due by this instant today: next
// due date in [start of asOf's day, asOf]. Being due is a time predicate,
// not a stored state. The sweep scans the rest of the day too; this read is
// what the UI shows as "due now".
func (s *ObligationService) DueToday(ctx context.Context, asOf time.Time) ([]core.Transaction, error) {
	return s.store.DueDefinitions(ctx, core.StartOfDay(asOf), asOf)
}

// QuickPay materializes an obligation immediately, bypassing the due check.
// The schedule still advances from the stored due date, not from now, so an
// early payment never shifts future due dates.
func (s *ObligationService) QuickPay(ctx context.Context, id string) (string, error) {
	def, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return "", err
	}
	if def.Ended {
		return "", fmt.Errorf("obligation %s has ended", id)
	}

	occurrenceID, err := s.Materialize(ctx, def, s.clk.Now())
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Quick-pay recorded",
		"obligation_id", id,
		"occurrence_id", occurrenceID)
	return occurrenceID, nil
}

// Materialize converts a definition's pending due date into one realized
// ledger entry and advances the schedule by one frequency unit from the
// previous due date.
//
// The schedule advance runs first as a conditional claim on the stored due
// date: of two racing sweeps, exactly one wins and inserts the occurrence,
// the other gets ErrAlreadyMaterialized. The "payment recorded" event and
// the reminder update are advisory side effects and never fail the payment.
func (s *ObligationService) Materialize(ctx context.Context, def core.Transaction, asOf time.Time) (string, error) {
	prevDue := def.NextDueAt
	nextDue := core.NextAfter(def.Frequency, prevDue)
	ended := core.EndedBy(nextDue, def.EndAt)

	claimed, err := s.store.AdvanceDefinition(ctx, def.ID, prevDue, nextDue, ended)
	if err != nil {
		return "", fmt.Errorf("advance schedule for %s: %w", def.ID, err)
	}
	if !claimed {
		return "", fmt.Errorf("obligation %s due %s: %w", def.ID, prevDue.Format(time.RFC3339), ErrAlreadyMaterialized)
	}

	occurrence := core.Transaction{
		AccountID:  def.AccountID,
		Amount:     def.Amount,
		Direction:  def.Direction,
		CategoryID: def.CategoryID,
		Note:       def.Note,
		Timestamp:  asOf,
	}
	occurrenceID, err := s.store.InsertTransaction(ctx, occurrence)
	if err != nil {
		// The claim already advanced the schedule; surface the failure
		// rather than risk a second charge on retry.
		return "", fmt.Errorf("record occurrence for %s: %w", def.ID, err)
	}

	if err := s.publisher.PublishObligationMaterialized(ctx, events.ObligationMaterialized{
		ObligationID: def.ID,
		OccurrenceID: occurrenceID,
		AccountID:    def.AccountID,
		AmountCents:  def.Amount.Cents,
		Direction:    string(def.Direction),
		DueAt:        prevDue,
		Timestamp:    asOf,
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to publish payment recorded event",
			"obligation_id", def.ID,
			"occurrence_id", occurrenceID,
			"error", err)
	}

	if ended {
		s.scheduler.Cancel(ctx, def.ID)
	} else {
		def.NextDueAt = nextDue
		// The registry guard skips the platform round trip when the
		// armed reminder already matches the new due date.
		if s.scheduler.registry.NeedsReschedule(ctx, def.ID, nextDue) {
			s.scheduler.Schedule(ctx, def)
		}
	}

	slog.InfoContext(ctx, "Obligation materialized",
		"obligation_id", def.ID,
		"occurrence_id", occurrenceID,
		"amount_cents", def.Amount.Cents,
		"due_at", prevDue,
		"next_due_at", nextDue,
		"ended", ended)
	return occurrenceID, nil
}
