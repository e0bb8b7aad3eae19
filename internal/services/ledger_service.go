// Package services holds the billing core's business logic: balance reads,
// the obligation lifecycle, the due sweep, and reminder scheduling.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/core"
	"tally/internal/storage"
)

// LedgerService is the read/write surface for realized ledger entries.
// Balances are always derived from the full transaction history; nothing is
// cached.
type LedgerService struct {
	store *storage.Repository
}

func NewLedgerService(store *storage.Repository) *LedgerService {
	return &LedgerService{store: store}
}

// Balance returns the account's spendable balance:
// base_balance + sum(income) - sum(expense) over non-excluded transactions.
func (s *LedgerService) Balance(ctx context.Context, accountID string) (core.Money, error) {
	balance, err := s.store.Balance(ctx, accountID)
	if err != nil {
		return core.Money{}, fmt.Errorf("balance for account %s: %w", accountID, err)
	}
	return balance, nil
}

// CreateAccount registers a new account with its starting base balance.
func (s *LedgerService) CreateAccount(ctx context.Context, account core.Account) (string, error) {
	id, err := s.store.CreateAccount(ctx, account)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account created",
		"account_id", id,
		"name", account.Name,
		"base_balance_cents", account.BaseBalance.Cents)
	return id, nil
}

// GetAccount fetches an account by id.
func (s *LedgerService) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// SetBaseBalance resets the account's starting balance. Derived balances
// pick the change up on the next read.
func (s *LedgerService) SetBaseBalance(ctx context.Context, id string, cents int64) error {
	if err := s.store.SetBaseBalance(ctx, id, cents); err != nil {
		return fmt.Errorf("set base balance: %w", err)
	}
	slog.InfoContext(ctx, "Base balance updated",
		"account_id", id,
		"base_balance_cents", cents)
	return nil
}

// RecordTransaction stores a plain user-entered ledger entry. Recurring
// definitions go through the obligation service instead.
func (s *LedgerService) RecordTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if t.IsRecurring {
		return "", fmt.Errorf("recurring definitions must be created via the obligation service")
	}
	id, err := s.store.InsertTransaction(ctx, t)
	if err != nil {
		return "", fmt.Errorf("record transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction recorded",
		"transaction_id", id,
		"account_id", t.AccountID,
		"amount_cents", t.Amount.Cents,
		"direction", string(t.Direction))
	return id, nil
}

// ListTransactions returns an account's realized entries, oldest first.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, accountID)
}
