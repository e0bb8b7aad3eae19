// Package storage persists the ledger in SQLite. Realized entries and
// recurring obligation definitions live in one transactions table; account
// balances are always derived, never stored.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tally/internal/core"
)

// ErrNotFound is returned when the requested account, transaction, or
// definition does not exist.
var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single writer; SQLite gains nothing from more connections here.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// KV returns the key-value store sharing this repository's database.
func (r *Repository) KV() *KV {
	return &KV{db: r.db}
}

// timeLayout is RFC 3339 with the nanoseconds padded to full width.
// RFC3339Nano trims trailing zeros, so its strings do not sort in timestamp
// order ("00:00:00.5Z" < "00:00:00Z") and range queries over next_due_at
// would skip sub-second due times. Fixed-width text keeps string comparison
// equal to time comparison.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// fmtTime stores instants as UTC fixed-width text; the zero time becomes
// the empty string so optional dates stay comparable with plain SQL
// equality.
func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// CreateAccount stores the account and returns its id, generating one when
// absent.
func (r *Repository) CreateAccount(ctx context.Context, a core.Account) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := fmtTime(time.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, base_balance_cents, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.BaseBalance.Cents, now, now)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	return a.ID, nil
}

func (r *Repository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	var a core.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, base_balance_cents FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.BaseBalance.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// SetBaseBalance is the explicit user-rebalancing hook; nothing in the
// billing core calls it.
func (r *Repository) SetBaseBalance(ctx context.Context, id string, cents int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET base_balance_cents = ?, updated_at = ? WHERE id = ?`,
		cents, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set base balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set base balance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

// Balance derives the account's spendable balance in a single aggregate:
// base_balance + sum(income) - sum(expense) over non-excluded rows. There is
// no cached balance column; every read recomputes from the full history.
func (r *Repository) Balance(ctx context.Context, accountID string) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT a.base_balance_cents + COALESCE(SUM(
		        CASE t.direction WHEN 'income' THEN t.amount_cents ELSE -t.amount_cents END), 0)
		 FROM accounts a
		 LEFT JOIN transactions t
		   ON t.account_id = a.id AND t.excluded_from_balance = 0
		 WHERE a.id = ?
		 GROUP BY a.id`, accountID).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("compute balance: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// InsertTransaction stores a realized entry or a recurring definition,
// returning the (possibly generated) id.
func (r *Repository) InsertTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := fmtTime(time.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, account_id, amount_cents, direction, category_id, note, ts,
		  is_recurring, frequency, next_due_at, end_at,
		  excluded_from_balance, notify_enabled, ended, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, t.Amount.Cents, string(t.Direction), t.CategoryID, t.Note,
		fmtTime(t.Timestamp), boolInt(t.IsRecurring), string(t.Frequency),
		fmtTime(t.NextDueAt), fmtTime(t.EndAt),
		boolInt(t.ExcludedFromBalance), boolInt(t.NotifyEnabled), boolInt(t.Ended),
		now, now)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return t.ID, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectTransaction+` WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns the realized (non-template) entries of an
// account, oldest first.
func (r *Repository) ListTransactions(ctx context.Context, accountID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		selectTransaction+` WHERE account_id = ? AND is_recurring = 0 ORDER BY ts, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// GetDefinition fetches a recurring definition; a realized entry's id yields
// ErrNotFound.
func (r *Repository) GetDefinition(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectTransaction+` WHERE id = ? AND is_recurring = 1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("definition %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get definition: %w", err)
	}
	return t, nil
}

// ListDefinitions returns all recurring definitions that have not ended,
// ordered by next due date.
func (r *Repository) ListDefinitions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		selectTransaction+` WHERE is_recurring = 1 AND ended = 0 ORDER BY next_due_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// DueDefinitions returns active definitions whose next due date falls inside
// [from, to].
func (r *Repository) DueDefinitions(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		selectTransaction+
			` WHERE is_recurring = 1 AND ended = 0
			    AND next_due_at <> '' AND next_due_at >= ? AND next_due_at <= ?
			  ORDER BY next_due_at, id`,
		fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, fmt.Errorf("due definitions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// UpdateDefinition rewrites the mutable fields of a definition.
func (r *Repository) UpdateDefinition(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET
		   amount_cents = ?, direction = ?, category_id = ?, note = ?,
		   frequency = ?, next_due_at = ?, end_at = ?,
		   notify_enabled = ?, ended = ?, updated_at = ?
		 WHERE id = ? AND is_recurring = 1`,
		t.Amount.Cents, string(t.Direction), t.CategoryID, t.Note,
		string(t.Frequency), fmtTime(t.NextDueAt), fmtTime(t.EndAt),
		boolInt(t.NotifyEnabled), boolInt(t.Ended), fmtTime(time.Now()), t.ID)
	if err != nil {
		return fmt.Errorf("update definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update definition: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("definition %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteDefinition(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND is_recurring = 1`, id)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("definition %s: %w", id, ErrNotFound)
	}
	return nil
}

// AdvanceDefinition moves a definition's schedule from fromDue to nextDue,
// marking it ended when the cutoff has passed. The WHERE clause on the
// current due date makes the advance conditional: when two sweeps race over
// the same definition, only one matches and the other reports false.
func (r *Repository) AdvanceDefinition(ctx context.Context, id string, fromDue, nextDue time.Time, ended bool) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET next_due_at = ?, ended = ?, updated_at = ?
		 WHERE id = ? AND is_recurring = 1 AND next_due_at = ?`,
		fmtTime(nextDue), boolInt(ended), fmtTime(time.Now()), id, fmtTime(fromDue))
	if err != nil {
		return false, fmt.Errorf("advance definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance definition: %w", err)
	}
	if n == 0 {
		slog.DebugContext(ctx, "Definition advance matched no row",
			"id", id, "from_due", fromDue)
		return false, nil
	}
	return true, nil
}

const selectTransaction = `
	SELECT id, account_id, amount_cents, direction, category_id, note, ts,
	       is_recurring, frequency, next_due_at, end_at,
	       excluded_from_balance, notify_enabled, ended
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                            core.Transaction
		direction, frequency         string
		ts, nextDue, endAt           string
		isRecurring, excluded        int
		notifyEnabled, ended         int
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.Amount.Cents, &direction, &t.CategoryID,
		&t.Note, &ts, &isRecurring, &frequency, &nextDue, &endAt,
		&excluded, &notifyEnabled, &ended)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Direction = core.Direction(direction)
	t.Frequency = core.Frequency(frequency)
	t.IsRecurring = isRecurring != 0
	t.ExcludedFromBalance = excluded != 0
	t.NotifyEnabled = notifyEnabled != 0
	t.Ended = ended != 0
	if t.Timestamp, err = parseTime(ts); err != nil {
		return core.Transaction{}, fmt.Errorf("parse timestamp: %w", err)
	}
	if t.NextDueAt, err = parseTime(nextDue); err != nil {
		return core.Transaction{}, fmt.Errorf("parse next_due_at: %w", err)
	}
	if t.EndAt, err = parseTime(endAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse end_at: %w", err)
	}
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
