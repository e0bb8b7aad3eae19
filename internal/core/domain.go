package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

type (
	// Direction tells whether a transaction adds to or subtracts from an
	// account's balance.
	Direction string

	// Frequency is the repetition cadence of a recurring obligation.
	Frequency string

	Money struct {
		Cents int64
	}

	// Transaction is the single ledger entity. Realized entries and
	// recurring obligation definitions share it; IsRecurring discriminates.
	// A definition always carries ExcludedFromBalance=true and never counts
	// toward a balance; only materialized occurrences do.
	Transaction struct {
		ID         string
		AccountID  string
		Amount     Money
		Direction  Direction
		CategoryID string
		Note       string
		Timestamp  time.Time

		// Recurrence fields, meaningful only when IsRecurring is set.
		IsRecurring         bool
		Frequency           Frequency
		NextDueAt           time.Time
		EndAt               time.Time // zero means no cutoff
		ExcludedFromBalance bool
		NotifyEnabled       bool
		Ended               bool
	}

	Account struct {
		ID          string
		Name        string
		BaseBalance Money
	}

	// ReminderRecord links an obligation to its currently scheduled
	// platform notification. One record per obligation; a new record
	// supersedes the prior one.
	ReminderRecord struct {
		ObligationID   string    `json:"obligation_id"`
		NotificationID string    `json:"notification_id"`
		DueAt          time.Time `json:"due_at"`
		ScheduledAt    time.Time `json:"scheduled_at"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrEmptyAccount     = errors.New("empty account id")
	ErrEmptyName        = errors.New("empty name")
	ErrZeroDueDate      = errors.New("due date cannot be zero")
	ErrEndBeforeDue     = errors.New("end date must not precede the first due date")
)

func (d Direction) Validate() error {
	switch d {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidDirection
	}
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrEmptyAccount
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Direction.Validate(); err != nil {
		return err
	}
	if len(t.Note) > 200 {
		return errors.New("note too long (max 200 characters)")
	}
	if !t.IsRecurring {
		return nil
	}
	return t.validateRecurrence()
}

func (t Transaction) validateRecurrence() error {
	if err := t.Frequency.Validate(); err != nil {
		return err
	}
	if t.NextDueAt.IsZero() {
		return ErrZeroDueDate
	}
	if !t.EndAt.IsZero() && t.EndAt.Before(t.NextDueAt) {
		return ErrEndBeforeDue
	}
	if !t.ExcludedFromBalance {
		return errors.New("recurring definition must be excluded from balance")
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if a.BaseBalance.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Signed returns the balance contribution of the transaction in cents:
// positive for income, negative for expense. Excluded rows contribute zero.
func (t Transaction) Signed() int64 {
	if t.ExcludedFromBalance {
		return 0
	}
	if t.Direction == Expense {
		return -t.Amount.Cents
	}
	return t.Amount.Cents
}
