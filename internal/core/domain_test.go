package core

import (
	"errors"
	"testing"
	"time"
)

func validOccurrence() Transaction {
	return Transaction{
		AccountID: "acc-1",
		Amount:    Money{Cents: 1500},
		Direction: Expense,
		Timestamp: date(2024, 3, 1),
	}
}

func validDefinition() Transaction {
	return Transaction{
		AccountID:           "acc-1",
		Amount:              Money{Cents: 20000},
		Direction:           Expense,
		IsRecurring:         true,
		Frequency:           Weekly,
		NextDueAt:           date(2024, 3, 8),
		ExcludedFromBalance: true,
		NotifyEnabled:       true,
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{"valid occurrence", func(_ *Transaction) {}, nil},
		{"missing account", func(tx *Transaction) { tx.AccountID = "  " }, ErrEmptyAccount},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = Money{Cents: -5} }, ErrInvalidAmount},
		{"bad direction", func(tx *Transaction) { tx.Direction = "transfer" }, ErrInvalidDirection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validOccurrence()
			tt.mutate(&tx)
			err := tx.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{"valid definition", func(_ *Transaction) {}, nil},
		{"bad frequency", func(tx *Transaction) { tx.Frequency = "fortnightly" }, ErrInvalidFrequency},
		{"zero due date", func(tx *Transaction) { tx.NextDueAt = time.Time{} }, ErrZeroDueDate},
		{
			"end before first due",
			func(tx *Transaction) { tx.EndAt = tx.NextDueAt.AddDate(0, 0, -1) },
			ErrEndBeforeDue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(&def)
			err := def.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefinitionMustBeExcluded(t *testing.T) {
	def := validDefinition()
	def.ExcludedFromBalance = false
	if err := def.Validate(); err == nil {
		t.Error("Validate() accepted a balance-visible recurring definition")
	}
}

func TestSigned(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want int64
	}{
		{"income adds", Transaction{Amount: Money{Cents: 300}, Direction: Income}, 300},
		{"expense subtracts", Transaction{Amount: Money{Cents: 300}, Direction: Expense}, -300},
		{
			"excluded contributes nothing",
			Transaction{Amount: Money{Cents: 300}, Direction: Expense, ExcludedFromBalance: true},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.Signed(); got != tt.want {
				t.Errorf("Signed() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAccountValidate(t *testing.T) {
	if err := (Account{Name: "Checking"}).Validate(); err != nil {
		t.Errorf("valid account rejected: %v", err)
	}
	if err := (Account{Name: " "}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Errorf("blank name: got %v, want ErrEmptyName", err)
	}
}
