package core

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextAfter(t *testing.T) {
	tests := []struct {
		name string
		freq Frequency
		from time.Time
		want time.Time
	}{
		{
			name: "daily adds one day",
			freq: Daily,
			from: date(2024, 1, 15),
			want: date(2024, 1, 16),
		},
		{
			name: "daily across month boundary",
			freq: Daily,
			from: date(2024, 1, 31),
			want: date(2024, 2, 1),
		},
		{
			name: "weekly adds seven days",
			freq: Weekly,
			from: date(2024, 1, 15),
			want: date(2024, 1, 22),
		},
		{
			name: "monthly mid-month",
			freq: Monthly,
			from: date(2024, 3, 15),
			want: date(2024, 4, 15),
		},
		{
			// Unclamped calendar arithmetic: Jan 31 + 1 month normalizes
			// through Feb 31 into March, it does not clamp to Feb 28/29.
			name: "monthly from Jan 31 in a common year lands on Mar 3",
			freq: Monthly,
			from: date(2025, 1, 31),
			want: date(2025, 3, 3),
		},
		{
			name: "monthly from Jan 31 in a leap year lands on Mar 2",
			freq: Monthly,
			from: date(2024, 1, 31),
			want: date(2024, 3, 2),
		},
		{
			name: "monthly from Mar 31 lands on May 1",
			freq: Monthly,
			from: date(2025, 3, 31),
			want: date(2025, 5, 1),
		},
		{
			name: "yearly",
			freq: Yearly,
			from: date(2024, 6, 1),
			want: date(2025, 6, 1),
		},
		{
			name: "yearly from leap day lands on Mar 1",
			freq: Yearly,
			from: date(2024, 2, 29),
			want: date(2025, 3, 1),
		},
		{
			name: "unknown frequency leaves the date unchanged",
			freq: Frequency("biweekly"),
			from: date(2024, 1, 15),
			want: date(2024, 1, 15),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextAfter(tt.freq, tt.from)
			if !got.Equal(tt.want) {
				t.Errorf("NextAfter(%s, %v) = %v, want %v", tt.freq, tt.from, got, tt.want)
			}
		})
	}
}

func TestNextAfterPreservesTimeOfDay(t *testing.T) {
	from := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	got := NextAfter(Monthly, from)
	want := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextAfter(monthly) = %v, want %v", got, want)
	}
}

func TestDueWindow(t *testing.T) {
	asOf := time.Date(2024, 7, 4, 13, 45, 12, 999, time.UTC)
	from, to := DueWindow(asOf)

	if !from.Equal(date(2024, 7, 4)) {
		t.Errorf("window start = %v, want midnight", from)
	}
	if !to.After(asOf) {
		t.Errorf("window end %v should be after asOf %v", to, asOf)
	}
	if !to.Before(date(2024, 7, 5)) {
		t.Errorf("window end %v should be before next midnight", to)
	}
}

func TestEndedBy(t *testing.T) {
	tests := []struct {
		name    string
		nextDue time.Time
		endAt   time.Time
		want    bool
	}{
		{"no cutoff never ends", date(2030, 1, 1), time.Time{}, false},
		{"next due before cutoff", date(2024, 6, 1), date(2024, 12, 31), false},
		{"next due on cutoff still runs", date(2024, 12, 31), date(2024, 12, 31), false},
		{"next due past cutoff ends", date(2025, 1, 1), date(2024, 12, 31), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EndedBy(tt.nextDue, tt.endAt); got != tt.want {
				t.Errorf("EndedBy(%v, %v) = %v, want %v", tt.nextDue, tt.endAt, got, tt.want)
			}
		})
	}
}
