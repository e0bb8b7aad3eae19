// Package events carries the billing core's outbound notifications over the
// message broker. Platform listener callbacks ("payment recorded", "reminder
// fired") become broker events so the core never registers platform-specific
// listeners directly.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// ObligationMaterialized announces that a due obligation was converted into
// a real ledger entry.
type ObligationMaterialized struct {
	ObligationID string    `json:"obligation_id"`
	OccurrenceID string    `json:"occurrence_id"`
	AccountID    string    `json:"account_id"`
	AmountCents  int64     `json:"amount_cents"`
	Direction    string    `json:"direction"`
	DueAt        time.Time `json:"due_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// ReminderFired announces that the notification platform delivered (or the
// user interacted with) a scheduled reminder.
type ReminderFired struct {
	ObligationID   string    `json:"obligation_id"`
	NotificationID string    `json:"notification_id"`
	DueAt          time.Time `json:"due_at"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher is the send side of the event channel.
type Publisher interface {
	PublishObligationMaterialized(ctx context.Context, ev ObligationMaterialized) error
	PublishReminderFired(ctx context.Context, ev ReminderFired) error
}

func (ev *ObligationMaterialized) ToJSON() ([]byte, error) {
	return json.Marshal(ev)
}

func ObligationMaterializedFromJSON(data []byte) (*ObligationMaterialized, error) {
	var ev ObligationMaterialized
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (ev *ReminderFired) ToJSON() ([]byte, error) {
	return json.Marshal(ev)
}

func ReminderFiredFromJSON(data []byte) (*ReminderFired, error) {
	var ev ReminderFired
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
