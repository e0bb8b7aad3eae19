package notify

import (
	"context"
	"testing"
	"time"

	"tally/internal/events"
)

func TestLocalPlatformFiresAndRearms(t *testing.T) {
	pub := events.NewMemoryPublisher()
	p := NewLocalPlatform(pub)
	defer p.Close()
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour)
	id, err := p.Schedule(ctx, Trigger{Kind: TriggerInterval, At: time.Now().Add(20 * time.Millisecond), Every: time.Hour}, Payload{
		ObligationID: "obl-1",
		DueAt:        due,
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(pub.Fired()) == 0 {
		select {
		case <-deadline:
			t.Fatal("reminder never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	fired := pub.Fired()[0]
	if fired.ObligationID != "obl-1" || fired.NotificationID != id {
		t.Errorf("fired event = %+v, want obligation obl-1 / notification %s", fired, id)
	}
	if !fired.DueAt.Equal(due) {
		t.Errorf("fired due_at = %v, want %v", fired.DueAt, due)
	}

	// A repeating trigger stays pending after firing.
	pending, err := p.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Pending() after fire = %d entries, want 1 (re-armed)", len(pending))
	}
}

func TestLocalPlatformCancelStopsFiring(t *testing.T) {
	pub := events.NewMemoryPublisher()
	p := NewLocalPlatform(pub)
	defer p.Close()
	ctx := context.Background()

	id, err := p.Schedule(ctx, Trigger{Kind: TriggerInterval, At: time.Now().Add(50 * time.Millisecond), Every: time.Hour}, Payload{
		ObligationID: "obl-2",
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := p.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if got := pub.Fired(); len(got) != 0 {
		t.Errorf("cancelled notification still fired: %v", got)
	}
}
