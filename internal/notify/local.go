package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/events"
)

// LocalPlatform arms notifications on in-process timers. When one fires it
// publishes a ReminderFired event to the broker and re-arms itself for the
// trigger's next occurrence; delivery to the device is the notifier
// worker's job.
type LocalPlatform struct {
	mu        sync.Mutex
	publisher events.Publisher
	armed     map[string]*armedNotification
	closed    bool
}

type armedNotification struct {
	entry Scheduled
	timer *time.Timer
}

func NewLocalPlatform(publisher events.Publisher) *LocalPlatform {
	return &LocalPlatform{
		publisher: publisher,
		armed:     make(map[string]*armedNotification),
	}
}

func (p *LocalPlatform) Schedule(_ context.Context, trigger Trigger, payload Payload) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", context.Canceled
	}

	id := uuid.NewString()
	entry := Scheduled{ID: id, Trigger: trigger, Payload: payload}
	p.armLocked(entry, time.Now())
	return id, nil
}

// armLocked arms the timer for the next fire after now. Callers hold p.mu.
func (p *LocalPlatform) armLocked(entry Scheduled, now time.Time) {
	next := entry.Trigger.Next(now)
	if next.IsZero() {
		slog.Warn("Refusing to arm degenerate trigger",
			"notification_id", entry.ID,
			"obligation_id", entry.Payload.ObligationID)
		return
	}
	p.armed[entry.ID] = &armedNotification{
		entry: entry,
		timer: time.AfterFunc(time.Until(next), func() { p.fire(entry.ID) }),
	}
}

func (p *LocalPlatform) fire(id string) {
	p.mu.Lock()
	armed, ok := p.armed[id]
	if !ok || p.closed {
		p.mu.Unlock()
		return
	}
	entry := armed.entry
	// Re-arm for the next occurrence before publishing, so a slow broker
	// cannot make the schedule skip.
	p.armLocked(entry, time.Now())
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.publisher.PublishReminderFired(ctx, events.ReminderFired{
		ObligationID:   entry.Payload.ObligationID,
		NotificationID: entry.ID,
		DueAt:          entry.Payload.DueAt,
		Timestamp:      time.Now(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish reminder fired event",
			"notification_id", entry.ID,
			"obligation_id", entry.Payload.ObligationID,
			"error", err)
	}
}

func (p *LocalPlatform) Cancel(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if armed, ok := p.armed[id]; ok {
		armed.timer.Stop()
		delete(p.armed, id)
	}
	return nil
}

func (p *LocalPlatform) Pending(_ context.Context) ([]Scheduled, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Scheduled, 0, len(p.armed))
	for _, armed := range p.armed {
		out = append(out, armed.entry)
	}
	return out, nil
}

// Close stops all timers. The platform cannot be reused afterwards.
func (p *LocalPlatform) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, armed := range p.armed {
		armed.timer.Stop()
		delete(p.armed, id)
	}
}

var _ Platform = (*LocalPlatform)(nil)
var _ Platform = (*MemoryPlatform)(nil)
