package events

import (
	"context"
	"sync"
)

// NopPublisher discards all events. It stands in for the AMQP client when
// the broker is unreachable or disabled.
type NopPublisher struct{}

func (NopPublisher) PublishObligationMaterialized(context.Context, ObligationMaterialized) error {
	return nil
}

func (NopPublisher) PublishReminderFired(context.Context, ReminderFired) error {
	return nil
}

// MemoryPublisher collects events in memory. Tests use it in place of the
// AMQP client.
type MemoryPublisher struct {
	mu           sync.Mutex
	materialized []ObligationMaterialized
	fired        []ReminderFired
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) PublishObligationMaterialized(_ context.Context, ev ObligationMaterialized) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.materialized = append(p.materialized, ev)
	return nil
}

func (p *MemoryPublisher) PublishReminderFired(_ context.Context, ev ReminderFired) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fired = append(p.fired, ev)
	return nil
}

// Materialized returns a copy of the collected payment events.
func (p *MemoryPublisher) Materialized() []ObligationMaterialized {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ObligationMaterialized, len(p.materialized))
	copy(out, p.materialized)
	return out
}

// Fired returns a copy of the collected reminder events.
func (p *MemoryPublisher) Fired() []ReminderFired {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ReminderFired, len(p.fired))
	copy(out, p.fired)
	return out
}
