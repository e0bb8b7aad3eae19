package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryPlatform is an in-memory Platform for tests. Nothing ever fires on
// its own; tests drop or fire notifications explicitly to simulate the
// device acting behind the registry's back.
type MemoryPlatform struct {
	mu        sync.Mutex
	scheduled map[string]Scheduled
	cancelled []string
}

func NewMemoryPlatform() *MemoryPlatform {
	return &MemoryPlatform{scheduled: make(map[string]Scheduled)}
}

func (p *MemoryPlatform) Schedule(_ context.Context, trigger Trigger, payload Payload) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.scheduled[id] = Scheduled{ID: id, Trigger: trigger, Payload: payload}
	return id, nil
}

func (p *MemoryPlatform) Cancel(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.scheduled, id)
	p.cancelled = append(p.cancelled, id)
	return nil
}

func (p *MemoryPlatform) Pending(_ context.Context) ([]Scheduled, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Scheduled, 0, len(p.scheduled))
	for _, s := range p.scheduled {
		out = append(out, s)
	}
	return out, nil
}

// Fire removes the notification as the platform would after delivery, and
// returns what was delivered.
func (p *MemoryPlatform) Fire(id string) (Scheduled, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scheduled[id]
	if !ok {
		return Scheduled{}, fmt.Errorf("notification %s not scheduled", id)
	}
	delete(p.scheduled, id)
	return s, nil
}

// Get looks up an armed notification by id.
func (p *MemoryPlatform) Get(id string) (Scheduled, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scheduled[id]
	return s, ok
}

// Cancelled lists the ids cancelled so far, in order.
func (p *MemoryPlatform) Cancelled() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.cancelled))
	copy(out, p.cancelled)
	return out
}
