package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRegisterValidation(t *testing.T) {
	e := NewExecutor()
	noop := func(context.Context) error { return nil }

	assert.Error(t, e.Register(Task{MinInterval: time.Hour, Run: noop}))
	assert.Error(t, e.Register(Task{Name: "sweep", MinInterval: time.Hour}))
	assert.Error(t, e.Register(Task{Name: "sweep", Run: noop}))

	require.NoError(t, e.Register(Task{Name: "sweep", MinInterval: time.Hour, Run: noop}))
	assert.Error(t, e.Register(Task{Name: "sweep", MinInterval: time.Hour, Run: noop}))

	assert.True(t, e.Status("sweep").Registered)
	assert.False(t, e.Status("other").Registered)

	e.Unregister("sweep")
	assert.False(t, e.Status("sweep").Registered)
	e.Unregister("sweep") // unknown names are ignored
}

func TestExecutorRunsTaskOnInterval(t *testing.T) {
	e := NewExecutor()
	var runs atomic.Int32
	require.NoError(t, e.Register(Task{
		Name:        "sweep",
		MinInterval: 20 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// No startup fire: the first wake-up comes one interval in.
	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("task ran %d times, want at least 2", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	status := e.Status("sweep")
	assert.True(t, status.Registered)
	assert.GreaterOrEqual(t, status.Runs, 2)
	assert.False(t, status.LastRun.IsZero())
}
