package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of work the background executor wakes up for while the
// rest of the application is idle.
type Task struct {
	Name        string
	MinInterval time.Duration
	Run         func(ctx context.Context) error
}

// TaskStatus reports a registered task's execution history.
type TaskStatus struct {
	Registered bool
	LastRun    time.Time
	Runs       int
}

// Executor stands in for the platform's background-execution service:
// registered tasks run on their own tickers with no coordination with the
// foreground path beyond whatever throttle the task itself carries.
type Executor struct {
	mu    sync.Mutex
	tasks map[string]*registeredTask
}

type registeredTask struct {
	task    Task
	lastRun time.Time
	runs    int
}

func NewExecutor() *Executor {
	return &Executor{tasks: make(map[string]*registeredTask)}
}

// Register adds a task. Registering a name twice is an error.
func (e *Executor) Register(task Task) error {
	if task.Name == "" || task.Run == nil {
		return fmt.Errorf("background task needs a name and a run function")
	}
	if task.MinInterval <= 0 {
		return fmt.Errorf("background task %s needs a positive interval", task.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tasks[task.Name]; exists {
		return fmt.Errorf("background task %s already registered", task.Name)
	}
	e.tasks[task.Name] = &registeredTask{task: task}
	return nil
}

// Unregister removes a task; unknown names are ignored.
func (e *Executor) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tasks, name)
}

// Status reports whether a task is registered and when it last ran.
func (e *Executor) Status(name string) TaskStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.tasks[name]
	if !ok {
		return TaskStatus{}
	}
	return TaskStatus{Registered: true, LastRun: rt.lastRun, Runs: rt.runs}
}

// Run drives every currently registered task on its own ticker until ctx
// ends. Tasks do not fire at startup; the first wake-up comes one interval
// in. The task set is snapshotted when Run starts: registering after that
// has no effect until the next Run, and Unregister does not stop an
// already-running ticker. Register everything before calling Run.
func (e *Executor) Run(ctx context.Context) error {
	e.mu.Lock()
	snapshot := make([]*registeredTask, 0, len(e.tasks))
	for _, rt := range e.tasks {
		snapshot = append(snapshot, rt)
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, rt := range snapshot {
		wg.Add(1)
		go func(rt *registeredTask) {
			defer wg.Done()
			e.runTask(ctx, rt)
		}(rt)
	}
	wg.Wait()
	return ctx.Err()
}

func (e *Executor) runTask(ctx context.Context, rt *registeredTask) {
	ticker := time.NewTicker(rt.task.MinInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.task.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "Background task failed",
					"task", rt.task.Name, "error", err)
			}
			e.mu.Lock()
			rt.lastRun = time.Now()
			rt.runs++
			e.mu.Unlock()
		}
	}
}
