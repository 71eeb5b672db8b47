package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one periodic job. A run that is still in progress when the next
// tick fires is skipped, never stacked.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
	// RunAtStart runs the job once immediately instead of waiting a full interval.
	RunAtStart bool
}

type job struct {
	task    Task
	running atomic.Bool
}

// Scheduler runs each task on its own ticker.
type Scheduler struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	jobs    []*job
	started bool
}

func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a task. Tasks added after Start begin immediately.
func (s *Scheduler) Add(t Task) {
	if t.Interval <= 0 || t.Run == nil {
		slog.Warn("Ignoring periodic task with no interval or body",
			slog.String("type", "sys"),
			slog.String("task", t.Name))
		return
	}

	j := &job{task: t}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
	if s.started {
		s.launch(s.ctx, j)
	}
}

// Start launches every registered task. Calling it twice is a no-op.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.ctx = ctx
	s.cancel = cancel
	s.started = true

	for _, j := range s.jobs {
		s.launch(ctx, j)
	}
}

func (s *Scheduler) launch(ctx context.Context, j *job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if j.task.RunAtStart {
			s.fire(ctx, j)
		}

		ticker := time.NewTicker(j.task.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.fire(ctx, j)
			}
		}
	}()
}

func (s *Scheduler) fire(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		slog.Debug("Periodic task still running, skipping tick",
			slog.String("type", "sys"),
			slog.String("task", j.task.Name))
		return
	}
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Periodic task panicked",
				slog.String("type", "error"),
				slog.String("task", j.task.Name),
				slog.Any("panic", r))
		}
	}()

	j.task.Run(ctx)
}

// Stop cancels every task and waits for the ticker goroutines to exit. No
// new run starts after Stop returns. Safe to call more than once or before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}
