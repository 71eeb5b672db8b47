package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskRunsUntilStopped(t *testing.T) {
	s := New()
	var runs atomic.Int32
	s.Add(Task{
		Name:     "count",
		Interval: 2 * time.Millisecond,
		Run:      func(ctx context.Context) { runs.Add(1) },
	})
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)

	s.Stop()
	after := runs.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no run may start after Stop returns")
}

func TestStopIsIdempotent(t *testing.T) {
	s := New()
	s.Stop()
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	s := New()
	var active, peak atomic.Int32
	s.Add(Task{
		Name:     "slow",
		Interval: time.Millisecond,
		Run: func(ctx context.Context) {
			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
		},
	})
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), peak.Load())
}

func TestRunAtStart(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 1)
	s.Add(Task{
		Name:       "boot",
		Interval:   time.Hour,
		RunAtStart: true,
		Run: func(ctx context.Context) {
			select {
			case ran <- struct{}{}:
			default:
			}
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run at start")
	}
}

func TestPanickingTaskKeepsTicking(t *testing.T) {
	s := New()
	var runs atomic.Int32
	s.Add(Task{
		Name:     "panics",
		Interval: time.Millisecond,
		Run: func(ctx context.Context) {
			runs.Add(1)
			panic("bad tick")
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
}
