package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// scheduler owns one background task per running experiment. The task
// drives periodic recomputation and fires the completion deadline. A
// task is cancelled exactly once, when the experiment leaves running;
// after cancellation no scheduled work can touch the sealed result.
type scheduler struct {
	mu    sync.Mutex
	tasks map[string]*task
	log   *zap.Logger
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newScheduler(log *zap.Logger) *scheduler {
	return &scheduler{
		tasks: make(map[string]*task),
		log:   log,
	}
}

// start launches the recompute/complete loop for an experiment. tick
// runs on every cadence interval and returns true when the experiment
// should stop early; complete runs once the end time elapses. Starting
// an already-scheduled experiment is a no-op.
func (s *scheduler) start(id string, endsAt time.Time, cadence time.Duration, tick func(context.Context) bool, complete func(context.Context)) {
	s.mu.Lock()
	if _, ok := s.tasks[id]; ok {
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[id] = t
	s.mu.Unlock()

	s.log.Debug("scheduling experiment",
		zap.String("experiment_id", id),
		zap.Time("ends_at", endsAt),
		zap.Duration("cadence", cadence),
	)

	go s.run(ctx, t, id, endsAt, cadence, tick, complete)
}

func (s *scheduler) run(ctx context.Context, t *task, id string, endsAt time.Time, cadence time.Duration, tick func(context.Context) bool, complete func(context.Context)) {
	defer close(t.done)

	remaining := time.Until(endsAt)
	if remaining <= 0 {
		// Deadline already passed, e.g. rehydrating after downtime.
		complete(ctx)
		return
	}

	deadline := time.NewTimer(remaining)
	defer deadline.Stop()
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if tick(ctx) {
				return
			}
		case <-deadline.C:
			complete(ctx)
			return
		}
	}
}

// stop cancels the task for an experiment, if any. Safe to call from
// inside the task's own callbacks and safe to call repeatedly.
func (s *scheduler) stop(id string) {
	s.mu.Lock()
	t := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()

	if t != nil {
		t.cancel()
	}
}

// stopAll cancels every task and waits for the loops to exit.
func (s *scheduler) stopAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for id, t := range s.tasks {
		tasks = append(tasks, t)
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
		<-t.done
	}
}
