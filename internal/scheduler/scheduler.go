// Package scheduler wraps the Store's durable task queue with a poll
// loop: both the interactive process and the daemon run one of these
// against the same database, and Store.ClaimDue's atomic claim
// guarantees at most one of them executes a given task.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store"
)

// StaleAfter bounds how long a task may sit in "running" before the
// startup janitor assumes its owning process died mid-run and fails it.
const StaleAfter = 30 * time.Minute

// Scheduler polls Store.ClaimDue on an interval and hands each claimed
// task to a Runner.
type Scheduler struct {
	store    store.Store
	interval time.Duration
	runner   Runner
}

// Runner executes a claimed task. TaskExecutor implements this.
type Runner interface {
	Run(ctx context.Context, task *photo.ScheduledTask)
}

func New(s store.Store, interval time.Duration, runner Runner) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{store: s, interval: interval, runner: runner}
}

// Run polls until ctx is cancelled. Call ReapStale once at process
// startup, before Run, to fail any task orphaned by a prior crash.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	_, _ = s.PollOnce(ctx)
}

// PollOnce claims and runs a single due task via Store.ClaimDue —
// the same claim Run's ticker loop uses, which enforces both
// scheduled_at and the directory's hours-of-operation window. It
// returns the task that ran, or nil if nothing was due. Callers that
// need to drain every currently-due task synchronously (clephod
// --once, clepho's catch-up command) loop on this instead of using
// Overdue/RunNow, which bypass the window and are reserved for a
// user's explicit "run now" choice on the overdue surface.
func (s *Scheduler) PollOnce(ctx context.Context) (*photo.ScheduledTask, error) {
	task, err := s.store.ClaimDue(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("scheduler: claim due: %w", err)
	}
	if task == nil {
		return nil, nil
	}
	s.runner.Run(ctx, task)
	return task, nil
}

// ReapStale fails every task still marked running past StaleAfter,
// which only happens when its owning process died before calling
// SetTaskStatus.
func (s *Scheduler) ReapStale(ctx context.Context) (int, error) {
	n, err := s.store.ReapStaleRunning(ctx, StaleAfter)
	if err != nil {
		return 0, fmt.Errorf("scheduler: reap stale tasks: %w", err)
	}
	return n, nil
}

// Overdue returns pending tasks whose scheduled_at is in the past, for
// the UI's startup surface (run now / cancel / dismiss).
func (s *Scheduler) Overdue(ctx context.Context) ([]*photo.ScheduledTask, error) {
	tasks, err := s.store.ListOverdue(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("scheduler: list overdue: %w", err)
	}
	return tasks, nil
}

// RunNow executes a specific overdue task immediately, ignoring its
// hours window — the "run now" option the UI offers on the overdue
// surface. The task must currently be pending.
func (s *Scheduler) RunNow(ctx context.Context, taskID int64) error {
	overdue, err := s.store.ListOverdue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("scheduler: list overdue: %w", err)
	}
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list pending: %w", err)
	}

	var task *photo.ScheduledTask
	for _, candidates := range [][]*photo.ScheduledTask{overdue, pending} {
		for _, t := range candidates {
			if t.ID == taskID {
				task = t
			}
		}
	}
	if task == nil {
		return fmt.Errorf("scheduler: task %d is not pending", taskID)
	}

	if err := s.store.SetTaskStatus(ctx, taskID, photo.TaskRunning, ""); err != nil {
		return fmt.Errorf("scheduler: claim %d: %w", taskID, err)
	}
	task.Status = photo.TaskRunning
	s.runner.Run(ctx, task)
	return nil
}

// Cancel marks a pending task cancelled without running it.
func (s *Scheduler) Cancel(ctx context.Context, taskID int64) error {
	if err := s.store.SetTaskStatus(ctx, taskID, photo.TaskCancelled, ""); err != nil {
		return fmt.Errorf("scheduler: cancel %d: %w", taskID, err)
	}
	return nil
}

// Schedule creates a new task row.
func (s *Scheduler) Schedule(ctx context.Context, t *photo.ScheduledTask) (int64, error) {
	t.Status = photo.TaskPending
	id, err := s.store.CreateTask(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("scheduler: schedule task: %w", err)
	}
	return id, nil
}
