package executor

import (
	"sync"
	"time"

	"github.com/clepho/clepho/internal/photo"
)

// Status is a snapshot of one in-flight task, safe to copy and hand to
// the UI thread; it carries no lock or channel.
type Status struct {
	TaskID     int64
	Kind       photo.TaskKind
	TargetPath string
	StartedAt  time.Time
	Processed  int
	Total      int
}

// taskHandle is the live, mutable side of a running task: the fields
// the executing goroutine updates and the cancel func the UI can call.
// Never copied; every field is read and written under the handle's own
// mutex.
type taskHandle struct {
	mu     sync.Mutex
	status Status
	cancel func()
}

func (h *taskHandle) setCancel(cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancel = cancel
}

func (h *taskHandle) setTotal(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Total = n
}

func (h *taskHandle) incProcessed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Processed++
}

func (h *taskHandle) snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// RunningTasks is the shared registry TaskExecutor's Run populates and
// the UI polls; per the "no global mutable state" guidance it is owned
// by one Executor instance and handed out by reference, never a
// package-level singleton.
type RunningTasks struct {
	mu    sync.Mutex
	tasks map[int64]*taskHandle
}

func NewRunningTasks() *RunningTasks {
	return &RunningTasks{tasks: make(map[int64]*taskHandle)}
}

func (r *RunningTasks) register(task *photo.ScheduledTask) *taskHandle {
	h := &taskHandle{status: Status{
		TaskID:     task.ID,
		Kind:       task.Kind,
		TargetPath: task.TargetPath,
		StartedAt:  time.Now(),
	}}
	r.mu.Lock()
	r.tasks[task.ID] = h
	r.mu.Unlock()
	return h
}

func (r *RunningTasks) unregister(taskID int64) {
	r.mu.Lock()
	delete(r.tasks, taskID)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of every running task's status,
// ordered by start time, for the UI's progress surface.
func (r *RunningTasks) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.tasks))
	for _, h := range r.tasks {
		out = append(out, h.snapshot())
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartedAt.Before(out[j-1].StartedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Cancel requests the given task's running operation stop at its next
// file boundary. Returns false if the task isn't currently running.
func (r *RunningTasks) Cancel(taskID int64) bool {
	r.mu.Lock()
	h, ok := r.tasks[taskID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}
