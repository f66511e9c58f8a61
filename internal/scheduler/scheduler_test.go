package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store"
)

type fakeStore struct {
	mu      sync.Mutex
	tasks   map[int64]*photo.ScheduledTask
	nextID  int64
	claimed []int64
	reaped  int
	store.Store
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[int64]*photo.ScheduledTask)}
}

func (f *fakeStore) CreateTask(ctx context.Context, t *photo.ScheduledTask) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	if t.Status == "" {
		t.Status = photo.TaskPending
	}
	cp := *t
	f.tasks[t.ID] = &cp
	return t.ID, nil
}

func (f *fakeStore) ClaimDue(ctx context.Context, now time.Time) (*photo.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.Status == photo.TaskPending && !t.ScheduledAt.After(now) {
			t.Status = photo.TaskRunning
			f.claimed = append(f.claimed, t.ID)
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SetTaskStatus(ctx context.Context, id int64, status photo.TaskStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[id]; ok {
		t.Status = status
		t.ErrorMessage = errMsg
	}
	return nil
}

func (f *fakeStore) ListOverdue(ctx context.Context, now time.Time) ([]*photo.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*photo.ScheduledTask
	for _, t := range f.tasks {
		if t.Status == photo.TaskPending && t.ScheduledAt.Before(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPending(ctx context.Context) ([]*photo.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*photo.ScheduledTask
	for _, t := range f.tasks {
		if t.Status == photo.TaskPending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ReapStaleRunning(ctx context.Context, staleAfter time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reaped++
	return 0, nil
}

type fakeRunner struct {
	mu  sync.Mutex
	ran []int64
}

func (r *fakeRunner) Run(ctx context.Context, task *photo.ScheduledTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, task.ID)
}

func TestPollOnceClaimsAndRunsDueTask(t *testing.T) {
	s := newFakeStore()
	id, err := s.CreateTask(context.Background(), &photo.ScheduledTask{
		Kind: photo.TaskScan, TargetPath: "/photos", ScheduledAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	sched := New(s, time.Hour, runner)
	sched.pollOnce(context.Background())

	if len(runner.ran) != 1 || runner.ran[0] != id {
		t.Errorf("ran = %v, want [%d]", runner.ran, id)
	}
}

func TestPollOnceIsNoOpWithNoDueTask(t *testing.T) {
	s := newFakeStore()
	runner := &fakeRunner{}
	sched := New(s, time.Hour, runner)
	sched.pollOnce(context.Background())
	if len(runner.ran) != 0 {
		t.Errorf("expected no runs, got %v", runner.ran)
	}
}

func TestPollOnceReturnsClaimedTaskThenNilWhenDrained(t *testing.T) {
	s := newFakeStore()
	id, err := s.CreateTask(context.Background(), &photo.ScheduledTask{
		Kind: photo.TaskScan, TargetPath: "/photos", ScheduledAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	sched := New(s, time.Hour, runner)

	task, err := sched.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if task == nil || task.ID != id {
		t.Fatalf("PollOnce returned %v, want task %d", task, id)
	}

	task, err = sched.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if task != nil {
		t.Errorf("expected nil once every due task is claimed, got %v", task)
	}
}

func TestRunNowIgnoresHoursWindow(t *testing.T) {
	s := newFakeStore()
	start, end := 9, 17
	id, err := s.CreateTask(context.Background(), &photo.ScheduledTask{
		Kind: photo.TaskScan, TargetPath: "/photos",
		ScheduledAt: time.Now().Add(-time.Hour),
		HoursStart:  &start, HoursEnd: &end,
	})
	if err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	sched := New(s, time.Hour, runner)
	if err := sched.RunNow(context.Background(), id); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if len(runner.ran) != 1 || runner.ran[0] != id {
		t.Errorf("ran = %v, want [%d]", runner.ran, id)
	}
	if s.tasks[id].Status != photo.TaskRunning {
		t.Errorf("status = %s, want running", s.tasks[id].Status)
	}
}

func TestCancelPendingTask(t *testing.T) {
	s := newFakeStore()
	id, err := s.CreateTask(context.Background(), &photo.ScheduledTask{Kind: photo.TaskScan, TargetPath: "/photos"})
	if err != nil {
		t.Fatal(err)
	}
	sched := New(s, time.Hour, &fakeRunner{})
	if err := sched.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if s.tasks[id].Status != photo.TaskCancelled {
		t.Errorf("status = %s, want cancelled", s.tasks[id].Status)
	}
}

func TestReapStaleDelegatesToStore(t *testing.T) {
	s := newFakeStore()
	sched := New(s, time.Hour, &fakeRunner{})
	if _, err := sched.ReapStale(context.Background()); err != nil {
		t.Fatalf("ReapStale: %v", err)
	}
	if s.reaped != 1 {
		t.Errorf("reaped = %d, want 1", s.reaped)
	}
}
