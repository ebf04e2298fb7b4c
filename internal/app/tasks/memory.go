package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps tasks in process memory. It is used by tests and by
// local runs with the memory store driver.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]Task
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: map[int64]Task{}}
}

func (r *MemoryRepository) Create(_ context.Context, task Task) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	task.ID = r.nextID
	r.tasks[task.ID] = task.clone()
	return task.clone(), nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return Task{}, &NotFoundError{ID: id}
	}
	return task.clone(), nil
}

func (r *MemoryRepository) List(_ context.Context, filter Filter) ([]Task, error) {
	r.mu.Lock()
	out := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		if filter.Matches(task) {
			out = append(out, task.clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, id int64, changes Changes, now time.Time) (UpdateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return UpdateResult{}, &NotFoundError{ID: id}
	}
	previous := task.clone()
	current := task.clone()
	changes.Apply(&current, now)
	r.tasks[id] = current.clone()
	return UpdateResult{Previous: previous, Current: current}, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error {
	return nil
}
