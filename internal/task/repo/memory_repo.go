package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
)

// MemoryRepo keeps tasks in process for STORAGE=memory and tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	tasks map[int64]entity.Task
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{tasks: make(map[int64]entity.Task)}
}

func (r *MemoryRepo) Create(_ context.Context, t *entity.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = *t
	return nil
}

func (r *MemoryRepo) List(_ context.Context, userID int64, f entity.Filter) ([]entity.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(f.Search)
	out := []entity.Task{}
	for _, t := range r.tasks {
		if t.UserID != userID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if needle != "" && !matches(t, needle) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) Get(_ context.Context, id, userID int64) (*entity.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *MemoryRepo) Update(_ context.Context, t *entity.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tasks[t.ID]
	if !ok || cur.UserID != t.UserID {
		return ErrNotFound
	}
	r.tasks[t.ID] = *t
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, id, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

func matches(t entity.Task, needle string) bool {
	if strings.Contains(strings.ToLower(t.Title), needle) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), needle)
}
