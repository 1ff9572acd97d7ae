package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
	taskrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/task/repo"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

// Repository is implemented by repo.TaskRepo and repo.MemoryRepo.
type Repository interface {
	Create(ctx context.Context, t *entity.Task) error
	List(ctx context.Context, userID int64, f entity.Filter) ([]entity.Task, error)
	Get(ctx context.Context, id, userID int64) (*entity.Task, error)
	Update(ctx context.Context, t *entity.Task) error
	Delete(ctx context.Context, id, userID int64) error
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidInput = errors.New("invalid input")
)

const maxTitleLen = 200

// TaskService implements task CRUD for a single owner at a time. A task
// owned by someone else is indistinguishable from a missing one.
type TaskService struct {
	repo Repository
	ids  *utilities.IDGenerator
	now  func() time.Time
}

func NewTaskService(r Repository, ids *utilities.IDGenerator) *TaskService {
	return &TaskService{repo: r, ids: ids, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput carries fields for a new task. Status defaults to pending.
type CreateInput struct {
	Title       string        `json:"title"`
	Description *string       `json:"description"`
	Status      entity.Status `json:"status"`
}

// UpdateInput carries optional changes. Nil fields are left untouched.
type UpdateInput struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Status      *entity.Status `json:"status"`
}

func (s *TaskService) Create(ctx context.Context, userID int64, in CreateInput) (*entity.Task, error) {
	title := strings.TrimSpace(in.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = entity.StatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	now := s.now()
	t := &entity.Task{
		ID:          s.ids.Next(),
		UserID:      userID,
		Title:       title,
		Description: in.Description,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns the owner's tasks newest first, optionally filtered by status
// and a case-insensitive substring of title or description.
func (s *TaskService) List(ctx context.Context, userID int64, f entity.Filter) ([]entity.Task, error) {
	f.Search = strings.TrimSpace(f.Search)
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	return s.repo.List(ctx, userID, f)
}

func (s *TaskService) Get(ctx context.Context, userID, id int64) (*entity.Task, error) {
	t, err := s.repo.Get(ctx, id, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

func (s *TaskService) Update(ctx context.Context, userID, id int64, in UpdateInput) (*entity.Task, error) {
	t, err := s.repo.Get(ctx, id, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		t.Title = title
	}
	if in.Description != nil {
		t.Description = in.Description
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
		}
		t.Status = *in.Status
	}
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, id int64) error {
	return mapErr(s.repo.Delete(ctx, id, userID))
}

func validateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n < 1 || n > maxTitleLen {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidInput, maxTitleLen)
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, taskrepo.ErrNotFound) {
		return ErrTaskNotFound
	}
	return err
}
