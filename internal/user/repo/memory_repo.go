package repo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
)

// MemoryRepo is an in-process user store for local runs (STORAGE=memory)
// and tests. Emails are compared case-insensitively like the citext column.
type MemoryRepo struct {
	mu    sync.RWMutex
	users map[int64]entity.User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[int64]entity.User)}
}

func (r *MemoryRepo) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTaken(u.Email, 0) {
		return ErrDuplicateEmail
	}
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) GetByID(_ context.Context, id int64) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *MemoryRepo) Update(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if r.emailTaken(u.Email, u.ID) {
		return ErrDuplicateEmail
	}
	cur.Name, cur.Email, cur.UpdatedAt = u.Name, u.Email, u.UpdatedAt
	r.users[u.ID] = cur
	return nil
}

func (r *MemoryRepo) UpdatePassword(_ context.Context, id int64, hash, algo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	cur.PasswordHash, cur.PasswordAlgo, cur.UpdatedAt = hash, algo, time.Now().UTC()
	r.users[id] = cur
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryRepo) LookupCredential(ctx context.Context, identifier string) (auth.Credential, bool, error) {
	u, err := r.GetByEmail(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return auth.Credential{}, false, nil
	}
	if err != nil {
		return auth.Credential{}, false, err
	}
	return auth.Credential{Identity: identityOf(u), Digest: u.PasswordHash}, true, nil
}

func (r *MemoryRepo) StoreCredential(ctx context.Context, subjectID int64, digest, algo string) error {
	return r.UpdatePassword(ctx, subjectID, digest, algo)
}

func (r *MemoryRepo) LookupUser(ctx context.Context, id int64) (auth.Identity, bool, error) {
	u, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return auth.Identity{}, false, nil
	}
	if err != nil {
		return auth.Identity{}, false, err
	}
	return identityOf(u), true, nil
}

// emailTaken must be called with r.mu held.
func (r *MemoryRepo) emailTaken(email string, except int64) bool {
	for id, u := range r.users {
		if id != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}
