package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

const uniqueViolation = "23505"

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, name, email, password_hash, password_algo, created_at, updated_at`

// Create inserts a new user row. The ID is assigned by the caller.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, name, email, password_hash, password_algo, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :password_algo, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

// GetByEmail returns a user matched by email (case-insensitive due to citext).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, email); err != nil {
		return nil, mapReadErr(err)
	}
	return &u, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, mapReadErr(err)
	}
	return &u, nil
}

// Update writes name and email.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET name=$2, email=$3, updated_at=$4 WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.UpdatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res)
}

// UpdatePassword replaces the stored digest.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash, algo string) error {
	const q = `UPDATE users SET password_hash=$2, password_algo=$3, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, hash, algo)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Delete removes the user; tasks go with it (ON DELETE CASCADE).
func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// LookupCredential implements auth.CredentialStore.
func (r *UserRepo) LookupCredential(ctx context.Context, identifier string) (auth.Credential, bool, error) {
	u, err := r.GetByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Credential{}, false, nil
		}
		return auth.Credential{}, false, err
	}
	return auth.Credential{Identity: identityOf(u), Digest: u.PasswordHash}, true, nil
}

// StoreCredential implements auth.CredentialStore.
func (r *UserRepo) StoreCredential(ctx context.Context, subjectID int64, digest, algo string) error {
	return r.UpdatePassword(ctx, subjectID, digest, algo)
}

// LookupUser implements auth.UserStore.
func (r *UserRepo) LookupUser(ctx context.Context, id int64) (auth.Identity, bool, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Identity{}, false, nil
		}
		return auth.Identity{}, false, err
	}
	return identityOf(u), true, nil
}

func identityOf(u *entity.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

func mapReadErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func mapWriteErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
