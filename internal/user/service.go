package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

// Repository is the persistence surface the service needs. Both
// repo.UserRepo and repo.MemoryRepo satisfy it.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
	Delete(ctx context.Context, id int64) error
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	minNameLen     = 2
	maxNameLen     = 100
	minPasswordLen = 6
	maxPasswordLen = 100
)

// UserService orchestrates registration, login and profile flows.
type UserService struct {
	repo   Repository
	hasher auth.PasswordHasher
	authn  *auth.Authenticator
	codec  *auth.TokenCodec
	ids    *utilities.IDGenerator
	now    func() time.Time
}

func NewUserService(r Repository, hasher auth.PasswordHasher, authn *auth.Authenticator, codec *auth.TokenCodec, ids *utilities.IDGenerator) *UserService {
	return &UserService{
		repo:   r,
		hasher: hasher,
		authn:  authn,
		codec:  codec,
		ids:    ids,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput carries signup fields.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateInput carries optional profile changes. Nil fields are left untouched.
type UpdateInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// TokenResponse is the login response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Register creates a user with a hashed password.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (entity.Profile, error) {
	name := strings.TrimSpace(in.Name)
	email := auth.NormalizeIdentifier(in.Email)
	if err := validateName(name); err != nil {
		return entity.Profile{}, err
	}
	if err := validateEmail(email); err != nil {
		return entity.Profile{}, err
	}
	if n := utf8.RuneCountInString(in.Password); n < minPasswordLen || n > maxPasswordLen {
		return entity.Profile{}, fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, minPasswordLen, maxPasswordLen)
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return entity.Profile{}, ErrEmailTaken
	} else if !errors.Is(err, userrepo.ErrNotFound) {
		return entity.Profile{}, err
	}

	digest, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return entity.Profile{}, fmt.Errorf("%w: password too long", ErrInvalidInput)
		}
		return entity.Profile{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	u := &entity.User{
		ID:           s.ids.Next(),
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		PasswordAlgo: algo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return entity.Profile{}, ErrEmailTaken
		}
		return entity.Profile{}, err
	}
	return u.Profile(), nil
}

// Login authenticates the credentials and mints an access token.
func (s *UserService) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	id, err := s.authn.Authenticate(ctx, email, password)
	if err != nil {
		return TokenResponse{}, err
	}
	tok, err := s.codec.Mint(id.UserID)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("mint token: %w", err)
	}
	return TokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.codec.Lifetime() / time.Second),
	}, nil
}

func (s *UserService) GetProfile(ctx context.Context, id int64) (entity.Profile, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return entity.Profile{}, err
	}
	return u.Profile(), nil
}

// UpdateProfile changes name and/or email. A new email must not belong to
// another account.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, in UpdateInput) (entity.Profile, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return entity.Profile{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateName(name); err != nil {
			return entity.Profile{}, err
		}
		u.Name = name
	}
	if in.Email != nil {
		email := auth.NormalizeIdentifier(*in.Email)
		if err := validateEmail(email); err != nil {
			return entity.Profile{}, err
		}
		if email != u.Email {
			if other, err := s.repo.GetByEmail(ctx, email); err == nil && other.ID != u.ID {
				return entity.Profile{}, ErrEmailTaken
			} else if err != nil && !errors.Is(err, userrepo.ErrNotFound) {
				return entity.Profile{}, err
			}
			u.Email = email
		}
	}
	u.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, u); err != nil {
		switch {
		case errors.Is(err, userrepo.ErrDuplicateEmail):
			return entity.Profile{}, ErrEmailTaken
		case errors.Is(err, userrepo.ErrNotFound):
			return entity.Profile{}, ErrUserNotFound
		}
		return entity.Profile{}, err
	}
	return u.Profile(), nil
}

// DeleteAccount removes the user. Outstanding tokens stop resolving.
func (s *UserService) DeleteAccount(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *UserService) get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func validateName(name string) error {
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return fmt.Errorf("%w: name must be %d-%d characters", ErrInvalidInput, minNameLen, maxNameLen)
	}
	return nil
}

func validateEmail(email string) error {
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return nil
}
