package auth

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

// Authenticator checks login attempts against the credential store.
type Authenticator struct {
	store   CredentialStore
	hasher  PasswordHasher
	limiter AttemptLimiter
	logger  *zap.SugaredLogger
	metrics *Metrics
	// dummyDigest is verified when the identifier is unknown so both failure
	// paths pay for one hash computation.
	dummyDigest string
	// dummies holds one throwaway digest per scheme for multi-scheme
	// hashers; lastScheme is the scheme of the most recently verified stored
	// digest, so the unknown-identifier path costs what real users cost.
	dummies    map[string]string
	lastScheme atomic.Value
}

// AuthenticatorOption customises an Authenticator.
type AuthenticatorOption func(*Authenticator)

func WithLimiter(l AttemptLimiter) AuthenticatorOption {
	return func(a *Authenticator) { a.limiter = l }
}

func WithLogger(l *zap.SugaredLogger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = l }
}

func WithMetrics(m *Metrics) AuthenticatorOption {
	return func(a *Authenticator) { a.metrics = m }
}

// NewAuthenticator builds an Authenticator. It hashes a random throwaway
// password up front to obtain the dummy digest.
func NewAuthenticator(store CredentialStore, hasher PasswordHasher, opts ...AuthenticatorOption) (*Authenticator, error) {
	throwaway := utilities.NewKSUID()
	dummy, _, err := hasher.Hash(throwaway)
	if err != nil {
		return nil, fmt.Errorf("dummy digest: %w", err)
	}
	var dummies map[string]string
	if md, ok := hasher.(multiSchemeHasher); ok {
		if dummies, err = md.DummyDigests(throwaway); err != nil {
			return nil, fmt.Errorf("dummy digest: %w", err)
		}
	}
	a := &Authenticator{
		store:       store,
		hasher:      hasher,
		limiter:     NopLimiter{},
		logger:      zap.NewNop().Sugar(),
		dummyDigest: dummy,
		dummies:     dummies,
	}
	a.noteScheme(dummy)
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NormalizeIdentifier trims and lowercases an email identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Authenticate returns the identity owning identifier when password matches.
// Unknown identifiers and wrong passwords both yield ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, identifier, password string) (Identity, error) {
	id, err := a.authenticate(ctx, NormalizeIdentifier(identifier), password)
	a.metrics.login(err)
	return id, err
}

func (a *Authenticator) authenticate(ctx context.Context, identifier, password string) (Identity, error) {
	if identifier == "" {
		_, _ = a.hasher.Verify(a.dummy(), password)
		return Identity{}, ErrInvalidCredentials
	}

	allowed, err := a.limiter.Allow(ctx, identifier)
	if err != nil {
		a.logger.Warnw("login limiter unavailable", "err", err)
	}
	if !allowed {
		return Identity{}, ErrTooManyAttempts
	}

	cred, found, err := a.store.LookupCredential(ctx, identifier)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup credential: %w", err)
	}
	if !found {
		_, _ = a.hasher.Verify(a.dummy(), password)
		return Identity{}, ErrInvalidCredentials
	}

	a.noteScheme(cred.Digest)
	ok, err := a.hasher.Verify(cred.Digest, password)
	if err != nil {
		a.logger.Errorw("stored password digest unusable", "user_id", cred.Identity.UserID, "err", err)
		return Identity{}, fmt.Errorf("verify credential: %w", err)
	}
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}

	if err := a.limiter.Reset(ctx, identifier); err != nil {
		a.logger.Warnw("login limiter reset failed", "err", err)
	}
	if a.hasher.NeedsRehash(cred.Digest) {
		a.rehash(ctx, cred.Identity.UserID, password)
	}
	return cred.Identity, nil
}

// rehash upgrades an outdated digest. Failures only cost an upgrade, so
// they are logged and swallowed.
func (a *Authenticator) rehash(ctx context.Context, userID int64, password string) {
	digest, algo, err := a.hasher.Hash(password)
	if err != nil {
		a.logger.Warnw("password rehash failed", "user_id", userID, "err", err)
		return
	}
	if err := a.store.StoreCredential(ctx, userID, digest, algo); err != nil {
		a.logger.Warnw("password rehash store failed", "user_id", userID, "err", err)
	}
}

// dummy returns the throwaway digest matching the scheme stored digests were
// last seen in, falling back to one from the preferred scheme.
func (a *Authenticator) dummy() string {
	if s, ok := a.lastScheme.Load().(string); ok {
		if d, ok := a.dummies[s]; ok {
			return d
		}
	}
	return a.dummyDigest
}

func (a *Authenticator) noteScheme(digest string) {
	md, ok := a.hasher.(multiSchemeHasher)
	if !ok {
		return
	}
	s := md.Scheme(digest)
	if _, ok := a.dummies[s]; ok {
		a.lastScheme.Store(s)
	}
}
