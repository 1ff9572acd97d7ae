package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Resolver turns a bearer token into the identity of an existing user.
// It holds no state besides its collaborators; nothing is cached, so a
// deleted account stops resolving on the very next request.
type Resolver struct {
	codec   *TokenCodec
	users   UserStore
	logger  *zap.SugaredLogger
	metrics *Metrics
}

// NewResolver builds a Resolver. logger and metrics may be nil.
func NewResolver(codec *TokenCodec, users UserStore, logger *zap.SugaredLogger, metrics *Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{codec: codec, users: users, logger: logger, metrics: metrics}
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// Resolve verifies rawToken and loads its subject. Every token problem is
// returned as *AuthError (errors.Is(err, ErrUnauthorized)); store failures
// are returned as ordinary errors.
func (r *Resolver) Resolve(ctx context.Context, rawToken string) (Identity, error) {
	id, err := r.resolve(ctx, rawToken)
	r.metrics.resolution(err)
	if err != nil {
		r.logger.Debugw("token rejected", "reason", Reason(err))
	}
	return id, err
}

func (r *Resolver) resolve(ctx context.Context, rawToken string) (Identity, error) {
	claims, err := r.codec.Decode(rawToken)
	if err != nil {
		return Identity{}, unauthorized(err)
	}
	id, found, err := r.users.LookupUser(ctx, claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup user %d: %w", claims.Subject, err)
	}
	if !found {
		return Identity{}, unauthorized(ErrSubjectNotFound)
	}
	return id, nil
}
