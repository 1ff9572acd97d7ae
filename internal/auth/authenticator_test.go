package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T, store CredentialStore, h PasswordHasher, opts ...AuthenticatorOption) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(store, h, opts...)
	require.NoError(t, err)
	return a
}

func TestAuthenticate_Scenario(t *testing.T) {
	ctx := context.Background()
	h := NewHashers(testConfig())
	store := newMemStore()
	want := store.register(t, h, 1001, "a@x.com", "secret1")
	a := newTestAuthenticator(t, store, h)

	got, err := a.Authenticate(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = a.Authenticate(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate(ctx, "nouser@x.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_NormalizesIdentifier(t *testing.T) {
	h := NewHashers(testConfig())
	store := newMemStore()
	store.register(t, h, 1, "a@x.com", "secret1")
	a := newTestAuthenticator(t, store, h)

	_, err := a.Authenticate(context.Background(), "  A@X.com ", "secret1")
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), "   ", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_SameWorkForUnknownAndWrong(t *testing.T) {
	h := &countingHasher{PasswordHasher: NewHashers(testConfig())}
	store := newMemStore()
	store.register(t, h, 1, "a@x.com", "secret1")
	a := newTestAuthenticator(t, store, h)
	h.reset()

	_, errWrong := a.Authenticate(context.Background(), "a@x.com", "wrong")
	wrongVerifies := h.reset()
	_, errUnknown := a.Authenticate(context.Background(), "nouser@x.com", "anything")
	unknownVerifies := h.reset()

	assert.Equal(t, 1, wrongVerifies)
	assert.Equal(t, wrongVerifies, unknownVerifies)
	assert.Equal(t, errWrong, errUnknown)
}

func TestAuthenticate_CorruptDigestIsServerError(t *testing.T) {
	h := NewHashers(testConfig())
	store := newMemStore()
	store.register(t, h, 1, "a@x.com", "secret1")
	store.byEmail["a@x.com"] = Credential{Identity: store.byID[1], Digest: "$2a$not-a-digest"}
	a := newTestAuthenticator(t, store, h)

	_, err := a.Authenticate(context.Background(), "a@x.com", "secret1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDigest)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_StoreError(t *testing.T) {
	h := NewHashers(testConfig())
	store := newMemStore()
	boom := errors.New("connection refused")
	store.err = boom
	a := newTestAuthenticator(t, store, h)

	_, err := a.Authenticate(context.Background(), "a@x.com", "secret1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_RehashesOutdatedDigest(t *testing.T) {
	cfg := testConfig()
	store := newMemStore()
	store.register(t, NewHashers(cfg), 1, "a@x.com", "secret1")
	require.True(t, strings.HasPrefix(store.digest("a@x.com"), "$2a$"))

	cfg.HashAlgo = HashArgon2id
	h := NewHashers(cfg)
	a := newTestAuthenticator(t, store, h)

	_, err := a.Authenticate(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(store.digest("a@x.com"), "$argon2id$"))
	assert.Equal(t, HashArgon2id, store.algos[1])

	_, err = a.Authenticate(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
}

func TestAuthenticate_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	h := NewHashers(testConfig())
	store := newMemStore()
	store.register(t, h, 1, "a@x.com", "secret1")
	a := newTestAuthenticator(t, store, h, WithLimiter(NewRedisAttemptLimiter(client, 2, time.Minute)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := a.Authenticate(ctx, "a@x.com", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := a.Authenticate(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	mr.FastForward(time.Minute)
	_, err = a.Authenticate(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("rl:login:a@x.com"), "success resets the counter")
}

func TestAuthenticate_LimiterFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	h := NewHashers(testConfig())
	store := newMemStore()
	store.register(t, h, 1, "a@x.com", "secret1")
	a := newTestAuthenticator(t, store, h, WithLimiter(NewRedisAttemptLimiter(client, 1, time.Minute)))

	_, err = a.Authenticate(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
}

func TestAuthenticate_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := NewHashers(testConfig())
	store := newMemStore()
	store.register(t, h, 1, "a@x.com", "secret1")
	a := newTestAuthenticator(t, store, h, WithMetrics(m))

	_, _ = a.Authenticate(context.Background(), "a@x.com", "secret1")
	_, _ = a.Authenticate(context.Background(), "a@x.com", "nope")
	_, _ = a.Authenticate(context.Background(), "b@x.com", "nope")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues("invalid_credentials")))
}

// schemeRecorder notes which scheme every verified digest belongs to.
type schemeRecorder struct {
	*Hashers
	mu      sync.Mutex
	schemes []string
}

func (r *schemeRecorder) Verify(digest, pw string) (bool, error) {
	r.mu.Lock()
	r.schemes = append(r.schemes, r.Scheme(digest))
	r.mu.Unlock()
	return r.Hashers.Verify(digest, pw)
}

func (r *schemeRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.schemes
	r.schemes = nil
	return out
}

func TestAuthenticate_UnknownIdentifierFollowsStoredScheme(t *testing.T) {
	cfg := testConfig()
	cfg.HashAlgo = HashArgon2id
	h := &schemeRecorder{Hashers: NewHashers(cfg)}
	store := newMemStore()
	// legacy user hashed before the switch to argon2id
	store.register(t, BcryptHasher{Cost: cfg.BcryptCost}, 1, "old@x.com", "secret1")
	a := newTestAuthenticator(t, store, h)
	ctx := context.Background()

	_, err := a.Authenticate(ctx, "nobody@x.com", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{HashArgon2id}, h.take())

	_, err = a.Authenticate(ctx, "old@x.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{HashBcrypt}, h.take())

	_, err = a.Authenticate(ctx, "nobody@x.com", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{HashBcrypt}, h.take())

	_, err = a.Authenticate(ctx, "", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{HashBcrypt}, h.take())
}
