package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef-test-secret"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Secret = []byte(testSecret)
	cfg.BcryptCost = bcrypt.MinCost
	cfg.Argon2 = Argon2idParams{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	return cfg
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T, clock *fakeClock) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testConfig(), WithClock(clock.Now))
	require.NoError(t, err)
	return codec
}

// memStore is an in-memory CredentialStore + UserStore.
type memStore struct {
	mu      sync.Mutex
	byEmail map[string]Credential
	byID    map[int64]Identity
	algos   map[int64]string
	err     error
}

func newMemStore() *memStore {
	return &memStore{
		byEmail: map[string]Credential{},
		byID:    map[int64]Identity{},
		algos:   map[int64]string{},
	}
}

func (s *memStore) register(t *testing.T, h PasswordHasher, id int64, email, password string) Identity {
	t.Helper()
	digest, algo, err := h.Hash(password)
	require.NoError(t, err)
	ident := Identity{UserID: id, Email: email, Name: "user " + email, CreatedAt: time.Now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[email] = Credential{Identity: ident, Digest: digest}
	s.byID[id] = ident
	s.algos[id] = algo
	return ident
}

func (s *memStore) delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident := s.byID[id]
	delete(s.byID, id)
	delete(s.byEmail, ident.Email)
}

func (s *memStore) digest(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byEmail[email].Digest
}

func (s *memStore) LookupCredential(_ context.Context, identifier string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Credential{}, false, s.err
	}
	c, ok := s.byEmail[identifier]
	return c, ok, nil
}

func (s *memStore) StoreCredential(_ context.Context, id int64, digest, algo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, c := range s.byEmail {
		if c.Identity.UserID == id {
			c.Digest = digest
			s.byEmail[email] = c
			s.algos[id] = algo
		}
	}
	return nil
}

func (s *memStore) LookupUser(_ context.Context, id int64) (Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Identity{}, false, s.err
	}
	ident, ok := s.byID[id]
	return ident, ok, nil
}

// countingHasher records how many Verify calls each path makes.
type countingHasher struct {
	PasswordHasher
	mu       sync.Mutex
	verifies int
}

func (c *countingHasher) Verify(digest, pw string) (bool, error) {
	c.mu.Lock()
	c.verifies++
	c.mu.Unlock()
	return c.PasswordHasher.Verify(digest, pw)
}

func (c *countingHasher) reset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.verifies
	c.verifies = 0
	return n
}

// flip replaces the character at i with a different base64url character.
func flip(s string, i int) string {
	repl := byte('A')
	if s[i] == 'A' {
		repl = 'B'
	}
	var b strings.Builder
	b.WriteString(s[:i])
	b.WriteByte(repl)
	b.WriteString(s[i+1:])
	return b.String()
}
