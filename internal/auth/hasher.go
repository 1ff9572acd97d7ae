package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and verifies passwords. Digests are self-describing:
// they embed the scheme, cost parameters and salt.
type PasswordHasher interface {
	Hash(pw string) (digest string, algo string, err error)
	// Verify reports whether pw matches digest. A mismatch is (false, nil);
	// a digest that cannot be parsed is (false, ErrInvalidDigest).
	Verify(digest, pw string) (bool, error)
	NeedsRehash(digest string) bool
}

// multiSchemeHasher is implemented by hashers that verify more than one
// digest scheme. The Authenticator uses it to keep a dummy digest per scheme.
type multiSchemeHasher interface {
	Scheme(digest string) string
	DummyDigests(pw string) (map[string]string, error)
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.cost()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("%s:%d", HashBcrypt, cost), nil
}

func (b BcryptHasher) Verify(digest, pw string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(pw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
}

func (b BcryptHasher) NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost < b.cost()
}

const argon2Version = argon2.Version

// Argon2idHasher encodes digests as
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>.
type Argon2idHasher struct{ Params Argon2idParams }

// params fills unset fields from DefaultArgon2idParams; argon2.IDKey panics
// on zero iterations or threads.
func (a Argon2idHasher) params() Argon2idParams {
	p, def := a.Params, DefaultArgon2idParams()
	if p.MemoryKiB == 0 {
		p.MemoryKiB = def.MemoryKiB
	}
	if p.Iterations == 0 {
		p.Iterations = def.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = def.Parallelism
	}
	if p.SaltLength == 0 {
		p.SaltLength = def.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = def.KeyLength
	}
	return p
}

func (a Argon2idHasher) Hash(pw string) (string, string, error) {
	p := a.params()
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey([]byte(pw), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	b64 := base64.RawStdEncoding
	enc := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key))
	return enc, HashArgon2id, nil
}

func (a Argon2idHasher) Verify(digest, pw string) (bool, error) {
	params, salt, expected, err := decodeArgon2id(digest)
	if err != nil {
		return false, err
	}
	// Stored parameters are data, so refuse anything far above our own cost.
	if !withinBounds(params, a.params()) {
		return false, fmt.Errorf("%w: argon2id parameters out of bounds", ErrInvalidDigest)
	}
	key := argon2.IDKey([]byte(pw), salt, params.Iterations, params.MemoryKiB, params.Parallelism,
		uint32(len(expected))) // #nosec G115 -- bounded by withinBounds
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func (a Argon2idHasher) NeedsRehash(digest string) bool {
	params, _, _, err := decodeArgon2id(digest)
	if err != nil {
		return true
	}
	want := a.params()
	return params.MemoryKiB < want.MemoryKiB ||
		params.Iterations < want.Iterations ||
		params.Parallelism != want.Parallelism ||
		params.SaltLength < want.SaltLength ||
		params.KeyLength < want.KeyLength
}

func withinBounds(got, limits Argon2idParams) bool {
	if got.MemoryKiB > limits.MemoryKiB*2 || got.Iterations > limits.Iterations*2 {
		return false
	}
	if got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	return got.KeyLength >= 16 && got.KeyLength <= 128
}

func decodeArgon2id(encoded string) (Argon2idParams, []byte, []byte, error) {
	bad := func() (Argon2idParams, []byte, []byte, error) {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: not an argon2id digest", ErrInvalidDigest)
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return bad()
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return bad()
	}
	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return bad()
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return bad()
	}
	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return bad()
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return bad()
	}
	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),        // #nosec G115 -- checked above
		SaltLength:  uint32(len(salt)), // #nosec G115
		KeyLength:   uint32(len(key)),  // #nosec G115
	}, salt, key, nil
}

// Hashers hashes with the preferred scheme and verifies digests of any
// supported scheme, so stored bcrypt digests keep working after a switch to
// argon2id (and are flagged for rehash).
type Hashers struct {
	Preferred string
	Bcrypt    BcryptHasher
	Argon2id  Argon2idHasher
}

// NewHashers builds the dispatching hasher from cfg.
func NewHashers(cfg Config) *Hashers {
	preferred := cfg.HashAlgo
	if preferred == "" {
		preferred = HashBcrypt
	}
	return &Hashers{
		Preferred: preferred,
		Bcrypt:    BcryptHasher{Cost: cfg.BcryptCost},
		Argon2id:  Argon2idHasher{Params: Argon2idHasher{Params: cfg.Argon2}.params()},
	}
}

// Scheme names the scheme digest was produced with, or "" if unknown.
func (h *Hashers) Scheme(digest string) string { return scheme(digest) }

// DummyDigests hashes pw once with every supported scheme.
func (h *Hashers) DummyDigests(pw string) (map[string]string, error) {
	b, _, err := h.Bcrypt.Hash(pw)
	if err != nil {
		return nil, err
	}
	a, _, err := h.Argon2id.Hash(pw)
	if err != nil {
		return nil, err
	}
	return map[string]string{HashBcrypt: b, HashArgon2id: a}, nil
}

func (h *Hashers) Hash(pw string) (string, string, error) {
	if h.Preferred == HashArgon2id {
		return h.Argon2id.Hash(pw)
	}
	return h.Bcrypt.Hash(pw)
}

func (h *Hashers) Verify(digest, pw string) (bool, error) {
	switch scheme(digest) {
	case HashArgon2id:
		return h.Argon2id.Verify(digest, pw)
	case HashBcrypt:
		return h.Bcrypt.Verify(digest, pw)
	default:
		return false, fmt.Errorf("%w: unknown scheme", ErrInvalidDigest)
	}
}

func (h *Hashers) NeedsRehash(digest string) bool {
	s := scheme(digest)
	if s != h.Preferred {
		return true
	}
	if s == HashArgon2id {
		return h.Argon2id.NeedsRehash(digest)
	}
	return h.Bcrypt.NeedsRehash(digest)
}

func scheme(digest string) string {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return HashArgon2id
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return HashBcrypt
	default:
		return ""
	}
}
