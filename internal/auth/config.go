package auth

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinSecretBytes is the shortest accepted HMAC signing secret.
	MinSecretBytes = 32

	DefaultAlgorithm     = "HS256"
	DefaultTokenLifetime = 1440 * time.Minute

	HashBcrypt   = "bcrypt"
	HashArgon2id = "argon2id"
)

// Argon2idParams controls Argon2id hashing cost. MemoryKiB is in KiB as
// required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams returns the baseline used when ARGON2_* is unset.
func DefaultArgon2idParams() Argon2idParams {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}
	return Argon2idParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4]
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Config is the process-wide, read-only auth configuration. It is built once
// at startup and passed by value into every constructor.
type Config struct {
	Secret        []byte
	Algorithm     string
	TokenLifetime time.Duration
	// Leeway is added to exp when checking expiry. Zero means strict.
	Leeway time.Duration

	HashAlgo   string
	BcryptCost int
	Argon2     Argon2idParams

	LoginMaxAttempts int
	LoginWindow      time.Duration
}

// DefaultConfig returns a Config with every knob except Secret populated.
func DefaultConfig() Config {
	return Config{
		Algorithm:        DefaultAlgorithm,
		TokenLifetime:    DefaultTokenLifetime,
		HashAlgo:         HashBcrypt,
		BcryptCost:       12,
		Argon2:           DefaultArgon2idParams(),
		LoginMaxAttempts: 5,
		LoginWindow:      time.Minute,
	}
}

// ConfigFromEnv loads the auth configuration from environment variables.
//
// Env surface:
//   - SECRET_KEY (required)
//   - ALGORITHM (HS256 | HS384 | HS512)
//   - ACCESS_TOKEN_EXPIRE_MINUTES
//   - TOKEN_LEEWAY_SECONDS
//   - PASSWORD_HASH_ALGO (bcrypt | argon2id)
//   - BCRYPT_COST
//   - ARGON2_MEMORY_KIB, ARGON2_ITERATIONS, ARGON2_PARALLELISM
//   - LOGIN_MAX_ATTEMPTS, LOGIN_WINDOW_SECONDS
func ConfigFromEnv() (Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HashingConfigFromEnv loads the same variables but only checks the password
// hashing settings, for tools that never touch tokens.
func HashingConfigFromEnv() (Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validateHashing(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.Secret = []byte(strings.TrimSpace(os.Getenv("SECRET_KEY")))

	if v, ok := lookup("ALGORITHM"); ok {
		cfg.Algorithm = strings.ToUpper(v)
	}
	if v, ok := lookup("ACCESS_TOKEN_EXPIRE_MINUTES"); ok {
		n, err := atoiInRange(v, 1, 60*24*365)
		if err != nil {
			return Config{}, fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
		}
		cfg.TokenLifetime = time.Duration(n) * time.Minute
	}
	if v, ok := lookup("TOKEN_LEEWAY_SECONDS"); ok {
		n, err := atoiInRange(v, 0, 300)
		if err != nil {
			return Config{}, fmt.Errorf("TOKEN_LEEWAY_SECONDS: %w", err)
		}
		cfg.Leeway = time.Duration(n) * time.Second
	}
	if v, ok := lookup("PASSWORD_HASH_ALGO"); ok {
		cfg.HashAlgo = strings.ToLower(v)
	}
	if v, ok := lookup("BCRYPT_COST"); ok {
		n, err := atoiInRange(v, bcrypt.MinCost, bcrypt.MaxCost)
		if err != nil {
			return Config{}, fmt.Errorf("BCRYPT_COST: %w", err)
		}
		cfg.BcryptCost = n
	}
	if v, ok := lookup("ARGON2_MEMORY_KIB"); ok {
		n, err := atoiInRange(v, 8*1024, 1024*1024)
		if err != nil {
			return Config{}, fmt.Errorf("ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Argon2.MemoryKiB = uint32(n) // #nosec G115 -- range checked
	}
	if v, ok := lookup("ARGON2_ITERATIONS"); ok {
		n, err := atoiInRange(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("ARGON2_ITERATIONS: %w", err)
		}
		cfg.Argon2.Iterations = uint32(n) // #nosec G115 -- range checked
	}
	if v, ok := lookup("ARGON2_PARALLELISM"); ok {
		n, err := atoiInRange(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("ARGON2_PARALLELISM: %w", err)
		}
		cfg.Argon2.Parallelism = uint8(n) // #nosec G115 -- range checked
	}
	if v, ok := lookup("LOGIN_MAX_ATTEMPTS"); ok {
		n, err := atoiInRange(v, 1, 1000)
		if err != nil {
			return Config{}, fmt.Errorf("LOGIN_MAX_ATTEMPTS: %w", err)
		}
		cfg.LoginMaxAttempts = n
	}
	if v, ok := lookup("LOGIN_WINDOW_SECONDS"); ok {
		n, err := atoiInRange(v, 1, 86400)
		if err != nil {
			return Config{}, fmt.Errorf("LOGIN_WINDOW_SECONDS: %w", err)
		}
		cfg.LoginWindow = time.Duration(n) * time.Second
	}
	return cfg, nil
}

// Validate rejects configurations the codec or hashers cannot use.
func (c Config) Validate() error {
	if len(c.Secret) == 0 {
		return ErrSecretMissing
	}
	if len(c.Secret) < MinSecretBytes {
		return ErrSecretTooShort
	}
	if _, err := signingMethod(c.Algorithm); err != nil {
		return err
	}
	if c.TokenLifetime <= 0 {
		return ErrInvalidLifetime
	}
	if c.Leeway < 0 {
		return fmt.Errorf("leeway must not be negative")
	}
	return c.validateHashing()
}

func (c Config) validateHashing() error {
	switch c.HashAlgo {
	case HashBcrypt, HashArgon2id:
	default:
		return fmt.Errorf("unsupported password hash algorithm %q", c.HashAlgo)
	}
	return nil
}

// signingMethod resolves the configured algorithm name. Only HMAC methods are
// accepted since the secret is symmetric.
func signingMethod(alg string) (*jwt.SigningMethodHMAC, error) {
	switch alg {
	case "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func atoiInRange(s string, min, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("out of range [%d..%d]: %d", min, max, n)
	}
	return n, nil
}
