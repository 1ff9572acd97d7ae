package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded content of a valid identity token.
type Claims struct {
	Subject   int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec signs and verifies compact JWTs (header.payload.signature,
// base64url each) with a single HMAC secret and algorithm.
type TokenCodec struct {
	secret   []byte
	method   *jwt.SigningMethodHMAC
	lifetime time.Duration
	leeway   time.Duration
	now      func() time.Time
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec builds a codec from the validated auth config.
func NewTokenCodec(cfg Config, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretMissing
	}
	method, err := signingMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	lifetime := cfg.TokenLifetime
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	c := &TokenCodec{secret: secret, method: method, lifetime: lifetime, leeway: cfg.Leeway, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lifetime is the default lifetime used by Mint.
func (c *TokenCodec) Lifetime() time.Duration { return c.lifetime }

// Mint issues a token for subject with the configured default lifetime.
func (c *TokenCodec) Mint(subject int64) (string, error) {
	return c.Encode(subject, c.lifetime)
}

// Encode issues a token {sub, iat: now, exp: now+lifetime}.
func (c *TokenCodec) Encode(subject int64, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		return "", ErrInvalidLifetime
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(subject, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns its claims. It fails with ErrMalformed,
// ErrInvalidSignature or ErrExpired. A token is expired once now >= exp
// (plus the configured leeway, zero by default).
func (c *TokenCodec) Decode(token string) (Claims, error) {
	if badSignatureEncoding(token) {
		return Claims{}, fmt.Errorf("%w: signature is not canonical base64url", ErrInvalidSignature)
	}
	now := c.now()
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(c.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)

	var rc jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(token, &rc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	if rc.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing sub", ErrMalformed)
	}
	sub, err := strconv.ParseInt(rc.Subject, 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: non-numeric sub", ErrMalformed)
	}
	out := Claims{Subject: sub, ExpiresAt: rc.ExpiresAt.Time}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	return out, nil
}

// badSignatureEncoding reports whether token has a well-formed header and
// payload but a signature segment that fails strict base64url decoding.
// Decode reports those as ErrInvalidSignature, not ErrMalformed.
func badSignatureEncoding(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	enc := base64.RawURLEncoding.Strict()
	for _, seg := range parts[:2] {
		raw, err := enc.DecodeString(seg)
		if err != nil || !json.Valid(raw) {
			return false
		}
	}
	_, err := enc.DecodeString(parts[2])
	return err != nil
}

// classify maps jwt parser errors onto the codec's closed error set.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing), errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
