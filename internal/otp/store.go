// Package otp issues and verifies single-use numeric codes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"Guardian/pkg/cache"
	"Guardian/pkg/errors"
	"Guardian/pkg/metrics"
)

const (
	CodeLength      = 6
	DefaultValidity = 5 * time.Minute
	keyPrefix       = "otp:"
)

var (
	ErrNotFound = errors.Sentinel(errors.CodeUnauthorized, "no pending code, request a new one")
	ErrExpired  = errors.Sentinel(errors.CodeUnauthorized, "code expired, request a new one")
	ErrMismatch = errors.Sentinel(errors.CodeUnauthorized, "code does not match")

	codePattern = regexp.MustCompile(`^[0-9]{6}$`)
	codeSpace   = big.NewInt(1_000_000)
)

// Store keeps at most one live code per key. Codes live in a cache.Cache so that
// several instances can share them through redis. The backend TTL is twice the
// validity window so a late attempt still reports ErrExpired. Consumption goes
// through CompareAndDelete, so of two concurrent verifications only one succeeds.
type Store struct {
	cache    cache.Cache
	validity time.Duration
	now      func() time.Time
	random   io.Reader
	metrics  *metrics.Metrics
}

type Option func(*Store)

func WithValidity(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.validity = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithRandom replaces the code source, crypto/rand by default.
func WithRandom(r io.Reader) Option { return func(s *Store) { s.random = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

func NewStore(c cache.Cache, opts ...Option) *Store {
	s := &Store{
		cache:    c,
		validity: DefaultValidity,
		now:      time.Now,
		random:   rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validity is the lifetime of an issued code.
func (s *Store) Validity() time.Duration { return s.validity }

// Issue creates a fresh code for key, replacing any pending one.
func (s *Store) Issue(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.Validation("key is required")
	}
	n, err := rand.Int(s.random, codeSpace)
	if err != nil {
		return "", errors.Wrap(err, "generate code")
	}
	code := fmt.Sprintf("%0*d", CodeLength, n.Int64())

	if err := s.cache.Set(ctx, keyPrefix+key, encode(code, s.now()), 2*s.validity); err != nil {
		return "", errors.Transient(err, "store code")
	}
	if s.metrics != nil {
		s.metrics.RecordOTPIssued()
	}
	return code, nil
}

// Verify checks code against the pending entry for key. Success and expiry both
// consume the entry; a mismatch leaves it in place for another attempt.
func (s *Store) Verify(ctx context.Context, key, code string) error {
	err := s.verify(ctx, key, code)
	if s.metrics != nil {
		s.metrics.RecordOTPVerified(result(err))
	}
	return err
}

func (s *Store) verify(ctx context.Context, key, code string) error {
	if !codePattern.MatchString(code) {
		return errors.Validation("code must be %d digits", CodeLength)
	}

	k := keyPrefix + key
	raw, ok, err := s.cache.Lookup(ctx, k)
	if err != nil {
		return errors.Transient(err, "read code")
	}
	if !ok {
		return ErrNotFound
	}
	stored, ok := raw.(string)
	if !ok {
		_ = s.cache.Delete(ctx, k)
		return ErrNotFound
	}
	want, issuedAt, ok := decode(stored)
	if !ok {
		_ = s.cache.Delete(ctx, k)
		return ErrNotFound
	}

	if !s.now().Before(issuedAt.Add(s.validity)) {
		if _, err := s.cache.CompareAndDelete(ctx, k, stored); err != nil {
			return errors.Transient(err, "consume expired code")
		}
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(code)) != 1 {
		return ErrMismatch
	}

	consumed, err := s.cache.CompareAndDelete(ctx, k, stored)
	if err != nil {
		return errors.Transient(err, "consume code")
	}
	if !consumed {
		// another instance consumed or replaced it first
		return ErrNotFound
	}
	return nil
}

// Pending reports whether key has an unconsumed entry, expired or not.
func (s *Store) Pending(ctx context.Context, key string) bool {
	return s.cache.Exists(ctx, keyPrefix+key)
}

func encode(code string, issuedAt time.Time) string {
	return code + ":" + strconv.FormatInt(issuedAt.UnixNano(), 10)
}

func decode(v string) (string, time.Time, bool) {
	code, ts, found := strings.Cut(v, ":")
	if !found || len(code) != CodeLength {
		return "", time.Time{}, false
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return code, time.Unix(0, nanos), true
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	case errors.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}
