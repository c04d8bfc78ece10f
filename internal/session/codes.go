package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"bitableTimesheet/internal/models"
	"bitableTimesheet/internal/utils"
)

const (
	DefaultCodeTTL     = 5 * time.Minute
	DefaultCooldown    = 60 * time.Second
	DefaultMaxAttempts = 5
	codeDigits         = 6
)

// ErrInvalidCode covers a wrong, missing, used or expired code. Callers are
// not told which.
var ErrInvalidCode = errors.New("invalid or expired code")

// CooldownError is returned when a code was requested too recently.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("code requested too recently, retry in %s", e.Remaining.Round(time.Second))
}

// CodeStoreConfig configures a CodeStore. Zero values use the defaults; a
// negative Cooldown disables it.
type CodeStoreConfig struct {
	CodeTTL     time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// CodeStore keeps pending login codes in memory, keyed by digits-only phone.
type CodeStore struct {
	codes       *utils.Cache[models.PhoneCode]
	cooldowns   *utils.Cache[time.Time]
	codeTTL     time.Duration
	cooldown    time.Duration
	maxAttempts int
	now         func() time.Time
	generate    func() (string, error)
}

// NewCodeStore creates an empty store.
func NewCodeStore(cfg CodeStoreConfig) *CodeStore {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	switch {
	case cfg.Cooldown == 0:
		cfg.Cooldown = DefaultCooldown
	case cfg.Cooldown < 0:
		cfg.Cooldown = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &CodeStore{
		codes:       utils.NewCache[models.PhoneCode](cfg.CodeTTL),
		cooldowns:   utils.NewCache[time.Time](cfg.Cooldown),
		codeTTL:     cfg.CodeTTL,
		cooldown:    cfg.Cooldown,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
		generate:    GenerateCode,
	}
}

// WithClock replaces the time source of the store and its caches.
func (s *CodeStore) WithClock(now func() time.Time) *CodeStore {
	s.now = now
	s.codes.WithClock(now)
	s.cooldowns.WithClock(now)
	return s
}

// WithGenerator replaces the code generator.
func (s *CodeStore) WithGenerator(generate func() (string, error)) *CodeStore {
	s.generate = generate
	return s
}

// Issue creates a fresh code for phone, replacing any pending one.
func (s *CodeStore) Issue(phone, personName string) (models.PhoneCode, error) {
	if s.cooldown > 0 {
		if entry, ok := s.cooldowns.GetEntry(phone); ok {
			return models.PhoneCode{}, &CooldownError{Remaining: entry.ExpiresAt.Sub(s.now())}
		}
	}

	code, err := s.generate()
	if err != nil {
		return models.PhoneCode{}, fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	pending := models.PhoneCode{
		Code:       code,
		PersonName: personName,
		ExpiresAt:  now.Add(s.codeTTL),
	}
	s.codes.Set(phone, pending)
	if s.cooldown > 0 {
		s.cooldowns.Set(phone, now)
	}
	return pending, nil
}

// Verify consumes the pending code for phone if code matches. A match is
// single-use. Too many wrong guesses discard the pending code. The compare,
// the attempt count and the removal happen under one cache lock.
func (s *CodeStore) Verify(phone, code string) (models.PhoneCode, error) {
	var (
		consumed models.PhoneCode
		matched  bool
	)
	s.codes.Update(phone, func(entry *utils.CacheEntry[models.PhoneCode]) bool {
		if entry.Value.Code == code {
			consumed, matched = entry.Value, true
			return false
		}
		entry.Value.Attempts++
		return entry.Value.Attempts < s.maxAttempts
	})

	if !matched {
		return models.PhoneCode{}, ErrInvalidCode
	}
	return consumed, nil
}

// StartCleanup purges expired codes and cooldowns until ctx is done.
func (s *CodeStore) StartCleanup(ctx context.Context, interval time.Duration) {
	s.codes.StartCleanup(ctx, interval)
	s.cooldowns.StartCleanup(ctx, interval)
}

// GenerateCode returns a uniformly random six digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
