// Package session issues and verifies the stateless session tokens handed out
// after a phone login, and keeps the pending login codes.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bitableTimesheet/internal/models"
)

const (
	// DefaultTTL is how long a session token stays valid.
	DefaultTTL = 4 * time.Hour

	// DefaultIssuer is written to and required in the iss claim.
	DefaultIssuer = "bitable-timesheet"
)

var (
	// ErrMissingToken is returned for an empty token string.
	ErrMissingToken = errors.New("missing session token")

	// ErrInvalidToken wraps signature, format and expiry failures.
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims is the payload of a session token.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. Empty issuer or zero ttl fall back to defaults.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for issuing and verifying.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// TTL reports the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token binding name until now+ttl.
func (i *Issuer) Issue(name string) (string, models.Session, error) {
	now := i.now()
	sess := models.Session{
		PersonName: name,
		ExpiresAt:  now.Add(i.ttl).Truncate(time.Second),
	}

	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", models.Session{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, sess, nil
}

// Verify checks the signature, issuer and expiry of token.
func (i *Issuer) Verify(token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Name) == "" {
		return nil, ErrInvalidToken
	}

	return &models.Session{
		PersonName: claims.Name,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
