// Package session issues and verifies bearer tokens binding a wallet address.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/model"
)

// Leeway tolerates clock skew between client and server.
const Leeway = 30 * time.Second

// Issuer signs HS256 tokens whose subject is the wallet address.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer constructs an Issuer. ttl <= 0 defaults to 15 minutes.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for address and its expiry.
func (i *Issuer) Issue(address string) (string, time.Time, error) {
	addr := model.NormalizeAddress(address)
	if addr == "" {
		return "", time.Time{}, errors.New("validation: empty address")
	}
	if len(i.key) == 0 {
		return "", time.Time{}, errors.New("validation: empty signing key")
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   addr,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign: %w", err)
	}
	return tok, exp, nil
}

// Parse verifies token against key and returns the normalized address it carries.
// Failures wrap errs.ErrUnauthorized.
func Parse(key []byte, token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(Leeway))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	addr := model.NormalizeAddress(claims.Subject)
	if addr == "" {
		return "", fmt.Errorf("%w: empty subject", errs.ErrUnauthorized)
	}
	return addr, nil
}
