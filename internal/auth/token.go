// Package auth verifies bearer tokens issued elsewhere and guards privileged routes.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/atelier-erp/atelier/internal/shared"
)

// Claims is the token payload: the subject is the numeric user id.
type Claims struct {
	jwtlib.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
}

// Verifier parses HS256 tokens and checks the manager PIN.
type Verifier struct {
	secret     []byte
	managerPIN []byte
}

// NewVerifier constructs a Verifier. An empty managerPIN disables the PIN check.
func NewVerifier(secret, managerPIN string) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("auth: secret must be at least 32 bytes")
	}
	v := &Verifier{secret: []byte(secret)}
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("auth: hash manager pin: %w", err)
		}
		v.managerPIN = hashed
	}
	return v, nil
}

// ParseToken validates the token signature and expiry and returns its actor.
func (v *Verifier) ParseToken(token string) (shared.Actor, error) {
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return shared.Actor{}, fmt.Errorf("%w: invalid or expired token", shared.ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return shared.Actor{}, fmt.Errorf("%w: missing token subject", shared.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return shared.Actor{}, fmt.Errorf("%w: token subject is not a user id", shared.ErrUnauthorized)
	}
	return shared.Actor{ID: id, Name: claims.Name, Role: claims.Role}, nil
}

// PINRequired reports whether a manager PIN was configured.
func (v *Verifier) PINRequired() bool {
	return len(v.managerPIN) > 0
}

// ValidateManagerPIN reports whether pin matches the configured manager PIN.
func (v *Verifier) ValidateManagerPIN(pin string) bool {
	if !v.PINRequired() {
		return true
	}
	input := strings.TrimSpace(pin)
	if input == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.managerPIN, []byte(input)) == nil
}
