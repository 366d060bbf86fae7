// Package auth signs and verifies bearer tokens and checks passwords for
// the admin, tenant and mobile surfaces.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zawnaing-2024/vmaster/internal/config"
	"github.com/zawnaing-2024/vmaster/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const issuer = "vmaster"

type Claims struct {
	Role     core.Role `json:"role"`
	TenantID string    `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        core.Role `json:"role"`
}

// Issuer signs HS256 tokens. End user (mobile) tokens get their own TTL.
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
	mobileTTL time.Duration
	now       func() time.Time
}

func NewIssuer(cfg config.AuthConfig) *Issuer {
	return &Issuer{
		secret:    []byte(cfg.JWTSecret),
		accessTTL: cfg.AccessTTL,
		mobileTTL: cfg.MobileTokenTTL,
		now:       time.Now,
	}
}

// WithClock returns a copy of i that reads the current time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

func (i *Issuer) Issue(actor core.Actor) (*Token, error) {
	ttl := i.accessTTL
	if actor.Role == core.RoleEndUser {
		ttl = i.mobileTTL
	}
	now := i.now()
	exp := now.Add(ttl)

	claims := Claims{
		Role:     actor.Role,
		TenantID: actor.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{AccessToken: signed, ExpiresAt: exp, Role: actor.Role}, nil
}

// Parse verifies signature, issuer and expiry and returns the actor the
// token was issued to.
func (i *Issuer) Parse(tokenString string) (core.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return core.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch claims.Role {
	case core.RoleAdmin, core.RoleTenant, core.RoleEndUser:
	default:
		return core.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return core.Actor{Role: claims.Role, ID: claims.Subject, TenantID: claims.TenantID}, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
