// Package auth mints and verifies the HS256 bearer tokens carried by
// marketplace callers.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// clockSkew tolerated between the issuing service and this one.
const clockSkew = 30 * time.Second

var (
	ErrNoSecret    = errors.New("auth: jwt secret is required")
	ErrInvalidRole = errors.New("auth: invalid actor role")
	ErrNoUser      = errors.New("auth: user id is required")
)

type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	// JTI defaults to a random uuid.
	JTI string
}

type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

func (c AccessTokenClaims) check() error {
	if c.UserID == uuid.Nil {
		return ErrNoUser
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("%w %q", ErrInvalidRole, c.Role)
	}
	return nil
}

func MintAccessToken(cfg config.JWTConfig, now time.Time, p AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrNoSecret
	case cfg.Issuer == "":
		return "", errors.New("auth: jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", fmt.Errorf("auth: expiration must be positive, got %d minutes", cfg.ExpirationMinutes)
	}

	claims := AccessTokenClaims{UserID: p.UserID, Role: p.Role}
	if err := claims.check(); err != nil {
		return "", err
	}
	jti := strings.TrimSpace(p.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   p.UserID.String(),
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then the marketplace claims.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)

	var claims AccessTokenClaims
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if err := claims.check(); err != nil {
		return nil, err
	}
	return &claims, nil
}
