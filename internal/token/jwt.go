// Package token issues and validates the bearer tokens that guard the admin
// endpoints. Tokens are HS256 JWTs signed with the configured admin secret and
// must carry the "admin" scope.
package token

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/models"
)

// ScopeAdmin is required on every admin token.
const ScopeAdmin = "admin"

// Claims are the JWT claims of an admin token.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Service signs and validates admin tokens.
type Service interface {
	// GenerateAdminToken signs a token for subject that expires after ttl.
	GenerateAdminToken(subject string, ttl time.Duration) (string, error)
	// ValidateAdminToken checks signature, issuer, expiry and the admin scope.
	ValidateAdminToken(tokenString string) (*Claims, error)
}

// JWTService implements Service with HMAC-SHA256.
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a JWT service from the admin configuration.
func NewJWTService(cfg *config.AdminConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		now:    time.Now,
	}
}

// GenerateAdminToken implements Service.
func (s *JWTService) GenerateAdminToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := s.now()
	claims := &Claims{
		Scopes: []string{ScopeAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// ValidateAdminToken implements Service. Every failure is reported as
// models.ErrUnauthorized.
func (s *JWTService) ValidateAdminToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}
	if !claims.HasScope(ScopeAdmin) {
		return nil, fmt.Errorf("%w: missing %s scope", models.ErrUnauthorized, ScopeAdmin)
	}
	return claims, nil
}
