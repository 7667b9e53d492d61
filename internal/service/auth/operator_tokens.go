// Package auth issues and validates the operator tokens that guard the
// mutating diagnostics endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-gen/internal/config"
	"github.com/phrazzld/scry-gen/internal/platform/logger"
)

// OperatorScope is the only scope accepted by Validate.
const OperatorScope = "operator"

const (
	minSecretLength = 32
	defaultLifetime = time.Hour
	clockSkew       = 2 * time.Minute
)

// Claims is the validated content of an operator token.
type Claims struct {
	Subject   string
	Scope     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type operatorClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// OperatorTokens signs and verifies HS256 operator tokens.
type OperatorTokens struct {
	signingKey []byte
	lifetime   time.Duration
	timeFunc   func() time.Time
}

// NewOperatorTokens builds a token service from cfg.
func NewOperatorTokens(cfg config.AuthConfig) (*OperatorTokens, error) {
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	lifetime := time.Duration(cfg.TokenLifetimeMinutes) * time.Minute
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}
	return &OperatorTokens{
		signingKey: []byte(cfg.JWTSecret),
		lifetime:   lifetime,
		timeFunc:   time.Now,
	}, nil
}

// WithClock replaces the time source, for tests.
func (o *OperatorTokens) WithClock(now func() time.Time) *OperatorTokens {
	o.timeFunc = now
	return o
}

// Issue signs a token for subject with the operator scope.
func (o *OperatorTokens) Issue(ctx context.Context, subject string) (string, error) {
	return o.issue(ctx, subject, OperatorScope)
}

func (o *OperatorTokens) issue(ctx context.Context, subject, scope string) (string, error) {
	now := o.timeFunc()
	claims := operatorClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(o.lifetime)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(o.signingKey)
	if err != nil {
		logger.FromContext(ctx).Error("failed to sign operator token",
			"error", err,
			"subject", subject)
		return "", fmt.Errorf("failed to sign operator token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and requires the operator scope.
func (o *OperatorTokens) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	now := o.timeFunc()
	token, err := jwt.ParseWithClaims(tokenString, &operatorClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return o.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("operator token expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
			log.Debug("operator token not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("operator token rejected", "error", err, "error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*operatorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != OperatorScope {
		log.Debug("operator token has wrong scope", "scope", claims.Scope)
		return nil, ErrWrongScope
	}

	out := &Claims{
		Subject: claims.Subject,
		Scope:   claims.Scope,
		ID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
