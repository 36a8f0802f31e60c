// Package auth verifies bearer tokens and resolves the caller's identity from
// request or connection contexts. Token issuance lives elsewhere; Sign exists
// for tests and local tooling.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"localbiz-chat/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity claims carried by an access token.
// Subject holds the numeric user id.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenVerifier validates HS256 access tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Verify parses and validates a signed token.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Sign issues a token for the given identity. Used by tests and tooling.
func (v *TokenVerifier) Sign(identity domain.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.ID, 10),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  identity.Name,
		Email: identity.Email,
		Role:  identity.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type contextKey string

const claimsKey contextKey = "auth_claims"

// WithClaims stores verified claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the raw claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// IdentityFromContext resolves the caller. It fails closed with
// domain.ErrUnauthenticated when claims are missing or the subject is not an integer.
func IdentityFromContext(ctx context.Context) (*domain.Identity, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q is not numeric", domain.ErrUnauthenticated, claims.Subject)
	}
	return &domain.Identity{
		ID:    id,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}

// WithIdentity is a convenience for tests and internal callers that already hold an identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return WithClaims(ctx, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.FormatInt(identity.ID, 10)},
		Name:             identity.Name,
		Email:            identity.Email,
		Role:             identity.Role,
	})
}
