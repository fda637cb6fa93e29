// Package auth verifies bearer tokens and resolves the owner of a request.
//
// Tokens are JWS (JSON Web Signature) with HS256, owner id in the subject
// claim. There is no user database behind this; whoever holds a token signed
// with the shared secret is the owner the token names.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	apierr "github.com/felafax/split/pkg/api/types/errors"
)

var ErrInvalidToken error = errors.New("invalid token")

// context key the middleware stores the verified owner id under.
const ContextKeyOwnerId = "ownerId"

// NewJWS signs a token naming ownerId as subject.
func NewJWS(secret []byte, ownerId string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   ownerId,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}

// VerifyJWS verifies a token and returns the owner id in its subject claim.
func VerifyJWS(secret []byte, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected alg: %s", ErrInvalidToken, t.Method.Alg())
			}
			return secret, nil
		},
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) ||
			errors.Is(err, jwt.ErrSignatureInvalid) ||
			errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.Join(ErrInvalidToken, err)
		}
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Middleware resolves the owner from the Authorization header.
//
// A request with a valid bearer token gets its owner id stored in the echo
// context under ContextKeyOwnerId. A request without the header passes
// through anonymously (owner id empty); handlers that require an owner
// should check with Owner. A request with an invalid token is rejected.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				return apierr.Unauthorized("bearer token is required", nil)
			}

			ownerId, err := VerifyJWS(secret, token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					return apierr.Unauthorized("token is invalid or expired", err)
				}
				return apierr.InternalServerError(err)
			}

			c.Set(ContextKeyOwnerId, ownerId)
			return next(c)
		}
	}
}

// Owner returns the owner id the middleware resolved, or "" for anonymous.
func Owner(c echo.Context) string {
	if ownerId, ok := c.Get(ContextKeyOwnerId).(string); ok {
		return ownerId
	}
	return ""
}
