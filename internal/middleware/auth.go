// Package middleware provides HTTP middleware for the portal.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/printflow/portal/internal/errors"
	"github.com/printflow/portal/internal/logging"
	"github.com/printflow/portal/supabase/client"
)

// Claims is the verified content of a Supabase access token.
type Claims struct {
	UserID       string
	Email        string
	Role         string
	UserMetadata map[string]interface{}
	ExpiresAt    time.Time
}

// UserFetcher resolves a token remotely. *client.AuthClient satisfies it.
type UserFetcher interface {
	GetUser(ctx context.Context, accessToken string) (*client.User, error)
}

// TokenVerifier validates Supabase access tokens, locally with the project
// JWT secret when configured and otherwise against the auth API.
type TokenVerifier struct {
	secret []byte
	remote UserFetcher
	logger *logging.Logger
	now    func() time.Time
}

// NewTokenVerifier creates a verifier. Either secret or remote must be set.
func NewTokenVerifier(secret string, remote UserFetcher, logger *logging.Logger) *TokenVerifier {
	v := &TokenVerifier{remote: remote, logger: logger, now: time.Now}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

// Verify returns the claims of a valid token.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, errors.Unauthorized("Missing bearer token")
	}
	if len(v.secret) > 0 {
		claims, err := v.verifyLocal(token)
		if err == nil {
			return claims, nil
		}
		if v.remote == nil {
			return nil, errors.InvalidToken(err)
		}
		v.logger.WithContext(ctx).WithError(err).Debug("Local token verification failed, asking auth API")
	}
	if v.remote == nil {
		return nil, errors.InvalidToken(fmt.Errorf("no verification method configured"))
	}

	user, err := v.remote.GetUser(ctx, token)
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	claims := &Claims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		UserMetadata: user.UserMetadata,
	}
	// The auth API does not return expiry; read it without trusting the signature.
	if parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); err == nil {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			claims.ExpiresAt = exp.Time
		}
	}
	return claims, nil
}

func (v *TokenVerifier) verifyLocal(token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, mc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("jwt parse: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("jwt invalid")
	}

	claims := &Claims{
		UserID:       getStringClaim(mc, "sub"),
		Email:        getStringClaim(mc, "email"),
		Role:         getStringClaim(mc, "role"),
		UserMetadata: getMapClaim(mc, "user_metadata"),
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("jwt missing subject")
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func getMapClaim(claims jwt.MapClaims, key string) map[string]interface{} {
	if v, ok := claims[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}
