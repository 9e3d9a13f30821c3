// Package auth resolves bearer credentials into user identities.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCredential is returned when no bearer token was supplied.
var ErrMissingCredential = errors.New("missing credential")

// Identity is an authenticated user. Claims holds the JSON claims forwarded to
// the database for row level security.
type Identity struct {
	UserID string          `json:"user_id"`
	Email  string          `json:"email,omitempty"`
	Role   string          `json:"role,omitempty"`
	Token  string          `json:"-"`
	Claims json.RawMessage `json:"-"`
}

// ClaimsJSON returns the identity claims, synthesising them when absent.
func (id Identity) ClaimsJSON() string {
	if len(id.Claims) > 0 {
		return string(id.Claims)
	}
	role := id.Role
	if role == "" {
		role = "authenticated"
	}
	b, _ := json.Marshal(map[string]string{"sub": id.UserID, "email": id.Email, "role": role})
	return string(b)
}

// AuthError reports an invalid, expired or missing credential.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Resolver maps a credential to an identity.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (Identity, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, credential string) (Identity, error)

func (f ResolverFunc) Resolve(ctx context.Context, credential string) (Identity, error) {
	return f(ctx, credential)
}

// BearerToken extracts the token from an Authorization header value. A value
// without the Bearer scheme is returned as-is.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// ServiceIdentity is the privileged identity used by operator tooling.
func ServiceIdentity(serviceKey string) Identity {
	return Identity{
		UserID: "service_role",
		Role:   "service_role",
		Token:  serviceKey,
		Claims: json.RawMessage(`{"role":"service_role"}`),
	}
}

// Settings select a resolver.
type Settings struct {
	JWTSecret   string
	JWKSURL     string
	Audience    string
	SupabaseURL string
	AnonKey     string
}

// NewResolver picks local HS256 verification when a secret is configured, JWKS
// verification when a JWKS URL is configured, and the remote GoTrue lookup
// otherwise.
func NewResolver(ctx context.Context, s Settings) (Resolver, error) {
	switch {
	case s.JWTSecret != "":
		return NewHS256Resolver([]byte(s.JWTSecret), s.Audience), nil
	case s.JWKSURL != "":
		return NewJWKSResolver(ctx, s.JWKSURL, s.Audience)
	case s.SupabaseURL != "":
		return NewGoTrueClient(s.SupabaseURL, s.AnonKey, nil), nil
	}
	return nil, errors.New("no credential resolver configured: set SUPABASE_JWT_SECRET, SUPABASE_JWKS_URL or VITE_PUBLIC_BASE_URL")
}
