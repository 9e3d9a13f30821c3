package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultAudience is the audience Supabase stamps on user access tokens.
const DefaultAudience = "authenticated"

// JWTResolver verifies access tokens locally, either with a shared HS256
// secret or with keys fetched from a JWKS endpoint.
type JWTResolver struct {
	secret   []byte
	jwksURL  string
	cache    *jwk.Cache
	audience string
}

// NewHS256Resolver verifies tokens signed with secret.
func NewHS256Resolver(secret []byte, audience string) *JWTResolver {
	if audience == "" {
		audience = DefaultAudience
	}
	return &JWTResolver{secret: secret, audience: audience}
}

// NewJWKSResolver verifies tokens with keys from jwksURL. The key set is cached
// and refreshed at most every 15 minutes.
func NewJWKSResolver(ctx context.Context, jwksURL, audience string) (*JWTResolver, error) {
	if audience == "" {
		audience = DefaultAudience
	}
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}
	return &JWTResolver{jwksURL: jwksURL, cache: cache, audience: audience}, nil
}

func (r *JWTResolver) Resolve(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, &AuthError{Reason: "no bearer token", Err: ErrMissingCredential}
	}

	opts := []jwt.ParseOption{jwt.WithValidate(true), jwt.WithAudience(r.audience)}
	if r.cache != nil {
		keyset, err := r.cache.Get(ctx, r.jwksURL)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to get JWKS: %w", err)
		}
		opts = append(opts, jwt.WithKeySet(keyset))
	} else {
		opts = append(opts, jwt.WithKey(jwa.HS256, r.secret))
	}

	token, err := jwt.Parse([]byte(credential), opts...)
	if err != nil {
		return Identity{}, &AuthError{Reason: "invalid token", Err: err}
	}
	if token.Subject() == "" {
		return Identity{}, &AuthError{Reason: "token has no subject"}
	}

	id := Identity{UserID: token.Subject(), Token: credential}
	if v, ok := token.Get("email"); ok {
		id.Email, _ = v.(string)
	}
	if v, ok := token.Get("role"); ok {
		id.Role, _ = v.(string)
	}
	if claims, err := json.Marshal(token); err == nil {
		id.Claims = claims
	}
	return id, nil
}

// IssueHS256 signs a token for subject. It is used by tests and local tooling.
func IssueHS256(secret []byte, subject, email string, ttl time.Duration) (string, error) {
	tok, err := jwt.NewBuilder().
		Subject(subject).
		Audience([]string{DefaultAudience}).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(ttl)).
		Claim("email", email).
		Claim("role", "authenticated").
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
