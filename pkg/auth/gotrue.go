package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GoTrueClient talks to the Supabase auth server. It resolves credentials with
// GET /auth/v1/user and exposes the password sign-in and sign-up grants.
type GoTrueClient struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func NewGoTrueClient(supabaseURL, anonKey string, httpClient *http.Client) *GoTrueClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoTrueClient{
		baseURL: strings.TrimRight(supabaseURL, "/") + "/auth/v1",
		anonKey: anonKey,
		http:    httpClient,
	}
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Aud   string `json:"aud"`
}

func (c *GoTrueClient) Resolve(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, &AuthError{Reason: "no bearer token", Err: ErrMissingCredential}
	}
	var user gotrueUser
	status, err := c.do(ctx, http.MethodGet, "/user", credential, nil, &user)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return Identity{}, &AuthError{Reason: "invalid token", Err: err}
		}
		return Identity{}, fmt.Errorf("resolve user: %w", err)
	}
	if user.ID == "" {
		return Identity{}, &AuthError{Reason: "token did not resolve to a user"}
	}
	role := user.Role
	if role == "" {
		role = "authenticated"
	}
	claims, _ := json.Marshal(map[string]string{"sub": user.ID, "email": user.Email, "role": role, "aud": user.Aud})
	return Identity{UserID: user.ID, Email: user.Email, Role: role, Token: credential, Claims: claims}, nil
}

// Session is the part of a GoTrue token response the service needs. Raw keeps
// the full payload for the caller.
type Session struct {
	AccessToken string         `json:"access_token"`
	Raw         map[string]any `json:"-"`
}

// SignInWithPassword performs the password grant.
func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{"email": email, "password": password}
	var raw map[string]any
	if _, err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &raw); err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}
	token, _ := raw["access_token"].(string)
	if token == "" {
		return Session{}, fmt.Errorf("sign in: response carried no access token")
	}
	return Session{AccessToken: token, Raw: raw}, nil
}

// SignUp registers a user. The display name is stored as user metadata.
func (c *GoTrueClient) SignUp(ctx context.Context, email, password, displayName string) (map[string]any, error) {
	body := map[string]any{"email": email, "password": password}
	if displayName != "" {
		body["data"] = map[string]string{"display_name": displayName}
	}
	var raw map[string]any
	if _, err := c.do(ctx, http.MethodPost, "/signup", "", body, &raw); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	return raw, nil
}

func (c *GoTrueClient) do(ctx context.Context, method, path, bearer string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("gotrue %s %s: %d %s", method, path, resp.StatusCode, errorMessage(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode gotrue response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func errorMessage(data []byte) string {
	var body map[string]any
	if json.Unmarshal(data, &body) == nil {
		for _, key := range []string{"msg", "error_description", "message", "error"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(data))
}
