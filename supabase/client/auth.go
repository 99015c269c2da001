package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// =============================================================================
// Auth Operations (GoTrue)
// =============================================================================

// Auth returns an auth client.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles authentication operations.
type AuthClient struct {
	client *Client
}

// SignUpParams is the payload for creating an account. Data is stored as the
// user's metadata.
type SignUpParams struct {
	Email    string
	Password string
	Data     map[string]any
}

// SignUp creates a new user. When email confirmation is required the
// response carries the user but no session tokens.
func (a *AuthClient) SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error) {
	payload := map[string]any{
		"email":    params.Email,
		"password": params.Password,
	}
	if len(params.Data) > 0 {
		payload["data"] = params.Data
	}

	resp, err := a.post(ctx, "/auth/v1/signup", payload, "")
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := resp.JSON(&authResp); err != nil {
		return nil, err
	}
	if authResp.User == nil && authResp.AccessToken == "" {
		var user User
		if err := resp.JSON(&user); err != nil {
			return nil, err
		}
		if user.ID != "" {
			authResp.User = &user
		}
	}
	return &authResp, nil
}

// SignInWithPassword exchanges an email and password for a session.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	return a.token(ctx, "password", map[string]any{
		"email":    email,
		"password": password,
	})
}

// RefreshSession exchanges a refresh token for a new session.
func (a *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	return a.token(ctx, "refresh_token", map[string]any{
		"refresh_token": refreshToken,
	})
}

// SignOut revokes the session identified by accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	_, err := a.post(ctx, "/auth/v1/logout", nil, accessToken)
	return err
}

// ResetPasswordForEmail sends a recovery email. redirectTo is where the
// emailed link lands; empty uses the project's site URL.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/auth/v1/recover"
	if redirectTo != "" {
		path += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}
	_, err := a.post(ctx, path, map[string]any{"email": email}, "")
	return err
}

// GetUser gets the user owning accessToken.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	a.client.setHeaders(req)

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}

	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *AuthClient) token(ctx context.Context, grantType string, payload map[string]any) (*AuthResponse, error) {
	resp, err := a.post(ctx, "/auth/v1/token?grant_type="+url.QueryEscape(grantType), payload, "")
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := resp.JSON(&authResp); err != nil {
		return nil, err
	}
	if authResp.AccessToken == "" || authResp.User == nil {
		return nil, fmt.Errorf("token response missing session")
	}
	return &authResp, nil
}

func (a *AuthClient) post(ctx context.Context, path string, payload any, bearer string) (*Response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	a.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	return a.client.do(req)
}

// AuthResponse is the response from auth operations.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Expiry returns when the access token expires, preferring the absolute
// expires_at over expires_in.
func (r *AuthResponse) Expiry(now time.Time) time.Time {
	if r.ExpiresAt > 0 {
		return time.Unix(r.ExpiresAt, 0)
	}
	if r.ExpiresIn > 0 {
		return now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

// User represents a Supabase user.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	Role             string         `json:"role"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	AppMetadata      map[string]any `json:"app_metadata"`
	UserMetadata     map[string]any `json:"user_metadata"`
}
