package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/existflow/promanage/internal/model"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse covers both shapes of a signup reply: a full session when the
// account is confirmed immediately, or just the user when confirmation is pending
type authResponse struct {
	model.Session
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (r *authResponse) session() *model.Session {
	if r.AccessToken == "" {
		return nil
	}
	s := r.Session
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Unix() + s.ExpiresIn
	}
	return &s
}

// SignUp registers a new account. The returned session is nil when the
// backend requires the email address to be confirmed first
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	resp, err := c.do(ctx, request{
		op:     "auth.signup",
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: password},
	})
	if err != nil {
		return nil, nil, err
	}

	var out authResponse
	if err := decode(resp.body, &out); err != nil {
		return nil, nil, err
	}
	if s := out.session(); s != nil {
		return s, &s.User, nil
	}
	return nil, &model.User{ID: out.ID, Email: out.Email}, nil
}

// SignInWithPassword exchanges credentials for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	return c.token(ctx, "password", credentials{Email: email, Password: password})
}

// RefreshSession exchanges a refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) token(ctx context.Context, grant string, body interface{}) (*model.Session, error) {
	resp, err := c.do(ctx, request{
		op:     "auth.token",
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
	})
	if err != nil {
		return nil, err
	}

	var out authResponse
	if err := decode(resp.body, &out); err != nil {
		return nil, err
	}
	s := out.session()
	if s == nil {
		return nil, errors.New("backend returned no access token")
	}
	return s, nil
}

// SignOut revokes the session behind the access token
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, request{
		op:     "auth.logout",
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  accessToken,
	})
	return err
}

// GetUser returns the user the access token belongs to
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	resp, err := c.do(ctx, request{
		op:     "auth.user",
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  accessToken,
	})
	if err != nil {
		return nil, err
	}

	var user model.User
	if err := decode(resp.body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendMagicLink asks the backend to email a one-time sign-in token. A local
// backend in dev mode also returns the token; hosted backends return ""
func (c *Client) SendMagicLink(ctx context.Context, email string) (string, error) {
	resp, err := c.do(ctx, request{
		op:     "auth.otp",
		method: http.MethodPost,
		path:   "/auth/v1/otp",
		body: map[string]interface{}{
			"email":       email,
			"create_user": true,
		},
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := decode(resp.body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// VerifyMagicLink exchanges an emailed token for a session
func (c *Client) VerifyMagicLink(ctx context.Context, email, token string) (*model.Session, error) {
	resp, err := c.do(ctx, request{
		op:     "auth.verify",
		method: http.MethodPost,
		path:   "/auth/v1/verify",
		body: map[string]string{
			"type":  "magiclink",
			"email": email,
			"token": token,
		},
	})
	if err != nil {
		return nil, err
	}

	var out authResponse
	if err := decode(resp.body, &out); err != nil {
		return nil, err
	}
	s := out.session()
	if s == nil {
		return nil, errors.New("backend returned no access token")
	}
	return s, nil
}
