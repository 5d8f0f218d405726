package api

import (
	"context"
	"net/http"

	"github.com/bryanwahyu/trustai-client/internal/domain/auth"
)

// AuthAPI implements auth.Backend.
type AuthAPI struct {
	c *Client
}

var _ auth.Backend = (*AuthAPI)(nil)

func (a *AuthAPI) Signup(ctx context.Context, req auth.Signup) (auth.User, error) {
	var out auth.User
	err := a.c.postJSON(ctx, "/auth/signup", false, req, &out)
	return out, err
}

func (a *AuthAPI) Login(ctx context.Context, c auth.Credentials) (auth.TokenResponse, error) {
	var out auth.TokenResponse
	err := a.c.postJSON(ctx, "/auth/login", false, c, &out)
	return out, err
}

func (a *AuthAPI) GoogleLogin(ctx context.Context, credential string) (auth.TokenResponse, error) {
	var out auth.TokenResponse
	err := a.c.postJSON(ctx, "/auth/google", false, map[string]string{"credential": credential}, &out)
	return out, err
}

func (a *AuthAPI) Me(ctx context.Context) (auth.User, error) {
	var out auth.User
	err := a.c.getJSON(ctx, "/auth/me", true, &out)
	return out, err
}

func (a *AuthAPI) UpdateMe(ctx context.Context, u auth.ProfileUpdate) (auth.User, error) {
	var out auth.User
	err := a.c.do(ctx, http.MethodPut, "/auth/me", true, u, &out)
	return out, err
}

func (a *AuthAPI) ForgotPassword(ctx context.Context, email string) error {
	return a.c.postJSON(ctx, "/auth/forgot-password", false, map[string]string{"email": email}, nil)
}

func (a *AuthAPI) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "new_password": newPassword}
	return a.c.postJSON(ctx, "/auth/reset-password", false, body, nil)
}
