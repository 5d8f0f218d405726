package auth

import "context"

// Backend port for the auth endpoints.
type Backend interface {
	Signup(ctx context.Context, req Signup) (User, error)
	Login(ctx context.Context, c Credentials) (TokenResponse, error)
	GoogleLogin(ctx context.Context, credential string) (TokenResponse, error)
	Me(ctx context.Context) (User, error)
	UpdateMe(ctx context.Context, u ProfileUpdate) (User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}
