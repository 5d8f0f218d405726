package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	domain "github.com/bryanwahyu/trustai-client/internal/domain/auth"
	"github.com/bryanwahyu/trustai-client/internal/domain/webstorage"
)

// Service keeps the login session: the bearer token, the backend user and
// the denormalised profile, persisted in local storage.
type Service struct {
	Backend domain.Backend
	Local   webstorage.Store
	Logger  *slog.Logger

	mu      sync.RWMutex
	token   string
	user    *domain.User
	profile domain.Profile
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Restore loads a previously persisted session. A corrupt user or profile
// entry is dropped; the token alone is enough to stay logged in.
func (s *Service) Restore(ctx context.Context) error {
	token, ok, err := s.Local.Get(ctx, domain.TokenKey)
	if err != nil {
		return fmt.Errorf("restore token: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.token = token
	}
	if raw, ok, err := s.Local.Get(ctx, domain.UserKey); err == nil && ok {
		var u domain.User
		if jerr := json.Unmarshal([]byte(raw), &u); jerr == nil {
			s.user = &u
		} else {
			s.logger().Warn("drop corrupt stored user", "err", jerr)
		}
	}
	if raw, ok, err := s.Local.Get(ctx, domain.ProfileKey); err == nil && ok {
		var p domain.Profile
		if jerr := json.Unmarshal([]byte(raw), &p); jerr == nil {
			s.profile = p
		} else {
			s.logger().Warn("drop corrupt stored profile", "err", jerr)
		}
	}
	return nil
}

// Token is the bearer token for the api client; empty when logged out.
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// HasToken reports whether a session token is present.
func (s *Service) HasToken() bool { return s.Token() != "" }

// User returns the logged-in backend user.
func (s *Service) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// Profile returns the locally kept profile.
func (s *Service) Profile() domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Login exchanges credentials for a token.
func (s *Service) Login(ctx context.Context, c domain.Credentials) (domain.User, error) {
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" || c.Password == "" {
		return domain.User{}, fmt.Errorf("%w: email and password", domain.ErrMissingField)
	}
	resp, err := s.Backend.Login(ctx, c)
	if err != nil {
		return domain.User{}, fmt.Errorf("login: %w", err)
	}
	return s.establish(ctx, resp)
}

// GoogleLogin exchanges a Google ID token for a session.
func (s *Service) GoogleLogin(ctx context.Context, credential string) (domain.User, error) {
	if strings.TrimSpace(credential) == "" {
		return domain.User{}, fmt.Errorf("%w: credential", domain.ErrMissingField)
	}
	resp, err := s.Backend.GoogleLogin(ctx, credential)
	if err != nil {
		return domain.User{}, fmt.Errorf("google login: %w", err)
	}
	return s.establish(ctx, resp)
}

func (s *Service) establish(ctx context.Context, resp domain.TokenResponse) (domain.User, error) {
	if resp.AccessToken == "" {
		return domain.User{}, fmt.Errorf("login: %w: empty access token", domain.ErrNotAuthenticated)
	}
	s.mu.Lock()
	s.token = resp.AccessToken
	u := resp.User
	s.user = &u
	s.profile = domain.ProfileFromUser(u, s.profile)
	profile := s.profile
	s.mu.Unlock()

	if err := s.Local.Set(ctx, domain.TokenKey, resp.AccessToken); err != nil {
		return u, fmt.Errorf("persist token: %w", err)
	}
	s.persist(ctx, domain.UserKey, u)
	s.persist(ctx, domain.ProfileKey, profile)
	s.logger().Info("logged in", "user_id", u.ID)
	return u, nil
}

func (s *Service) persist(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger().Warn("encode session value", "key", key, "err", err)
		return
	}
	if err := s.Local.Set(ctx, key, string(b)); err != nil {
		s.logger().Warn("persist session value", "key", key, "err", err)
	}
}

// Signup registers an account. The password policy is checked before any
// request is sent. It does not log in.
func (s *Service) Signup(ctx context.Context, req domain.Signup) (domain.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" {
		return domain.User{}, fmt.Errorf("%w: name and email", domain.ErrMissingField)
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return domain.User{}, err
	}
	u, err := s.Backend.Signup(ctx, req)
	if err != nil {
		return domain.User{}, fmt.Errorf("signup: %w", err)
	}
	return u, nil
}

// Logout forgets the session locally.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.profile = domain.Profile{}
	s.mu.Unlock()

	var errs []error
	for _, k := range []string{domain.TokenKey, domain.UserKey, domain.ProfileKey} {
		if err := s.Local.Remove(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Refresh reloads the user from GET /auth/me.
func (s *Service) Refresh(ctx context.Context) (domain.Profile, error) {
	if !s.HasToken() {
		return domain.Profile{}, domain.ErrNotAuthenticated
	}
	u, err := s.Backend.Me(ctx)
	if err != nil {
		return s.Profile(), fmt.Errorf("fetch profile: %w", err)
	}
	s.mu.Lock()
	s.user = &u
	s.profile = domain.ProfileFromUser(u, s.profile)
	profile := s.profile
	s.mu.Unlock()

	s.persist(ctx, domain.UserKey, u)
	s.persist(ctx, domain.ProfileKey, profile)
	return profile, nil
}

// ProfileChanges is a partial profile edit; nil fields are untouched.
type ProfileChanges struct {
	FirstName    *string `json:"firstName,omitempty"`
	LastName     *string `json:"lastName,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

// UpdateProfile applies changes locally right away and then pushes them to
// PUT /auth/me. Backend failures are logged; the local edit stays.
func (s *Service) UpdateProfile(ctx context.Context, c ProfileChanges) domain.Profile {
	s.mu.Lock()
	p := s.profile
	if c.FirstName != nil {
		p.FirstName = strings.TrimSpace(*c.FirstName)
	}
	if c.LastName != nil {
		p.LastName = strings.TrimSpace(*c.LastName)
	}
	if c.Bio != nil {
		p.Bio = *c.Bio
	}
	if c.ProfileImage != nil {
		p.ProfileImage = *c.ProfileImage
	}
	s.profile = p
	authed := s.token != ""
	s.mu.Unlock()
	s.persist(ctx, domain.ProfileKey, p)

	var upd domain.ProfileUpdate
	if c.FirstName != nil || c.LastName != nil {
		name := p.FullName()
		upd.Name = &name
	}
	upd.Bio = c.Bio
	upd.ProfileImage = c.ProfileImage
	if upd.Empty() || !authed {
		return p
	}
	if u, err := s.Backend.UpdateMe(ctx, upd); err != nil {
		s.logger().Warn("update profile on backend", "err", err)
	} else {
		s.mu.Lock()
		s.user = &u
		s.mu.Unlock()
		s.persist(ctx, domain.UserKey, u)
	}
	return p
}

// ForgotPassword asks the backend to mail a reset link.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email", domain.ErrMissingField)
	}
	if err := s.Backend.ForgotPassword(ctx, email); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: reset token", domain.ErrMissingField)
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}
	if err := s.Backend.ResetPassword(ctx, token, newPassword); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}
