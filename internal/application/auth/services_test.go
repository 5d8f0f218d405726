package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	domain "github.com/bryanwahyu/trustai-client/internal/domain/auth"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, k string) (string, bool, error) {
	v, ok := m[k]
	return v, ok, nil
}

func (m mapStore) Set(_ context.Context, k, v string) error {
	m[k] = v
	return nil
}

func (m mapStore) Remove(_ context.Context, k string) error {
	delete(m, k)
	return nil
}

type fakeBackend struct {
	user      domain.User
	token     string
	err       error
	updateErr error
	signups   int
	updates   []domain.ProfileUpdate
	resets    int
}

func (f *fakeBackend) Signup(ctx context.Context, req domain.Signup) (domain.User, error) {
	f.signups++
	return domain.User{ID: "u1", Email: req.Email, Name: req.Name}, f.err
}

func (f *fakeBackend) Login(ctx context.Context, c domain.Credentials) (domain.TokenResponse, error) {
	if f.err != nil {
		return domain.TokenResponse{}, f.err
	}
	return domain.TokenResponse{AccessToken: f.token, TokenType: "bearer", User: f.user}, nil
}

func (f *fakeBackend) GoogleLogin(ctx context.Context, credential string) (domain.TokenResponse, error) {
	return f.Login(ctx, domain.Credentials{})
}

func (f *fakeBackend) Me(ctx context.Context) (domain.User, error) { return f.user, f.err }

func (f *fakeBackend) UpdateMe(ctx context.Context, u domain.ProfileUpdate) (domain.User, error) {
	f.updates = append(f.updates, u)
	if f.updateErr != nil {
		return domain.User{}, f.updateErr
	}
	out := f.user
	if u.Name != nil {
		out.Name = *u.Name
	}
	return out, nil
}

func (f *fakeBackend) ForgotPassword(ctx context.Context, email string) error { return f.err }

func (f *fakeBackend) ResetPassword(ctx context.Context, token, pw string) error {
	f.resets++
	return f.err
}

func TestLogin_PersistsSession(t *testing.T) {
	store := mapStore{}
	b := &fakeBackend{token: "tok", user: domain.User{ID: "u1", Email: "a@b.c", Name: "Ada Byron Lovelace", Bio: "math"}}
	s := &Service{Backend: b, Local: store}

	u, err := s.Login(context.Background(), domain.Credentials{Email: " a@b.c ", Password: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || s.Token() != "tok" || !s.HasToken() {
		t.Fatalf("session not established: %+v token=%q", u, s.Token())
	}
	if store[domain.TokenKey] != "tok" {
		t.Fatalf("token not persisted: %v", store)
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(store[domain.ProfileKey]), &p); err != nil {
		t.Fatal(err)
	}
	if p.FirstName != "Ada" || p.LastName != "Byron Lovelace" || p.Bio != "math" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	restored := &Service{Backend: b, Local: store}
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if restored.Token() != "tok" || restored.Profile().FirstName != "Ada" {
		t.Fatal("restore lost the session")
	}
	if _, ok := restored.User(); !ok {
		t.Fatal("restore lost the user")
	}

	if err := s.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.HasToken() || len(store) != 0 {
		t.Fatalf("logout left state behind: %v", store)
	}
}

func TestLogin_Errors(t *testing.T) {
	s := &Service{Backend: &fakeBackend{err: errors.New("401")}, Local: mapStore{}}
	if _, err := s.Login(context.Background(), domain.Credentials{Email: " "}); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := s.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "x"}); err == nil {
		t.Fatal("expected backend error")
	}
	if s.HasToken() {
		t.Fatal("failed login must not store a token")
	}

	empty := &Service{Backend: &fakeBackend{}, Local: mapStore{}}
	if _, err := empty.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "x"}); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestSignup_PasswordPolicy(t *testing.T) {
	tests := []struct {
		pw   string
		weak bool
	}{
		{"short1A", true},
		{"alllower1", true},
		{"ALLUPPER1", true},
		{"NoDigitsHere", true},
		{"Valid123", false},
	}
	for _, tt := range tests {
		t.Run(tt.pw, func(t *testing.T) {
			b := &fakeBackend{}
			s := &Service{Backend: b, Local: mapStore{}}
			_, err := s.Signup(context.Background(), domain.Signup{Email: "a@b.c", Name: "Ada", Password: tt.pw})
			if got := errors.Is(err, domain.ErrWeakPassword); got != tt.weak {
				t.Fatalf("weak = %v, want %v (err %v)", got, tt.weak, err)
			}
			if tt.weak && b.signups != 0 {
				t.Fatal("weak password reached the backend")
			}
			if !tt.weak && s.HasToken() {
				t.Fatal("signup must not log in")
			}
		})
	}
}

func TestUpdateProfile_OptimisticAndTolerant(t *testing.T) {
	store := mapStore{}
	b := &fakeBackend{token: "tok", user: domain.User{ID: "u1", Name: "Ada Lovelace"}, updateErr: errors.New("500")}
	s := &Service{Backend: b, Local: store}
	if _, err := s.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "x"}); err != nil {
		t.Fatal(err)
	}

	first, bio := "Augusta", "poet"
	p := s.UpdateProfile(context.Background(), ProfileChanges{FirstName: &first, Bio: &bio})
	if p.FirstName != "Augusta" || p.Bio != "poet" || s.Profile().FirstName != "Augusta" {
		t.Fatalf("local edit not applied: %+v", p)
	}
	if len(b.updates) != 1 || b.updates[0].Name == nil || *b.updates[0].Name != "Augusta Lovelace" {
		t.Fatalf("unexpected backend update: %+v", b.updates)
	}
}

func TestRefresh(t *testing.T) {
	b := &fakeBackend{token: "tok", user: domain.User{ID: "u1", Name: "Grace Hopper"}}
	s := &Service{Backend: b, Local: mapStore{}}
	if _, err := s.Refresh(context.Background()); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("refresh without token: %v", err)
	}
	if _, err := s.Login(context.Background(), domain.Credentials{Email: "g@h.c", Password: "x"}); err != nil {
		t.Fatal(err)
	}
	b.user.Name = "Grace Brewster Hopper"
	p, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.LastName != "Brewster Hopper" {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestResetPassword(t *testing.T) {
	b := &fakeBackend{}
	s := &Service{Backend: b, Local: mapStore{}}
	if err := s.ResetPassword(context.Background(), "", "Valid123"); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("missing token: %v", err)
	}
	if err := s.ResetPassword(context.Background(), "t", "weak"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("weak: %v", err)
	}
	if err := s.ResetPassword(context.Background(), "t", "Valid123"); err != nil || b.resets != 1 {
		t.Fatalf("reset: %v resets=%d", err, b.resets)
	}
	if err := s.ForgotPassword(context.Background(), "  "); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("forgot: %v", err)
	}
}
