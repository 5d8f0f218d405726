package auth

import (
	"strings"
	"time"
)

// Keys under which the session is kept in local storage.
const (
	TokenKey   = "token"
	UserKey    = "user"
	ProfileKey = "userProfile"
)

// User as returned by the auth API.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	Bio          string     `json:"bio,omitempty"`
	ProfileImage string     `json:"profile_image,omitempty"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// TokenResponse from login, signup with auto-login, and google login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// Credentials for email/password login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup request body.
type Signup struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// ProfileUpdate mirrors PUT /auth/me; nil fields are omitted.
type ProfileUpdate struct {
	Name         *string `json:"name,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	ProfileImage *string `json:"profile_image,omitempty"`
}

func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Bio == nil && u.ProfileImage == nil
}

// Profile is the denormalised user shown by the UI.
type Profile struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Bio          string `json:"bio"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ProfileFromUser splits the backend name into first and remaining words.
// A missing bio keeps the previous one.
func ProfileFromUser(u User, prev Profile) Profile {
	parts := strings.Fields(u.Name)
	p := Profile{Email: u.Email, Bio: prev.Bio, ProfileImage: u.ProfileImage}
	if len(parts) > 0 {
		p.FirstName = parts[0]
		p.LastName = strings.Join(parts[1:], " ")
	}
	if u.Bio != "" {
		p.Bio = u.Bio
	}
	return p
}
