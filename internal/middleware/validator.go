package middleware

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

var (
	idPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	hexObjectID = regexp.MustCompile(`^[a-f0-9]{24}$`)
)

// ValidateProjectID accepts backend ids (hex object ids or slugs) and local
// pending ids.
func ValidateProjectID(id string) error {
	if id == "" {
		return fmt.Errorf("project ID cannot be empty")
	}
	if hexObjectID.MatchString(id) || idPattern.MatchString(id) {
		return nil
	}
	return fmt.Errorf("invalid project ID format")
}

// ValidateResourceID is used for note and file ids.
func ValidateResourceID(kind, id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid %s ID format", kind)
	}
	return nil
}

// ValidateSessionID requires a UUID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}
	return nil
}

// ValidateEmail checks a bare address.
func ValidateEmail(email string) error {
	a, err := mail.ParseAddress(email)
	if err != nil || a.Address != email {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidateFilename rejects names carrying directories or traversal.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("invalid filename")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
