package auth

import "errors"

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrWeakPassword     = errors.New("password does not meet requirements")
	ErrMissingField     = errors.New("required field is empty")
)
