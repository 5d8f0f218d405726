package projects

import "errors"

var (
	// ErrNotFound is returned when a project is not present in the store or on the backend.
	ErrNotFound = errors.New("project not found")

	// ErrEmptyName rejects blank project names before any request is sent.
	ErrEmptyName = errors.New("project name cannot be empty")

	// ErrEmptyNote rejects blank note content.
	ErrEmptyNote = errors.New("note content cannot be empty")
)
