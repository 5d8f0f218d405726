package analysis

import "errors"

var (
	ErrEmptyText   = errors.New("text to analyze cannot be empty")
	ErrNoCredits   = errors.New("no guest credits remaining")
	ErrTextTooLong = errors.New("text exceeds guest character limit")
	ErrBusy        = errors.New("an analysis is already in progress")
	ErrNoAnalysis  = errors.New("no analysis available for report")
	// ErrUnsupportedFile is returned by extractors for file types they cannot read.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrSessionNotFound is returned by the session manager for unknown ids.
	ErrSessionNotFound = errors.New("analysis session not found")
)
