package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bryanwahyu/trustai-client/internal/domain/analysis"
	"github.com/bryanwahyu/trustai-client/internal/domain/auth"
	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	StatusCode       int
	Detail           string
	RemainingCredits *int
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
}

// HTTPStatus lets callers outside this package read the status without
// depending on the concrete type.
func (e *HTTPError) HTTPStatus() int { return e.StatusCode }

// Message is the human readable detail, falling back to the status text.
func (e *HTTPError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return http.StatusText(e.StatusCode)
}

// Credits reports remaining_credits when the backend sent it.
func (e *HTTPError) Credits() (int, bool) {
	if e.RemainingCredits == nil {
		return 0, false
	}
	return *e.RemainingCredits, true
}

// Is maps backend statuses onto domain sentinels so application code can
// use errors.Is without importing this package.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case auth.ErrNotAuthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case projects.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case analysis.ErrNoCredits:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsUnauthorized reports whether err is a 401 from the backend, i.e. an
// expired or revoked token.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusUnauthorized
}

// decodeError reads the FastAPI error envelope: detail is a string, an
// object with message/remaining_credits, or a list of validation errors.
func decodeError(status int, body []byte) *HTTPError {
	he := &HTTPError{StatusCode: status}
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		he.Detail = strings.TrimSpace(string(body))
		return he
	}

	var s string
	if json.Unmarshal(env.Detail, &s) == nil {
		he.Detail = s
		return he
	}

	var obj struct {
		Message          string `json:"message"`
		RemainingCredits *int   `json:"remaining_credits"`
	}
	if json.Unmarshal(env.Detail, &obj) == nil && obj.Message != "" {
		he.Detail = obj.Message
		he.RemainingCredits = obj.RemainingCredits
		return he
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(env.Detail, &list) == nil && len(list) > 0 {
		msgs := make([]string, 0, len(list))
		for _, it := range list {
			msgs = append(msgs, it.Msg)
		}
		he.Detail = strings.Join(msgs, "; ")
		return he
	}

	he.Detail = string(env.Detail)
	return he
}
