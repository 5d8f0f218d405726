// Package webstorage describes the key/value stores the client keeps state
// in: a session-scoped store for short-lived snapshots and a local store
// for the auth token and user profile.
package webstorage

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned when a store refuses a write because it is full.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store port. Get reports ok=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// PrefixRemover is implemented by stores that can drop every key starting
// with prefix in one call. It returns how many keys were removed.
type PrefixRemover interface {
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}
