package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/trustai-client/internal/domain/webstorage"
)

const storageSchema = `
CREATE TABLE IF NOT EXISTS client_storage (
  scope         VARCHAR(32)  NOT NULL,
  storage_key   VARCHAR(255) NOT NULL,
  storage_value MEDIUMTEXT   NOT NULL,
  updated_at    DATETIME(3)  NOT NULL,
  PRIMARY KEY (scope, storage_key)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// StorageRepository is a webstorage.Store backed by one MySQL table,
// partitioned by scope ("session" or "local").
type StorageRepository struct {
	db    *sql.DB
	scope string
}

var (
	_ webstorage.Store         = (*StorageRepository)(nil)
	_ webstorage.PrefixRemover = (*StorageRepository)(nil)
)

// NewStorageRepository creates the table if needed.
func NewStorageRepository(ctx context.Context, db *sql.DB, scope string) (*StorageRepository, error) {
	if _, err := db.ExecContext(ctx, storageSchema); err != nil {
		return nil, fmt.Errorf("creating client_storage: %w", err)
	}
	return &StorageRepository{db: db, scope: scopeOrDash(scope)}, nil
}

func (r *StorageRepository) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `SELECT storage_value FROM client_storage WHERE scope=? AND storage_key=? LIMIT 1;`
	var v string
	err := r.db.QueryRowContext(ctx, q, r.scope, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *StorageRepository) Set(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO client_storage (scope, storage_key, storage_value, updated_at)
VALUES (?,?,?,?)
ON DUPLICATE KEY UPDATE
  storage_value=VALUES(storage_value), updated_at=VALUES(updated_at);
`
	_, err := r.db.ExecContext(ctx, q, r.scope, key, value, time.Now().UTC())
	return err
}

func (r *StorageRepository) Remove(ctx context.Context, key string) error {
	const q = `DELETE FROM client_storage WHERE scope=? AND storage_key=?;`
	_, err := r.db.ExecContext(ctx, q, r.scope, key)
	return err
}

// Purge deletes entries of this scope not written since cutoff. Session
// scope is purged at startup so it behaves like short-lived storage.
func (r *StorageRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM client_storage WHERE scope=? AND updated_at < ?;`
	res, err := r.db.ExecContext(ctx, q, r.scope, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RemovePrefix deletes every key of this scope that starts with prefix.
func (r *StorageRepository) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM client_storage WHERE scope=? AND storage_key LIKE ? ESCAPE '!';`, r.scope, likePrefix(prefix))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
