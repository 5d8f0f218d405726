package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/trustai-client/internal/domain/webstorage"
)

const storageSchema = `
CREATE TABLE IF NOT EXISTS client_storage (
  scope         VARCHAR(32)  NOT NULL,
  storage_key   VARCHAR(255) NOT NULL,
  storage_value TEXT         NOT NULL,
  updated_at    TIMESTAMPTZ  NOT NULL,
  PRIMARY KEY (scope, storage_key)
);
`

// StorageRepository is the Postgres flavour of the client_storage table.
type StorageRepository struct {
	db    *sql.DB
	scope string
}

var (
	_ webstorage.Store         = (*StorageRepository)(nil)
	_ webstorage.PrefixRemover = (*StorageRepository)(nil)
)

func NewStorageRepository(ctx context.Context, db *sql.DB, scope string) (*StorageRepository, error) {
	if _, err := db.ExecContext(ctx, storageSchema); err != nil {
		return nil, fmt.Errorf("creating client_storage: %w", err)
	}
	if strings.TrimSpace(scope) == "" {
		scope = "-"
	}
	return &StorageRepository{db: db, scope: scope}, nil
}

func (r *StorageRepository) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `SELECT storage_value FROM client_storage WHERE scope=$1 AND storage_key=$2 LIMIT 1;`
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
VALUES ($1,$2,$3,$4)
ON CONFLICT (scope, storage_key) DO UPDATE SET
  storage_value = EXCLUDED.storage_value,
  updated_at = EXCLUDED.updated_at;
`
	_, err := r.db.ExecContext(ctx, q, r.scope, key, value, time.Now().UTC())
	return err
}

func (r *StorageRepository) Remove(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM client_storage WHERE scope=$1 AND storage_key=$2;`, r.scope, key)
	return err
}

// Purge deletes entries of this scope not written since cutoff.
func (r *StorageRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM client_storage WHERE scope=$1 AND updated_at < $2;`, r.scope, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RemovePrefix deletes every key of this scope that starts with prefix.
func (r *StorageRepository) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM client_storage WHERE scope=$1 AND storage_key LIKE $2 ESCAPE '!';`, r.scope, likePrefix(prefix))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
