package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bryanwahyu/trustai-client/internal/domain/reports"
)

// Dir keeps exported reports on the local filesystem.
type Dir struct {
	root string
}

var _ reports.ArtifactStore = (*Dir)(nil)

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Put writes root/key/<filename> and returns a file:// URL.
func (d *Dir) Put(_ context.Context, key string, r reports.Report) (string, error) {
	dir := filepath.Join(d.root, filepath.Clean("/" + key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, r.Filename())
	if err := os.WriteFile(path, r.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return "file://" + path, nil
}
