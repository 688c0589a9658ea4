package imagestore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store implements ports.ImageStore on a filesystem. Composites are
// named deterministically per year and overwritten on re-runs, so the
// directory always holds the latest rendering for each year.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates the store and ensures its directory exists.
func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create imagery dir %s: %w", dir, err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// SaveComposite writes the rendered composite for a year and returns its path.
func (s *Store) SaveComposite(ctx context.Context, year int, png []byte) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("satellite_%d.png", year))
	if err := afero.WriteFile(s.fs, path, png, 0o644); err != nil {
		return "", fmt.Errorf("write composite %s: %w", path, err)
	}
	return path, nil
}
