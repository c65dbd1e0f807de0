package worlds

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

// Scan returns the immediate subdirectories of root that detect as worlds,
// in name order. Root itself must exist; an empty result is not an error.
func Scan(root string) ([]domain.WorldEntry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}

	var found []domain.WorldEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name())
		if !IsWorld(path) {
			continue
		}
		found = append(found, domain.WorldEntry{
			Name: e.Name(),
			Path: path,
			Kind: Kind(path),
		})
	}
	return found, nil
}

// DirSize sums the regular-file sizes under dir. Unreadable entries are
// skipped rather than failing the walk.
func DirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, ierr := d.Info(); ierr == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
