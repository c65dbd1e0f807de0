// Package worlds detects and enumerates Minecraft world directories.
package worlds

import (
	"os"
	"path/filepath"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

// IsWorld reports whether dir looks like a convertible Minecraft world.
// A world carries level.dat plus either a session.lock file (Java edition)
// or a db subdirectory (Bedrock edition). level.dat alone is not enough.
func IsWorld(dir string) bool {
	if !isDir(dir) {
		return false
	}
	if !isFile(filepath.Join(dir, "level.dat")) {
		return false
	}
	return isFile(filepath.Join(dir, "session.lock")) || isDir(filepath.Join(dir, "db"))
}

// Kind classifies a world directory by its edition markers. Display only,
// conversion decisions never depend on it.
func Kind(dir string) domain.WorldKind {
	switch {
	case isFile(filepath.Join(dir, "session.lock")):
		return domain.KindJava
	case isDir(filepath.Join(dir, "db")):
		return domain.KindBedrock
	default:
		return domain.KindUnknown
	}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
