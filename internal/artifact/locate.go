// Package artifact locates the Chunker CLI jar on disk.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	jarPrefix = "chunker-cli-"
	jarSuffix = ".jar"
)

// Jar is a discovered converter artifact
type Jar struct {
	Path    string
	Version string // embedded version like "1.11.1", empty when absent
}

// Locate returns the newest chunker-cli jar in dir, preferring the highest
// embedded version and falling back to lexical order so the result is
// deterministic.
func Locate(dir string) (Jar, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Jar{}, fmt.Errorf("reading %s: %w", dir, err)
	}

	var best Jar
	found := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, jarPrefix) || !strings.HasSuffix(name, jarSuffix) {
			continue
		}
		cand := Jar{Path: filepath.Join(dir, name), Version: ParseVersion(name)}
		if !found || newer(cand, best) {
			best = cand
			found = true
		}
	}
	if !found {
		return Jar{}, fmt.Errorf("no %s*%s found in %s", jarPrefix, jarSuffix, dir)
	}
	return best, nil
}

// ParseVersion extracts the version embedded in a jar file name:
// chunker-cli-1.11.1.jar yields "1.11.1".
func ParseVersion(name string) string {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, jarPrefix) || !strings.HasSuffix(base, jarSuffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, jarPrefix), jarSuffix)
}

// newer reports whether a should win over b. Versioned names beat
// unversioned ones, higher versions beat lower, ties go lexical.
func newer(a, b Jar) bool {
	av, aok := parseSemver(a.Version)
	bv, bok := parseSemver(b.Version)
	switch {
	case aok && !bok:
		return true
	case !aok && bok:
		return false
	case aok && bok && av != bv:
		for i := 0; i < 3; i++ {
			if av[i] != bv[i] {
				return av[i] > bv[i]
			}
		}
	}
	return a.Path > b.Path
}

// parseSemver reads up to three numeric dot components; "1.11" means 1.11.0
func parseSemver(v string) ([3]int, bool) {
	var out [3]int
	if v == "" {
		return out, false
	}
	parts := strings.SplitN(v, ".", 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
