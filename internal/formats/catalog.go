// Package formats carries the catalog of Chunker target format tokens.
//
// The catalog ships embedded. Tokens it does not know are still passed
// through to the converter untouched, so a newer Chunker build keeps
// working before the catalog catches up.
package formats

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed formats.yaml
var catalogYAML []byte

// Family groups tokens by target edition
type Family string

const (
	FamilyJava    Family = "java"
	FamilyBedrock Family = "bedrock"
)

var (
	loadOnce sync.Once
	catalog  map[Family][]string
	loadErr  error
)

func load() (map[Family][]string, error) {
	loadOnce.Do(func() {
		catalog = make(map[Family][]string)
		loadErr = yaml.Unmarshal(catalogYAML, &catalog)
	})
	return catalog, loadErr
}

// Families lists the known target editions
func Families() []Family {
	return []Family{FamilyJava, FamilyBedrock}
}

// ParseFamily validates a family name as typed on the command line
func ParseFamily(s string) (Family, error) {
	switch f := Family(strings.ToLower(s)); f {
	case FamilyJava, FamilyBedrock:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format family %q (want java or bedrock)", s)
	}
}

// Tokens returns a family's format tokens in release order, oldest first
func Tokens(f Family) ([]string, error) {
	c, err := load()
	if err != nil {
		return nil, err
	}
	tokens, ok := c[f]
	if !ok {
		return nil, fmt.Errorf("no tokens for family %q", f)
	}
	return tokens, nil
}

// Default returns the newest token of a family
func Default(f Family) (string, error) {
	tokens, err := Tokens(f)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("family %q is empty", f)
	}
	return tokens[len(tokens)-1], nil
}

// IsKnown reports whether token appears in any family
func IsKnown(token string) bool {
	c, err := load()
	if err != nil {
		return false
	}
	for _, tokens := range c {
		for _, t := range tokens {
			if t == token {
				return true
			}
		}
	}
	return false
}
