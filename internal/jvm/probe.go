// Package jvm probes the local Java runtime.
package jvm

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// MinMajor is the Java major version the Chunker CLI requires
const MinMajor = 17

// versionPattern matches the quoted version in `java -version` banners,
// e.g. `openjdk version "17.0.9"` or `java version "1.8.0_392"`.
var versionPattern = regexp.MustCompile(`version "([^"]+)"`)

// Version describes an installed Java runtime
type Version struct {
	Raw   string // version string as printed, without quotes
	Major int
}

// Meets reports whether the runtime satisfies the given major requirement
func (v Version) Meets(min int) bool { return v.Major >= min }

func (v Version) String() string { return v.Raw }

// Probe runs `<javaPath> -version` and parses the banner. Every JVM prints
// the banner on stderr; CombinedOutput folds stdout in for the odd one out.
func Probe(ctx context.Context, javaPath string) (Version, error) {
	if javaPath == "" {
		javaPath = "java"
	}
	out, err := exec.CommandContext(ctx, javaPath, "-version").CombinedOutput()
	if err != nil {
		return Version{}, fmt.Errorf("running %s -version: %w", javaPath, err)
	}
	return ParseBanner(string(out))
}

// ParseBanner extracts the runtime version from -version output
func ParseBanner(banner string) (Version, error) {
	m := versionPattern.FindStringSubmatch(banner)
	if m == nil {
		return Version{}, fmt.Errorf("no version string in %q", firstLine(banner))
	}
	major, err := parseMajor(m[1])
	if err != nil {
		return Version{}, fmt.Errorf("version %q: %w", m[1], err)
	}
	return Version{Raw: m[1], Major: major}, nil
}

// parseMajor understands both numbering schemes: legacy "1.8.0_392" means
// major 8, modern "17.0.9" (or bare "21", or "22-ea") means the leading
// number.
func parseMajor(raw string) (int, error) {
	parts := strings.Split(raw, ".")
	if parts[0] == "1" && len(parts) > 1 {
		return leadingInt(parts[1])
	}
	return leadingInt(parts[0])
}

// leadingInt parses the digits a component starts with, tolerating
// decorations like "-ea" or "+37".
func leadingInt(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("no leading digits in %q", s)
	}
	return strconv.Atoi(s[:i])
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// InstallHint suggests how to get a suitable runtime on this platform
func InstallHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "brew install --cask temurin"
	case "linux":
		return "apt install openjdk-17-jre (or your distro's equivalent)"
	case "windows":
		return "winget install EclipseAdoptium.Temurin.17.JRE"
	default:
		return "install a Java 17+ runtime from https://adoptium.net"
	}
}
