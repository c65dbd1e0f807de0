// Package parser classifies converter output lines.
//
// The Chunker CLI prints bare percentage lines on stdout while a world is
// converting ("12.5%") and mapping warnings ("Missing block mapping ...")
// on either stream. Everything else is plain log output.
package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

// warningMarker flags converter lines about unmapped blocks, entities, etc.
const warningMarker = "Missing"

// hysteresisStep is the minimum change in percentage points before another
// progress value is surfaced.
const hysteresisStep = 1.0

// Classified is the verdict for a single output line
type Classified struct {
	Progress bool // trimmed line was a bare percentage on stdout
	Percent  int  // truncated percentage, valid when Progress is set
	Emit     bool // progress value cleared the hysteresis step
	Warning  bool // line carries the warning marker
}

// OutputParser accumulates per-world converter output state: the last
// surfaced progress value plus every warning line seen on either stream.
// One parser serves exactly one world.
type OutputParser struct {
	lastEmitted float64
	hasEmitted  bool
	warnings    []string
}

// New returns a parser with no progress history and no warnings
func New() *OutputParser {
	return &OutputParser{}
}

// Classify inspects one output line from the given stream. Warning lines
// are accumulated regardless of stream; progress lines are recognized on
// stdout only and Emit reports whether the value moved at least a full
// percentage point since the last surfaced one. The first progress line
// always emits.
func (p *OutputParser) Classify(stream domain.Stream, line string) Classified {
	var c Classified

	trimmed := strings.TrimSpace(line)
	if strings.Contains(trimmed, warningMarker) {
		p.warnings = append(p.warnings, trimmed)
		c.Warning = true
	}

	if stream != domain.StreamStdout {
		return c
	}
	pct, ok := parsePercent(trimmed)
	if !ok {
		return c
	}

	c.Progress = true
	c.Percent = int(pct)
	if !p.hasEmitted || math.Abs(pct-p.lastEmitted) >= hysteresisStep {
		p.hasEmitted = true
		p.lastEmitted = pct
		c.Emit = true
	}
	return c
}

// Warnings returns the accumulated warning lines in arrival order
func (p *OutputParser) Warnings() []string {
	return p.warnings
}

// parsePercent matches lines that are exactly a finite number followed by a
// percent sign, e.g. "42%" or "99.7%".
func parsePercent(s string) (float64, bool) {
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
