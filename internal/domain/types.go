package domain

import "time"

// RunStatus represents the lifecycle state of a batch run
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
)

// WorldKind tells which edition markers a world directory carries
type WorldKind string

const (
	KindJava    WorldKind = "java"
	KindBedrock WorldKind = "bedrock"
	KindUnknown WorldKind = "unknown"
)

// WorldEntry describes one candidate world directory queued for conversion
type WorldEntry struct {
	Name string
	Path string
	Kind WorldKind
}

// ConversionConfig carries everything needed to invoke the converter for a batch
type ConversionConfig struct {
	JavaPath   string // java executable, defaults to "java" on PATH
	JarPath    string // chunker-cli jar to hand to -jar
	OutputRoot string // parent directory for converted worlds
	Format     string // target format token, e.g. BEDROCK_1_21_70
	AddSuffix  bool   // append _<format lower-cased> to each output dir name
}

// ConversionOutcome is the per-world verdict, recorded in submission order
type ConversionOutcome struct {
	World    string
	Success  bool
	Message  string
	Warnings []string
	Duration time.Duration
}

// BatchResult summarizes a finished (or cancelled) batch
type BatchResult struct {
	Succeeded int
	Total     int
	Cancelled bool
}
