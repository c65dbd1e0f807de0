package converter

import "fmt"

// SpawnError means the converter process never started for a world. The
// output directory not being creatable counts too: nothing ran.
type SpawnError struct {
	World string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning converter for %q: %v", e.World, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the converter ran and exited non-zero. Code is -1 when
// the process died on a signal.
type ExitError struct {
	World string
	Code  int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("converter exited with code %d for %q", e.Code, e.World)
}

// StreamError means an output pipe failed mid-read
type StreamError struct {
	Stream string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("reading converter %s: %v", e.Stream, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
