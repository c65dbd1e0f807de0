package domain

// Stream identifies which pipe a converter line arrived on
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Event is the discriminated union the batch runner streams to its caller.
// Per world the order is WorldStarted, then any mix of Progress and Log,
// then WorldFinished. BatchFinished is always last and the channel is
// closed after it.
type Event interface {
	isEvent()
}

// BatchStarted opens the stream and names the run
type BatchStarted struct {
	RunID string
	Total int
}

// WorldStarted announces the next world in submission order
type WorldStarted struct {
	Index int // zero-based position in the submission order
	Total int
	World string
}

// Progress carries a converter percentage line, deduplicated by hysteresis
type Progress struct {
	World   string
	Percent int
}

// Log carries one non-progress converter output line
type Log struct {
	World  string
	Stream Stream
	Line   string
}

// WorldFinished carries the outcome for one processed world
type WorldFinished struct {
	Index   int
	World   string
	Outcome ConversionOutcome
}

// BatchFinished closes the stream with the aggregate result
type BatchFinished struct {
	RunID  string
	Result BatchResult
}

func (BatchStarted) isEvent()  {}
func (WorldStarted) isEvent()  {}
func (Progress) isEvent()      {}
func (Log) isEvent()           {}
func (WorldFinished) isEvent() {}
func (BatchFinished) isEvent() {}
