// Package engine runs a batch of world conversions strictly one converter
// process at a time and streams progress to the caller as events.
//
// A Runner is single-use: construct it with the batch's conversion config,
// call Start once, and drain the returned channel until it closes. Cancel
// may be called from any goroutine; the in-flight converter receives an
// interrupt and is killed after a grace window, worlds that never started
// get no outcome.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chunkerbatch/chunkerbatch/internal/converter"
	"github.com/chunkerbatch/chunkerbatch/internal/domain"
	"github.com/chunkerbatch/chunkerbatch/internal/parser"
)

var (
	// ErrInvalidArgument reports an unusable submission: an empty target
	// format or an empty worlds slice.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyStarted guards the single-use lifecycle
	ErrAlreadyStarted = errors.New("batch already started")
)

// eventBuffer absorbs short consumer stalls without blocking the readers
const eventBuffer = 64

// Handle is a live converter process as the runner sees it
type Handle interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() (int, error)
}

// InvokeFunc launches one converter process for one world
type InvokeFunc func(ctx context.Context, world domain.WorldEntry) (Handle, error)

// Option adjusts a Runner at construction
type Option func(*Runner)

// WithInvoker swaps the process launcher. Tests use scripted fakes.
func WithInvoker(f InvokeFunc) Option {
	return func(r *Runner) { r.invoke = f }
}

// WithGrace sets the interrupt-to-kill window applied on cancellation
func WithGrace(d time.Duration) Option {
	return func(r *Runner) { r.grace = d }
}

// Snapshot is a point-in-time view of a run for status surfaces
type Snapshot struct {
	RunID   string             `json:"run_id"`
	Status  domain.RunStatus   `json:"status"`
	Total   int                `json:"total"`
	Index   int                `json:"index"`
	World   string             `json:"world"`
	Percent int                `json:"percent"`
	Result  domain.BatchResult `json:"result"`
}

// Runner executes one batch of world conversions sequentially
type Runner struct {
	id     string
	cfg    domain.ConversionConfig
	grace  time.Duration
	invoke InvokeFunc

	mu        sync.Mutex
	status    domain.RunStatus
	started   bool
	cancelled bool
	cancel    context.CancelFunc
	total     int
	index     int
	world     string
	percent   int
	result    domain.BatchResult
}

// New validates the conversion config and builds a Runner around the real
// Chunker invoker. An empty format token is rejected here, before anything
// runs.
func New(cfg domain.ConversionConfig, opts ...Option) (*Runner, error) {
	if strings.TrimSpace(cfg.Format) == "" {
		return nil, fmt.Errorf("%w: empty target format", ErrInvalidArgument)
	}

	r := &Runner{
		id:     uuid.NewString(),
		cfg:    cfg,
		grace:  converter.DefaultGrace,
		status: domain.StatusIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.invoke == nil {
		cli := converter.New(cfg).WithGrace(r.grace)
		r.invoke = func(ctx context.Context, w domain.WorldEntry) (Handle, error) {
			return cli.Invoke(ctx, w)
		}
	}
	return r, nil
}

// ID returns the run identifier assigned at construction
func (r *Runner) ID() string { return r.id }

// Status reports the current lifecycle state
func (r *Runner) Status() domain.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result returns the aggregate; meaningful once the event channel closed
func (r *Runner) Result() domain.BatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Snapshot captures the run state for status endpoints
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		RunID:   r.id,
		Status:  r.status,
		Total:   r.total,
		Index:   r.index,
		World:   r.world,
		Percent: r.percent,
		Result:  r.result,
	}
}

// Cancel requests a cooperative stop: no further worlds start and the
// in-flight converter is interrupted, then killed after the grace window.
// Safe to call from any goroutine, any number of times.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
	if r.cancel != nil {
		r.cancel()
	}
}

// Start validates the submission and launches the batch loop in its own
// goroutine. The returned channel carries every event for the run and is
// closed right after BatchFinished. Cancelling ctx behaves like Cancel.
func (r *Runner) Start(ctx context.Context, worlds []domain.WorldEntry) (<-chan domain.Event, error) {
	if len(worlds) == 0 {
		return nil, fmt.Errorf("%w: no worlds to convert", ErrInvalidArgument)
	}

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.started = true
	r.cancel = cancel
	r.status = domain.StatusRunning
	r.total = len(worlds)
	r.mu.Unlock()

	events := make(chan domain.Event, eventBuffer)
	go r.run(runCtx, worlds, events)
	return events, nil
}

func (r *Runner) run(ctx context.Context, worlds []domain.WorldEntry, events chan<- domain.Event) {
	defer close(events)

	events <- domain.BatchStarted{RunID: r.id, Total: len(worlds)}

	succeeded := 0
	for i, world := range worlds {
		if r.isCancelled(ctx) {
			break
		}
		r.setCurrent(i, world.Name)
		events <- domain.WorldStarted{Index: i, Total: len(worlds), World: world.Name}

		outcome := r.convertOne(ctx, world, events)
		if outcome.Success {
			succeeded++
		}
		events <- domain.WorldFinished{Index: i, World: world.Name, Outcome: outcome}
	}

	result := domain.BatchResult{
		Succeeded: succeeded,
		Total:     len(worlds),
		Cancelled: r.isCancelled(ctx),
	}
	r.finish(result)
	events <- domain.BatchFinished{RunID: r.id, Result: result}
}

// convertOne runs the converter for a single world and shapes its outcome.
// Spawn failures fail the world but never the batch.
func (r *Runner) convertOne(ctx context.Context, world domain.WorldEntry, events chan<- domain.Event) domain.ConversionOutcome {
	start := time.Now()

	handle, err := r.invoke(ctx, world)
	if err != nil {
		return domain.ConversionOutcome{
			World:    world.Name,
			Message:  err.Error(),
			Duration: time.Since(start),
		}
	}

	// Both readers share one classifier; its state is the per-world
	// progress hysteresis and warning list.
	p := parser.New()
	var pmu sync.Mutex

	var g errgroup.Group
	g.Go(func() error {
		return r.scanPipe(domain.StreamStdout, handle.Stdout(), p, &pmu, world.Name, events)
	})
	g.Go(func() error {
		return r.scanPipe(domain.StreamStderr, handle.Stderr(), p, &pmu, world.Name, events)
	})
	readErr := g.Wait()

	code, waitErr := handle.Wait()
	warnings := p.Warnings()

	outcome := domain.ConversionOutcome{
		World:    world.Name,
		Warnings: warnings,
		Duration: time.Since(start),
	}
	// The exit code is the verdict; a torn output stream only means part
	// of the converter's chatter was lost.
	switch {
	case waitErr != nil:
		outcome.Message = fmt.Sprintf("waiting for converter: %v", waitErr)
	case code != 0:
		outcome.Message = failureMessage(world.Name, code, warnings)
	case readErr != nil:
		outcome.Success = true
		outcome.Message = fmt.Sprintf("%s (output truncated: %v)", successMessage(len(warnings)), readErr)
	default:
		outcome.Success = true
		outcome.Message = successMessage(len(warnings))
	}
	return outcome
}

// scanPipe pumps one pipe through the classifier until EOF, emitting
// progress and log events as lines arrive. Converter lines can get long
// when a region dump is echoed, hence the widened scanner buffer.
func (r *Runner) scanPipe(stream domain.Stream, pipe io.Reader, p *parser.OutputParser, pmu *sync.Mutex, world string, events chan<- domain.Event) error {
	scanner := bufio.NewScanner(pipe)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		pmu.Lock()
		c := p.Classify(stream, line)
		pmu.Unlock()

		switch {
		case c.Progress && c.Emit:
			r.setPercent(c.Percent)
			events <- domain.Progress{World: world, Percent: c.Percent}
		case c.Progress:
			// inside the hysteresis step, stay quiet
		default:
			events <- domain.Log{World: world, Stream: stream, Line: line}
		}
	}
	if err := scanner.Err(); err != nil {
		return &converter.StreamError{Stream: string(stream), Err: err}
	}
	return nil
}

func (r *Runner) isCancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Runner) setCurrent(index int, world string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = index
	r.world = world
	r.percent = 0
}

func (r *Runner) setPercent(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percent = pct
}

func (r *Runner) finish(result domain.BatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = result
	r.world = ""
	switch {
	case result.Cancelled:
		r.status = domain.StatusCancelled
	case result.Succeeded == result.Total:
		r.status = domain.StatusCompleted
	default:
		r.status = domain.StatusFailed
	}
	if r.cancel != nil {
		r.cancel()
	}
}

func successMessage(warnings int) string {
	switch warnings {
	case 0:
		return "Conversion successful"
	case 1:
		return "Conversion successful (1 warning)"
	default:
		return fmt.Sprintf("Conversion successful (%d warnings)", warnings)
	}
}

func failureMessage(world string, code int, warnings []string) string {
	detail := "Unknown error"
	if len(warnings) > 0 {
		detail = strings.Join(warnings, "; ")
	}
	return fmt.Sprintf("Conversion of %q failed (exit code %d): %s", world, code, detail)
}
