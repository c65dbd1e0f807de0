package engine

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/chunkerbatch/chunkerbatch/internal/converter"
	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

var testConfig = domain.ConversionConfig{
	JavaPath:   "java",
	JarPath:    "chunker-cli-1.11.1.jar",
	OutputRoot: "/out",
	Format:     "BEDROCK_1_21_70",
	AddSuffix:  true,
}

// fakeHandle scripts one converter process
type fakeHandle struct {
	stdout  io.Reader
	stderr  io.Reader
	code    int
	waitErr error
}

func (h *fakeHandle) Stdout() io.Reader  { return h.stdout }
func (h *fakeHandle) Stderr() io.Reader  { return h.stderr }
func (h *fakeHandle) Wait() (int, error) { return h.code, h.waitErr }

func scripted(stdout string, code int) InvokeFunc {
	return func(ctx context.Context, w domain.WorldEntry) (Handle, error) {
		return &fakeHandle{
			stdout: strings.NewReader(stdout),
			stderr: strings.NewReader(""),
			code:   code,
		}, nil
	}
}

func collect(t *testing.T, ch <-chan domain.Event) []domain.Event {
	t.Helper()
	var events []domain.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestNewRejectsEmptyFormat(t *testing.T) {
	_, err := New(domain.ConversionConfig{OutputRoot: "/out"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("New() error = %v, want ErrInvalidArgument", err)
	}
}

func TestStartRejectsEmptyWorlds(t *testing.T) {
	r, err := New(testConfig)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Start(context.Background(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Start() error = %v, want ErrInvalidArgument", err)
	}
	if got := r.Status(); got != domain.StatusIdle {
		t.Errorf("Status() = %q after rejected start, want %q", got, domain.StatusIdle)
	}
}

func TestStartTwice(t *testing.T) {
	r, err := New(testConfig, WithInvoker(scripted("100%\n", 0)))
	if err != nil {
		t.Fatal(err)
	}
	worlds := []domain.WorldEntry{{Name: "Alpha", Path: "/in/Alpha"}}

	ch, err := r.Start(context.Background(), worlds)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Start(context.Background(), worlds); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	collect(t, ch)
}

func TestRunnerConvertsBatch(t *testing.T) {
	output := "Reading world\n10%\n10.4%\n11%\nMissing block mapping minecraft:chest\n100%\n"
	invoked := 0
	r, err := New(testConfig, WithInvoker(func(ctx context.Context, w domain.WorldEntry) (Handle, error) {
		invoked++
		return &fakeHandle{
			stdout: strings.NewReader(output),
			stderr: strings.NewReader(""),
			code:   0,
		}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	worlds := []domain.WorldEntry{
		{Name: "Alpha", Path: "/in/Alpha"},
		{Name: "Beta", Path: "/in/Beta"},
	}
	ch, err := r.Start(context.Background(), worlds)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	events := collect(t, ch)

	if invoked != 2 {
		t.Errorf("invoker called %d times, want 2", invoked)
	}

	first, ok := events[0].(domain.BatchStarted)
	if !ok || first.Total != 2 {
		t.Errorf("first event = %#v, want BatchStarted with total 2", events[0])
	}
	last, ok := events[len(events)-1].(domain.BatchFinished)
	if !ok {
		t.Fatalf("last event = %#v, want BatchFinished", events[len(events)-1])
	}
	wantResult := domain.BatchResult{Succeeded: 2, Total: 2, Cancelled: false}
	if last.Result != wantResult {
		t.Errorf("result = %+v, want %+v", last.Result, wantResult)
	}

	var finished []domain.WorldFinished
	var alphaProgress []int
	warningLogged := false
	for _, ev := range events {
		switch e := ev.(type) {
		case domain.WorldFinished:
			finished = append(finished, e)
		case domain.Progress:
			if e.World == "Alpha" {
				alphaProgress = append(alphaProgress, e.Percent)
			}
		case domain.Log:
			if e.World == "Alpha" && strings.Contains(e.Line, "Missing block mapping") {
				warningLogged = true
			}
		}
	}

	if len(finished) != 2 || finished[0].World != "Alpha" || finished[1].World != "Beta" {
		t.Fatalf("outcomes out of order: %+v", finished)
	}
	if want := []int{10, 11, 100}; !reflect.DeepEqual(alphaProgress, want) {
		t.Errorf("Alpha progress = %v, want %v", alphaProgress, want)
	}
	if !warningLogged {
		t.Error("warning line was not surfaced as a log event")
	}

	outcome := finished[0].Outcome
	if !outcome.Success {
		t.Errorf("Alpha outcome = %+v, want success", outcome)
	}
	if outcome.Message != "Conversion successful (1 warning)" {
		t.Errorf("Alpha message = %q, want %q", outcome.Message, "Conversion successful (1 warning)")
	}
	if len(outcome.Warnings) != 1 {
		t.Errorf("Alpha warnings = %v, want one entry", outcome.Warnings)
	}

	if got := r.Status(); got != domain.StatusCompleted {
		t.Errorf("Status() = %q, want %q", got, domain.StatusCompleted)
	}
	snap := r.Snapshot()
	if snap.World != "" || snap.Result != wantResult {
		t.Errorf("Snapshot() = %+v, want cleared world and final result", snap)
	}
}

func TestRunnerSuccessMessageCountsWarnings(t *testing.T) {
	output := "Missing block mapping a\nMissing block mapping b\n100%\n"
	r, err := New(testConfig, WithInvoker(scripted(output, 0)))
	if err != nil {
		t.Fatal(err)
	}
	ch, err := r.Start(context.Background(), []domain.WorldEntry{{Name: "Alpha", Path: "/in/Alpha"}})
	if err != nil {
		t.Fatal(err)
	}

	for _, ev := range collect(t, ch) {
		if e, ok := ev.(domain.WorldFinished); ok {
			if e.Outcome.Message != "Conversion successful (2 warnings)" {
				t.Errorf("message = %q, want %q", e.Outcome.Message, "Conversion successful (2 warnings)")
			}
		}
	}
}

func TestRunnerContinuesAfterSpawnFailure(t *testing.T) {
	r, err := New(testConfig, WithInvoker(func(ctx context.Context, w domain.WorldEntry) (Handle, error) {
		if w.Name == "Broken" {
			return nil, &converter.SpawnError{World: w.Name, Err: errors.New("no such file")}
		}
		return &fakeHandle{stdout: strings.NewReader("100%\n"), stderr: strings.NewReader(""), code: 0}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	worlds := []domain.WorldEntry{
		{Name: "Broken", Path: "/in/Broken"},
		{Name: "Fine", Path: "/in/Fine"},
	}
	ch, err := r.Start(context.Background(), worlds)
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)

	var finished []domain.WorldFinished
	for _, ev := range events {
		if e, ok := ev.(domain.WorldFinished); ok {
			finished = append(finished, e)
		}
	}
	if len(finished) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(finished))
	}
	if finished[0].Outcome.Success {
		t.Error("spawn-failed world reported success")
	}
	if !strings.Contains(finished[0].Outcome.Message, "spawning converter") {
		t.Errorf("message = %q, want spawn failure text", finished[0].Outcome.Message)
	}
	if !finished[1].Outcome.Success {
		t.Errorf("second world outcome = %+v, want success", finished[1].Outcome)
	}

	last := events[len(events)-1].(domain.BatchFinished)
	if last.Result.Succeeded != 1 || last.Result.Total != 2 || last.Result.Cancelled {
		t.Errorf("result = %+v, want 1/2 not cancelled", last.Result)
	}
	if got := r.Status(); got != domain.StatusFailed {
		t.Errorf("Status() = %q, want %q", got, domain.StatusFailed)
	}
}

func TestRunnerNonZeroExit(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantParts []string
	}{
		{
			name:      "warnings joined into the message",
			output:    "5%\nMissing block mapping X\n",
			wantParts: []string{"exit code 1", "Missing block mapping X"},
		},
		{
			name:      "no warnings",
			output:    "working\n",
			wantParts: []string{"exit code 1", "Unknown error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(testConfig, WithInvoker(scripted(tt.output, 1)))
			if err != nil {
				t.Fatal(err)
			}
			ch, err := r.Start(context.Background(), []domain.WorldEntry{{Name: "Alpha", Path: "/in/Alpha"}})
			if err != nil {
				t.Fatal(err)
			}

			var outcome domain.ConversionOutcome
			for _, ev := range collect(t, ch) {
				if e, ok := ev.(domain.WorldFinished); ok {
					outcome = e.Outcome
				}
			}
			if outcome.Success {
				t.Fatal("non-zero exit reported success")
			}
			for _, part := range tt.wantParts {
				if !strings.Contains(outcome.Message, part) {
					t.Errorf("message = %q, want it to contain %q", outcome.Message, part)
				}
			}
		})
	}
}

// failingReader simulates a torn pipe
type failingReader struct{ err error }

func (f *failingReader) Read(p []byte) (int, error) { return 0, f.err }

func TestRunnerStreamReadFailure(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		wantSuccess bool
		wantPart    string
	}{
		{
			name:        "exit zero stays successful",
			code:        0,
			wantSuccess: true,
			wantPart:    "output truncated",
		},
		{
			name:        "non-zero exit stays failed",
			code:        1,
			wantSuccess: false,
			wantPart:    "exit code 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(testConfig, WithInvoker(func(ctx context.Context, w domain.WorldEntry) (Handle, error) {
				return &fakeHandle{
					stdout: &failingReader{err: errors.New("pipe torn")},
					stderr: strings.NewReader(""),
					code:   tt.code,
				}, nil
			}))
			if err != nil {
				t.Fatal(err)
			}
			ch, err := r.Start(context.Background(), []domain.WorldEntry{{Name: "Alpha", Path: "/in/Alpha"}})
			if err != nil {
				t.Fatal(err)
			}

			var outcome domain.ConversionOutcome
			for _, ev := range collect(t, ch) {
				if e, ok := ev.(domain.WorldFinished); ok {
					outcome = e.Outcome
				}
			}
			if outcome.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v (message %q)", outcome.Success, tt.wantSuccess, outcome.Message)
			}
			if !strings.Contains(outcome.Message, tt.wantPart) {
				t.Errorf("message = %q, want it to contain %q", outcome.Message, tt.wantPart)
			}
			if tt.wantSuccess && !strings.Contains(outcome.Message, "Conversion successful") {
				t.Errorf("message = %q, want the success text with a truncation note", outcome.Message)
			}
		})
	}
}

// blockingReader blocks until released, then reports EOF
type blockingReader struct{ release chan struct{} }

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.release
	return 0, io.EOF
}

func TestRunnerCancelStopsBatch(t *testing.T) {
	release := make(chan struct{})
	calls := 0
	r, err := New(testConfig, WithInvoker(func(ctx context.Context, w domain.WorldEntry) (Handle, error) {
		calls++
		return &fakeHandle{
			stdout: &blockingReader{release: release},
			stderr: strings.NewReader(""),
			code:   -1, // the interrupt killed it
		}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	worlds := []domain.WorldEntry{
		{Name: "Alpha", Path: "/in/Alpha"},
		{Name: "Beta", Path: "/in/Beta"},
		{Name: "Gamma", Path: "/in/Gamma"},
	}
	ch, err := r.Start(context.Background(), worlds)
	if err != nil {
		t.Fatal(err)
	}

	var events []domain.Event
	cancelledOnce := false
	for ev := range ch {
		events = append(events, ev)
		if _, ok := ev.(domain.WorldStarted); ok && !cancelledOnce {
			cancelledOnce = true
			r.Cancel()
			r.Cancel() // idempotent
			close(release)
		}
	}

	if calls != 1 {
		t.Errorf("invoker called %d times after cancel, want 1", calls)
	}
	finished := 0
	for _, ev := range events {
		if _, ok := ev.(domain.WorldFinished); ok {
			finished++
		}
	}
	if finished != 1 {
		t.Errorf("got %d outcomes, want 1 (in-flight world only)", finished)
	}

	last, ok := events[len(events)-1].(domain.BatchFinished)
	if !ok {
		t.Fatalf("last event = %#v, want BatchFinished", events[len(events)-1])
	}
	if !last.Result.Cancelled {
		t.Error("Result.Cancelled = false, want true")
	}
	if last.Result.Total != 3 {
		t.Errorf("Result.Total = %d, want 3", last.Result.Total)
	}
	if got := r.Status(); got != domain.StatusCancelled {
		t.Errorf("Status() = %q, want %q", got, domain.StatusCancelled)
	}
}

func TestRunnerParentContextCancellation(t *testing.T) {
	release := make(chan struct{})
	r, err := New(testConfig, WithInvoker(func(ctx context.Context, w domain.WorldEntry) (Handle, error) {
		return &fakeHandle{
			stdout: &blockingReader{release: release},
			stderr: strings.NewReader(""),
			code:   -1,
		}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := r.Start(ctx, []domain.WorldEntry{
		{Name: "Alpha", Path: "/in/Alpha"},
		{Name: "Beta", Path: "/in/Beta"},
	})
	if err != nil {
		t.Fatal(err)
	}

	cancelledOnce := false
	var last domain.Event
	for ev := range ch {
		last = ev
		if _, ok := ev.(domain.WorldStarted); ok && !cancelledOnce {
			cancelledOnce = true
			cancel()
			close(release)
		}
	}

	final, ok := last.(domain.BatchFinished)
	if !ok {
		t.Fatalf("last event = %#v, want BatchFinished", last)
	}
	if !final.Result.Cancelled {
		t.Error("Result.Cancelled = false after context cancellation, want true")
	}
}

func TestRunnerEventOrderPerWorld(t *testing.T) {
	r, err := New(testConfig, WithInvoker(scripted("0%\nhello\n50%\n", 0)))
	if err != nil {
		t.Fatal(err)
	}
	ch, err := r.Start(context.Background(), []domain.WorldEntry{{Name: "Alpha", Path: "/in/Alpha"}})
	if err != nil {
		t.Fatal(err)
	}

	var kinds []string
	for _, ev := range collect(t, ch) {
		switch ev.(type) {
		case domain.BatchStarted:
			kinds = append(kinds, "batch_started")
		case domain.WorldStarted:
			kinds = append(kinds, "world_started")
		case domain.Progress:
			kinds = append(kinds, "progress")
		case domain.Log:
			kinds = append(kinds, "log")
		case domain.WorldFinished:
			kinds = append(kinds, "world_finished")
		case domain.BatchFinished:
			kinds = append(kinds, "batch_finished")
		}
	}

	want := []string{"batch_started", "world_started", "progress", "log", "progress", "world_finished", "batch_finished"}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("event order = %v, want %v", kinds, want)
	}
}
