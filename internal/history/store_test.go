package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

var testCfg = domain.ConversionConfig{
	OutputRoot: "/out",
	Format:     "BEDROCK_1_21_70",
	AddSuffix:  true,
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordLifecycle(t *testing.T) {
	s := openTestStore(t)

	started := time.Now().UTC()
	if err := s.RecordStart("run-1", started, 2, testCfg); err != nil {
		t.Fatalf("RecordStart() error = %v", err)
	}
	if err := s.RecordOutcome("run-1", 0, domain.ConversionOutcome{
		World:    "Alpha",
		Success:  true,
		Message:  "Conversion successful",
		Duration: 1500 * time.Millisecond,
	}); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	if err := s.RecordOutcome("run-1", 1, domain.ConversionOutcome{
		World:    "Beta",
		Success:  false,
		Message:  "Conversion of \"Beta\" failed (exit code 1): Unknown error",
		Warnings: []string{"Missing block mapping X"},
	}); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	if err := s.RecordFinish("run-1", started.Add(time.Minute), domain.StatusFailed, domain.BatchResult{
		Succeeded: 1,
		Total:     2,
	}); err != nil {
		t.Fatalf("RecordFinish() error = %v", err)
	}

	run, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Total != 2 || run.Succeeded != 1 || run.Cancelled {
		t.Errorf("run = %+v, want total 2, succeeded 1, not cancelled", run)
	}
	if run.Status != domain.StatusFailed {
		t.Errorf("run.Status = %q, want %q", run.Status, domain.StatusFailed)
	}
	if run.Format != "BEDROCK_1_21_70" {
		t.Errorf("run.Format = %q, want BEDROCK_1_21_70", run.Format)
	}
	if run.FinishedAt == nil {
		t.Error("run.FinishedAt = nil, want a timestamp")
	}

	outcomes, err := s.RunOutcomes("run-1")
	if err != nil {
		t.Fatalf("RunOutcomes() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].World != "Alpha" || !outcomes[0].Success {
		t.Errorf("first outcome = %+v, want successful Alpha", outcomes[0])
	}
	if outcomes[0].Duration != 1500*time.Millisecond {
		t.Errorf("first outcome duration = %v, want 1.5s", outcomes[0].Duration)
	}
	if outcomes[1].World != "Beta" || outcomes[1].Success {
		t.Errorf("second outcome = %+v, want failed Beta", outcomes[1])
	}
	if outcomes[1].Warnings != 1 {
		t.Errorf("second outcome warnings = %d, want 1", outcomes[1].Warnings)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := s.RecordStart(id, base.Add(time.Duration(i)*time.Minute), 1, testCfg); err != nil {
			t.Fatalf("RecordStart(%s) error = %v", id, err)
		}
	}

	runs, err := s.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("runs = [%s %s], want [run-c run-b]", runs[0].ID, runs[1].ID)
	}
}

func TestRecordFinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordFinish("ghost", time.Now(), domain.StatusCompleted, domain.BatchResult{})
	if err == nil {
		t.Error("RecordFinish() expected an error for an unknown run")
	}
}

func TestGetRunUnknown(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRun("ghost"); err == nil {
		t.Error("GetRun() expected an error for an unknown run")
	}
}
