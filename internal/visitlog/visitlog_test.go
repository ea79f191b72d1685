package visitlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

func TestWriterAppendsOneLinePerOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visit.log")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	w.Record("run-1", types.VisitOutcome{
		URL:        "https://blog.example/index.php/archives/5/",
		Partition:  types.PartitionRequired,
		Succeeded:  true,
		StatusCode: 200,
		Attempts:   1,
		Elapsed:    120 * time.Millisecond,
	})
	w.Record("run-1", types.VisitOutcome{
		URL:       "https://blog.example/index.php/archives/13/",
		Partition: types.PartitionRequired,
		Failure:   types.FailureTimeout,
		Attempts:  3,
	})
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "result=ok") || !strings.Contains(lines[0], "attempts=1") {
		t.Errorf("unexpected success line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "result=failed:timeout") || !strings.Contains(lines[1], "attempts=3") {
		t.Errorf("unexpected failure line: %s", lines[1])
	}
	for _, line := range lines {
		if !strings.Contains(line, "run=run-1") {
			t.Errorf("line missing run id: %s", line)
		}
	}
}

func TestWriterAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visit.log")
	for i := 0; i < 2; i++ {
		w, err := Open(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		w.Record("run-a", types.VisitOutcome{URL: "https://blog.example/", Partition: types.PartitionNormal, Succeeded: true, StatusCode: 200, Attempts: 1})
		if err := w.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Fatalf("expected 2 appended lines, got %d", got)
	}
}

func TestNilWriterIsSafe(t *testing.T) {
	var w *Writer
	w.Record("run-x", types.VisitOutcome{})
	if err := w.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestOpenFailsOnBadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("seed blocker: %v", err)
	}
	if _, err := Open(filepath.Join(blocker, "visit.log")); err == nil {
		t.Fatal("expected open error for path under a regular file")
	}
}
