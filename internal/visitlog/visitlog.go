// Package visitlog appends one line per completed visit to a write-only
// log file. The engine never reads it back.
package visitlog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

// Writer serialises visit records onto an append-only file.
type Writer struct {
	mu sync.Mutex
	fh *os.File
}

// Open opens (or creates) the visit log for appending.
func Open(path string) (*Writer, error) {
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open visit log: %w", err)
	}
	return &Writer{fh: fh}, nil
}

// Record appends one outcome line. Write errors are swallowed: the log is
// best effort and must never disturb a run.
func (w *Writer) Record(runID string, out types.VisitOutcome) {
	if w == nil {
		return
	}
	status := "ok"
	if !out.Succeeded {
		status = "failed"
		if out.Failure != types.FailureNone {
			status = "failed:" + string(out.Failure)
		}
	}
	line := fmt.Sprintf("%s run=%s url=%s partition=%s status=%d result=%s attempts=%d elapsed=%s\n",
		time.Now().Format(time.RFC3339),
		runID,
		out.URL,
		out.Partition,
		out.StatusCode,
		status,
		out.Attempts,
		out.Elapsed.Round(time.Millisecond),
	)

	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.fh.WriteString(line)
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if w == nil || w.fh == nil {
		return nil
	}
	return w.fh.Close()
}
