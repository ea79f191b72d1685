package types

import (
	"net/url"
	"time"
)

// Partition classifies how a URL entered the visit plan.
type Partition string

const (
	// PartitionRequired marks URLs from the persisted posts list; they are
	// always visited.
	PartitionRequired Partition = "required"
	// PartitionNormal marks URLs found through index-page discovery.
	PartitionNormal Partition = "normal"
)

// PlanEntry allocates a target visit count to a single URL for one run.
// Entries are built once per planning pass and never mutated.
type PlanEntry struct {
	URL       *url.URL
	Partition Partition
	Target    int
}

// VisitTask is one scheduled visit, produced by expanding a plan entry.
type VisitTask struct {
	URL       *url.URL
	Partition Partition
	Seq       int
}

// FailureKind names the terminal failure class of a visit.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureStatus     FailureKind = "status"
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
	FailureDeadline   FailureKind = "deadline"
)

// VisitOutcome records the result of one visit after all retries. It is
// immutable once produced; the aggregator is its only consumer.
type VisitOutcome struct {
	URL        string
	Partition  Partition
	Succeeded  bool
	StatusCode int
	Failure    FailureKind
	Rendered   bool
	BodyBytes  int64
	Elapsed    time.Duration
	Attempts   int
}

// URLTally accumulates per-URL results inside a run summary.
type URLTally struct {
	Partition Partition
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// PartitionTally holds aggregate counts for one partition.
type PartitionTally struct {
	Attempted int
	Succeeded int
	Failed    int
}

// RunSummary aggregates every outcome of a single run. It is built once
// after all visits complete and never mutated afterwards.
type RunSummary struct {
	RunID       string
	Site        string
	StartedAt   time.Time
	FinishedAt  time.Time
	Attempted   int
	Succeeded   int
	Failed      int
	Required    PartitionTally
	Normal      PartitionTally
	PerURL      map[string]*URLTally
	MeanLatency time.Duration
}

// Duration reports the wall-clock time the run took.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
