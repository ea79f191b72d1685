package report

import (
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

func sampleOutcomes() []types.VisitOutcome {
	return []types.VisitOutcome{
		{URL: "https://blog.example/archives/1/", Partition: types.PartitionRequired, Succeeded: true, StatusCode: 200, Elapsed: 100 * time.Millisecond, Attempts: 1},
		{URL: "https://blog.example/archives/1/", Partition: types.PartitionRequired, Succeeded: true, StatusCode: 200, Elapsed: 200 * time.Millisecond, Attempts: 1},
		{URL: "https://blog.example/archives/2/", Partition: types.PartitionRequired, Succeeded: false, StatusCode: 500, Failure: types.FailureStatus, Elapsed: 300 * time.Millisecond, Attempts: 3},
		{URL: "https://blog.example/archives/3/", Partition: types.PartitionNormal, Succeeded: true, StatusCode: 200, Elapsed: 150 * time.Millisecond, Attempts: 1},
		{URL: "https://blog.example/archives/3/", Partition: types.PartitionNormal, Succeeded: false, Failure: types.FailureTimeout, Elapsed: 2 * time.Second, Attempts: 3},
	}
}

func TestSummarizeTotals(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	s := Summarize("run-1", "https://blog.example", started, time.Now(), sampleOutcomes())

	if s.Attempted != 5 || s.Succeeded != 3 || s.Failed != 2 {
		t.Fatalf("unexpected totals: attempted=%d succeeded=%d failed=%d", s.Attempted, s.Succeeded, s.Failed)
	}
	if s.Required.Attempted != 3 || s.Required.Succeeded != 2 || s.Required.Failed != 1 {
		t.Errorf("unexpected required tally: %+v", s.Required)
	}
	if s.Normal.Attempted != 2 || s.Normal.Succeeded != 1 || s.Normal.Failed != 1 {
		t.Errorf("unexpected normal tally: %+v", s.Normal)
	}
	if len(s.PerURL) != 3 {
		t.Fatalf("expected 3 distinct urls, got %d", len(s.PerURL))
	}

	failing := s.PerURL["https://blog.example/archives/2/"]
	if failing == nil || failing.Succeeded != 0 || failing.Failed != 1 {
		t.Errorf("unexpected tally for always-failing url: %+v", failing)
	}
	if s.MeanLatency <= 0 {
		t.Error("expected a positive mean latency")
	}
}

func TestSummarizeIsCommutative(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)

	outcomes := sampleOutcomes()
	want := Summarize("run-1", "https://blog.example", started, finished, outcomes)

	for i := 0; i < 10; i++ {
		shuffled := make([]types.VisitOutcome, len(outcomes))
		copy(shuffled, outcomes)
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := Summarize("run-1", "https://blog.example", started, finished, shuffled)
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("summary changed under permutation:\nwant %+v\ngot  %+v", want, got)
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize("run-0", "https://blog.example", time.Now(), time.Now(), nil)
	if s.Attempted != 0 || s.MeanLatency != 0 {
		t.Fatalf("unexpected empty summary: %+v", s)
	}
	if text := Render(s); !strings.Contains(text, "0 attempted") {
		t.Errorf("empty report should still render totals, got:\n%s", text)
	}
}

func TestRenderContents(t *testing.T) {
	started := time.Now().Add(-30 * time.Second)
	s := Summarize("run-2", "https://blog.example", started, time.Now(), sampleOutcomes())
	text := Render(s)

	for _, want := range []string{
		"run-2",
		"https://blog.example",
		"Required URLs:",
		"Normal URLs:",
		"Visit distribution:",
		"/archives/2/: 0 ok, 1 failed",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "https://blog.example/archives/1/") {
		t.Error("on-site urls should render as bare paths")
	}
}
