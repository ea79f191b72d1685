package planner

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

func mustURLs(t *testing.T, n int) []*url.URL {
	t.Helper()
	urls := make([]*url.URL, 0, n)
	for i := 0; i < n; i++ {
		u, err := url.Parse(fmt.Sprintf("https://blog.example/archives/%d/", i+1))
		if err != nil {
			t.Fatalf("parse url: %v", err)
		}
		urls = append(urls, u)
	}
	return urls
}

func TestPlanEvenDistribution(t *testing.T) {
	cases := []struct {
		urls   int
		budget int
	}{
		{1, 0},
		{1, 7},
		{3, 9},
		{3, 10},
		{5, 2},
		{7, 100},
	}
	for _, tc := range cases {
		entries := Plan(mustURLs(t, tc.urls), types.PartitionNormal, tc.budget)
		if len(entries) != tc.urls {
			t.Fatalf("%d urls, budget %d: expected %d entries, got %d", tc.urls, tc.budget, tc.urls, len(entries))
		}

		sum, min, max := 0, entries[0].Target, entries[0].Target
		for _, e := range entries {
			sum += e.Target
			if e.Target < min {
				min = e.Target
			}
			if e.Target > max {
				max = e.Target
			}
		}
		if sum != tc.budget {
			t.Errorf("%d urls, budget %d: targets sum to %d", tc.urls, tc.budget, sum)
		}
		if max-min > 1 {
			t.Errorf("%d urls, budget %d: targets differ by more than 1 (min=%d max=%d)", tc.urls, tc.budget, min, max)
		}
	}
}

func TestPlanRemainderGoesToFirstEntries(t *testing.T) {
	entries := Plan(mustURLs(t, 3), types.PartitionNormal, 10)
	want := []int{4, 3, 3}
	for i, e := range entries {
		if e.Target != want[i] {
			t.Errorf("entry %d: expected target %d, got %d", i, want[i], e.Target)
		}
	}
}

func TestPlanEmptyURLSet(t *testing.T) {
	if entries := Plan(nil, types.PartitionNormal, 50); entries != nil {
		t.Fatalf("expected nil plan for empty url set, got %d entries", len(entries))
	}
	if tasks := Expand(Plan(nil, types.PartitionNormal, 50)); len(tasks) != 0 {
		t.Fatalf("expected no tasks from empty plan, got %d", len(tasks))
	}
}

func TestPlanZeroBudgetExpandsToNothing(t *testing.T) {
	entries := Plan(mustURLs(t, 4), types.PartitionNormal, 0)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Target != 0 {
			t.Errorf("expected zero target, got %d for %s", e.Target, e.URL)
		}
	}
	if tasks := Expand(entries); len(tasks) != 0 {
		t.Fatalf("expected no tasks from zero-budget plan, got %d", len(tasks))
	}
}

func TestPlanPerURLExpansion(t *testing.T) {
	entries := PlanPerURL(mustURLs(t, 1), types.PartitionRequired, 4)
	tasks := Expand(entries)
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks for one required url, got %d", len(tasks))
	}
	for i, task := range tasks {
		if task.Partition != types.PartitionRequired {
			t.Errorf("task %d: expected required partition, got %s", i, task.Partition)
		}
		if task.Seq != i {
			t.Errorf("task %d: expected seq %d, got %d", i, i, task.Seq)
		}
	}
}

func TestExpandMixedPartitions(t *testing.T) {
	required := PlanPerURL(mustURLs(t, 1), types.PartitionRequired, 4)
	normal := Plan(nil, types.PartitionNormal, 0)
	tasks := Expand(append(required, normal...))

	if len(tasks) != 4 {
		t.Fatalf("expected exactly 4 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.Partition == types.PartitionNormal {
			t.Fatalf("expected zero normal tasks, found one for %s", task.URL)
		}
	}
}
