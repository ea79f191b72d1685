// Package planner turns URL partitions and visit budgets into per-URL
// targets and expands those targets into individual visit tasks.
package planner

import (
	"net/url"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

// Plan splits a total budget across urls as evenly as integer division
// allows: every URL receives floor(budget/n) visits and the first
// budget%n URLs receive one extra, so the targets always sum to budget.
// An empty URL set yields an empty plan regardless of budget; the caller
// is expected to log the dropped budget.
func Plan(urls []*url.URL, partition types.Partition, budget int) []types.PlanEntry {
	if len(urls) == 0 || budget < 0 {
		return nil
	}
	base := budget / len(urls)
	extra := budget % len(urls)

	entries := make([]types.PlanEntry, 0, len(urls))
	for i, u := range urls {
		target := base
		if i < extra {
			target++
		}
		entries = append(entries, types.PlanEntry{URL: u, Partition: partition, Target: target})
	}
	return entries
}

// PlanPerURL gives every URL the same fixed visit count.
func PlanPerURL(urls []*url.URL, partition types.Partition, perURL int) []types.PlanEntry {
	if len(urls) == 0 || perURL < 0 {
		return nil
	}
	entries := make([]types.PlanEntry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, types.PlanEntry{URL: u, Partition: partition, Target: perURL})
	}
	return entries
}

// Expand turns plan entries into individual visit tasks. Entries with a
// zero target produce no tasks.
func Expand(entries []types.PlanEntry) []types.VisitTask {
	total := 0
	for _, e := range entries {
		if e.Target > 0 {
			total += e.Target
		}
	}
	tasks := make([]types.VisitTask, 0, total)
	for _, e := range entries {
		for i := 0; i < e.Target; i++ {
			tasks = append(tasks, types.VisitTask{URL: e.URL, Partition: e.Partition, Seq: i})
		}
	}
	return tasks
}
