// Package report aggregates visit outcomes into a run summary and renders
// the human-readable report handed to the notification sink.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

// Summarize tallies all outcomes of a run. Outcome order does not matter;
// every aggregate is a sum or count.
func Summarize(runID, site string, started, finished time.Time, outcomes []types.VisitOutcome) types.RunSummary {
	summary := types.RunSummary{
		RunID:      runID,
		Site:       site,
		StartedAt:  started,
		FinishedAt: finished,
		PerURL:     make(map[string]*types.URLTally, len(outcomes)),
	}

	var totalElapsed time.Duration
	for _, out := range outcomes {
		summary.Attempted++
		totalElapsed += out.Elapsed

		tally, ok := summary.PerURL[out.URL]
		if !ok {
			tally = &types.URLTally{Partition: out.Partition}
			summary.PerURL[out.URL] = tally
		}
		tally.Elapsed += out.Elapsed

		part := &summary.Normal
		if out.Partition == types.PartitionRequired {
			part = &summary.Required
		}
		part.Attempted++

		if out.Succeeded {
			summary.Succeeded++
			tally.Succeeded++
			part.Succeeded++
		} else {
			summary.Failed++
			tally.Failed++
			part.Failed++
		}
	}
	if summary.Attempted > 0 {
		summary.MeanLatency = totalElapsed / time.Duration(summary.Attempted)
	}
	return summary
}

// Render formats a summary into the report text sent to the notifier.
func Render(s types.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Typecho visit report (run %s)\n\n", s.RunID)
	fmt.Fprintf(&b, "Total time: %.1fs\n", s.Duration().Seconds())
	fmt.Fprintf(&b, "Blog: %s\n", s.Site)
	fmt.Fprintf(&b, "Requests: %d attempted, %d ok, %d failed\n", s.Attempted, s.Succeeded, s.Failed)
	if s.Attempted > 0 {
		fmt.Fprintf(&b, "Mean latency: %dms\n", s.MeanLatency.Milliseconds())
	}

	b.WriteString("\nRequired URLs:\n")
	writePartition(&b, s.Required)
	b.WriteString("\nNormal URLs:\n")
	writePartition(&b, s.Normal)

	if len(s.PerURL) > 0 {
		b.WriteString("\nVisit distribution:\n")
		for _, line := range distribution(s) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writePartition(b *strings.Builder, t types.PartitionTally) {
	fmt.Fprintf(b, "  success: %d\n", t.Succeeded)
	fmt.Fprintf(b, "  failed: %d\n", t.Failed)
	if t.Attempted > 0 {
		fmt.Fprintf(b, "  rate: %.1f%%\n", float64(t.Succeeded)/float64(t.Attempted)*100)
	}
}

func distribution(s types.RunSummary) []string {
	type row struct {
		url   string
		tally *types.URLTally
	}
	rows := make([]row, 0, len(s.PerURL))
	for u, t := range s.PerURL {
		rows = append(rows, row{url: u, tally: t})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].tally.Succeeded != rows[j].tally.Succeeded {
			return rows[i].tally.Succeeded > rows[j].tally.Succeeded
		}
		return rows[i].url < rows[j].url
	})

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("  - %s: %d ok, %d failed",
			displayPath(r.url, s.Site), r.tally.Succeeded, r.tally.Failed))
	}
	return lines
}

// displayPath shortens on-site URLs to their path for readability.
func displayPath(rawURL, site string) string {
	if site != "" && strings.HasPrefix(rawURL, site) {
		if trimmed := strings.TrimPrefix(rawURL, site); trimmed != "" {
			return trimmed
		}
	}
	return rawURL
}
