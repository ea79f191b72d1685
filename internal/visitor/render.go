package visitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

// RenderOptions configures headless-browser visits.
type RenderOptions struct {
	Timeout            time.Duration
	WaitForSelector    string
	UserAgents         []string
	DisableHeadless    bool
	ConcurrentSessions int
	MinDelay           time.Duration
	MaxDelay           time.Duration
}

// RenderVisitor loads pages in headless Chrome so client-side analytics
// fire as they would for a real reader. Sessions are bounded by a
// semaphore because each one spawns a browser.
type RenderVisitor struct {
	opts      RenderOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewRenderVisitor constructs a renderer with bounded concurrency.
func NewRenderVisitor(opts RenderOptions, logger *slog.Logger) *RenderVisitor {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderVisitor{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
	}
}

// visit navigates to the task URL and waits for the page to settle. The
// error return lets the composite fall back to a plain HTTP visit.
func (r *RenderVisitor) visit(parentCtx context.Context, task types.VisitTask) (types.VisitOutcome, error) {
	start := time.Now()
	outcome := types.VisitOutcome{
		URL:       task.URL.String(),
		Partition: task.Partition,
		Rendered:  true,
		Attempts:  1,
	}

	if err := sleep(parentCtx, jitterBetween(r.opts.MinDelay, r.opts.MaxDelay)); err != nil {
		outcome.Failure = types.FailureDeadline
		outcome.Elapsed = time.Since(start)
		return outcome, nil
	}

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parentCtx.Done():
		outcome.Failure = types.FailureDeadline
		outcome.Elapsed = time.Since(start)
		return outcome, nil
	}

	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(PickUserAgent(r.opts.UserAgents)),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	actions := []chromedp.Action{
		chromedp.Navigate(task.URL.String()),
	}
	if sel := strings.TrimSpace(r.opts.WaitForSelector); sel != "" {
		actions = append(actions, chromedp.WaitReady(sel, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(1500*time.Millisecond))
	}
	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return outcome, fmt.Errorf("chromedp run: %w", err)
	}

	outcome.Succeeded = true
	outcome.StatusCode = 200
	outcome.BodyBytes = int64(len(html))
	outcome.Elapsed = time.Since(start)
	r.logger.Debug("rendered visit complete",
		"url", outcome.URL,
		"latency_ms", outcome.Elapsed.Milliseconds(),
		"html_bytes", outcome.BodyBytes,
	)
	return outcome, nil
}
