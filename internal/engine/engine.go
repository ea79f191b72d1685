// Package engine coordinates one traffic-simulation run: discovery,
// partitioning, planning, bounded-parallel visiting, aggregation, and
// reporting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lxi0707/Typecho-play/internal/config"
	"github.com/Lxi0707/Typecho-play/internal/discover"
	"github.com/Lxi0707/Typecho-play/internal/notify"
	"github.com/Lxi0707/Typecho-play/internal/planner"
	"github.com/Lxi0707/Typecho-play/internal/registry"
	"github.com/Lxi0707/Typecho-play/internal/report"
	robotsclient "github.com/Lxi0707/Typecho-play/internal/robots"
	"github.com/Lxi0707/Typecho-play/internal/storage"
	"github.com/Lxi0707/Typecho-play/internal/visitlog"
	"github.com/Lxi0707/Typecho-play/internal/visitor"
	"github.com/Lxi0707/Typecho-play/pkg/types"
)

// Engine wires the run pipeline together from configuration.
type Engine struct {
	cfg  config.Config
	base *url.URL

	registry   *registry.Registry
	discoverer *discover.Discoverer
	visitor    visitor.Visitor
	robots     *robotsclient.Agent
	pacer      *Pacer

	history  storage.HistoryStore
	notifier notify.Notifier
	visitLog *visitlog.Writer

	logger *slog.Logger

	closers   []func() error
	closeOnce sync.Once
}

// NewEngine builds a visit engine from configuration.
func NewEngine(cfg config.Config) (*Engine, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	base, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(base)
	if err != nil {
		return nil, err
	}

	referer := cfg.Visits.Referer
	if referer == "" {
		referer = base.String()
	}

	httpVisitor, err := visitor.NewHTTPVisitor(visitor.Options{
		UserAgents:   cfg.Visits.UserAgents,
		Referer:      referer,
		Timeout:      cfg.Visits.RequestTimeout.Duration,
		MinDelay:     cfg.Visits.MinDelay.Duration,
		MaxDelay:     cfg.Visits.MaxDelay.Duration,
		MaxRetries:   cfg.Visits.MaxRetries,
		RetryBackoff: cfg.Visits.RetryBackoff.Duration,
		MaxBodyBytes: cfg.Visits.MaxBodyBytes,
		ProxyURL:     cfg.Visits.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("http visitor: %w", err)
	}

	var visit visitor.Visitor = httpVisitor
	if cfg.Rendering.Enabled {
		renderer := visitor.NewRenderVisitor(visitor.RenderOptions{
			Timeout:            cfg.Rendering.Timeout.Duration,
			WaitForSelector:    cfg.Rendering.WaitForSelector,
			UserAgents:         visitor.UserAgentPool(cfg.Visits.UserAgents),
			DisableHeadless:    cfg.Rendering.DisableHeadless,
			ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
			MinDelay:           cfg.Visits.MinDelay.Duration,
			MaxDelay:           cfg.Visits.MaxDelay.Duration,
		}, logger)
		visit = visitor.NewComposite(httpVisitor, renderer, cfg.Rendering.Fraction, logger)
	}

	extractor, err := discover.NewAnchorExtractor(discover.ExtractorOptions{
		IncludePatterns: cfg.Discovery.IncludePatterns,
		ExcludePatterns: cfg.Discovery.ExcludePatterns,
		MaxLinks:        cfg.Discovery.MaxLinks,
	})
	if err != nil {
		return nil, fmt.Errorf("link extractor: %w", err)
	}
	discoverer := discover.New(
		httpVisitor.Client(),
		extractor,
		visitor.PickUserAgent(visitor.UserAgentPool(cfg.Visits.UserAgents)),
		logger,
	)

	var robots *robotsclient.Agent
	if cfg.Robots.Respect {
		robots = robotsclient.NewAgent(httpVisitor.Client(), cfg.Robots.UserAgent, cfg.Robots.CacheTTL.Duration)
	}

	var closers []func() error

	var history storage.HistoryStore
	if cfg.DB.Enabled() {
		sqlHistory, err := storage.NewSQLHistory(cfg.DB)
		if err != nil {
			return nil, err
		}
		history = sqlHistory
		closers = append(closers, sqlHistory.Close)
	}

	var visitLog *visitlog.Writer
	if cfg.Logging.VisitLog != "" {
		visitLog, err = visitlog.Open(cfg.Logging.VisitLog)
		if err != nil {
			return nil, err
		}
		closers = append(closers, visitLog.Close)
	}

	return &Engine{
		cfg:        cfg,
		base:       base,
		registry:   reg,
		discoverer: discoverer,
		visitor:    visit,
		robots:     robots,
		pacer:      NewPacer(cfg.Visits.MinGap.Duration, cfg.Visits.RateLimit.Requests, cfg.Visits.RateLimit.Window.Duration),
		history:    history,
		notifier:   notify.NewTelegram(cfg.Telegram),
		visitLog:   visitLog,
		logger:     logger,
		closers:    closers,
	}, nil
}

// Run executes one full traffic-simulation pass. Individual visit
// failures never fail the run; only configuration or posts-file errors do.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Close()

	if deadline := e.cfg.Visits.RunDeadline.Duration; deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	runID := uuid.NewString()
	started := time.Now()
	e.logger.Info("run starting",
		"run_id", runID,
		"site", e.base.String(),
		"normal_budget", e.cfg.Visits.Normal,
		"required_per_url", e.cfg.Visits.RequiredPerURL,
	)

	tasks, err := e.buildTasks(ctx)
	if err != nil {
		return err
	}

	outcomes := e.runVisits(ctx, runID, tasks)

	summary := report.Summarize(runID, e.base.String(), started, time.Now(), outcomes)
	text := report.Render(summary)

	e.logger.Info("run complete",
		"run_id", runID,
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration().Round(time.Millisecond).String(),
	)
	fmt.Fprintln(os.Stdout, text)

	e.persistHistory(summary)
	e.sendReport(text)
	return nil
}

// Close releases resources owned by the engine.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		for _, closer := range e.closers {
			if cerr := closer(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	})
	return err
}

// buildTasks assembles the run's full task list from the posts file,
// discovery output, and the two visit budgets.
func (e *Engine) buildTasks(ctx context.Context) ([]types.VisitTask, error) {
	required, created, err := e.registry.LoadPosts(e.cfg.Site.PostsFile, e.cfg.Site.DefaultPosts)
	if err != nil {
		return nil, fmt.Errorf("required url list: %w", err)
	}
	if created {
		e.logger.Info("created default posts file", "path", e.cfg.Site.PostsFile)
	}

	discovered := e.discoverer.Discover(ctx, e.base)
	if e.robots != nil {
		discovered = e.filterRobots(ctx, discovered)
	}

	parts := e.registry.Merge(required, discovered)
	if len(parts.Normal) == 0 && e.cfg.Visits.Normal > 0 {
		fallback := e.registry.Merge(required, e.registry.Fallback(e.cfg.Site.DefaultPosts))
		parts.Normal = fallback.Normal
		e.logger.Warn("discovery yielded no new urls, using default posts as normal partition",
			"fallback_urls", len(parts.Normal))
	}

	entries := planner.PlanPerURL(parts.Required, types.PartitionRequired, e.cfg.Visits.RequiredPerURL)
	entries = append(entries, planner.Plan(parts.Normal, types.PartitionNormal, e.cfg.Visits.Normal)...)
	tasks := planner.Expand(entries)

	if len(tasks) == 0 {
		e.logger.Warn("no visits planned, budgets dropped",
			"required_urls", len(parts.Required),
			"normal_urls", len(parts.Normal),
		)
	} else {
		e.logger.Info("visit plan ready",
			"required_urls", len(parts.Required),
			"normal_urls", len(parts.Normal),
			"tasks", len(tasks),
		)
	}
	return tasks, nil
}

func (e *Engine) filterRobots(ctx context.Context, urls []*url.URL) []*url.URL {
	allowed := urls[:0]
	for _, u := range urls {
		if e.robots.Allowed(ctx, u) {
			allowed = append(allowed, u)
		} else {
			e.logger.Debug("blocked by robots", "url", u.String())
		}
	}
	return allowed
}

// runVisits dispatches every task onto the worker pool and funnels all
// outcomes through a single collector, producing exactly one outcome per
// task even when submissions are cut short by the run deadline.
func (e *Engine) runVisits(ctx context.Context, runID string, tasks []types.VisitTask) []types.VisitOutcome {
	if len(tasks) == 0 {
		return nil
	}

	pool, err := newWorkerPool(ctx, e.cfg.Visits.Concurrency, e.cfg.Visits.QueueSize)
	if err != nil {
		// Config validation makes this unreachable; degrade to no visits.
		e.logger.Error("worker pool init failed", "error", err)
		return nil
	}
	defer pool.close()

	results := make(chan types.VisitOutcome, len(tasks))
	var wg sync.WaitGroup

	for _, task := range tasks {
		task := task
		wg.Add(1)
		submitErr := pool.submit(ctx, func(workerCtx context.Context) {
			defer wg.Done()
			if err := e.pacer.Wait(workerCtx); err != nil {
				results <- abandonedOutcome(task)
				return
			}
			results <- e.visitor.Visit(workerCtx, task)
		})
		if submitErr != nil {
			wg.Done()
			results <- abandonedOutcome(task)
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]types.VisitOutcome, 0, len(tasks))
	for out := range results {
		e.visitLog.Record(runID, out)
		e.logger.Debug("visit finished",
			"url", out.URL,
			"succeeded", out.Succeeded,
			"status", out.StatusCode,
			"attempts", out.Attempts,
		)
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func abandonedOutcome(task types.VisitTask) types.VisitOutcome {
	return types.VisitOutcome{
		URL:       task.URL.String(),
		Partition: task.Partition,
		Failure:   types.FailureDeadline,
		Attempts:  0,
	}
}

func (e *Engine) persistHistory(summary types.RunSummary) {
	if e.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.history.SaveRun(ctx, summary); err != nil {
		e.logger.Error("history persist failed", "run_id", summary.RunID, "error", err)
	}
}

// sendReport delivers the report best effort, detached from the run
// deadline so a timed-out run still notifies.
func (e *Engine) sendReport(text string) {
	if e.notifier == nil || !e.notifier.Enabled() {
		e.logger.Warn("notifier not configured, skipping report delivery")
		return
	}
	timeout := e.cfg.Telegram.Timeout.Duration
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.notifier.Notify(ctx, text); err != nil {
		e.logger.Error("report delivery failed", "error", err)
	}
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}
