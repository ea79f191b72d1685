// Package visitor performs individual simulated visits: randomized client
// identity, human-like pacing, a bounded GET, and retry with backoff.
// A visit never fails past its boundary; every call ends in a VisitOutcome.
package visitor

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/Lxi0707/Typecho-play/pkg/types"
)

// Visitor executes one planned visit and reports its outcome.
type Visitor interface {
	Visit(ctx context.Context, task types.VisitTask) types.VisitOutcome
}

// Options controls HTTP visit behaviour.
type Options struct {
	UserAgents   []string
	Referer      string
	Timeout      time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// HTTPVisitor implements Visitor over a shared http.Client. The client's
// transport is configured once and reused read-only by all visits.
type HTTPVisitor struct {
	client       *http.Client
	userAgents   []string
	referer      string
	minDelay     time.Duration
	maxDelay     time.Duration
	maxRetries   int
	retryBackoff time.Duration
	maxBodyBytes int64
}

// NewHTTPVisitor constructs a visitor using the provided options.
func NewHTTPVisitor(opts Options) (*HTTPVisitor, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 * 1024 * 1024
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &HTTPVisitor{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgents:   UserAgentPool(opts.UserAgents),
		referer:      opts.Referer,
		minDelay:     opts.MinDelay,
		maxDelay:     opts.MaxDelay,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Client exposes the underlying HTTP client for reuse (discovery, robots).
func (v *HTTPVisitor) Client() *http.Client {
	if v == nil {
		return nil
	}
	return v.client
}

// Visit performs one visit with pacing and retries. It always returns an
// outcome; errors are classified, never propagated.
func (v *HTTPVisitor) Visit(ctx context.Context, task types.VisitTask) types.VisitOutcome {
	start := time.Now()
	outcome := types.VisitOutcome{
		URL:       task.URL.String(),
		Partition: task.Partition,
	}

	maxAttempts := v.maxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt

		wait := jitterBetween(v.minDelay, v.maxDelay)
		if attempt > 1 {
			wait = withJitter(Backoff(v.retryBackoff, attempt-1))
		}
		if err := sleep(ctx, wait); err != nil {
			outcome.Failure = types.FailureDeadline
			break
		}

		status, bodyBytes, err := v.get(ctx, task.URL)
		if err != nil {
			outcome.Failure = classify(ctx, err)
			if outcome.Failure == types.FailureDeadline {
				break
			}
			continue
		}

		outcome.StatusCode = status
		if status >= 200 && status < 300 {
			outcome.Succeeded = true
			outcome.Failure = types.FailureNone
			outcome.BodyBytes = bodyBytes
			break
		}
		outcome.Failure = types.FailureStatus
	}

	outcome.Elapsed = time.Since(start)
	return outcome
}

func (v *HTTPVisitor) get(ctx context.Context, u *url.URL) (status int, bodyBytes int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", PickUserAgent(v.userAgents))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if v.referer != "" {
		req.Header.Set("Referer", v.referer)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, 0, err
	}

	bodyBytes, err = v.drainBody(resp)
	if err != nil {
		// The status line arrived; a truncated body still counts.
		return resp.StatusCode, bodyBytes, nil
	}
	return resp.StatusCode, bodyBytes, nil
}

// drainBody reads and discards the full (decoded) body so the connection
// returns to the pool and the visit registers as a complete page load.
func (v *HTTPVisitor) drainBody(resp *http.Response) (int64, error) {
	if resp == nil || resp.Body == nil {
		return 0, nil
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return 0, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	n, err := io.Copy(io.Discard, io.LimitReader(reader, v.maxBodyBytes))
	if err != nil {
		return n, fmt.Errorf("read body: %w", err)
	}
	return n, nil
}

// classify maps a transport error to a failure kind. A dead parent
// context means the run was cut short, not a per-request timeout, even
// though the wrapped error also satisfies net.Error's Timeout.
func classify(ctx context.Context, err error) types.FailureKind {
	if err == nil {
		return types.FailureNone
	}
	if ctx != nil && ctx.Err() != nil {
		return types.FailureDeadline
	}
	if errors.Is(err, context.Canceled) {
		return types.FailureDeadline
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout
	}
	return types.FailureConnection
}
