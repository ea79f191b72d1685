// Package robots optionally filters discovered URLs through the target
// site's robots.txt. Required URLs are owner-supplied and bypass it.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// Agent evaluates robots.txt rules with per-host caching.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]entry
}

type entry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// NewAgent builds a robots agent reusing the engine's HTTP client.
func NewAgent(client *http.Client, userAgent string, ttl time.Duration) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Agent{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		cache:     make(map[string]entry),
	}
}

// Allowed reports whether the agent may visit the URL. Unreachable or
// unparsable robots.txt permits the visit.
func (a *Agent) Allowed(ctx context.Context, u *url.URL) bool {
	if a == nil || u == nil {
		return true
	}
	rules := a.rules(ctx, u)
	if rules == nil {
		return true
	}
	group := rules.FindGroup(a.userAgent)
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (a *Agent) rules(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(u.Host)

	a.mu.Lock()
	cached, ok := a.cache[host]
	a.mu.Unlock()
	if ok && time.Since(cached.fetched) < a.ttl {
		return cached.rules
	}

	rules, err := a.fetch(ctx, u)
	if err != nil {
		rules = nil
	}
	a.mu.Lock()
	a.cache[host] = entry{fetched: time.Now(), rules: rules}
	a.mu.Unlock()
	return rules
}

func (a *Agent) fetch(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
