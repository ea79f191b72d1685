// Package discover fetches the blog index page and extracts article URLs
// from its anchors. Discovery is best effort: any failure yields an empty
// set and the run falls back on the required partition alone.
package discover

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkExtractor pulls candidate article URLs out of an HTML document.
// Implementations must return absolute URLs resolved against base.
type LinkExtractor interface {
	Extract(base *url.URL, body io.Reader) ([]*url.URL, error)
}

// ExtractorOptions tunes anchor filtering.
type ExtractorOptions struct {
	IncludePatterns []string
	ExcludePatterns []string
	MaxLinks        int
}

// AnchorExtractor extracts links from a[href] elements via goquery.
type AnchorExtractor struct {
	include  []*regexp.Regexp
	exclude  []*regexp.Regexp
	maxLinks int
}

// NewAnchorExtractor compiles the filter patterns into an extractor.
func NewAnchorExtractor(opts ExtractorOptions) (*AnchorExtractor, error) {
	include, err := compilePatterns(opts.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exclude, err := compilePatterns(opts.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	maxLinks := opts.MaxLinks
	if maxLinks <= 0 {
		maxLinks = 200
	}
	return &AnchorExtractor{include: include, exclude: exclude, maxLinks: maxLinks}, nil
}

// Extract returns deduplicated on-site article URLs found in the document.
func (e *AnchorExtractor) Extract(base *url.URL, body io.Reader) ([]*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	links := make([]*url.URL, 0, e.maxLinks)

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return true
		}
		if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return true
		}

		u, err := base.Parse(href)
		if err != nil {
			return true
		}
		u.Fragment = ""
		if !e.accept(base, u) {
			return true
		}
		key := u.String()
		if _, exists := seen[key]; exists {
			return true
		}
		seen[key] = struct{}{}
		links = append(links, u)
		return len(links) < e.maxLinks
	})

	return links, nil
}

func (e *AnchorExtractor) accept(base, target *url.URL) bool {
	scheme := strings.ToLower(target.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if !strings.EqualFold(base.Hostname(), target.Hostname()) {
		return false
	}

	if len(e.include) > 0 {
		matched := false
		for _, pat := range e.include {
			if pat.MatchString(target.String()) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range e.exclude {
		if pat.MatchString(target.String()) {
			return false
		}
	}
	return true
}

// Discoverer fetches the index page and runs the extractor over it.
type Discoverer struct {
	client    *http.Client
	extractor LinkExtractor
	userAgent string
	logger    *slog.Logger
}

// New builds a discoverer reusing the engine's HTTP client.
func New(client *http.Client, extractor LinkExtractor, userAgent string, logger *slog.Logger) *Discoverer {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{client: client, extractor: extractor, userAgent: userAgent, logger: logger}
}

// Discover returns the article URLs linked from the site's index page.
// Fetch or parse failures are logged and produce an empty result.
func (d *Discoverer) Discover(ctx context.Context, base *url.URL) []*url.URL {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		d.logger.Warn("discovery request build failed", "error", err)
		return nil
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("discovery fetch failed", "url", base.String(), "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Warn("discovery fetch rejected", "url", base.String(), "status", resp.StatusCode)
		return nil
	}

	links, err := d.extractor.Extract(base, resp.Body)
	if err != nil {
		d.logger.Warn("link extraction failed", "url", base.String(), "error", err)
		return nil
	}
	d.logger.Info("discovery complete", "url", base.String(), "links", len(links))
	return links
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pat, err := regexp.Compile(raw)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, pat)
	}
	return compiled, nil
}
