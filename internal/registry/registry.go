// Package registry resolves, deduplicates, and partitions the URLs a run
// will visit. URLs from the persisted posts file form the required
// partition; URLs found through discovery form the normal partition.
package registry

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Registry normalises URLs against the target site and merges the required
// list with discovery output. State is rebuilt fresh each run.
type Registry struct {
	base *url.URL
}

// Partitions holds the two disjoint URL sets for one run, in insertion order.
type Partitions struct {
	Required []*url.URL
	Normal   []*url.URL
}

// New creates a registry for the given site base address.
func New(base *url.URL) (*Registry, error) {
	if base == nil || base.Host == "" {
		return nil, errors.New("registry requires an absolute base URL")
	}
	return &Registry{base: base}, nil
}

// Normalize resolves raw against the base address and canonicalises it:
// fragment stripped, host lowercased, paths on the base host carry the base
// scheme so http/https variants of the same post collapse together.
func (r *Registry) Normalize(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty url")
	}
	u, err := r.base.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	if u.Host == strings.ToLower(r.base.Host) {
		u.Scheme = r.base.Scheme
	}
	return u, nil
}

// Key returns the deduplication key for a normalised URL. Trailing-slash
// and scheme variants of the same resource map to the same key.
func Key(u *url.URL) string {
	path := u.EscapedPath()
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	key := strings.ToLower(u.Host) + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

// Merge partitions the inputs into disjoint required and normal sets.
// Every persisted URL is required; discovered URLs already required are
// dropped from the normal set. Insertion order is preserved.
func (r *Registry) Merge(required, discovered []*url.URL) Partitions {
	seen := make(map[string]struct{}, len(required)+len(discovered))
	parts := Partitions{}

	for _, u := range required {
		if u == nil {
			continue
		}
		k := Key(u)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		parts.Required = append(parts.Required, u)
	}
	for _, u := range discovered {
		if u == nil {
			continue
		}
		k := Key(u)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		parts.Normal = append(parts.Normal, u)
	}
	return parts
}

// LoadPosts reads the required-URL list from path, one URL per line, blank
// lines ignored. When the file does not exist it is first created with the
// provided default entries; created reports whether that happened. Read or
// write failures are returned to the caller and abort the run.
func (r *Registry) LoadPosts(path string, defaults []string) (urls []*url.URL, created bool, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		if !errors.Is(statErr, os.ErrNotExist) {
			return nil, false, fmt.Errorf("stat posts file: %w", statErr)
		}
		if err := writePosts(path, defaults); err != nil {
			return nil, false, err
		}
		created = true
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, created, fmt.Errorf("open posts file: %w", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		u, nerr := r.Normalize(line)
		if nerr != nil {
			// Malformed lines are skipped rather than failing the run.
			continue
		}
		urls = append(urls, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, created, fmt.Errorf("read posts file: %w", err)
	}
	return urls, created, nil
}

// Fallback normalises the default post paths for use as the normal
// partition when discovery yields nothing.
func (r *Registry) Fallback(defaults []string) []*url.URL {
	urls := make([]*url.URL, 0, len(defaults))
	for _, raw := range defaults {
		u, err := r.Normalize(raw)
		if err != nil {
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

func writePosts(path string, defaults []string) error {
	var sb strings.Builder
	for _, p := range defaults {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write default posts file: %w", err)
	}
	return nil
}
