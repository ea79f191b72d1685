package registry

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	base, err := url.Parse("https://blog.example")
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	reg, err := New(base)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func normalize(t *testing.T, reg *Registry, raw string) *url.URL {
	t.Helper()
	u, err := reg.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize %q: %v", raw, err)
	}
	return u
}

func TestNormalizeResolvesRelativePaths(t *testing.T) {
	reg := newTestRegistry(t)
	u := normalize(t, reg, "/index.php/archives/13/")
	if got := u.String(); got != "https://blog.example/index.php/archives/13/" {
		t.Fatalf("unexpected normalized url: %s", got)
	}
}

func TestNormalizeStripsFragments(t *testing.T) {
	reg := newTestRegistry(t)
	u := normalize(t, reg, "https://blog.example/archives/5/#comments")
	if u.Fragment != "" {
		t.Fatalf("fragment not stripped: %q", u.Fragment)
	}
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	reg := newTestRegistry(t)
	for _, raw := range []string{"", "   ", "ftp://blog.example/a"} {
		if _, err := reg.Normalize(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestKeyCollapsesVariants(t *testing.T) {
	reg := newTestRegistry(t)
	a := normalize(t, reg, "/archives/7/")
	b := normalize(t, reg, "https://blog.example/archives/7")
	c := normalize(t, reg, "http://blog.example/archives/7/")
	if Key(a) != Key(b) || Key(b) != Key(c) {
		t.Fatalf("expected identical keys, got %q / %q / %q", Key(a), Key(b), Key(c))
	}
}

func TestMergePartitionsAreDisjoint(t *testing.T) {
	reg := newTestRegistry(t)

	var required []*url.URL
	for _, p := range []string{"/archives/1/", "/archives/2/"} {
		required = append(required, normalize(t, reg, p))
	}

	var discovered []*url.URL
	for i := 1; i <= 10; i++ {
		discovered = append(discovered, normalize(t, reg, fmt.Sprintf("/archives/%d/", i)))
	}

	parts := reg.Merge(required, discovered)
	if len(parts.Required) != 2 {
		t.Fatalf("expected 2 required urls, got %d", len(parts.Required))
	}
	if len(parts.Normal) != 8 {
		t.Fatalf("expected 8 normal urls, got %d", len(parts.Normal))
	}

	seen := make(map[string]struct{})
	for _, u := range parts.Required {
		seen[Key(u)] = struct{}{}
	}
	for _, u := range parts.Normal {
		if _, dup := seen[Key(u)]; dup {
			t.Fatalf("url %s appears in both partitions", u)
		}
	}
}

func TestMergeDeduplicatesWithinPartition(t *testing.T) {
	reg := newTestRegistry(t)
	discovered := []*url.URL{
		normalize(t, reg, "/archives/3/"),
		normalize(t, reg, "https://blog.example/archives/3"),
	}
	parts := reg.Merge(nil, discovered)
	if len(parts.Normal) != 1 {
		t.Fatalf("expected trailing-slash variants to collapse, got %d urls", len(parts.Normal))
	}
}

func TestLoadPostsCreatesDefaultFile(t *testing.T) {
	reg := newTestRegistry(t)
	path := filepath.Join(t.TempDir(), "posts.txt")
	defaults := []string{"/index.php/archives/13/", "/index.php/archives/5/"}

	urls, created, err := reg.LoadPosts(path, defaults)
	if err != nil {
		t.Fatalf("load posts: %v", err)
	}
	if !created {
		t.Fatal("expected the default file to be created")
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 required urls, got %d", len(urls))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back posts file: %v", err)
	}
	for _, p := range defaults {
		if !strings.Contains(string(data), p) {
			t.Errorf("posts file missing default entry %q", p)
		}
	}

	// A second load must read the persisted file instead of recreating it.
	urls, created, err = reg.LoadPosts(path, defaults)
	if err != nil {
		t.Fatalf("reload posts: %v", err)
	}
	if created {
		t.Fatal("file recreated on second load")
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls on reload, got %d", len(urls))
	}
}

func TestLoadPostsIgnoresBlankAndMalformedLines(t *testing.T) {
	reg := newTestRegistry(t)
	path := filepath.Join(t.TempDir(), "posts.txt")
	content := "/archives/1/\n\n   \nftp://blog.example/skip\n/archives/2/\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed posts file: %v", err)
	}

	urls, created, err := reg.LoadPosts(path, nil)
	if err != nil {
		t.Fatalf("load posts: %v", err)
	}
	if created {
		t.Fatal("existing file reported as created")
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
}

func TestFallbackNormalisesDefaults(t *testing.T) {
	reg := newTestRegistry(t)
	urls := reg.Fallback([]string{"/a/", "not a url\x7f", "/b/"})
	if len(urls) != 2 {
		t.Fatalf("expected 2 fallback urls, got %d", len(urls))
	}
}
