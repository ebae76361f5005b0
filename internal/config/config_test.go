package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// TestNewConfig verifies the defaults. Changing a default should fail here
// so that the change is intentional.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default MaxConcurrency is 10", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxConcurrency != 10 {
			t.Errorf("expected MaxConcurrency to be 10, got %d", cfg.MaxConcurrency)
		}
	})

	t.Run("default Timeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 30*time.Second {
			t.Errorf("expected Timeout to be 30s, got %v", cfg.Timeout)
		}
	})

	t.Run("default DuplicatePolicy is insert", func(t *testing.T) {
		t.Parallel()
		if cfg.DuplicatePolicy != "insert" {
			t.Errorf("expected DuplicatePolicy to be insert, got %q", cfg.DuplicatePolicy)
		}
	})

	t.Run("default excluded path is the external-site redirect", func(t *testing.T) {
		t.Parallel()
		if cfg.ExcludedPathPattern != "/external-site/" {
			t.Errorf("expected /external-site/, got %q", cfg.ExcludedPathPattern)
		}
	})

	t.Run("default excluded extensions include pdf", func(t *testing.T) {
		t.Parallel()
		if !slices.Contains(cfg.ExcludedExtensions, "pdf") {
			t.Errorf("expected pdf in %v", cfg.ExcludedExtensions)
		}
	})

	t.Run("default database lives in the XDG data dir", func(t *testing.T) {
		t.Parallel()
		if !strings.HasPrefix(cfg.DatabasePath, XDGDataDir()) {
			t.Errorf("expected %q under %q", cfg.DatabasePath, XDGDataDir())
		}
		if filepath.Base(cfg.DatabasePath) != "crawl.sqlite3" {
			t.Errorf("unexpected database file %q", cfg.DatabasePath)
		}
	})

	t.Run("robots, minify and unwrap are off", func(t *testing.T) {
		t.Parallel()
		if cfg.RespectRobots || cfg.Minify || cfg.UnwrapExternalLinks {
			t.Errorf("expected opt-in features to be disabled: %+v", cfg)
		}
	})
}

func TestNewConfigDoesNotShareSlices(t *testing.T) {
	t.Parallel()

	a := NewConfig()
	a.ExcludedExtensions[0] = "changed"
	b := NewConfig()
	if b.ExcludedExtensions[0] == "changed" {
		t.Error("NewConfig returned a shared extensions slice")
	}
}

// TestConfigValidate tests each validation rule in isolation.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.StartURL = "https://www.example.com/"
		cfg.DatabasePath = "crawl.sqlite3"
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{name: "valid config", modify: func(*Config) {}},
		{name: "replace policy is valid", modify: func(c *Config) { c.DuplicatePolicy = "replace" }},
		{name: "empty start URL", modify: func(c *Config) { c.StartURL = "" }, want: ErrNoStartURL},
		{name: "relative start URL", modify: func(c *Config) { c.StartURL = "/about/" }, want: ErrInvalidStartURL},
		{name: "ftp start URL", modify: func(c *Config) { c.StartURL = "ftp://example.com/" }, want: ErrInvalidStartURL},
		{name: "empty database", modify: func(c *Config) { c.DatabasePath = "" }, want: ErrNoDatabase},
		{name: "zero concurrency", modify: func(c *Config) { c.MaxConcurrency = 0 }, want: ErrInvalidConcurrency},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, want: ErrInvalidTimeout},
		{name: "negative delay", modify: func(c *Config) { c.Delay = -time.Second }, want: ErrInvalidDelay},
		{name: "negative max pages", modify: func(c *Config) { c.MaxPages = -1 }, want: ErrInvalidMaxPages},
		{name: "negative max depth", modify: func(c *Config) { c.MaxDepth = -1 }, want: ErrInvalidMaxDepth},
		{name: "negative body size", modify: func(c *Config) { c.MaxBodySize = -1 }, want: ErrInvalidMaxBodySize},
		{name: "unknown policy", modify: func(c *Config) { c.DuplicatePolicy = "merge" }, want: ErrInvalidDuplicatePolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigApply(t *testing.T) {
	t.Parallel()

	t.Run("empty section keeps defaults", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.Apply(CrawlSection{})

		want := NewConfig()
		if cfg.MaxConcurrency != want.MaxConcurrency || cfg.ExcludedPathPattern != want.ExcludedPathPattern {
			t.Errorf("defaults changed: %+v", cfg)
		}
		if !slices.Equal(cfg.ExcludedExtensions, want.ExcludedExtensions) {
			t.Errorf("extensions changed: %v", cfg.ExcludedExtensions)
		}
	})

	t.Run("set values override defaults", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.Apply(CrawlSection{
			MaxConcurrency:     4,
			MaxPages:           100,
			MaxDepth:           3,
			Delay:              250 * time.Millisecond,
			Timeout:            time.Minute,
			UserAgent:          "test-agent",
			DuplicatePolicy:    "replace",
			RespectRobots:      true,
			Minify:             true,
			ExcludedExtensions: []string{"pdf"},
			ChromeSelectors:    []string{"header"},
		})

		if cfg.MaxConcurrency != 4 || cfg.MaxPages != 100 || cfg.MaxDepth != 3 || cfg.Delay != 250*time.Millisecond {
			t.Errorf("numeric options not applied: %+v", cfg)
		}
		if cfg.Timeout != time.Minute || cfg.UserAgent != "test-agent" || cfg.DuplicatePolicy != "replace" {
			t.Errorf("string options not applied: %+v", cfg)
		}
		if !cfg.RespectRobots || !cfg.Minify {
			t.Error("boolean options not applied")
		}
		if !slices.Equal(cfg.ExcludedExtensions, []string{"pdf"}) || !slices.Equal(cfg.ChromeSelectors, []string{"header"}) {
			t.Errorf("list options not applied: %v %v", cfg.ExcludedExtensions, cfg.ChromeSelectors)
		}
	})

	t.Run("empty excluded path pattern disables the check", func(t *testing.T) {
		t.Parallel()
		empty := ""
		cfg := NewConfig()
		cfg.Apply(CrawlSection{ExcludedPathPattern: &empty})
		if cfg.ExcludedPathPattern != "" {
			t.Errorf("expected empty pattern, got %q", cfg.ExcludedPathPattern)
		}
	})

	t.Run("cookie becomes a header", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.Apply(CrawlSection{
			Cookie:  "session=abc",
			Headers: map[string]string{"X-Env": "staging"},
		})
		if cfg.Headers["Cookie"] != "session=abc" || cfg.Headers["X-Env"] != "staging" {
			t.Errorf("unexpected headers %v", cfg.Headers)
		}
	})
}

func TestFileForHost(t *testing.T) {
	t.Parallel()

	pattern := "/leaving/"
	cf := &File{
		Crawl: CrawlSection{
			MaxConcurrency: 5,
			Cookie:         "default=1",
			Headers:        map[string]string{"X-Default": "a", "X-Shared": "default"},
			IgnorePatterns: []string{"/admin/*"},
		},
		Sites: map[string]CrawlSection{
			"www.example.com": {
				MaxConcurrency:      2,
				ExcludedPathPattern: &pattern,
				Headers:             map[string]string{"X-Site": "b", "X-Shared": "site"},
				IgnorePatterns:      []string{"/beta/*"},
				RespectRobots:       true,
			},
		},
	}

	t.Run("returns the crawl section for unknown hosts", func(t *testing.T) {
		t.Parallel()
		got := cf.ForHost("other.example.org")
		if got.MaxConcurrency != 5 || got.Cookie != "default=1" {
			t.Errorf("unexpected section %+v", got)
		}
		if got.ExcludedPathPattern != nil {
			t.Errorf("unexpected excluded path %q", *got.ExcludedPathPattern)
		}
	})

	t.Run("merges site overrides", func(t *testing.T) {
		t.Parallel()
		got := cf.ForHost("WWW.Example.com")
		if got.MaxConcurrency != 2 {
			t.Errorf("expected concurrency 2, got %d", got.MaxConcurrency)
		}
		if got.ExcludedPathPattern == nil || *got.ExcludedPathPattern != "/leaving/" {
			t.Errorf("excluded path not overridden: %v", got.ExcludedPathPattern)
		}
		if got.Cookie != "default=1" {
			t.Errorf("expected default cookie, got %q", got.Cookie)
		}
		if !got.RespectRobots {
			t.Error("expected robots to be enabled")
		}
		if !slices.Equal(got.IgnorePatterns, []string{"/beta/*"}) {
			t.Errorf("expected site patterns, got %v", got.IgnorePatterns)
		}
	})

	t.Run("merges headers with site values winning", func(t *testing.T) {
		t.Parallel()
		got := cf.ForHost("www.example.com")
		want := map[string]string{"X-Default": "a", "X-Site": "b", "X-Shared": "site"}
		for k, v := range want {
			if got.Headers[k] != v {
				t.Errorf("header %s = %q, want %q", k, got.Headers[k], v)
			}
		}
		if cf.Crawl.Headers["X-Shared"] != "default" {
			t.Error("merging modified the global headers")
		}
	})

	t.Run("nil sites map", func(t *testing.T) {
		t.Parallel()
		empty := &File{Crawl: CrawlSection{UserAgent: "ua"}}
		if got := empty.ForHost("www.example.com"); got.UserAgent != "ua" {
			t.Errorf("unexpected section %+v", got)
		}
	})
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ".siteindex")
		content := `crawl:
  excludedPathPattern: ""
  excludedExtensions: [png, pdf]
  maxConcurrency: 4
  respectRobots: true
  duplicatePolicy: replace
  timeout: 45s
  delay: 200ms
  headers:
    X-Foo: bar
  chromeSelectors: [".site-header"]
sites:
  WWW.Example.com:
    maxPages: 10
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cf, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile: %v", err)
		}

		c := cf.Crawl
		if c.ExcludedPathPattern == nil || *c.ExcludedPathPattern != "" {
			t.Errorf("expected explicit empty excluded path, got %v", c.ExcludedPathPattern)
		}
		if !slices.Equal(c.ExcludedExtensions, []string{"png", "pdf"}) {
			t.Errorf("unexpected extensions %v", c.ExcludedExtensions)
		}
		if c.MaxConcurrency != 4 || !c.RespectRobots || c.DuplicatePolicy != "replace" {
			t.Errorf("unexpected section %+v", c)
		}
		if c.Timeout != 45*time.Second || c.Delay != 200*time.Millisecond {
			t.Errorf("durations not parsed: %v %v", c.Timeout, c.Delay)
		}
		if c.Headers["X-Foo"] != "bar" {
			t.Errorf("unexpected headers %v", c.Headers)
		}
		if got := cf.ForHost("www.example.com"); got.MaxPages != 10 {
			t.Errorf("site keys should be case-insensitive, got %+v", got)
		}
	})

	t.Run("returns ErrInvalidConfigFile for invalid YAML", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ".siteindex")
		if err := os.WriteFile(path, []byte("crawl: [unclosed"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadFile(path); !errors.Is(err, ErrInvalidConfigFile) {
			t.Errorf("expected ErrInvalidConfigFile, got %v", err)
		}
	})

	t.Run("empty file loads", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ".siteindex")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cf, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if cf.Sites == nil {
			t.Error("expected initialised sites map")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(path, []byte("crawl: {}\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()
		if got := FindConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); got != "" {
			t.Errorf("expected empty path, got %q", got)
		}
	})
}

func TestXDGDataDir(t *testing.T) {
	t.Parallel()

	dir := XDGDataDir()
	if dir == "" {
		t.Fatal("XDGDataDir returned an empty path")
	}
	if filepath.Base(dir) != AppName {
		t.Errorf("expected %q to end in %q", dir, AppName)
	}
}
