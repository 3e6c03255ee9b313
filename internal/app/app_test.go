package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/consent-audit/crawl/internal/config"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return cfg
}

func TestNewWiresInfrastructure(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Proxies = []string{"http://proxy-a:8080", "http://proxy-b:8080"}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	if a.Fetch == nil {
		t.Error("Fetch client not built")
	}
	if a.Limiter == nil {
		t.Error("rate limiter not built")
	}
	if a.Cache == nil {
		t.Error("cache not built despite CacheEnabled")
	}
	if got := a.Proxies.Size(); got != 2 {
		t.Errorf("proxy pool size = %d, want 2", got)
	}
	if a.Browser != nil || a.Store != nil {
		t.Error("browser and store must stay closed until requested")
	}
}

func TestNewCacheDisabled(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.CacheEnabled = false

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	if a.Cache != nil {
		t.Error("cache built despite CacheEnabled=false")
	}
}

func TestNewRejectsBadLogLevel(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.LogLevel = "chatty"

	if _, err := New(cfg); err == nil {
		t.Fatal("New accepted an invalid log level")
	}
}

func TestNewWritesLogFile(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.LogFile = filepath.Join(t.TempDir(), "crawl.log")

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	a.Logger.Info().Msg("log file smoke test")
	a.Close()

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "log file smoke test") {
		t.Errorf("log file %q missing the test line", data)
	}
}

func TestOpenStore(t *testing.T) {
	cfg := defaultConfig(t)
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	if err := a.OpenStore(filepath.Join(t.TempDir(), "dat.sqlite")); err != nil {
		t.Fatalf("OpenStore returned error: %v", err)
	}
	if a.Store == nil {
		t.Fatal("Store still nil after OpenStore")
	}
}

func TestResolveOutDir(t *testing.T) {
	cfg := defaultConfig(t)
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	if got := a.ResolveOutDir(); !strings.HasPrefix(got, "scrape_out_") {
		t.Errorf("ResolveOutDir() = %q, want scrape_out_<timestamp>", got)
	}

	a.Config.OutDir = "custom_dir"
	if got := a.ResolveOutDir(); got != "custom_dir" {
		t.Errorf("ResolveOutDir() = %q, want custom_dir", got)
	}
}
