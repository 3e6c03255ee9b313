package config

import (
	"fmt"
	"strings"

	"github.com/consent-audit/crawl/internal/cmp"
	"github.com/consent-audit/crawl/internal/proxy"
	"github.com/consent-audit/crawl/internal/utils/headers"
)

func validate(c *Config) error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("page timeout must be positive")
	}
	if c.ScriptWait < 0 {
		return fmt.Errorf("script wait must not be negative")
	}
	if c.Rate <= 0 {
		return fmt.Errorf("rate must be above 0 requests per second, got %g", c.Rate)
	}
	if c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1, got %d", c.Burst)
	}
	if c.CacheEnabled && c.CacheMaxSize <= 0 {
		return fmt.Errorf("cache max size must be positive")
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be console or json, got %q", c.LogFormat)
	}
	if err := validateProvider(c.Provider); err != nil {
		return err
	}
	if err := headers.Validate(c.Headers); err != nil {
		return err
	}
	for _, p := range c.Proxies {
		if err := proxy.Validate(p); err != nil {
			return err
		}
	}
	return nil
}

func validateProvider(name string) error {
	if name == "" || name == "auto" {
		return nil
	}
	known := make([]string, 0, 4)
	for _, p := range cmp.Providers() {
		if name == string(p) {
			return nil
		}
		known = append(known, string(p))
	}
	return fmt.Errorf("unknown consent platform %q (expected auto, %s)", name, strings.Join(known, ", "))
}
