package reqctx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCrawlContextRoundTrip(t *testing.T) {
	ctx := WithCrawlContext(context.Background(), "https://example.com", "cookiebot", 3)

	cc := GetCrawlContext(ctx)
	if cc.Site != "https://example.com" {
		t.Errorf("Site = %q, want https://example.com", cc.Site)
	}
	if cc.Provider != "cookiebot" {
		t.Errorf("Provider = %q, want cookiebot", cc.Provider)
	}
	if cc.Seq != 3 {
		t.Errorf("Seq = %d, want 3", cc.Seq)
	}
	if cc.StartTime.IsZero() {
		t.Error("StartTime not set")
	}
}

func TestGetCrawlContextWithoutValue(t *testing.T) {
	cc := GetCrawlContext(context.Background())
	if cc.Site != "unknown" {
		t.Errorf("Site = %q, want unknown placeholder", cc.Site)
	}
}

func TestLoggerCarriesCrawlFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithCrawlContext(context.Background(), "https://example.com", "termly", 7)
	Logger(ctx, base).Info().Msg("hello")

	line := buf.String()
	for _, want := range []string{`"site":"https://example.com"`, `"provider":"termly"`, `"seq":7`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestLoggerSkipsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	Logger(context.Background(), base).Info().Msg("hello")

	line := buf.String()
	if strings.Contains(line, "provider") || strings.Contains(line, "seq") {
		t.Errorf("log line %q carries fields that were never set", line)
	}
}

func TestSiteError(t *testing.T) {
	cause := errors.New("boom")
	ctx := WithCrawlContext(context.Background(), "https://example.com", "onetrust", 1)

	err := NewSiteError(ctx, cause)
	if got := err.Error(); got != "[https://example.com] boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap lost the cause")
	}
}
