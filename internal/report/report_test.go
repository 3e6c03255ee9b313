package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/consent-audit/crawl/pkg/models"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := NewWriter(filepath.Join(t.TempDir(), "scrape_out"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w
}

func readArtifact(t *testing.T, w *Writer, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(w.Dir(), name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(content)
}

func sampleReport() *models.CrawlReport {
	rep := models.NewCrawlReport()
	rep.Record("https://a.example/", models.OutcomeSuccess, "cookies extracted: 12")
	rep.Record("https://b.example/", models.OutcomeSuccess, "cookies extracted: 3")
	rep.Record("https://c.example/", models.OutcomeConnFailed, "connection refused")
	rep.Record("https://d.example/", models.OutcomeParseError, "no valid 'RuleSet' element")
	return rep
}

func TestWriteStatistics(t *testing.T) {
	w := newTestWriter(t)
	if err := w.WriteStatistics(sampleReport()); err != nil {
		t.Fatalf("WriteStatistics: %v", err)
	}

	content := readArtifact(t, w, StatisticsFile)
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) != len(models.AllOutcomes()) {
		t.Fatalf("got %d lines, want one per outcome (%d)", len(lines), len(models.AllOutcomes()))
	}
	if lines[0] != "Successful requests:          2" {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[1] != "Failed to connect:            1" {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestWriteErrorInfo(t *testing.T) {
	w := newTestWriter(t)
	if err := w.WriteErrorInfo(sampleReport()); err != nil {
		t.Fatalf("WriteErrorInfo: %v", err)
	}

	content := readArtifact(t, w, ErrorInfoFile)
	if !strings.Contains(content, "Error Type CONN_FAILED\nWebsite: \"https://c.example/\"  ----  Details: \"connection refused\"\n") {
		t.Errorf("missing connection failure section:\n%s", content)
	}
	if strings.Contains(content, "https://a.example/") {
		t.Error("successful site leaked into error info")
	}
	// Every failure outcome gets a section header, populated or not.
	if !strings.Contains(content, "Error Type SSL_ERROR\n") {
		t.Errorf("missing empty section header:\n%s", content)
	}
}

func TestWriteFailedURLs(t *testing.T) {
	w := newTestWriter(t)
	if err := w.WriteFailedURLs(sampleReport()); err != nil {
		t.Fatalf("WriteFailedURLs: %v", err)
	}

	content := readArtifact(t, w, FailedURLsFile)
	if content != "https://c.example/\nhttps://d.example/\n" {
		t.Errorf("content = %q", content)
	}
}

func TestWriteFailedURLsSkippedWhenAllSucceed(t *testing.T) {
	w := newTestWriter(t)
	rep := models.NewCrawlReport()
	rep.Record("https://a.example/", models.OutcomeSuccess, "")

	if err := w.WriteFailedURLs(rep); err != nil {
		t.Fatalf("WriteFailedURLs: %v", err)
	}
	if _, err := os.Stat(filepath.Join(w.Dir(), FailedURLsFile)); !os.IsNotExist(err) {
		t.Errorf("failed_urls.txt exists despite zero failures (stat err = %v)", err)
	}
}

func TestWriteUncrawled(t *testing.T) {
	w := newTestWriter(t)
	if err := w.WriteUncrawled([]string{"https://x.example/", "https://y.example/"}); err != nil {
		t.Fatalf("WriteUncrawled: %v", err)
	}
	if got := readArtifact(t, w, UncrawledFile); got != "https://x.example/\nhttps://y.example/\n" {
		t.Errorf("content = %q", got)
	}

	if err := w.WriteUncrawled(nil); err != nil {
		t.Fatalf("WriteUncrawled(nil): %v", err)
	}
}

func TestWriteRecordsJSON(t *testing.T) {
	w := newTestWriter(t)
	records := []*models.CookieRecord{
		{
			SiteURL: "https://a.example/",
			Name:    "CookieConsent",
			Domain:  "a.example",
			Path:    "/",
			Purpose: "Stores consent state",
			Labels:  []models.CategoryLabel{{Category: models.CategoryEssential, Name: "Necessary"}},
		},
	}
	if err := w.WriteRecordsJSON(records); err != nil {
		t.Fatalf("WriteRecordsJSON: %v", err)
	}

	var decoded []models.CookieRecord
	if err := json.Unmarshal([]byte(readArtifact(t, w, RecordsFile)), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Name != "CookieConsent" || decoded[0].Labels[0].Name != "Necessary" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteRecordsJSONEmpty(t *testing.T) {
	w := newTestWriter(t)
	if err := w.WriteRecordsJSON(nil); err != nil {
		t.Fatalf("WriteRecordsJSON(nil): %v", err)
	}
	if got := strings.TrimSpace(readArtifact(t, w, RecordsFile)); got != "[]" {
		t.Errorf("content = %q, want empty array", got)
	}
}

func TestWriteRecordsCSV(t *testing.T) {
	w := newTestWriter(t)
	records := []*models.CookieRecord{
		{
			SiteURL: "https://a.example/",
			Name:    "_ga",
			Domain:  "a.example",
			Path:    "/",
			Purpose: `Registers a unique ID. See <a href="https://policy.example/">our policy</a>.`,
			Type:    "HTTP",
			Labels: []models.CategoryLabel{
				{Category: models.CategoryAnalytical, Name: "Statistics"},
				{Category: models.CategoryAdvertising, Name: "Marketing"},
			},
		},
	}
	if err := w.WriteRecordsCSV(records); err != nil {
		t.Fatalf("WriteRecordsCSV: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(readArtifact(t, w, CookiesFile))).ReadAll()
	if err != nil {
		t.Fatalf("parse CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header plus one record", len(rows))
	}
	if rows[0][0] != "site_url" || rows[0][4] != "categories" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "_ga" || rows[1][4] != "Statistics; Marketing" {
		t.Errorf("record row = %v", rows[1])
	}
	if strings.Contains(rows[1][5], "<a") {
		t.Errorf("purpose HTML not stripped: %q", rows[1][5])
	}
}

func TestWriteSummaryMarkdown(t *testing.T) {
	w := newTestWriter(t)
	records := []*models.CookieRecord{
		{
			SiteURL: "https://a.example/",
			Name:    "_ga",
			Domain:  "a.example",
			Path:    "/",
			Purpose: `Registers a unique ID. See <a href="https://policy.example/">our policy</a>.`,
			Labels:  []models.CategoryLabel{{Category: models.CategoryAnalytical, Name: "Statistics"}},
		},
		{
			SiteURL: "https://a.example/",
			Name:    "sid",
			Domain:  "a.example",
			Path:    "/",
			Purpose: "session | auth",
			Labels:  []models.CategoryLabel{{Category: models.CategoryEssential, Name: "Necessary"}},
		},
	}
	if err := w.WriteSummaryMarkdown(sampleReport(), records); err != nil {
		t.Fatalf("WriteSummaryMarkdown: %v", err)
	}

	content := readArtifact(t, w, SummaryFile)
	if !strings.Contains(content, "| SUCCESS | 2 |") {
		t.Errorf("missing outcome row:\n%s", content)
	}
	if !strings.Contains(content, "| https://a.example/ | 2 |") {
		t.Errorf("missing per-site count:\n%s", content)
	}
	if !strings.Contains(content, "[our policy](https://policy.example/)") {
		t.Errorf("purpose HTML not converted to markdown:\n%s", content)
	}
	if !strings.Contains(content, `session \| auth`) {
		t.Errorf("pipe not escaped in table cell:\n%s", content)
	}
}

func TestConsoleSummary(t *testing.T) {
	var buf bytes.Buffer
	ConsoleSummary(&buf, sampleReport())

	out := buf.String()
	if !strings.Contains(out, "Successful requests:          2") {
		t.Errorf("missing success count:\n%s", out)
	}
	if !strings.Contains(out, "4 sites crawled, 2 succeeded, 2 failed") {
		t.Errorf("missing totals line:\n%s", out)
	}
}

func TestTableCell(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"with | pipe", `with \| pipe`},
		{"line\nbreak", "line break"},
		{"  padded   out  ", "padded out"},
	}
	for _, tc := range cases {
		if got := tableCell(tc.in); got != tc.want {
			t.Errorf("tableCell(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
