// Package report writes the end-of-run artifacts: outcome statistics,
// error details, failed-URL lists, and the optional JSON, CSV and
// markdown exports of the committed records.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/rs/zerolog"

	"github.com/consent-audit/crawl/internal/ui"
	"github.com/consent-audit/crawl/internal/utils/htmltext"
	"github.com/consent-audit/crawl/pkg/models"
)

// Artifact filenames inside the output directory.
const (
	StatisticsFile = "crawl_statistics.csv"
	ErrorInfoFile  = "error_info.txt"
	FailedURLsFile = "failed_urls.txt"
	UncrawledFile  = "uncrawled_urls.txt"
	RecordsFile    = "records.json"
	CookiesFile    = "cookies.csv"
	SummaryFile    = "summary.md"
)

// Writer produces report artifacts inside one output directory.
type Writer struct {
	dir    string
	logger zerolog.Logger
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string, logger zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// WriteStatistics writes one labeled count line per outcome, in enum
// order, to crawl_statistics.csv.
func (w *Writer) WriteStatistics(rep *models.CrawlReport) error {
	var sb strings.Builder
	for _, o := range models.AllOutcomes() {
		fmt.Fprintf(&sb, "%-30s%d\n", o.StatLabel(), rep.Count(o))
	}

	path := filepath.Join(w.dir, StatisticsFile)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write crawl statistics: %w", err)
	}
	w.logger.Info().Str("path", path).Msg("Dumped crawl statistics")
	return nil
}

// WriteErrorInfo writes a section per non-success outcome listing each
// affected site and its diagnostic.
func (w *Writer) WriteErrorInfo(rep *models.CrawlReport) error {
	entries := rep.Entries()

	var sb strings.Builder
	for _, o := range models.AllOutcomes() {
		if o == models.OutcomeSuccess {
			continue
		}
		fmt.Fprintf(&sb, "Error Type %s\n", o)
		for _, e := range entries {
			if e.Outcome == o {
				fmt.Fprintf(&sb, "Website: %q  ----  Details: %q\n", e.URL, e.Diagnostic)
			}
		}
	}

	path := filepath.Join(w.dir, ErrorInfoFile)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write error info: %w", err)
	}
	w.logger.Info().Str("path", path).Msg("Dumped full error info")
	return nil
}

// WriteFailedURLs writes the failed site URLs one per line, in crawl
// order. Nothing is written when every site succeeded.
func (w *Writer) WriteFailedURLs(rep *models.CrawlReport) error {
	return w.writeURLList(FailedURLsFile, rep.FailedURLs(), "No failed URLs to dump")
}

// WriteUncrawled persists the sites a cancelled run never reached, so the
// file can be fed back in with --file.
func (w *Writer) WriteUncrawled(urls []string) error {
	return w.writeURLList(UncrawledFile, urls, "No uncrawled URLs to dump")
}

func (w *Writer) writeURLList(name string, urls []string, emptyMsg string) error {
	if len(urls) == 0 {
		w.logger.Debug().Msg(emptyMsg)
		return nil
	}

	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(urls, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	w.logger.Info().Str("path", path).Int("count", len(urls)).Msg("Dumped URL list")
	return nil
}

// WriteRecordsJSON exports the committed records as indented JSON.
func (w *Writer) WriteRecordsJSON(records []*models.CookieRecord) error {
	if records == nil {
		records = []*models.CookieRecord{}
	}
	content, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize records: %w", err)
	}

	path := filepath.Join(w.dir, RecordsFile)
	if err := os.WriteFile(path, append(content, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write records JSON: %w", err)
	}
	w.logger.Info().Str("path", path).Int("count", len(records)).Msg("Dumped records JSON")
	return nil
}

// WriteRecordsCSV exports the committed records as cookies.csv for
// spreadsheet use. Purpose HTML is stripped to plain text and category
// labels are joined with "; ".
func (w *Writer) WriteRecordsCSV(records []*models.CookieRecord) error {
	path := filepath.Join(w.dir, CookiesFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create records CSV: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"site_url", "name", "domain", "path", "categories", "purpose", "type"}); err != nil {
		return fmt.Errorf("failed to write records CSV: %w", err)
	}
	for _, rec := range records {
		names := make([]string, 0, len(rec.Labels))
		for _, l := range rec.Labels {
			names = append(names, l.Name)
		}
		row := []string{
			rec.SiteURL, rec.Name, rec.Domain, rec.Path,
			strings.Join(names, "; "),
			htmltext.StripTags(rec.Purpose),
			rec.Type,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write records CSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write records CSV: %w", err)
	}

	w.logger.Info().Str("path", path).Int("count", len(records)).Msg("Dumped records CSV")
	return nil
}

// WriteSummaryMarkdown writes the human-readable run summary: outcome
// table, cookies per site, and the record table. Purpose texts often
// embed HTML (links, bold spans); they are converted to markdown.
func (w *Writer) WriteSummaryMarkdown(rep *models.CrawlReport, records []*models.CookieRecord) error {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	var sb strings.Builder
	sb.WriteString("# Crawl Summary\n\n")

	sb.WriteString("## Outcomes\n\n")
	sb.WriteString("| Outcome | Count |\n| --- | ---: |\n")
	for _, o := range models.AllOutcomes() {
		fmt.Fprintf(&sb, "| %s | %d |\n", o, rep.Count(o))
	}

	sb.WriteString("\n## Cookies per site\n\n")
	sb.WriteString("| Site | Cookies |\n| --- | ---: |\n")
	for _, site := range siteOrder(records) {
		count := 0
		for _, rec := range records {
			if rec.SiteURL == site {
				count++
			}
		}
		fmt.Fprintf(&sb, "| %s | %d |\n", tableCell(site), count)
	}

	sb.WriteString("\n## Records\n\n")
	sb.WriteString("| Site | Name | Domain | Categories | Purpose |\n| --- | --- | --- | --- | --- |\n")
	for _, rec := range records {
		purpose := rec.Purpose
		if purpose != "" {
			if converted, err := converter.ConvertString(purpose); err == nil {
				purpose = converted
			}
		}
		names := make([]string, 0, len(rec.Labels))
		for _, l := range rec.Labels {
			names = append(names, l.Name)
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			tableCell(rec.SiteURL), tableCell(rec.Name), tableCell(rec.Domain),
			tableCell(strings.Join(names, ", ")), tableCell(purpose))
	}

	path := filepath.Join(w.dir, SummaryFile)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	w.logger.Info().Str("path", path).Msg("Dumped markdown summary")
	return nil
}

// siteOrder lists the distinct site URLs in first-seen order.
func siteOrder(records []*models.CookieRecord) []string {
	seen := make(map[string]bool)
	var sites []string
	for _, rec := range records {
		if !seen[rec.SiteURL] {
			seen[rec.SiteURL] = true
			sites = append(sites, rec.SiteURL)
		}
	}
	return sites
}

var cellReplacer = strings.NewReplacer("\n", " ", "|", "\\|")

// tableCell makes a string safe for a one-line markdown table cell.
func tableCell(s string) string {
	return strings.Join(strings.Fields(cellReplacer.Replace(s)), " ")
}

// ConsoleSummary prints the colorized end-of-run outcome counts.
func ConsoleSummary(out io.Writer, rep *models.CrawlReport) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Header("Crawl summary"))
	for _, o := range models.AllOutcomes() {
		count := rep.Count(o)
		line := fmt.Sprintf("%-30s%d", o.StatLabel(), count)
		switch {
		case o == models.OutcomeSuccess:
			line = ui.Success(line)
		case count == 0:
			line = ui.Info(line)
		default:
			line = ui.Error(line)
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, ui.Bold(fmt.Sprintf("%d sites crawled, %d succeeded, %d failed",
		rep.Completed(), rep.Succeeded(), rep.Failed())))
}
