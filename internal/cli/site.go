// internal/cli/site.go
package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/consent-audit/crawl/internal/config"
	"github.com/consent-audit/crawl/internal/crawler"
	"github.com/consent-audit/crawl/internal/debugdump"
	"github.com/consent-audit/crawl/internal/ui"
	"github.com/consent-audit/crawl/internal/utils/htmltext"
	urlutil "github.com/consent-audit/crawl/internal/utils/url"
	"github.com/consent-audit/crawl/pkg/models"
)

var siteCmd = &cobra.Command{
	Use:   "site <url>",
	Short: "Crawl one site and print its declared cookies",
	Long: `Site crawls a single URL and prints the extracted cookie declarations
as a table. Nothing is persisted unless --db is given.`,
	Example: `  # Inspect one site, platform auto-detected
  crawl site https://example.com

  # Pin the platform and keep the results
  crawl site https://example.com --cmp onetrust --db cookies.sqlite`,
	Args: cobra.ExactArgs(1),
	RunE: runSite,
}

func init() {
	rootCmd.AddCommand(siteCmd)
	config.RegisterSiteFlags(siteCmd)
}

func runSite(cmd *cobra.Command, args []string) error {
	a := GetApp()
	cfg := a.Config

	kept, _ := urlutil.NormalizeSiteList([]string{args[0]}, cfg.AssumeHTTP)
	if len(kept) == 0 {
		return fmt.Errorf("not a crawlable URL: %s (missing http:// or https://?)", args[0])
	}
	site := kept[0]

	if cfg.DBPath != "" {
		if err := a.OpenStore(cfg.DBPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.StartBrowser(ctx); err != nil {
		return err
	}

	c, err := crawler.New(a.Fetch, a.Sessions(), a.Store, debugdump.NopSink{}, crawler.DefaultExtractors(), crawler.Config{
		Provider: pinnedProvider(cfg.Provider),
		Wait:     cfg.ScriptWait,
	}, a.Logger)
	if err != nil {
		return err
	}

	result := c.Run(ctx, []string{site})
	entries := result.Report.Entries()
	if len(entries) == 0 {
		return fmt.Errorf("crawl interrupted")
	}
	if entry := entries[0]; entry.Outcome != models.OutcomeSuccess {
		return fmt.Errorf("%s: %s", entry.Outcome, entry.Diagnostic)
	}

	printCookieTable(os.Stdout, result.Records)
	return nil
}

func printCookieTable(out io.Writer, records []*models.CookieRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, ui.Warn("No cookies declared"))
		return
	}

	fmt.Fprintln(out, ui.Bold(fmt.Sprintf("%-26s %-26s %-22s %s", "NAME", "DOMAIN", "CATEGORIES", "PURPOSE")))
	for _, r := range records {
		fmt.Fprintf(out, "%-26s %-26s %-22s %s\n",
			clip(r.Name, 26),
			clip(r.Domain, 26),
			clip(labelNames(r), 22),
			clip(htmltext.StripTags(r.Purpose), 60))
	}
	fmt.Fprintln(out, ui.Bold(fmt.Sprintf("%d cookies declared", len(records))))
}

func labelNames(r *models.CookieRecord) string {
	names := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		name := l.Name
		if name == "" {
			name = l.Category.String()
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// clip shortens s to fit a fixed-width table column.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
