// internal/cli/run.go
package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/consent-audit/crawl/internal/cmp"
	"github.com/consent-audit/crawl/internal/config"
	"github.com/consent-audit/crawl/internal/crawler"
	"github.com/consent-audit/crawl/internal/debugdump"
	"github.com/consent-audit/crawl/internal/report"
	"github.com/consent-audit/crawl/internal/storage"
	"github.com/consent-audit/crawl/internal/ui"
	urlutil "github.com/consent-audit/crawl/internal/utils/url"
)

var (
	runURLs  []string
	runFiles []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl a list of sites and report their declared cookies",
	Long: `Run crawls every site given via --url and --file, extracts the cookie
declarations from each site's consent platform and writes the results
into an output directory: statistics, failure details, a SQLite
database and optionally JSON, CSV and markdown exports.

List files hold one URL per line; blank lines and #-comments are
skipped. Interrupting the run with Ctrl-C keeps everything crawled so
far and writes the remainder to uncrawled_urls.txt.`,
	Example: `  # Crawl two sites, auto-detecting each consent platform
  crawl run --url https://example.com --url https://example.org

  # Crawl a list file with Cookiebot pinned, eight workers
  crawl run --file sites.txt --cmp cookiebot --workers 8

  # Keep all artifacts in one place and add the markdown summary
  crawl run --file sites.txt --out-dir audit_2026 --json --markdown`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	config.RegisterRunFlags(runCmd)
	runCmd.Flags().StringArrayVar(&runURLs, "url", nil, "Site URL to crawl (repeatable)")
	runCmd.Flags().StringArrayVar(&runFiles, "file", nil, "File with one site URL per line (repeatable)")
}

func runRun(cmd *cobra.Command, args []string) error {
	a := GetApp()
	cfg := a.Config

	sites, err := collectSites(runURLs, runFiles, cfg.AssumeHTTP)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		return fmt.Errorf("no sites to crawl; pass --url or --file")
	}

	outDir := a.ResolveOutDir()
	writer, err := report.NewWriter(outDir, a.Logger)
	if err != nil {
		return err
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(outDir, storage.DefaultFilename)
	}
	if err := a.OpenStore(dbPath); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.StartBrowser(ctx); err != nil {
		return err
	}

	var dumps debugdump.Sink = debugdump.NopSink{}
	if cfg.DebugDumps {
		dumps = debugdump.NewDirSink(outDir)
	}

	c, err := crawler.New(a.Fetch, a.Sessions(), a.Store, dumps, crawler.DefaultExtractors(), crawler.Config{
		Provider: pinnedProvider(cfg.Provider),
		Workers:  cfg.Workers,
		Wait:     cfg.ScriptWait,
		Progress: os.Stderr,
	}, a.Logger)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("sites", len(sites)).Int("workers", cfg.Workers).Msg("Starting crawl")
	result := c.Run(ctx, sites)

	if err := writer.WriteStatistics(result.Report); err != nil {
		return err
	}
	if err := writer.WriteErrorInfo(result.Report); err != nil {
		return err
	}
	if err := writer.WriteFailedURLs(result.Report); err != nil {
		return err
	}
	if err := writer.WriteUncrawled(result.Uncrawled); err != nil {
		return err
	}
	if cfg.WriteJSON {
		if err := writer.WriteRecordsJSON(result.Records); err != nil {
			return err
		}
	}
	if cfg.WriteCSV {
		if err := writer.WriteRecordsCSV(result.Records); err != nil {
			return err
		}
	}
	if cfg.WriteMarkdown {
		if err := writer.WriteSummaryMarkdown(result.Report, result.Records); err != nil {
			return err
		}
	}

	report.ConsoleSummary(os.Stdout, result.Report)
	fmt.Fprintln(os.Stdout, ui.Info("Artifacts written to "+outDir))
	return nil
}

// collectSites merges --url values with the contents of every --file list
// and normalizes the result into a crawlable, deduplicated URL list.
func collectSites(urls, files []string, assumeHTTP bool) ([]string, error) {
	entries := append([]string(nil), urls...)
	for _, path := range files {
		lines, err := readSiteFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, lines...)
	}

	kept, dropped := urlutil.NormalizeSiteList(entries, assumeHTTP)
	for _, entry := range dropped {
		log.Warn().Str("entry", entry).Msg("Dropping list entry without an http(s) scheme")
	}
	return kept, nil
}

func readSiteFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open site list %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read site list %s: %w", path, err)
	}
	return lines, nil
}

// pinnedProvider maps the --cmp flag onto the crawler config, where the
// empty provider means per-site detection.
func pinnedProvider(name string) cmp.Provider {
	if name == "" || name == config.DefaultProvider {
		return ""
	}
	return cmp.Provider(name)
}
