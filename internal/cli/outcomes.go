// internal/cli/outcomes.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/consent-audit/crawl/internal/ui"
	"github.com/consent-audit/crawl/pkg/models"
)

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "List the crawl outcome codes and what they mean",
	Long: `Outcomes prints every outcome code a crawl can end with. The codes
appear in statistics.txt, error_info.txt and the crawl_results table.`,
	Run: func(cmd *cobra.Command, args []string) {
		for _, o := range models.AllOutcomes() {
			fmt.Fprintf(os.Stdout, "%s%3d  %-20s%s %s\n",
				ui.ColorCyan, int(o), o.String(), ui.ColorReset, o.Describe())
		}
	},
}

func init() {
	rootCmd.AddCommand(outcomesCmd)
}
