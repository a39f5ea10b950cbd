package cmd

import (
	"fmt"
	"runtime"

	"github.com/kozaktomas/face-folio/internal/config"
	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and effective matching settings",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("face-folio %s (%s)\n", Version, runtime.Version())
		fmt.Printf("  Commit:    %s\n", CommitSHA)
		fmt.Printf("  Built:     %s\n", BuildDate)
		fmt.Printf("  Embedding: %s\n", cfg.Embedding.URL)
		fmt.Printf("  Matching:  %s, %s distance, tolerance %.2f\n",
			cfg.Matching.Mode, cfg.Matching.Metric, cfg.Matching.Tolerance)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
