package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Sort event photos using tagged portraits",
	Long: `Sort the event photos using the portraits in <output>/_Portraits_To_Tag
as reference photos. Run this after discover --no-tag and tagging.
Untagged portraits sort into their Person_<N> folders.`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)

	resumeCmd.Flags().StringP("event", "e", "", "Event photos used by discover (required)")
	resumeCmd.Flags().StringP("output", "o", "", "Output folder used by discover (required)")
	addMatchingFlags(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	req, err := discoverRequest(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, finish := newReporter(os.Stdout)
	result, err := newSorter(cfg).Resume(ctx, req, report)
	finish()
	if err != nil {
		return fmt.Errorf("sorting failed: %w", err)
	}

	printSortResult(os.Stdout, result, req.Output)
	return nil
}
