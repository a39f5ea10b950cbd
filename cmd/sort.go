package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-folio/internal/sorter"
	"github.com/spf13/cobra"
)

var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Sort event photos using reference photos",
	Long: `Sort event photos into one folder per person.
The reference input holds one photo per person, named after the person
(Alice.jpg, Bob.png). Every event photo is copied into the folder of each
person recognized in it, or into _NoMatches. Inputs may be a folder,
a single image or a zip archive.`,
	Args: cobra.NoArgs,
	RunE: runSort,
}

func init() {
	rootCmd.AddCommand(sortCmd)

	sortCmd.Flags().StringP("reference", "r", "", "Reference photos: folder, image or zip (required)")
	sortCmd.Flags().StringP("event", "e", "", "Event photos to sort: folder, image or zip (required)")
	sortCmd.Flags().StringP("output", "o", "", "Output folder (required)")
	addMatchingFlags(sortCmd)
}

func runSort(cmd *cobra.Command, args []string) error {
	req := sorter.SortRequest{
		Reference: mustGetString(cmd, "reference"),
		Event:     mustGetString(cmd, "event"),
		Output:    mustGetString(cmd, "output"),
	}
	if req.Reference == "" || req.Event == "" || req.Output == "" {
		return errors.New("--reference, --event and --output are required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Reference: %s\n", req.Reference)
	fmt.Printf("Event:     %s\n", req.Event)
	fmt.Printf("Output:    %s\n", req.Output)
	fmt.Printf("Matching:  %s (tolerance %.2f, %s distance)\n\n", cfg.Matching.Mode, cfg.Matching.Tolerance, cfg.Matching.Metric)

	report, finish := newReporter(os.Stdout)
	result, err := newSorter(cfg).ReferenceSort(ctx, req, report)
	finish()
	if err != nil {
		return fmt.Errorf("sorting failed: %w", err)
	}

	printSortResult(os.Stdout, result, req.Output)
	return nil
}
