package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-folio/internal/sorter"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the people in event photos automatically",
	Long: `Find every distinct face in the event photos and save one portrait per
person to <output>/_Portraits_To_Tag. On a terminal you are then asked to
name each portrait and the photos are sorted by those names.

With --no-tag the command stops after saving the portraits; rename them
(or use the tag command) and run resume to sort.`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringP("event", "e", "", "Event photos: folder, image or zip (required)")
	discoverCmd.Flags().StringP("output", "o", "", "Output folder (required)")
	discoverCmd.Flags().Bool("no-tag", false, "Only save portraits, do not tag and sort")
	addMatchingFlags(discoverCmd)
}

func discoverRequest(cmd *cobra.Command) (sorter.DiscoverRequest, error) {
	req := sorter.DiscoverRequest{
		Event:  mustGetString(cmd, "event"),
		Output: mustGetString(cmd, "output"),
	}
	if req.Event == "" || req.Output == "" {
		return req, errors.New("--event and --output are required")
	}
	return req, nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
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

	s := newSorter(cfg)
	interactive := !mustGetBool(cmd, "no-tag") && isTerminal(os.Stdin)

	if !interactive {
		report, finish := newReporter(os.Stdout)
		result, err := s.Discover(ctx, req, report)
		finish()
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		printPortraits(os.Stdout, result)
		if len(result.Portraits) > 0 {
			fmt.Println("\nName the portraits (face-folio tag), then run face-folio resume to sort.")
		}
		return nil
	}

	stages := newStagedReporter(os.Stdout)
	tagger := sorter.TaggerFunc(func(ctx context.Context, result *sorter.DiscoverResult) error {
		stages.Finish()
		printPortraits(os.Stdout, result)
		if err := newPromptTagger(bufio.NewReader(os.Stdin), os.Stdout).Tag(ctx, result); err != nil {
			return err
		}
		stages.Next()
		return nil
	})

	discovered, sorted, err := s.AutoDiscovery(ctx, req, tagger, stages.Report)
	stages.Finish()
	if err != nil {
		return fmt.Errorf("auto-discovery failed: %w", err)
	}
	if sorted == nil {
		printPortraits(os.Stdout, discovered)
		return nil
	}
	printSortResult(os.Stdout, sorted, req.Output)
	return nil
}
