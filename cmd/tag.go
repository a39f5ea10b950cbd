package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/sorter"
	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Name discovered portraits interactively",
	Long: `Ask for a name for every portrait in <output>/_Portraits_To_Tag and rename
the portrait to <name>.jpg. Skipped portraits keep their Person_<N> name.
Run resume afterwards to sort the event photos by the new names.`,
	Args: cobra.NoArgs,
	RunE: runTag,
}

func init() {
	rootCmd.AddCommand(tagCmd)

	tagCmd.Flags().StringP("output", "o", "", "Output folder used by discover (required)")
}

func runTag(cmd *cobra.Command, args []string) error {
	output := mustGetString(cmd, "output")
	if output == "" {
		return errors.New("--output is required")
	}

	dir := filepath.Join(output, constants.PortraitsDir)
	paths, err := facematch.ListPortraits(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no portraits found in %s, run discover first", dir)
	}

	result := &sorter.DiscoverResult{State: sorter.StepAwaitingTags, PortraitDir: dir}
	for i, p := range paths {
		result.Portraits = append(result.Portraits, facematch.PortraitRecord{Index: i, Path: p})
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := newPromptTagger(bufio.NewReader(os.Stdin), os.Stdout).Tag(ctx, result); err != nil {
		return err
	}
	fmt.Println("\nDone. Run face-folio resume to sort the photos.")
	return nil
}

// promptTagger asks for a name for every portrait on a line-based terminal.
type promptTagger struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptTagger(in *bufio.Reader, out io.Writer) *promptTagger {
	return &promptTagger{in: in, out: out}
}

// Tag renames the portraits of result in place. An empty answer skips a
// portrait, "q" or end of input stops tagging early.
func (p *promptTagger) Tag(ctx context.Context, result *sorter.DiscoverResult) error {
	fmt.Fprintln(p.out, "\nName each portrait (Enter to skip, q to finish).")

	// portraits tagged during this session may be replaced without asking,
	// the same person can be discovered twice
	tagged := make(map[string]bool)

	for i := range result.Portraits {
		rec := result.Portraits[i]
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			fmt.Fprintf(p.out, "[%d/%d] %s: ", i+1, len(result.Portraits), rec.Path)
			answer, err := p.readLine()
			if err != nil {
				return nil
			}
			if answer == "" {
				break
			}
			if answer == "q" {
				return nil
			}

			target := filepath.Join(filepath.Dir(rec.Path), facematch.SanitizeName(answer)+constants.PortraitExt)
			renamed, err := facematch.RenamePortrait(rec, answer, tagged[target])
			if errors.Is(err, facematch.ErrNameTaken) {
				fmt.Fprintf(p.out, "%s already exists. Overwrite it? [y/N]: ", filepath.Base(target))
				confirm, rerr := p.readLine()
				if rerr != nil {
					return nil
				}
				if !strings.EqualFold(confirm, "y") {
					continue
				}
				renamed, err = facematch.RenamePortrait(rec, answer, true)
			}
			if err != nil {
				fmt.Fprintf(p.out, "  %v\n", err)
				continue
			}

			result.Portraits[i] = renamed
			tagged[renamed.Path] = true
			break
		}
	}
	return nil
}

// readLine returns the next trimmed line, or io.EOF when input is exhausted.
func (p *promptTagger) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
