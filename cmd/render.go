package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/sorter"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// printSortResult prints the per-folder summary of a finished sort.
func printSortResult(w io.Writer, result *sorter.SortResult, output string) {
	fmt.Fprintf(w, "\nSorted %d photos into %s\n", result.Images, output)
	fmt.Fprintf(w, "People learned: %d, photos with a match: %d\n", len(result.People), result.Matched)

	names := make([]string, 0, len(result.Route.PerPerson))
	for name := range result.Route.PerPerson {
		names = append(names, name)
	}
	slices.Sort(names)

	rows := make([][]string, 0, len(names)+1)
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(result.Route.PerPerson[name])})
	}
	rows = append(rows, []string{constants.NoMatchesDir, strconv.Itoa(result.Route.Unmatched)})
	fmt.Fprintln(w, renderTable([]string{"Folder", "Photos"}, rows, []columnAlignment{alignLeft, alignRight}))

	if result.Route.Skipped > 0 {
		fmt.Fprintf(w, "Skipped %d files already present in the output\n", result.Route.Skipped)
	}
	printImageErrors(w, result.Errors)
}

// printPortraits lists discovered portraits.
func printPortraits(w io.Writer, result *sorter.DiscoverResult) {
	if len(result.Portraits) == 0 {
		fmt.Fprintln(w, "\nNo unique faces were detected in the photos.")
		printImageErrors(w, result.Errors)
		return
	}

	fmt.Fprintf(w, "\nFound %d unique faces in %d photos\n", len(result.Portraits), result.Images)
	rows := make([][]string, len(result.Portraits))
	for i, p := range result.Portraits {
		rows[i] = []string{strconv.Itoa(p.Index), filepath.Base(p.Path)}
	}
	fmt.Fprintln(w, renderTable([]string{"#", "Portrait"}, rows, []columnAlignment{alignRight, alignLeft}))
	fmt.Fprintf(w, "Portraits saved to %s\n", result.PortraitDir)
	printImageErrors(w, result.Errors)
}

func printImageErrors(w io.Writer, errs []facematch.ImageError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSkipped %d photos due to errors:\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "  - %s: %v\n", filepath.Base(e.Path), e.Err)
	}
}
