package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/cli/util"
	"github.com/fedquery/fq/executor"
	"github.com/goccy/go-json"
)

var (
	outputJSON bool
	showStats  bool
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	footerColor  = color.New(color.Faint)
	errorColor   = color.New(color.FgRed)
)

// resultSet collects the rows delivered to a query's sink.
type resultSet struct {
	name   string
	schema batch.Schema
	rows   []batch.Row
}

func (r *resultSet) sink() executor.Sink {
	return func(b *batch.Batch) error {
		r.rows = append(r.rows, b.Rows()...)
		return nil
	}
}

// print writes the result set as a table, or as one JSON object per row.
func (r *resultSet) print(w io.Writer) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		for _, row := range r.rows {
			record := make(map[string]any, len(row))
			for i, v := range row {
				record[r.schema[i].Name] = v
			}
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("failed to encode row: %w", err)
			}
		}
		return nil
	}
	util.PrintTable(w, r.schema.Names(), r.rows)
	if !util.StdoutRedirected() {
		footerColor.Fprintf(w, "(%d rows)\n", len(r.rows))
	}
	return nil
}

func printStats(report []byte) {
	fmt.Fprintln(os.Stderr, string(report))
}

func printError(err error) {
	errorColor.Fprintln(os.Stderr, "ERROR: "+err.Error())
}
