package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fedquery/fq/datamgr"
	"github.com/fedquery/fq/engine"
	"github.com/fedquery/fq/plan"
	"github.com/spf13/cobra"
)

var (
	queryColumns []string
	queryLimit   int
	queryOffset  int
)

// buildQuery returns a plan reading a whole table, filtered by criteria when
// given, projected to columns and paged by limit and offset.
func buildQuery(
	dm *datamgr.MemoryManager,
	target string,
	criteria string,
	columns []string,
	limit int,
	offset int,
) (*plan.Node, error) {
	source, name, ok := strings.Cut(target, ".")
	if !ok {
		return nil, fmt.Errorf("table must be given as source.table, got %q", target)
	}
	table, ok := dm.Table(source, name)
	if !ok {
		return nil, fmt.Errorf("table %s not found", target)
	}
	node := &plan.Node{
		Type:      plan.Access,
		Source:    source,
		Command:   name,
		Projected: table.Schema,
	}
	if criteria == "" && len(columns) > 0 {
		projected, err := table.Schema.Select(columns...)
		if err != nil {
			return nil, err
		}
		node.Projected = projected
	}
	if criteria != "" {
		node = &plan.Node{
			Type:     plan.Select,
			Criteria: criteria,
			Elements: columns,
			Children: []*plan.Node{node},
		}
	}
	if limit >= 0 || offset > 0 {
		node = &plan.Node{
			Type:     plan.Limit,
			Limit:    &limit,
			Offset:   &offset,
			Children: []*plan.Node{node},
		}
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	plan.Number(node)
	return node, nil
}

func executeQuery(ctx context.Context, e *engine.Engine, node *plan.Node) error {
	schema, err := node.OutputElements()
	if err != nil {
		return err
	}
	results := &resultSet{schema: schema}
	stats, err := e.Execute(ctx, node, results.sink())
	if err != nil {
		return err
	}
	if err := results.print(os.Stdout); err != nil {
		return err
	}
	if showStats {
		report, err := stats.Report()
		if err != nil {
			return err
		}
		printStats(report)
	}
	return nil
}

var queryCmd = &cobra.Command{
	Use:   "query [source.table] [single-quoted criteria]",
	Short: "Filter a table with a criteria expression",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		e, dm, err := newEngine(ctx)
		checkErr(err)
		defer e.Close(ctx)
		criteria := ""
		if len(args) == 2 {
			criteria = args[1]
		}
		node, err := buildQuery(dm, args[0], criteria, queryColumns, queryLimit, queryOffset)
		checkErr(err)
		if err := executeQuery(ctx, e, node); err != nil {
			e.Close(ctx)
			bailf("error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringSliceVarP(&queryColumns, "columns", "", nil, "columns to output")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "", -1, "maximum number of rows to output")
	queryCmd.Flags().IntVarP(&queryOffset, "offset", "", 0, "number of rows to skip")
}
