package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fedquery/fq/engine"
	"github.com/fedquery/fq/plan"
	"github.com/spf13/cobra"
)

func loadPlan(path string) (*resultSet, *plan.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open plan: %w", err)
	}
	defer f.Close()
	node, err := plan.Load(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	schema, err := node.OutputElements()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve output of %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &resultSet{name: name, schema: schema}, node, nil
}

func runPlans(ctx context.Context, e *engine.Engine, paths []string) error {
	if len(paths) == 1 {
		results, node, err := loadPlan(paths[0])
		if err != nil {
			return err
		}
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

	queries := make([]engine.Query, 0, len(paths))
	sets := make([]*resultSet, 0, len(paths))
	for _, path := range paths {
		results, node, err := loadPlan(path)
		if err != nil {
			return err
		}
		sets = append(sets, results)
		queries = append(queries, engine.Query{Name: results.name, Plan: node, Sink: results.sink()})
	}
	err := e.ExecuteAll(ctx, queries...)
	for _, results := range sets {
		headingColor.Fprintln(os.Stdout, results.name)
		if perr := results.print(os.Stdout); perr != nil {
			return perr
		}
		fmt.Println()
	}
	return err
}

var runCmd = &cobra.Command{
	Use:   "run [plan file]...",
	Short: "Execute JSON query plans",
	Long: `Execute one or more JSON query plans against the loaded tables. Several
plans are executed concurrently on the engine's worker pool.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		e, _, err := newEngine(ctx)
		checkErr(err)
		defer e.Close(ctx)
		if err := runPlans(ctx, e, args); err != nil {
			e.Close(ctx)
			bailf("error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
