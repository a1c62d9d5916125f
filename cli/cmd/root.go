package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fedquery/fq/datamgr"
	"github.com/fedquery/fq/engine"
	"github.com/fedquery/fq/executor"
	"github.com/fedquery/fq/util/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	tablesPath string
	logLevel   string
	logJSON    bool
	batchSize  int
	workers    int
	spillDir   string
)

var rootCmd = &cobra.Command{
	Use:   "fq",
	Short: "fq runs streaming query plans over in-memory tables",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func bailf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func checkErr(err error) {
	if err != nil {
		bailf("error: %v", err)
	}
}

// newEngine builds an engine over the tables file. Options from the config
// file are applied first and flags override them.
func newEngine(ctx context.Context) (*engine.Engine, *datamgr.MemoryManager, error) {
	opts := []engine.Option{engine.WithLogOutput(os.Stderr, logJSON)}
	if configPath != "" {
		config, err := engine.LoadConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		configured, err := config.Options(ctx)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, configured...)
	}
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithLogLevel(level))
	}
	if batchSize > 0 {
		opts = append(opts, engine.WithBatchSize(batchSize))
	}
	if workers > 0 {
		opts = append(opts, engine.WithWorkers(workers))
	}
	if spillDir != "" {
		store, err := engine.SpillConfig{Type: "directory", Path: spillDir}.Open(ctx)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithSpillStore(store))
	}

	dm := datamgr.NewMemoryManager(executor.DefaultBatchSize)
	if tablesPath != "" {
		f, err := os.Open(tablesPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open tables: %w", err)
		}
		defer f.Close()
		if err := dm.LoadTables(f); err != nil {
			return nil, nil, err
		}
	}
	return engine.New(dm, opts...), dm, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a JSON engine config file")
	flags.StringVarP(&tablesPath, "tables", "t", "", "path to a JSON tables file")
	flags.StringVarP(&logLevel, "log-level", "", "", "log level (debug, info, warn, error)")
	flags.BoolVarP(&logJSON, "log-json", "", false, "log in JSON format")
	flags.IntVarP(&batchSize, "batch-size", "", 0, "output batch size of each node")
	flags.IntVarP(&workers, "workers", "", 0, "number of concurrent query workers")
	flags.StringVarP(&spillDir, "spill-dir", "", "", "directory to spill buffer pages to")
	flags.BoolVarP(&outputJSON, "json", "", false, "Output in JSON format")
	flags.BoolVarP(&showStats, "stats", "", false, "Print execution statistics")
}
