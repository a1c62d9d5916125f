package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/datamgr"
	"github.com/fedquery/fq/engine"
	"github.com/spf13/cobra"
)

const (
	prompt     = "fq # "
	contPrompt = "... # "
)

// shell holds the state of an interactive session.
type shell struct {
	e     *engine.Engine
	dm    *datamgr.MemoryManager
	table string
	limit int
}

func (s *shell) describe(line string) error {
	_, target, _ := strings.Cut(line, " ")
	target = strings.TrimSpace(target)
	if target == "" {
		rows := [][]string{}
		for _, source := range s.dm.Sources() {
			for _, name := range s.dm.Tables(source) {
				table, _ := s.dm.Table(source, name)
				rows = append(rows, []string{source, name, strconv.Itoa(len(table.Rows))})
			}
		}
		return printRows([]string{"source", "table", "rows"}, rows)
	}
	source, name, _ := strings.Cut(target, ".")
	table, ok := s.dm.Table(source, name)
	if !ok {
		return fmt.Errorf("table %s not found", target)
	}
	rows := make([][]string, len(table.Schema))
	for i, e := range table.Schema {
		rows[i] = []string{e.Name, e.Type.String()}
	}
	return printRows([]string{"column", "type"}, rows)
}

func (s *shell) use(line string) error {
	_, target, _ := strings.Cut(line, " ")
	target = strings.TrimSpace(target)
	source, name, ok := strings.Cut(target, ".")
	if !ok {
		return fmt.Errorf("table must be given as source.table, got %q", target)
	}
	if _, ok := s.dm.Table(source, name); !ok {
		return fmt.Errorf("table %s not found", target)
	}
	s.table = target
	fmt.Println("using " + target)
	return nil
}

func (s *shell) setLimit(line string) error {
	_, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	if arg == "" {
		s.limit = -1
		fmt.Println("limit cleared")
		return nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid limit: %w", err)
	}
	s.limit = n
	return nil
}

func (s *shell) run(ctx context.Context, line string) error {
	paths := strings.Fields(line)[1:]
	if len(paths) == 0 {
		return errors.New("not enough arguments")
	}
	return runPlans(ctx, s.e, paths)
}

func (s *shell) query(ctx context.Context, criteria string) error {
	if s.table == "" {
		return errors.New(`no table selected; use \use source.table`)
	}
	node, err := buildQuery(s.dm, s.table, criteria, nil, s.limit, 0)
	if err != nil {
		return err
	}
	return executeQuery(ctx, s.e, node)
}

func printRows(headers []string, rows [][]string) error {
	results := &resultSet{}
	for _, h := range headers {
		results.schema = append(results.schema, batch.NewElement(h, batch.String))
	}
	for _, row := range rows {
		values := make(batch.Row, len(row))
		for i, v := range row {
			values[i] = v
		}
		results.rows = append(results.rows, values)
	}
	return results.print(os.Stdout)
}

func (s *shell) loop(ctx context.Context) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     "/tmp/fq-history.tmp",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()
	fmt.Println(`Type "help" for help.`)
	fmt.Println()

	lines := []string{}
	for {
		line, err := l.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				lines = lines[:0]
				l.SetPrompt(prompt)
				continue
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		line = strings.TrimSpace(line)

		var cmdErr error
		switch {
		case line == "" && len(lines) == 0:
			continue
		case line == "help", strings.HasPrefix(line, "\\h"):
			_, topic, _ := strings.Cut(line, " ")
			fmt.Println(help[topic])
			continue
		case line == "\\q":
			return nil
		case strings.HasPrefix(line, "\\d"):
			cmdErr = s.describe(line)
		case strings.HasPrefix(line, "\\use"):
			cmdErr = s.use(line)
		case strings.HasPrefix(line, "\\limit"):
			cmdErr = s.setLimit(line)
		case strings.HasPrefix(line, "\\run"):
			cmdErr = s.run(ctx, line)
		case strings.HasPrefix(line, "\\stats"):
			showStats = !showStats
			fmt.Printf("stats %t\n", showStats)
		case strings.HasPrefix(line, "\\"):
			cmdErr = errors.New("unrecognized command: " + line)
		default:
			lines = append(lines, line)
			if !strings.HasSuffix(line, ";") {
				l.SetPrompt(contPrompt)
				continue
			}
			criteria := strings.Join(lines, " ")
			lines = lines[:0]
			l.SetPrompt(prompt)
			_ = l.SaveHistory(criteria)
			cmdErr = s.query(ctx, strings.TrimSpace(strings.TrimSuffix(criteria, ";")))
		}
		if cmdErr != nil {
			printError(cmdErr)
		}
	}
	return nil
}

var help = map[string]string{
	"": `fq is an interactive interpreter for criteria queries over the loaded
tables. Input that does not start with a backslash is a criteria expression
evaluated against the current table. Expressions can span multiple lines and
are terminated with a semicolon. A lone semicolon returns every row.

The supported slash commands are:

  \h [topic]          print help text. If topic is blank, prints this text.
  \d [source.table]   list tables, or describe one
  \use source.table   select the table queried
  \limit [n]          cap the rows returned; no argument clears the cap
  \run file...        execute JSON plan files
  \stats              toggle printing of execution statistics
  \q                  quit

Available help topics are:
  criteria: Show examples of criteria syntax.`,

	"criteria": `Criteria combine column predicates with and, or, not and parentheses.

Comparisons:
    id >= 10 and name != "widget";

Null tests:
    shipped is null or shipped is not null;

Lists and globs:
    region in ("east", "west") and sku glob "A-*";

Timestamps are written as quoted ISO 8601 strings or integer nanoseconds:
    created > timestamp "2024-01-01T00:00:00Z";

Subqueries ("in $name") are available to plan files only.`,
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "fq interactive shell",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		e, dm, err := newEngine(ctx)
		checkErr(err)
		defer e.Close(ctx)
		s := &shell{e: e, dm: dm, limit: -1}
		if err := s.loop(ctx); err != nil {
			fmt.Println("error running shell:", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
