package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/humane/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded scenario runs",
		Long: `Show scenario runs recorded by "humane test --db".

Without a run ID, lists the most recent runs, newest first. With a run ID,
shows that run's steps.

Examples:
  humane history --db ./runs.db
  humane history --db ./runs.db --limit 5 --format json
  humane history --db ./runs.db 0190a1b2-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showRun(opts, args[0], cmd)
			}
			return listRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// openHistory opens an existing history database. It never creates one.
func openHistory(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func listRuns(opts *HistoryOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, err := openHistory(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return f.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(f.Writer, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		printRunLine(f.Writer, run)
	}
	return nil
}

func showRun(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	st, err := openHistory(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		if opts.Format == "json" {
			if encErr := f.Error(CodeStore, fmt.Sprintf("run not found: %s", id), nil); encErr != nil {
				return encErr
			}
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.Format == "json" {
		return f.Success(run)
	}

	w := f.Writer
	printRunLine(w, run)
	for _, e := range run.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	for _, step := range run.Steps {
		mark := "✓"
		if !step.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, step.Name)
		for _, msg := range step.HumaneErrs {
			fmt.Fprintf(w, "      %s\n", msg)
		}
		if step.Error != "" {
			fmt.Fprintf(w, "      %s\n", step.Error)
		}
		if step.Response != nil {
			fmt.Fprintf(w, "      response: %s\n", step.Response)
		}
	}
	return nil
}

// printRunLine writes one summary line: id, status, scenario, steps, start.
func printRunLine(w io.Writer, run store.Run) {
	status := "PASS"
	if !run.Pass {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s  %s  %s  %d step(s)  %s  %s\n",
		run.ID, status, run.Scenario, run.StepCount,
		run.Duration.Round(time.Millisecond), run.StartedAt.UTC().Format(time.RFC3339))
}
