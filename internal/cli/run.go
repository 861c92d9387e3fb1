package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/webstudio-is/immerhin/internal/harness"
	"github.com/webstudio-is/immerhin/internal/journal"
	"github.com/webstudio-is/immerhin/internal/syncqueue"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal string // append every synced batch to this journal database
	Filter  string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
	Synced []string `json:"synced,omitempty"`
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

var (
	passMark = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>...",
		Short: "Run conformance scenarios against a store",
		Long: `Run YAML scenarios against a fresh store and check their expectations.

Each argument is a scenario file or a directory searched for .yaml/.yml
files. With --journal, every batch drained by a sync step is appended to
the given journal database.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  immerhin run ./scenarios
  immerhin run ./scenarios --filter "undo-*"
  immerhin run undo.yaml --journal outbound.db
  immerhin run ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "append synced batches to this journal database")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios in directories by glob pattern")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", p))
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	var j *journal.Journal
	if opts.Journal != "" {
		var err error
		j, err = journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
	}

	result := RunResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, f := range files {
		r := runScenario(f, j, opts, cmd)
		result.Scenarios = append(result.Scenarios, r)
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format != "json" {
		writeRunText(cmd.OutOrStdout(), result)
		if result.Failed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
		}
		return nil
	}

	f := opts.formatter(cmd)
	if result.Failed == 0 {
		return f.Success(result)
	}
	msg := fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total)
	if err := f.Error(CodeFailure, msg, result); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: msg, Reported: true}
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario loads, runs and checks one scenario file.
func runScenario(path string, j *journal.Journal, opts *RunOptions, cmd *cobra.Command) ScenarioResult {
	f := opts.formatter(cmd)

	s, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(path),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}
	f.VerboseLog("running %s (%d steps)", s.Name, len(s.Steps))

	runOpts := []harness.RunOption{harness.WithLogger(opts.logger(cmd))}
	if j != nil {
		runOpts = append(runOpts, harness.WithSyncSink(func(step int, entries []syncqueue.Entry) error {
			f.VerboseLog("  step %d: journaling %d entries", step, len(entries))
			return j.Append(cmd.Context(), s.Name, entries)
		}))
	}

	result, err := harness.Run(s, runOpts...)
	if err != nil {
		return ScenarioResult{
			Name:   s.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	out := ScenarioResult{Name: s.Name, Pass: true, Synced: result.SyncedIDs()}
	if err := harness.Check(s, result); err != nil {
		out.Pass = false
		out.Errors = splitErrors(err)
	}
	return out
}

// splitErrors flattens a joined error into one message per failure.
func splitErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []string{err.Error()}
	}
	var msgs []string
	for _, e := range joined.Unwrap() {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

func writeRunText(w io.Writer, result RunResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "%s %s\n", passMark("✓"), s.Name)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", failMark("✗"), s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(e, "\n", "\n  "))
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
