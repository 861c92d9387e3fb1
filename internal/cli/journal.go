package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/webstudio-is/immerhin/internal/harness"
	"github.com/webstudio-is/immerhin/internal/journal"
	"github.com/webstudio-is/immerhin/internal/store"
)

// DefaultReplaySource tags batches replayed from a journal.
const DefaultReplaySource = "journal"

// JournalOptions holds flags shared by the journal subcommands.
type JournalOptions struct {
	*RootOptions
	DB    string // path to the journal database
	After int64  // only batches with a greater seq
}

// ReplayOptions holds flags for journal replay.
type ReplayOptions struct {
	*JournalOptions
	Scenario string // scenario whose containers receive the batches
	Source   string // source tag for replayed transactions
}

// ReplayResult reports the store state after a replay.
type ReplayResult struct {
	LastSeq int64          `json:"last_seq"`
	Values  map[string]any `json:"values"`
	History []string       `json:"history"`
}

// NewJournalCommand creates the journal command and its subcommands.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and replay the outbound journal",
		Long: `Inspect and replay a journal database written by "immerhin run --journal".

The journal stores drained sync batches in the order they were sent.`,
	}

	cmd.AddCommand(newJournalListCommand(rootOpts))
	cmd.AddCommand(newJournalReplayCommand(rootOpts))

	return cmd
}

func newJournalListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored batches",
		Long: `List stored batches in append order.

Examples:
  immerhin journal list --db outbound.db
  immerhin journal list --db outbound.db --after 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalList(opts, cmd)
		},
	}

	addJournalFlags(cmd, opts)
	return cmd
}

func newJournalReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{JournalOptions: &JournalOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay stored batches into a scenario's containers",
		Long: `Replay stored batches into a fresh store built from a scenario's containers.

Only the scenario's containers are used; its steps are not run. Batches
for namespaces the scenario does not declare are skipped.

Examples:
  immerhin journal replay --db outbound.db --scenario undo.yaml
  immerhin journal replay --db outbound.db --scenario undo.yaml --after 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalReplay(opts, cmd)
		},
	}

	addJournalFlags(cmd, opts.JournalOptions)
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "scenario file declaring the containers (required)")
	cmd.Flags().StringVar(&opts.Source, "source", DefaultReplaySource, "source tag for replayed transactions")
	cmd.MarkFlagRequired("scenario")

	return cmd
}

func addJournalFlags(cmd *cobra.Command, opts *JournalOptions) {
	cmd.Flags().StringVar(&opts.DB, "db", "", "path to the journal database (required)")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only batches with a greater sequence number")
	cmd.MarkFlagRequired("db")
}

// openJournal opens an existing journal. Unlike journal.Open it refuses
// to create a new database.
func openJournal(path string) (*journal.Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path))
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

func runJournalList(opts *JournalOptions, cmd *cobra.Command) error {
	j, err := openJournal(opts.DB)
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.Records(cmd.Context(), opts.After)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if records == nil {
		records = []journal.Record{}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(records)
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "Journal is empty.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(w, "#%d %s", r.Seq, r.TransactionID)
		if r.Source != "" {
			fmt.Fprintf(w, " (%s)", r.Source)
		}
		fmt.Fprintln(w)
		for _, c := range r.Changes {
			fmt.Fprintf(w, "  %s\n", c.Namespace)
			for _, p := range c.Patches {
				fmt.Fprintf(w, "    %s\n", p)
			}
		}
	}
	return nil
}

func runJournalReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	s, err := harness.LoadScenario(opts.Scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	j, err := openJournal(opts.DB)
	if err != nil {
		return err
	}
	defer j.Close()

	env, err := harness.NewEnv(s, store.WithLogger(opts.logger(cmd)))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build store", err)
	}

	last, err := j.Replay(cmd.Context(), env.Store, opts.After, opts.Source)
	if err != nil {
		return WrapExitError(ExitFailure, "replay failed", err)
	}

	result := ReplayResult{
		LastSeq: last,
		Values:  env.Values(),
		History: env.Store.History(),
	}
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Replayed through seq %d\n", result.LastSeq)
	for _, c := range s.Containers {
		v, err := json.Marshal(result.Values[c.Namespace])
		if err != nil {
			return fmt.Errorf("encode %s: %w", c.Namespace, err)
		}
		fmt.Fprintf(w, "  %s: %s\n", c.Namespace, v)
	}
	return nil
}
