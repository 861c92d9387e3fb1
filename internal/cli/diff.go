package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/webstudio-is/immerhin/internal/patch"
)

// DiffResult is the patch pair that turns base into next and back.
type DiffResult struct {
	Patches       []patch.Patch `json:"patches"`
	RevisePatches []patch.Patch `json:"revisePatches"`
}

var opColors = map[string]*color.Color{
	patch.OpAdd:     color.New(color.FgGreen),
	patch.OpRemove:  color.New(color.FgRed),
	patch.OpReplace: color.New(color.FgYellow),
}

var opMarks = map[string]string{
	patch.OpAdd:     "+",
	patch.OpRemove:  "-",
	patch.OpReplace: "~",
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <base.json> <next.json>",
		Short: "Print the patches between two JSON documents",
		Long: `Diff two JSON documents the way a transaction records a change.

Prints the forward patches that turn base into next. With --format json
the reverse patches are included as revisePatches.

Examples:
  immerhin diff before.json after.json
  immerhin diff before.json after.json --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDiff(opts *RootOptions, basePath, nextPath string, cmd *cobra.Command) error {
	base, err := readDocument(basePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read base document", err)
	}
	next, err := readDocument(nextPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read next document", err)
	}

	forward, reverse := patch.Diff(base, next)
	result := DiffResult{Patches: forward, RevisePatches: reverse}
	if result.Patches == nil {
		result.Patches = []patch.Patch{}
		result.RevisePatches = []patch.Patch{}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}
	writePatches(cmd.OutOrStdout(), result.Patches)
	return nil
}

func readDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := patch.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func writePatches(w io.Writer, patches []patch.Patch) {
	if len(patches) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}
	for _, p := range patches {
		line := fmt.Sprintf("%s %s", opMarks[p.Op], p.Path)
		if p.Op != patch.OpRemove {
			v, err := json.Marshal(p.Value)
			if err != nil {
				v = []byte(fmt.Sprint(p.Value))
			}
			line += " " + string(v)
		}
		if c, ok := opColors[p.Op]; ok {
			c.Fprintln(w, line)
			continue
		}
		fmt.Fprintln(w, line)
	}
}
