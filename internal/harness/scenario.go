package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/webstudio-is/immerhin/internal/patch"
	"github.com/webstudio-is/immerhin/internal/transaction"
)

// Step actions.
const (
	ActionTransaction = "transaction"
	ActionUndo        = "undo"
	ActionRedo        = "redo"
	ActionSync        = "sync"
	ActionRemote      = "remote"
	ActionRevert      = "revert"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Containers are registered in order before the first step.
	Containers []ContainerDef `yaml:"containers"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Expect maps namespaces to their expected final value.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Assertions are boolean expr expressions evaluated over the result.
	// Available variables: values (namespace → final value), history
	// (undoable ids, oldest first), synced (sent ids, in order) and
	// events (number of notifications).
	Assertions []string `yaml:"assertions,omitempty"`

	// MaxHistory bounds the undo stack. Zero keeps the default.
	MaxHistory int `yaml:"max_history,omitempty"`

	// UnsyncedSources are sources whose transactions are not queued.
	UnsyncedSources []string `yaml:"unsynced_sources,omitempty"`
}

// ContainerDef declares one container.
type ContainerDef struct {
	Namespace string `yaml:"namespace"`
	Initial   any    `yaml:"initial"`

	// Schema is a CUE expression the final value must satisfy.
	Schema string `yaml:"schema,omitempty"`
}

// Step is one scenario action.
type Step struct {
	Action string `yaml:"action"`

	// Source tags transaction and remote steps.
	Source string `yaml:"source,omitempty"`

	// Edits are applied to the drafts of a transaction step.
	Edits []Edit `yaml:"edits,omitempty"`

	// ID is the transaction id for revert, and for remote steps that keep
	// the sender's id.
	ID string `yaml:"id,omitempty"`

	// Changes is the batch of a remote step.
	Changes []ChangeDef `yaml:"changes,omitempty"`
}

// Edit lists the operations a recipe applies to one container's draft.
type Edit struct {
	Namespace string `yaml:"namespace"`
	Ops       []Op   `yaml:"ops"`
}

// Op is a patch operation in YAML form.
type Op struct {
	Op    string `yaml:"op"`
	Path  []any  `yaml:"path"`
	Value any    `yaml:"value,omitempty"`
}

// ChangeDef is a remote change in YAML form.
type ChangeDef struct {
	Namespace     string `yaml:"namespace"`
	Patches       []Op   `yaml:"patches"`
	RevisePatches []Op   `yaml:"revise_patches,omitempty"`
}

func toPatches(ops []Op) ([]patch.Patch, error) {
	out := make([]patch.Patch, len(ops))
	for i, op := range ops {
		v, err := patch.Normalize(op.Value)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		out[i] = patch.Patch{Op: op.Op, Path: patch.Path(op.Path), Value: v}
	}
	return out, nil
}

func toChanges(defs []ChangeDef) ([]transaction.Change, error) {
	out := make([]transaction.Change, len(defs))
	for i, d := range defs {
		forward, err := toPatches(d.Patches)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		reverse, err := toPatches(d.RevisePatches)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		out[i] = transaction.Change{Namespace: d.Namespace, Patches: forward, RevisePatches: reverse}
	}
	return out, nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Containers) == 0 {
		return fmt.Errorf("containers list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Containers))
	for i, c := range s.Containers {
		if c.Namespace == "" {
			return fmt.Errorf("containers[%d]: namespace is required", i)
		}
		if seen[c.Namespace] {
			return fmt.Errorf("containers[%d]: duplicate namespace %q", i, c.Namespace)
		}
		seen[c.Namespace] = true
	}

	for i, step := range s.Steps {
		switch step.Action {
		case ActionTransaction:
			if len(step.Edits) == 0 {
				return fmt.Errorf("steps[%d]: transaction requires edits", i)
			}
			for j, e := range step.Edits {
				if !seen[e.Namespace] {
					return fmt.Errorf("steps[%d].edits[%d]: unknown namespace %q", i, j, e.Namespace)
				}
			}
		case ActionRemote:
			if len(step.Changes) == 0 {
				return fmt.Errorf("steps[%d]: remote requires changes", i)
			}
		case ActionRevert:
			if step.ID == "" {
				return fmt.Errorf("steps[%d]: revert requires id", i)
			}
		case ActionUndo, ActionRedo, ActionSync:
		default:
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
	}

	for ns := range s.Expect {
		if !seen[ns] {
			return fmt.Errorf("expect: unknown namespace %q", ns)
		}
	}
	return nil
}
