package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/foxmirror/internal/engine"
	"github.com/roach88/foxmirror/internal/script"
	"github.com/roach88/foxmirror/internal/session"
)

// EditOptions holds flags shared by the commands that edit the mirror.
type EditOptions struct {
	*RootOptions
	filterFlags
	Commit bool
}

// editResult is the JSON payload of the edit commands.
type editResult struct {
	Steps  []script.StepResult  `json:"steps"`
	Diff   *engine.DiffReport   `json:"diff"`
	Commit *engine.CommitResult `json:"commit,omitempty"`
}

func (opts *EditOptions) registerCommit(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&opts.Commit, "commit", false, "write the changes to places.sqlite (default: only show the diff)")
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}
	var set []string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Set fields on matching rows",
		Example: `  foxmirror update --where guid=bkmedium0001 --set title="Read later"
  foxmirror update --contains url=http:// --set description=null --commit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			filter, err := opts.filter()
			if err != nil {
				return f.Invalid("invalid filter", err)
			}
			values, err := parsePairs("--set", set)
			if err != nil {
				return f.Invalid("invalid assignment", err)
			}
			if len(values) == 0 {
				return f.Invalid("nothing to set", fmt.Errorf("--set is required"))
			}
			return runEdit(cmd, opts, &script.Script{Steps: []script.Step{
				{Update: &script.UpdateStep{Filter: filter, Set: values}},
			}})
		},
	}

	opts.filterFlags.register(cmd)
	opts.registerCommit(cmd)
	cmd.Flags().StringArrayVar(&set, "set", nil, "field=value assignment (repeatable; value null stores NULL)")
	return cmd
}

// NewReplaceCommand creates the replace command.
func NewReplaceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}
	step := &script.ReplaceStep{}

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Replace text inside one field of matching rows",
		Long: `Replace every occurrence of --old with --new inside --field.
Matching is case-sensitive; rows whose field is NULL are left alone.`,
		Example: `  foxmirror replace --field url --old http:// --new https://
  foxmirror replace --contains url=wikipedia.org --field title --old " - Wikipedia" --new "" --commit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			filter, err := opts.filter()
			if err != nil {
				return f.Invalid("invalid filter", err)
			}
			step.Filter = filter
			return runEdit(cmd, opts, &script.Script{Steps: []script.Step{{Replace: step}}})
		},
	}

	opts.filterFlags.register(cmd)
	opts.registerCommit(cmd)
	cmd.Flags().StringVar(&step.Field, "field", "", "mirror column to edit (required)")
	cmd.Flags().StringVar(&step.Old, "old", "", "text to replace (required)")
	cmd.Flags().StringVar(&step.New, "new", "", "replacement text")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("old")
	return cmd
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}
	var to string

	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move matching rows into a folder",
		Example: `  foxmirror move --contains url=github.com --to toolbar_____
  foxmirror move --where parent=5 --to fldreading01 --commit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			filter, err := opts.filter()
			if err != nil {
				return f.Invalid("invalid filter", err)
			}
			return runEdit(cmd, opts, &script.Script{Steps: []script.Step{
				{Move: &script.MoveStep{Filter: filter, To: to}},
			}})
		},
	}

	opts.filterFlags.register(cmd)
	opts.registerCommit(cmd)
	cmd.Flags().StringVar(&to, "to", "", "guid of the destination folder (required)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <script.yaml>...",
		Short: "Run edit scripts against the mirror",
		Long: `Run one or more YAML edit scripts in order and show the resulting diff.
With --commit the diff is written to places.sqlite.`,
		Example: `  foxmirror apply cleanup.yaml
  foxmirror apply cleanup.yaml reorganize.yaml --commit`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			sc, err := loadScripts(args)
			if err != nil {
				return f.Invalid("failed to load script", err)
			}
			return runEdit(cmd, opts, sc)
		},
	}

	opts.registerCommit(cmd)
	return cmd
}

// loadScripts loads every path and concatenates their steps.
func loadScripts(paths []string) (*script.Script, error) {
	merged := &script.Script{}
	for _, path := range paths {
		sc, err := script.Load(path)
		if err != nil {
			return nil, err
		}
		merged.Steps = append(merged.Steps, sc.Steps...)
	}
	return merged, nil
}

// runEdit applies sc, reports the diff and commits when opts.Commit is set.
func runEdit(cmd *cobra.Command, opts *EditOptions, sc *script.Script) error {
	f := opts.formatter(cmd)
	// An empty script is allowed: diff with no arguments checks the round trip.
	if len(sc.Steps) > 0 {
		if err := sc.Validate(); err != nil {
			return f.Invalid("invalid edit", err)
		}
	}

	ctx := cmd.Context()
	return opts.withSession(ctx, f, func(sess *session.Session) error {
		steps, err := sc.Apply(ctx, sess)
		if err != nil {
			return f.Fail("failed to edit mirror", err)
		}
		for _, st := range steps {
			f.VerboseLog("step %d (%s): %d rows", st.Index, st.Kind, st.Rows)
		}

		result := editResult{Steps: steps}
		if opts.Commit {
			committed, err := sess.Commit(ctx)
			if err != nil {
				return f.Fail("commit failed", err)
			}
			result.Commit = committed
			result.Diff = &engine.DiffReport{Changes: committed.Changes}
		} else {
			report, err := sess.Diff(ctx)
			if err != nil {
				return f.Fail("diff failed", err)
			}
			result.Diff = report
		}

		return f.Success(result, func(w io.Writer) error {
			if err := writeDiff(w, result.Diff); err != nil {
				return err
			}
			if result.Commit != nil {
				writeCommit(w, result.Commit)
			} else if result.Diff.Len() > 0 {
				fmt.Fprintln(w, "Not committed; rerun with --commit to write places.sqlite")
			}
			return nil
		})
	})
}
