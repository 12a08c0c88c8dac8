package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/foxmirror/internal/engine"
	"github.com/roach88/foxmirror/internal/ir"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff [script.yaml]...",
		Short: "Show what scripts would change without writing",
		Long: `Load the mirror, run the given scripts against it and print the rows that
differ from places.sqlite. With no scripts the diff should be empty; anything
else means the mirror does not round-trip this database.`,
		Example: `  foxmirror diff
  foxmirror diff cleanup.yaml --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			sc, err := loadScripts(args)
			if err != nil {
				return f.Invalid("failed to load script", err)
			}
			return runEdit(cmd, opts, sc)
		},
	}
	return cmd
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts, Commit: true}

	cmd := &cobra.Command{
		Use:   "commit <script.yaml>...",
		Short: "Run scripts and write the result to places.sqlite",
		Long: `Run the given scripts against the mirror, back up places.sqlite and write
every changed row back in a single transaction. Shorthand for apply --commit.`,
		Example: `  foxmirror commit cleanup.yaml`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			sc, err := loadScripts(args)
			if err != nil {
				return f.Invalid("failed to load script", err)
			}
			return runEdit(cmd, opts, sc)
		},
	}
	return cmd
}

// writeDiff prints one table row per differing field.
func writeDiff(w io.Writer, report *engine.DiffReport) error {
	if report.Len() == 0 {
		fmt.Fprintln(w, "No changes")
		return nil
	}
	var rows [][]string
	for _, c := range report.Changes {
		if c.Reason == engine.ReasonMissingOrigin {
			rows = append(rows, []string{c.GUID, string(c.Reason), "", "", ""})
			continue
		}
		for _, fc := range c.Fields {
			rows = append(rows, []string{c.GUID, string(c.Reason), fc.Table + "." + fc.Field, ir.Format(fc.Origin), ir.Format(fc.Mirror)})
		}
	}
	if err := writeTable(w, []string{"GUID", "REASON", "FIELD", "ORIGIN", "MIRROR"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d changed rows\n", report.Len())
	return nil
}

func writeCommit(w io.Writer, res *engine.CommitResult) {
	fmt.Fprintf(w, "Committed %d rows (%d bookmarks, %d places updated)\n",
		res.Changed, res.BookmarksUpdated, res.PlacesUpdated)
	if len(res.Unmatched) > 0 {
		fmt.Fprintf(w, "No origin row for: %v\n", res.Unmatched)
	}
	fmt.Fprintf(w, "Snapshot: %s\n", res.Snapshot)
}
