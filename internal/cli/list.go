package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/queryir"
	"github.com/roach88/foxmirror/internal/schema"
	"github.com/roach88/foxmirror/internal/session"
)

// defaultListFields are shown when --fields is not given.
var defaultListFields = []string{schema.ColumnGUID, schema.ColumnType, schema.ColumnTitle, schema.ColumnURL}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	filterFlags
	Fields  []string
	All     bool
	Limit   int
	Folders bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mirror rows",
		Long: `Load the bookmarks into a mirror and print the rows matching the filters.
Nothing is written to places.sqlite.`,
		Example: `  foxmirror list --contains url=github.com
  foxmirror list --folders --fields guid,title
  foxmirror list --where parent=3 --all --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}

	opts.filterFlags.register(cmd)
	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "comma-separated mirror columns to show")
	cmd.Flags().BoolVar(&opts.All, "all", false, "show every mirror column")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (0 = no limit)")
	cmd.Flags().BoolVar(&opts.Folders, "folders", false, "list folders instead of bookmarks")
	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions) error {
	f := opts.formatter(cmd)

	filter, err := opts.predicate()
	if err != nil {
		return f.Invalid("invalid filter", err)
	}
	nodeType := schema.TypeBookmark
	if opts.Folders {
		nodeType = schema.TypeFolder
	}
	q := queryir.Select{
		Filter: queryir.Conjoin(queryir.Equals{Field: schema.ColumnType, Value: ir.Int(nodeType)}, filter),
		Fields: opts.Fields,
		Limit:  opts.Limit,
	}
	if len(q.Fields) == 0 && !opts.All {
		q.Fields = defaultListFields
	}

	return opts.withSession(cmd.Context(), f, func(sess *session.Session) error {
		rows, err := sess.Select(cmd.Context(), q)
		if err != nil {
			return f.Fail("failed to list rows", err)
		}
		return f.Success(rows.Maps(), func(w io.Writer) error {
			if rows.Len() == 0 {
				fmt.Fprintln(w, "No matching rows")
				return nil
			}
			return writeTable(w, upper(rows.Columns), formatRecords(rows.Records))
		})
	})
}

func formatRecords(records []ir.Tuple) [][]string {
	out := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(rec))
		for j, v := range rec {
			row[j] = ir.Format(v)
		}
		out[i] = row
	}
	return out
}

func upper(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToUpper(n)
	}
	return out
}
