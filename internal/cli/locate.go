package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/foxmirror/internal/locate"
)

// LocateOptions holds flags for the locate command.
type LocateOptions struct {
	*RootOptions
}

// locateResult is the JSON payload of the locate command.
type locateResult struct {
	Root       string             `json:"root"`
	Criterion  string             `json:"criterion"`
	Selected   *locate.Candidate  `json:"selected,omitempty"`
	Candidates []locate.Candidate `json:"candidates"`
}

// NewLocateCommand creates the locate command.
func NewLocateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LocateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Find places.sqlite files under the Firefox profiles directory",
		Long: `Search the profiles directory for places.sqlite files and show which one
would be opened. The newest file wins with --criterion latest, the biggest
with --criterion largest.`,
		Example: `  foxmirror locate
  foxmirror locate --criterion largest --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocate(cmd, opts)
		},
	}
	return cmd
}

func runLocate(cmd *cobra.Command, opts *LocateOptions) error {
	f := opts.formatter(cmd)

	criterion, err := locate.ParseCriterion(opts.Config.Criterion)
	if err != nil {
		return f.Fail("invalid criterion", err)
	}
	root, err := profilesRoot(opts.RootOptions)
	if err != nil {
		return f.Fail("failed to find profiles directory", err)
	}

	fsys := afero.NewOsFs()
	candidates, err := locate.Candidates(fsys, root)
	if err != nil {
		return f.Fail("failed to search profiles", err)
	}
	result := locateResult{Root: root, Criterion: string(criterion), Candidates: candidates}
	if len(candidates) > 0 {
		selected, err := locate.Locate(fsys, root, criterion)
		if err != nil {
			return f.Fail("failed to choose a profile", err)
		}
		result.Selected = &selected
	}

	return f.Success(result, func(w io.Writer) error {
		if len(candidates) == 0 {
			fmt.Fprintf(w, "No %s found under %s\n", locate.FileName, root)
			return nil
		}
		rows := make([][]string, len(candidates))
		for i, c := range candidates {
			mark := ""
			if c.Path == result.Selected.Path {
				mark = "*"
			}
			rows[i] = []string{mark, c.Path, humanize.Bytes(uint64(c.Size)), humanize.Time(c.ModTime)}
		}
		return writeTable(w, []string{"", "PATH", "SIZE", "MODIFIED"}, rows)
	})
}

// profilesRoot returns the configured profiles directory or the OS default.
func profilesRoot(opts *RootOptions) (string, error) {
	if opts.Config.ProfilesDir != "" {
		return opts.Config.ProfilesDir, nil
	}
	return locate.ProfilesDir()
}
