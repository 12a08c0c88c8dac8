package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/foxmirror/internal/locate"
	"github.com/roach88/foxmirror/internal/session"
	"github.com/roach88/foxmirror/internal/snapshot"
)

// snapshotRow is one entry of the snapshots listing.
type snapshotRow struct {
	Index int `json:"index"`
	snapshot.Snapshot
}

// NewSnapshotsCommand creates the snapshots command.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List backups of places.sqlite, newest first",
		Long: `List the backup-<unix time>.sqlite files written next to places.sqlite
before each commit. Index 0 is the newest and is what restore uses by default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshots(cmd, rootOpts)
		},
	}
	return cmd
}

func runSnapshots(cmd *cobra.Command, opts *RootOptions) error {
	f := opts.formatter(cmd)

	// Listing needs no lock, so the origin is resolved without a session.
	origin, err := resolveOrigin(opts)
	if err != nil {
		return f.Fail("failed to find places.sqlite", err)
	}
	snaps, err := snapshot.New(nil, nil).List(origin)
	if err != nil {
		return f.Fail("failed to list snapshots", err)
	}

	rows := make([]snapshotRow, len(snaps))
	for i, s := range snaps {
		rows[i] = snapshotRow{Index: i, Snapshot: s}
	}
	return f.Success(rows, func(w io.Writer) error {
		if len(rows) == 0 {
			fmt.Fprintf(w, "No snapshots of %s\n", origin)
			return nil
		}
		table := make([][]string, len(rows))
		for i, r := range rows {
			table[i] = []string{
				strconv.Itoa(r.Index),
				filepath.Base(r.Path),
				humanize.Bytes(uint64(r.Size)),
				humanize.Time(r.Time()),
			}
		}
		return writeTable(w, []string{"INDEX", "FILE", "SIZE", "TAKEN"}, table)
	})
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore [index]",
		Short: "Copy a backup over places.sqlite",
		Long: `Overwrite places.sqlite with a backup. The index comes from the snapshots
command; 0, the newest backup, is the default. Firefox must be closed.`,
		Example: `  foxmirror restore
  foxmirror restore 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			index := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return f.Invalid("invalid snapshot index", err)
				}
				index = n
			}
			return runRestore(cmd, rootOpts, index)
		},
	}
	return cmd
}

// restoreResult is the JSON payload of the restore command.
type restoreResult struct {
	Origin   string `json:"origin"`
	Snapshot string `json:"snapshot"`
	Index    int    `json:"index"`
	Rows     int    `json:"rows"`
}

func runRestore(cmd *cobra.Command, opts *RootOptions, index int) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	return opts.withSession(ctx, f, func(sess *session.Session) error {
		src, err := sess.RestoreBackup(ctx, index)
		if err != nil {
			return f.Fail("restore failed", err)
		}
		result := restoreResult{
			Origin:   sess.OriginPath(),
			Snapshot: src,
			Index:    index,
			Rows:     sess.Loaded().Rows,
		}
		return f.Success(result, func(w io.Writer) error {
			fmt.Fprintf(w, "Restored %s from %s (%d rows)\n", result.Origin, filepath.Base(result.Snapshot), result.Rows)
			return nil
		})
	})
}

// resolveOrigin returns the configured origin or locates one.
func resolveOrigin(opts *RootOptions) (string, error) {
	if opts.Config.Origin != "" {
		return opts.Config.Origin, nil
	}
	criterion, err := locate.ParseCriterion(opts.Config.Criterion)
	if err != nil {
		return "", err
	}
	root, err := profilesRoot(opts)
	if err != nil {
		return "", err
	}
	c, err := locate.Locate(afero.NewOsFs(), root, criterion)
	if err != nil {
		return "", err
	}
	return c.Path, nil
}
