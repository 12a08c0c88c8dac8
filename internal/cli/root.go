package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/foxmirror/internal/config"
	"github.com/roach88/foxmirror/internal/locate"
	"github.com/roach88/foxmirror/internal/session"
)

// RootOptions holds global flags for all commands.
//
// Flag values are merged with the config file and FOXMIRROR_* variables in
// PersistentPreRunE; commands read the merged result from Config.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "json" | "text"

	Origin        string
	ProfilesDir   string
	Criterion     string
	Mirror        string
	BatchSize     int
	WriteFrecency bool
	ReadOnly      bool
	Duplicate     bool
	BusyTimeout   time.Duration

	Config *config.Config
	Logger *slog.Logger

	logCloser io.Closer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the foxmirror CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with args. The log file opened during setup is
// closed however the command ends, including when RunE fails.
func Execute(ctx context.Context, args []string) error {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	return run(ctx, cmd, opts)
}

func run(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (err error) {
	defer func() {
		if closeErr := opts.teardown(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close log file: %w", closeErr))
		}
	}()
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foxmirror",
		Short: "foxmirror - edit Firefox bookmarks through a disposable mirror",
		Long: `foxmirror copies a Firefox places.sqlite into a flat working mirror,
lets you edit the mirror, and writes only the changed bookmarks back.

Every write is preceded by a backup next to places.sqlite. Close Firefox
before committing: a running browser holds the database lock.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default $HOME/.config/foxmirror/config.yaml)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Origin, "origin", "", "path to places.sqlite (default: locate one)")
	flags.StringVar(&opts.ProfilesDir, "profiles-dir", "", "directory searched for places.sqlite (default: Firefox profiles directory)")
	flags.StringVar(&opts.Criterion, "criterion", "latest", "profile choice when several exist (latest|largest)")
	flags.StringVar(&opts.Mirror, "mirror", "", "mirror database path (default $TMPDIR/bookmarks.sqlite)")
	flags.IntVar(&opts.BatchSize, "batch-size", 100, "bookmark ids per load batch")
	flags.BoolVar(&opts.WriteFrecency, "write-frecency", false, "write place frecency columns back on commit")
	flags.BoolVar(&opts.ReadOnly, "read-only", false, "open places.sqlite read-only; commits are refused")
	flags.BoolVar(&opts.Duplicate, "duplicate", false, "work on a private read-only copy of places.sqlite")
	flags.DurationVar(&opts.BusyTimeout, "busy-timeout", 0, "wait this long for a locked places.sqlite")

	// Add subcommands
	cmd.AddCommand(NewLocateCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewReplaceCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewCommitCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))

	return cmd
}

// setup merges configuration and builds the logger.
func (opts *RootOptions) setup(cmd *cobra.Command) error {
	// Validate format flag before touching config so typos fail fast.
	if !isValidFormat(opts.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}

	cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	opts.Config = cfg
	opts.Format = cfg.Format
	opts.Verbose = cfg.Verbose

	logger, closer := newLogger(cfg, cmd.ErrOrStderr())
	opts.Logger = logger
	opts.logCloser = closer
	return nil
}

func (opts *RootOptions) teardown() error {
	if opts.logCloser == nil {
		return nil
	}
	err := opts.logCloser.Close()
	opts.logCloser = nil
	return err
}

// newLogger builds the slog logger: text or JSON by format, debug when
// verbose, and written to a rotating file when log_file is set.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, io.Closer) {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = stderr
	var closer io.Closer
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge,
		}
		w, closer = rotating, rotating
		if !cfg.Verbose {
			level = slog.LevelInfo
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), closer
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), closer
}

// formatter returns the output formatter for cmd.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// sessionOptions converts the merged config into session options.
func (opts *RootOptions) sessionOptions() (session.Options, error) {
	cfg := opts.Config
	criterion, err := locate.ParseCriterion(cfg.Criterion)
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		OriginPath:    cfg.Origin,
		ProfilesDir:   cfg.ProfilesDir,
		Criterion:     criterion,
		MirrorPath:    cfg.Mirror,
		BatchSize:     cfg.BatchSize,
		WriteFrecency: cfg.WriteFrecency,
		ReadOnly:      cfg.ReadOnly,
		Duplicate:     cfg.Duplicate,
		BusyTimeout:   cfg.BusyTimeout,
		Logger:        opts.Logger,
	}, nil
}

// withSession connects, runs fn and always closes the session.
func (opts *RootOptions) withSession(ctx context.Context, f *OutputFormatter, fn func(*session.Session) error) error {
	sessOpts, err := opts.sessionOptions()
	if err != nil {
		return f.Invalid("invalid options", err)
	}
	sess, err := session.Connect(ctx, sessOpts)
	if err != nil {
		return f.Fail("failed to connect", err)
	}
	f.VerboseLog("Loaded %d rows from %s", sess.Loaded().Rows, sess.OriginPath())

	runErr := fn(sess)
	if closeErr := sess.Close(); closeErr != nil {
		opts.Logger.Warn("failed to close session", "error", closeErr)
	}
	return runErr
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
