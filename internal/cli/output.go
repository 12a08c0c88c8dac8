package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/roach88/foxmirror/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (commit rolled back, store locked, etc.)
	ExitCommandError = 2 // Command error (bad flags, unreadable script, invalid query)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool // already written by an OutputFormatter
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Reported reports whether err was already printed by an OutputFormatter.
// Callers print any other error themselves.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// exitCodeFor maps an engine error code to a process exit code.
func exitCodeFor(code engine.ErrorCode) int {
	switch code {
	case engine.ErrCodeInvalidQuery, engine.ErrCodeLocatorFailed, engine.ErrCodeNotPlaces,
		engine.ErrCodeNoSnapshot, engine.ErrCodeSnapshotIndex, engine.ErrCodePlaceConflict:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// ErrCodeInvalidArgument is reported for command-line problems that never
// reach the engine.
const ErrCodeInvalidArgument = "INVALID_ARGUMENT"

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code     string `json:"code"`               // engine error code, e.g. "STORE_LOCKED"
	Message  string `json:"message"`            // human-readable message
	GUID     string `json:"guid,omitempty"`     // offending record, when known
	Snapshot string `json:"snapshot,omitempty"` // backup taken before a failed commit
	Details  any    `json:"details,omitempty"`  // additional context
}

// Success outputs a successful result in the configured format.
// In text mode text renders the payload; a nil text prints data with Println.
func (f *OutputFormatter) Success(data any, text func(io.Writer) error) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if text != nil {
		return text(f.Writer)
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(cliErr CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &cliErr,
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
	if cliErr.GUID != "" {
		fmt.Fprintf(f.Writer, "Record: %s\n", cliErr.GUID)
	}
	if cliErr.Snapshot != "" {
		fmt.Fprintf(f.Writer, "Snapshot: %s\n", cliErr.Snapshot)
	}
	if f.Verbose && cliErr.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", cliErr.Details)
	}
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should return. Engine error codes pick the exit code.
func (f *OutputFormatter) Fail(message string, err error) error {
	code := engine.CodeOf(err)
	cliErr := CLIError{Code: string(code), Message: message}
	if err != nil {
		cliErr.Message = message + ": " + err.Error()
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		cliErr.GUID = ee.GUID
		cliErr.Snapshot = ee.Snapshot
	}
	if outErr := f.Error(cliErr); outErr != nil {
		return outErr
	}
	exitErr := WrapExitError(exitCodeFor(code), message, err)
	exitErr.reported = true
	return exitErr
}

// Invalid reports a usage problem (bad flag value, unreadable script) and
// returns an ExitError with ExitCommandError.
func (f *OutputFormatter) Invalid(message string, err error) error {
	cliErr := CLIError{Code: ErrCodeInvalidArgument, Message: message}
	if err != nil {
		cliErr.Message = message + ": " + err.Error()
	}
	if outErr := f.Error(cliErr); outErr != nil {
		return outErr
	}
	exitErr := WrapExitError(ExitCommandError, message, err)
	exitErr.reported = true
	return exitErr
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// writeTable renders rows under headers as a text table.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	table.Header(header...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
