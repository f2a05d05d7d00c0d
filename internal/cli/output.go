package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/migration"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failed or tables do not match their definitions
	ExitCommandError = 2 // Invalid flags, config or input files
	ExitDatabase     = 3 // Connection, query or write failure
	ExitMigration    = 4 // Migration failed or is locked elsewhere
	ExitUnsupported  = 5 // Backend lacks the requested operation
)

// ExitError is an error with an exit code and, optionally, what caused it
// and how to fix it.
type ExitError struct {
	Code    int
	Message string
	Cause   string
	Fix     string
	Err     error
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
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// storeError classifies a data store failure. Errors that already carry an
// exit code pass through.
func storeError(message string, err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	e := WrapExitError(ExitDatabase, message, err)

	var dsErr *datastore.Error
	if !errors.As(err, &dsErr) {
		e.Code = ExitCommandError
		return e
	}
	e.Cause = string(dsErr.Kind)
	switch dsErr.Kind {
	case datastore.KindConnection:
		e.Fix = "check --conn and that the database is reachable"
	case datastore.KindBackendUnavailable:
		e.Code = ExitCommandError
		e.Fix = "pass --backend, or a connection string with a known scheme (sqlite, postgres, mongodb, memdoc)"
	case datastore.KindNotSupported:
		e.Code = ExitUnsupported
		e.Fix = "use a backend that supports this operation"
	case datastore.KindMigrationFailed:
		e.Code = ExitMigration
		switch {
		case errors.Is(err, migration.ErrLockTimeout):
			e.Fix = "another migration holds the lock; retry later or raise --lock-timeout"
		default:
			e.Fix = "run 'datamgr status' to see the failed step, fix it and migrate again"
		}
	case datastore.KindSchema:
		e.Fix = "run 'datamgr migrate --validate' to compare the tables with their definitions"
	}
	return e
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders e as "Error:", "Cause:" and "Fix:" lines. Colors are off
// when noColor is set or NO_COLOR is in the environment.
func (e *ExitError) Format(noColor bool) string {
	saved := color.NoColor
	defer func() { color.NoColor = saved }()
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Error())
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool

	// NoColor disables colored error output.
	NoColor bool

	// RunID correlates JSON responses with log records.
	RunID string
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	TraceID string    `json:"trace_id,omitempty"` // run id
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// Success outputs a successful result in the configured format. Text output
// prints data with its String method when it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "ok",
			Data:    data,
			TraceID: f.RunID,
		})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs err in the configured format. Text goes to ErrWriter.
func (f *OutputFormatter) Error(err error) error {
	var e *ExitError
	if !errors.As(err, &e) {
		e = WrapExitError(GetExitCode(err), "command failed", err)
	}
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:     errorCode(e.Code),
				Message:  e.Error(),
				Cause:    e.Cause,
				Fix:      e.Fix,
				ExitCode: e.Code,
			},
			TraceID: f.RunID,
		})
	}
	_, werr := io.WriteString(f.GetErrWriter(), e.Format(f.NoColor))
	return werr
}

func errorCode(code int) string {
	switch code {
	case ExitFailure:
		return "FAILED"
	case ExitCommandError:
		return "COMMAND_ERROR"
	case ExitDatabase:
		return "DATABASE_ERROR"
	case ExitMigration:
		return "MIGRATION_ERROR"
	case ExitUnsupported:
		return "NOT_SUPPORTED"
	default:
		return "ERROR"
	}
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
