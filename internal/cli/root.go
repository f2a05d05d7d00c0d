package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	NoColor    bool

	// runID is assigned when a command opens its session.
	runID string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the datamgr CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datamgr",
		Short: "datamgr - one data store API over SQL and document databases",
		Long: `datamgr connects to SQLite, PostgreSQL, MongoDB or the in-memory document
store through a single API, runs versioned migration sets against them and
replays scenarios to check that every backend behaves the same.

Settings come from --config, DATAMGR_* environment variables and flags, in
increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (forces debug logging)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", "", "config file (yaml, toml, json or .env)")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored error output")

	pf.String("backend", "", "backend name; empty resolves it from the connection string")
	pf.String("conn", "", "connection string, e.g. sqlite:///tmp/app.db or postgres://...")
	pf.String("set", "", "migration set to apply on connect")
	pf.String("migrations", "", "directory of YAML and CUE migration sets")
	pf.Bool("validate", false, "compare live tables with the migration set after migrating")
	pf.Duration("lock-timeout", 30*time.Second, "how long to wait for a migration lock")
	pf.String("log-level", "INFO", "log level (DEBUG|INFO|WARN|ERROR)")
	pf.String("log-format", "text", "log format (text|json)")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")

	cmd.AddCommand(newLowerCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newScenarioCommand(opts))

	return cmd
}

// Execute runs the CLI with args, reports any error on stderr (or stdout
// as JSON) and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// Flag and argument errors from cobra itself.
		err = &ExitError{Code: ExitCommandError, Message: "invalid command", Err: err, Fix: "run 'datamgr --help'"}
	}
	format := opts.Format
	if !isValidFormat(format) {
		format = "text"
	}
	out := &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr, NoColor: opts.NoColor, RunID: opts.runID}
	_ = out.Error(err)
	return GetExitCode(err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
