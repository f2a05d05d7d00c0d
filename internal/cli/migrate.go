package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/datamgr/internal/migration"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring a data store to the latest version of a migration set",
		Long: `Connect to a data store and apply every pending step of a migration set
under the set's lock. With --validate the live tables are compared with the
set's final definitions afterwards; differences are reported, not fixed.

The built-in Auth set is always available; --migrations adds the YAML and
CUE sets of a directory.

Example:
  datamgr migrate --conn sqlite:///tmp/app.db --set Auth
  datamgr migrate --conn postgres://localhost/app --set Inventory --migrations ./migrations --validate`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}
}

// reportOutput renders a migration report.
type reportOutput struct {
	*migration.Report
}

func (r reportOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "set %s on %s: %s", r.Set, r.Backend, r.State)
	if len(r.Applied) == 0 {
		b.WriteString("\nnothing to apply")
	} else {
		fmt.Fprintf(&b, "\napplied %s (%d -> %d)", joinInts(r.Applied), r.From, r.To)
	}
	for _, m := range r.Mismatches {
		if m.Missing {
			fmt.Fprintf(&b, "\nmismatch: table %s is missing", m.Table)
			continue
		}
		fmt.Fprintf(&b, "\nmismatch: table %s: %s", m.Table, strings.Join(m.Changes, "; "))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\nwarning: %s", w)
	}
	return b.String()
}

func runMigrate(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if err := s.requireSet(); err != nil {
		return err
	}
	ds, err := s.open(ctx, false)
	if err != nil {
		return err
	}
	defer ds.Close()

	report, err := s.migrator.Run(ctx, ds, s.cfg.MigrationSet, s.cfg.ValidateTables)
	if err != nil {
		if report != nil {
			s.out.VerboseLog("%s", reportOutput{report})
		}
		return storeError("migration failed", err)
	}
	if err := s.out.Success(reportOutput{report}); err != nil {
		return err
	}
	if n := len(report.Mismatches); n > 0 {
		return &ExitError{
			Code:    ExitFailure,
			Message: fmt.Sprintf("%d table(s) do not match set %s", n, report.Set),
			Fix:     "add a migration step that brings the tables in line",
		}
	}
	return nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
