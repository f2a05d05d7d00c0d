package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/datamgr/internal/migration"
)

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the schema state of a data store without migrating",
		Long: `Detect where a data store stands relative to a migration set and list the
steps a migrate would apply. Nothing is written.

Example:
  datamgr status --conn sqlite:///tmp/app.db --set Auth`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}
}

type statusOutput struct {
	Set     string          `json:"set"`
	Backend string          `json:"backend"`
	State   migration.State `json:"state"`
	Pending []int           `json:"pending"`
}

func (o statusOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "set %s on %s: %s", o.Set, o.Backend, o.State)
	if len(o.Pending) > 0 {
		fmt.Fprintf(&b, "\npending: %s", joinInts(o.Pending))
	}
	return b.String()
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
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

	state, pending, err := s.migrator.Status(ctx, ds, s.cfg.MigrationSet)
	if err != nil {
		return storeError("cannot read schema state", err)
	}
	out := statusOutput{Set: s.cfg.MigrationSet, Backend: ds.Kind(), State: state, Pending: []int{}}
	for _, st := range pending {
		out.Pending = append(out.Pending, st.Version)
	}
	return s.out.Success(out)
}
