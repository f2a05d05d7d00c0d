package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/datamgr/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Compare []string
}

func newScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file.yaml>",
		Short: "Run a scenario against a backend",
		Long: `Replay the steps of a scenario file against a data store, check each
step's expectations and the final assertions, and print the trace.

Without --conn the scenario runs in a fresh in-memory document store.
--compare runs it again on each given connection string and reports the
first step where the traces differ.

Example:
  datamgr scenario auth.yaml
  datamgr scenario auth.yaml --conn sqlite:///tmp/check.db
  datamgr scenario auth.yaml --compare sqlite:///tmp/a.db --compare memdoc://b`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.Compare, "compare", nil, "connection string of another backend to compare with (repeatable)")

	return cmd
}

type resultOutput struct {
	*harness.Result
}

func (o resultOutput) String() string {
	var b strings.Builder
	verdict := "PASS"
	if !o.Pass {
		verdict = "FAIL"
	}
	fmt.Fprintf(&b, "%s %s on %s (%d steps)", verdict, o.Scenario, o.Backend, len(o.Trace))
	for _, e := range o.Errors {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	return b.String()
}

type comparisonOutput struct {
	*harness.Comparison
}

func (o comparisonOutput) String() string {
	var b strings.Builder
	for i, r := range o.Results {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(resultOutput{r}.String())
	}
	for _, d := range o.Divergences {
		fmt.Fprintf(&b, "\ndiverged: %s", d)
	}
	if o.Equivalent() {
		b.WriteString("\nall backends agree")
	}
	return b.String()
}

func runScenario(cmd *cobra.Command, opts *ScenarioOptions, path string) error {
	ctx := cmd.Context()

	sc, err := harness.LoadScenario(path)
	if err != nil {
		return &ExitError{
			Code:    ExitCommandError,
			Message: "cannot load scenario",
			Err:     err,
			Fix:     "check the ops, expectations and assertions in the file",
		}
	}

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	h := harness.New(s.registry, s.log)
	target := harness.Target{Backend: s.cfg.Backend, ConnectionString: s.cfg.ConnectionString}
	if target.ConnectionString == "" {
		if target.Backend != "" && target.Backend != "memdoc" {
			return NewExitError(ExitCommandError, "backend "+target.Backend+" needs --conn")
		}
		target = harness.Target{Backend: "memdoc", ConnectionString: "memdoc://" + strings.ReplaceAll(sc.Name, "/", "_")}
	}

	if len(opts.Compare) == 0 {
		r, err := h.Run(ctx, sc, target)
		if err != nil {
			return storeError("scenario "+sc.Name+" could not run", err)
		}
		if err := s.out.Success(resultOutput{r}); err != nil {
			return err
		}
		if !r.Pass {
			return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed with %d error(s)", sc.Name, len(r.Errors)))
		}
		return nil
	}

	targets := []harness.Target{target}
	for _, conn := range opts.Compare {
		targets = append(targets, harness.Target{ConnectionString: conn})
	}
	c, err := h.Compare(ctx, sc, targets...)
	if err != nil {
		return storeError("scenario "+sc.Name+" could not run", err)
	}
	if err := s.out.Success(comparisonOutput{c}); err != nil {
		return err
	}
	if !c.Equivalent() {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s is not equivalent across %d backends", sc.Name, len(targets)))
	}
	return nil
}
