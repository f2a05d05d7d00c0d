package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/datamgr/internal/querydoc"
	"github.com/roach88/datamgr/internal/queryir"
	"github.com/roach88/datamgr/internal/querysql"
)

// LowerOptions holds flags for the lower command.
type LowerOptions struct {
	*RootOptions
	FilterPath string
	Target     string // "sql" | "doc"
	Prefix     string
	Dialect    string
}

func newLowerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LowerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lower",
		Short: "Print the SQL or document form of a filter",
		Long: `Lower a filter written in YAML to a parameterized SQL WHERE clause or a
MongoDB query document, without touching a database.

Example:
  datamgr lower --filter auth.yaml
  datamgr lower --filter auth.yaml --dialect postgres
  datamgr lower --filter auth.yaml --target doc --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.FilterPath, "filter", "f", "", "YAML filter file (required)")
	cmd.Flags().StringVar(&opts.Target, "target", "sql", "output form (sql|doc)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "?", "placeholder prefix for generic SQL")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "bind placeholders for a dialect (sqlite|postgres)")
	_ = cmd.MarkFlagRequired("filter")

	return cmd
}

// sqlOutput is a lowered WHERE clause. Without a dialect the placeholders
// stay named; with one they are bound to positional Args.
type sqlOutput struct {
	Where   string         `json:"where"`
	Params  map[string]any `json:"params,omitempty"`
	Dialect string         `json:"dialect,omitempty"`
	Args    []any          `json:"args,omitempty"`
}

func (o sqlOutput) String() string {
	var b strings.Builder
	if o.Where == "" {
		b.WriteString("(no condition)")
	} else {
		b.WriteString("WHERE ")
		b.WriteString(o.Where)
	}
	for _, name := range slices.Sorted(maps.Keys(o.Params)) {
		fmt.Fprintf(&b, "\n  %s = %v", name, o.Params[name])
	}
	for i, a := range o.Args {
		fmt.Fprintf(&b, "\n  arg %d = %v", i+1, a)
	}
	return b.String()
}

// docOutput is a query document in relaxed extended JSON.
type docOutput struct {
	Query json.RawMessage `json:"query"`
}

func (o docOutput) String() string {
	var b bytes.Buffer
	if err := json.Indent(&b, o.Query, "", "  "); err != nil {
		return string(o.Query)
	}
	return b.String()
}

func runLower(cmd *cobra.Command, opts *LowerOptions) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	f, err := readFilter(opts.FilterPath)
	if err != nil {
		return err
	}

	switch opts.Target {
	case "sql":
		res, err := lowerSQL(f, opts)
		if err != nil {
			return err
		}
		return out.Success(res)
	case "doc":
		raw, err := bson.MarshalExtJSON(querydoc.Lower(f), false, false)
		if err != nil {
			return WrapExitError(ExitFailure, "encode query document", err)
		}
		return out.Success(docOutput{Query: raw})
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid target %q: must be sql or doc", opts.Target))
	}
}

func lowerSQL(f *queryir.Filter, opts *LowerOptions) (sqlOutput, error) {
	if opts.Dialect == "" {
		if len(opts.Prefix) != 1 {
			return sqlOutput{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid prefix %q: must be one character", opts.Prefix))
		}
		frag, _ := querysql.Lower(f, opts.Prefix[0], 0)
		return sqlOutput{Where: frag.SQL, Params: frag.Params}, nil
	}

	var d *querysql.Dialect
	switch opts.Dialect {
	case querysql.SQLite.Name:
		d = querysql.SQLite
	case querysql.Postgres.Name:
		d = querysql.Postgres
	default:
		return sqlOutput{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown dialect %q: must be sqlite or postgres", opts.Dialect))
	}
	frag, _ := d.Lower(f, 0)
	sql, args, err := querysql.Bind(frag.SQL, frag.Params, d.Prefix, d.Style)
	if err != nil {
		return sqlOutput{}, WrapExitError(ExitCommandError, "bind filter", err)
	}
	return sqlOutput{Where: sql, Dialect: d.Name, Args: args}, nil
}

// readFilter decodes and validates a YAML filter file. Unknown keys are
// rejected so a misspelled category does not silently match everything.
func readFilter(path string) (*queryir.Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot read filter", err)
	}
	var f queryir.Filter
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ExitError{
			Code:    ExitCommandError,
			Message: "invalid filter file " + path,
			Err:     err,
			Fix:     "use the categories equals_and, like_or, bit_and, greater_than_and, sub_filters, ...",
		}
	}
	if err := queryir.Validate(&f).Err(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid filter file "+path, err)
	}
	return &f, nil
}
