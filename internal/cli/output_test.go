package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/migration"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
		RunID:  "run-1",
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Equal(t, "run-1", resp.TraceID)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(statusOutput{Set: "Auth", Backend: "sqlite", State: migration.State{Kind: migration.UpToDate, Current: 2, Target: 2}}))
	assert.Equal(t, "set Auth on sqlite: up to date at version 2\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(&ExitError{Code: ExitMigration, Message: "migration failed", Fix: "retry"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MIGRATION_ERROR", resp.Error.Code)
	assert.Equal(t, "migration failed", resp.Error.Message)
	assert.Equal(t, "retry", resp.Error.Fix)
	assert.Equal(t, ExitMigration, resp.Error.ExitCode)
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut, NoColor: true}

	require.NoError(t, formatter.Error(errors.New("boom")))

	assert.Empty(t, out.String())
	assert.Equal(t, "Error: command failed: boom\n", errOut.String())
}

func TestExitError_Format(t *testing.T) {
	e := &ExitError{
		Code:    ExitDatabase,
		Message: "cannot open data store",
		Cause:   "CONNECTION_ERROR",
		Fix:     "check --conn",
		Err:     errors.New("dial tcp: refused"),
	}

	assert.Equal(t,
		"Error: cannot open data store: dial tcp: refused\nCause: CONNECTION_ERROR\nFix:   check --conn\n",
		e.Format(true))
	assert.Equal(t, "Error: plain\n", NewExitError(ExitFailure, "plain").Format(true))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("x")))
	assert.Equal(t, ExitMigration, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitMigration, "m"))))
}

func TestStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		fix  string
	}{
		{"connection", datastore.Errorf(datastore.KindConnection, "connect", "", "refused"), ExitDatabase, "--conn"},
		{"query", datastore.Errorf(datastore.KindQuery, "query", "auth", "no such table"), ExitDatabase, ""},
		{"unknown_backend", datastore.Errorf(datastore.KindBackendUnavailable, "resolve", "", "no backend"), ExitCommandError, "--backend"},
		{"unsupported", datastore.NotSupported("mongodb", "raw SQL"), ExitUnsupported, "supports"},
		{"migration", datastore.Errorf(datastore.KindMigrationFailed, "migrate", "", "step 2"), ExitMigration, "datamgr status"},
		{"lock", datastore.NewError(datastore.KindMigrationFailed, "migrate", "schema_locks", migration.ErrLockTimeout), ExitMigration, "--lock-timeout"},
		{"plain", errors.New("file not found"), ExitCommandError, ""},
		{"exit_error", NewExitError(ExitFailure, "kept"), ExitFailure, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := storeError("op failed", fmt.Errorf("wrap: %w", tt.err))
			assert.Equal(t, tt.code, e.Code)
			if tt.fix == "" {
				return
			}
			assert.Contains(t, e.Fix, tt.fix)
		})
	}
}

func TestVerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	quiet := &OutputFormatter{Writer: out, ErrWriter: errOut}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Writer: out, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}
