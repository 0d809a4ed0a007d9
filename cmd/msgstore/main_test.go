package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCLI_WriteRead(t *testing.T) {
	dsn := "--dsn=sqlite:file:" + filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, "--backend=sqlite", dsn, "write", "user-1", "Registered", `{"name":"ada"}`)
	require.NoError(t, err)
	require.Contains(t, out, "user-1 position=0 global_position=1")

	_, err = run(t, "--backend=sqlite", dsn, "write", "user-2", "Registered", "--expect=-1")
	require.NoError(t, err)

	_, err = run(t, "--backend=sqlite", dsn, "write", "user-1", "Renamed", `{"name":"bob"}`, "--expect=5")
	require.ErrorIs(t, err, msgstore.ErrConcurrentModification)
	require.Equal(t, 3, exitCode(err))

	out, err = run(t, "--backend=sqlite", dsn, "read", "category", "user", "--json")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var m msgstore.Message
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	require.Equal(t, "user-1", m.StreamName)
	require.Equal(t, int64(1), m.GlobalPosition)
	require.JSONEq(t, `{"name":"ada"}`, string(m.Data))

	out, err = run(t, "--backend=sqlite", dsn, "read", "stream", "user-2")
	require.NoError(t, err)
	require.Contains(t, out, "Registered")

	_, err = run(t, "--backend=sqlite", dsn, "reset")
	require.Error(t, err)

	out, err = run(t, "--backend=sqlite", dsn, "reset", "--force")
	require.NoError(t, err)
	require.Contains(t, out, "store reset")

	out, err = run(t, "--backend=sqlite", dsn, "read", "category", "user")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestCLI_InvalidBackend(t *testing.T) {
	_, err := run(t, "--backend=mongo", "read", "stream", "user-1")
	require.ErrorContains(t, err, "invalid backend")
}

func TestCLI_Bench(t *testing.T) {
	for _, expect := range []bool{false, true} {
		t.Run(fmt.Sprintf("expect=%v", expect), func(t *testing.T) {
			out, err := run(t, "--backend=memory", "bench",
				"--writers=4", "--streams=3", "--messages=200", fmt.Sprintf("--expect=%v", expect))
			require.NoError(t, err)
			require.Contains(t, out, "wrote: 200 messages")
			require.Contains(t, out, "verified")
		})
	}
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 4, exitCode(fmt.Errorf("x: %w", msgstore.ErrBackendUnavailable)))
	require.Equal(t, 5, exitCode(msgstore.ErrCorruptRead))
	require.Equal(t, 1, exitCode(fmt.Errorf("boom")))
}
