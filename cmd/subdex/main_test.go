package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"subdex/internal/market"
	"subdex/internal/numeric"
)

const (
	alice = "0xa11ce00000000000000000000000000000000000"
	bob   = "0x0b0b000000000000000000000000000000000000"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPoolLifecycleOnFileBackend(t *testing.T) {
	dir := t.TempDir()
	backend := []string{
		"--state-file", filepath.Join(dir, "state.json"),
		"--journal", filepath.Join(dir, "events.jsonl"),
		"--log-level", "error",
	}
	run := func(args ...string) string {
		t.Helper()
		out, err := execute(t, append(args, backend...)...)
		require.NoError(t, err, out)
		return out
	}

	run("ledger", "deposit", alice, "DOT", "5000")
	run("ledger", "deposit", alice, "KSM", "5000")
	run("ledger", "deposit", bob, "DOT", "500")

	var created struct {
		Shares numeric.Amount `json:"shares"`
	}
	require.NoError(t, json.Unmarshal([]byte(run("pool", "create", "DOT/KSM", "--owner", alice, "--first", "1000", "--second", "1000")), &created))
	require.Equal(t, numeric.NewAmount(999), created.Shares)

	var swapped market.SwapResult
	require.NoError(t, json.Unmarshal([]byte(run("pool", "swap", "DOT/KSM", "--sender", bob, "--amount", "100", "--min-out", "90")), &swapped))
	require.Equal(t, numeric.NewAmount(91), swapped.Quote.Delta.Amount)

	var balance struct {
		Balance numeric.Amount `json:"balance"`
	}
	require.NoError(t, json.Unmarshal([]byte(run("ledger", "balance", bob, "KSM")), &balance))
	require.Equal(t, numeric.NewAmount(91), balance.Balance)

	var pairs []string
	require.NoError(t, json.Unmarshal([]byte(run("pool", "list")), &pairs))
	require.Equal(t, []string{"DOT/KSM"}, pairs)

	out, err := execute(t, "report", "--in", filepath.Join(dir, "events.jsonl"), "--window", "1h", "--log-level", "error")
	require.NoError(t, err, out)
	require.Contains(t, out, `"pair":"DOT/KSM"`)
	require.Contains(t, out, `"swap_count":1`)
}

func TestPoolCommandErrors(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "state.json")

	_, err := execute(t, "pool", "create", "DOT/KSM", "--owner", "nobody", "--first", "1", "--second", "1", "--state-file", state, "--log-level", "error")
	require.ErrorContains(t, err, "invalid owner address")

	_, err = execute(t, "pool", "quote", "DOT/KSM", "--amount", "10", "--state-file", state, "--journal", "", "--log-level", "error")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "insufficient pool"), err.Error())

	_, err = execute(t, "report", "--log-level", "error")
	require.ErrorContains(t, err, "input path or pg dsn is required")
}
