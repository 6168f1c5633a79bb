package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feemaison/bakery-erp/internal/app"
	_ "github.com/feemaison/bakery-erp/internal/testing/guard"
)

func TestGuardEnablesTestMode(t *testing.T) {
	t.Setenv(app.TestModeEnv, "0")
	require.True(t, app.InTestMode())
}

func TestRunUsage(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	require.Equal(t, 2, run(context.Background(), nil, stdout, stderr))
	require.Contains(t, stderr.String(), "usage: erp")

	stderr.Reset()
	require.Equal(t, 2, run(context.Background(), []string{"frobnicate"}, stdout, stderr))
	require.Contains(t, stderr.String(), `unknown command "frobnicate"`)

	require.Equal(t, 0, run(context.Background(), []string{"help"}, stdout, stderr))
	require.Contains(t, stdout.String(), "check-chart")

	stderr.Reset()
	require.Equal(t, 2, run(context.Background(), []string{"entry", "show"}, stdout, stderr))
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"ledger", "stock"}, splitList(" ledger, ,stock "))
	require.Nil(t, splitList(""))
}
