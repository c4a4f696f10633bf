package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/app"
	_ "github.com/atelier-erp/atelier/internal/testing/guard"
)

func TestMainSkipsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"help"}, &out))
	assert.Contains(t, out.String(), "jobs trigger <task>")
}

func TestRunUnknownCommand(t *testing.T) {
	t.Setenv("AUTH_SECRET", "0123456789abcdef0123456789abcdef")
	var out bytes.Buffer
	err := run(context.Background(), []string{"backfill"}, &out)
	require.ErrorContains(t, err, `unknown command "backfill"`)
	assert.Contains(t, out.String(), "usage: atelier")
}

func TestRunJobsRequiresSubcommand(t *testing.T) {
	t.Setenv("AUTH_SECRET", "0123456789abcdef0123456789abcdef")
	err := run(context.Background(), []string{"jobs"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "expected trigger or stats")
}
