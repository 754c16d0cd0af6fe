package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/croprot/internal/ir"
)

func seedNorth(t *testing.T, db string) {
	t.Helper()
	mustExecute(t, "harvest", "north", "wheat", "--db", db)
	mustExecute(t, "check", "north", "sorghum", "--db", db)
	mustExecute(t, "harvest", "north", "sorghum", "--db", db)
	_, _, err := execute(t, nil, "check", "north", "wheat", "--db", db)
	require.Equal(t, ExitFailure, GetExitCode(err))
}

func TestLog_Text(t *testing.T) {
	db := testDB(t)
	seedNorth(t, db)

	out := mustExecute(t, "log", "north", "--db", db)
	assert.Contains(t, out, "Log for Field: north")
	assert.Contains(t, out, "[2] HARVEST wheat recorded")
	assert.Contains(t, out, "[3] SOW sorghum allowed (bootstrap_cereal)")
	assert.Contains(t, out, "[4] HARVEST sorghum recorded")
	assert.Contains(t, out, "[5] SOW wheat denied (legume_break)")
	assert.Contains(t, out, "Total Events:  4")
	assert.NotContains(t, out, "ID:")
}

func TestLog_Verbose(t *testing.T) {
	db := testDB(t)
	mustExecute(t, "harvest", "north", "wheat", "--db", db)

	out := mustExecute(t, "log", "north", "--db", db, "-v")
	assert.Contains(t, out, "PreviousCrop1=wheat, PreviousCrop2=null")
	assert.Contains(t, out, "ID: ")
}

func TestLog_KindFilterJSON(t *testing.T) {
	db := testDB(t)
	seedNorth(t, db)

	stdout := mustExecute(t, "log", "north", "--db", db, "--kind", "harvest", "--format", "json")

	var res LogResult
	decodeResponse(t, stdout, &res)
	require.Len(t, res.Events, 2)
	for _, ev := range res.Events {
		assert.Equal(t, ir.EventHarvest, ev.Kind)
	}
	assert.Equal(t, LogStats{TotalEvents: 2, Harvests: 2}, res.Stats)
	assert.Equal(t, "sorghum", res.Events[1].PreviousCrop1)
	assert.Equal(t, "wheat", res.Events[1].PreviousCrop2)
}

func TestLog_InvalidKind(t *testing.T) {
	stdout, _, err := execute(t, nil, "log", "north", "--db", testDB(t), "--kind", "sowing")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "invalid kind")
}

func TestLog_UnknownField(t *testing.T) {
	stdout, _, err := execute(t, nil, "log", "nowhere", "--db", testDB(t))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [FIELD_NOT_FOUND]")
}
