package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/croprot/internal/engine"
	"github.com/roach88/croprot/internal/rotation"
)

func TestCheck_RotationAcrossInvocations(t *testing.T) {
	db := testDB(t)

	out := mustExecute(t, "check", "north", "wheat", "--db", db)
	assert.Contains(t, out, "wheat allowed on north (bootstrap_cereal)")
	assert.Contains(t, out, "PreviousCrop1=null, PreviousCrop2=null")

	mustExecute(t, "harvest", "north", "wheat", "--db", db)
	mustExecute(t, "harvest", "north", "sorghum", "--db", db)

	stdout, _, err := execute(t, nil, "check", "north", "Wheat", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "wheat denied on north (legume_break)")
	assert.Contains(t, stdout, "PreviousCrop1=sorghum, PreviousCrop2=wheat")

	out = mustExecute(t, "check", "north", "chickpea", "--db", db)
	assert.Contains(t, out, "chickpea allowed on north (legume_break)")
}

func TestCheck_UnknownCrop(t *testing.T) {
	db := testDB(t)
	stdout, _, err := execute(t, nil, "check", "north", "cotton", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [UNKNOWN_CROP]")
	assert.True(t, rotation.IsUnknownCrop(err))

	out := mustExecute(t, "fields", "--db", db)
	assert.Contains(t, out, "No fields found.", "an unknown crop must not create the field")
}

func TestCheck_JSON(t *testing.T) {
	db := testDB(t)
	mustExecute(t, "harvest", "north", "wheat", "--db", db)

	stdout := mustExecute(t, "check", "north", "sorghum", "--db", db, "--format", "json")

	var res CheckResult
	resp := decodeResponse(t, stdout, &res)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, CheckResult{
		FieldID: "north",
		Crop:    "sorghum",
		Allowed: true,
		Rule:    "bootstrap_cereal",
		History: rotation.Snapshot{PreviousCrop1: "wheat"},
	}, res)
}

func TestCheck_DeniedJSONKeepsEnvelope(t *testing.T) {
	stdout, _, err := execute(t, nil, "check", "north", "mungbean", "--db", testDB(t), "--format", "json")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res CheckResult
	resp := decodeResponse(t, stdout, &res)
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, res.Allowed)
}

func TestHarvest_IgnoredCrop(t *testing.T) {
	db := testDB(t)

	out := mustExecute(t, "harvest", "north", "WHEAT", "--db", db)
	assert.Contains(t, out, "recorded wheat on north")

	out = mustExecute(t, "harvest", "north", "fallow", "--db", db)
	assert.Contains(t, out, `ignored "fallow" on north`)
	assert.Contains(t, out, "PreviousCrop1=wheat, PreviousCrop2=null")

	stdout := mustExecute(t, "harvest", "north", " wheat", "--db", db, "--format", "json")
	var res HarvestResult
	decodeResponse(t, stdout, &res)
	assert.False(t, res.Recorded, "surrounding whitespace is significant")
	assert.Equal(t, rotation.Snapshot{PreviousCrop1: "wheat"}, res.History)
}

func TestHistory(t *testing.T) {
	db := testDB(t)
	mustExecute(t, "harvest", "north", "chickpea", "--db", db)

	out := mustExecute(t, "history", "north", "--db", db)
	assert.Equal(t, "PreviousCrop1=chickpea, PreviousCrop2=null\n", out)
}

func TestHistory_UnknownField(t *testing.T) {
	stdout, _, err := execute(t, nil, "history", "nowhere", "--db", testDB(t), "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, engine.IsFieldNotFound(err))

	resp := decodeResponse(t, stdout, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FIELD_NOT_FOUND", resp.Error.Code)
}

func TestFields_CreateAndList(t *testing.T) {
	db := testDB(t)

	out := mustExecute(t, "fields", "--db", db)
	assert.Contains(t, out, "No fields found.")

	opts := &RootOptions{FieldIDs: engine.NewFixedGenerator("east")}
	stdout, _, err := execute(t, opts, "fields", "create", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "east\n", stdout)

	mustExecute(t, "harvest", "west", "wheat", "--db", db)

	stdout = mustExecute(t, "fields", "--db", db, "--format", "json")
	var res struct {
		Fields []string `json:"fields"`
	}
	decodeResponse(t, stdout, &res)
	assert.Equal(t, []string{"east", "west"}, res.Fields)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "croprot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+db+"\nlog:\n  level: warn\n"), 0o644))

	mustExecute(t, "harvest", "north", "wheat", "--config", cfgPath)

	_, err := os.Stat(db)
	require.NoError(t, err, "database from config file must be used")

	out := mustExecute(t, "history", "north", "--db", db)
	assert.Contains(t, out, "PreviousCrop1=wheat")
}

func TestConfigFile_Invalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "croprot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("databse: typo.db\n"), 0o644))

	stdout, _, err := execute(t, nil, "fields", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error ["+ErrCodeConfig+"]")
}

func TestRedisCheckpoints(t *testing.T) {
	mr := miniredis.RunT(t)

	mustExecute(t, "harvest", "north", "wheat", "--redis", mr.Addr())
	mustExecute(t, "harvest", "north", "sorghum", "--redis", mr.Addr())

	_, _, err := execute(t, nil, "check", "north", "wheat", "--redis", mr.Addr())
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out := mustExecute(t, "fields", "--redis", mr.Addr())
	assert.Equal(t, "north\n", out)
	assert.True(t, mr.Exists("croprot:field:north"))

	stdout, _, err := execute(t, nil, "log", "north", "--redis", mr.Addr())
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [NO_EVENT_LOG]")
}
