package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/croprot/internal/rotation"
)

func writePlan(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "north.cue", `
package plans

plan: north: {
	field: "north"
	sequence: ["wheat", "sorghum", "chickpea", "wheat"]
}
`)
	writePlan(t, dir, "east.cue", `
package plans

plan: east: sequence: ["Sorghum", "mungbean"]
`)

	res, errs := Load(dir)
	require.Empty(t, errs)
	require.Len(t, res.Plans, 2)
	assert.Equal(t, 2, res.FileCount)

	east, north := res.Plans[0], res.Plans[1]
	assert.Equal(t, "east", east.Name)
	assert.Equal(t, "", east.Field)
	assert.Equal(t, "north", north.Name)
	assert.Equal(t, "north", north.Field)
	require.Len(t, north.Sequence, 4)
	assert.Equal(t, "chickpea", north.Sequence[2].Crop)
	assert.True(t, north.Sequence[2].Pos.IsValid())
	assert.Equal(t, "north.cue", filepath.Base(north.Sequence[2].Pos.Filename()))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		code  string
	}{
		{
			name:  "missing directory",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") },
			code:  ErrCodeNotFound,
		},
		{
			name:  "no cue files",
			setup: func(t *testing.T) string { return t.TempDir() },
			code:  ErrCodeNoFiles,
		},
		{
			name: "no plans",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writePlan(t, dir, "empty.cue", "package plans\n\nnote: \"nothing here\"\n")
				return dir
			},
			code: ErrCodeNoPlans,
		},
		{
			name: "syntax error",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writePlan(t, dir, "bad.cue", "package plans\n\nplan: north: {\n")
				return dir
			},
			code: ErrCodeLoadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := Load(tt.setup(t))
			require.NotEmpty(t, errs)
			var le *LoadError
			require.True(t, errors.As(errs[0], &le), "got %v", errs[0])
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoadString_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing sequence", `plan: north: field: "north"`},
		{"empty sequence", `plan: north: sequence: []`},
		{"non-string crop", `plan: north: sequence: ["wheat", 3]`},
		{"unknown key", `plan: north: { sequence: ["wheat"], soil: "clay" }`},
		{"empty field", `plan: north: { field: "", sequence: ["wheat"] }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, errs := LoadString("plans.cue", tt.src)
			require.Len(t, errs, 1)
			var le *LoadError
			require.True(t, errors.As(errs[0], &le))
			assert.Equal(t, ErrCodeInvalidPlan, le.Code)
			assert.Empty(t, res.Plans)
		})
	}
}

func TestLoadString_KeepsValidPlans(t *testing.T) {
	res, errs := LoadString("plans.cue", `
plan: good: sequence: ["wheat"]
plan: bad: sequence: []
`)
	require.Len(t, errs, 1)
	require.Len(t, res.Plans, 1)
	assert.Equal(t, "good", res.Plans[0].Name)
}

func mustPlan(t *testing.T, src string) *Plan {
	t.Helper()
	res, errs := LoadString("plans.cue", src)
	require.Empty(t, errs)
	require.Len(t, res.Plans, 1)
	return &res.Plans[0]
}

func TestCheck_FollowsRotation(t *testing.T) {
	p := mustPlan(t, `plan: north: sequence: ["wheat", "sorghum", "chickpea", "wheat", "mungbean"]`)

	res := Check(p)
	assert.True(t, res.OK())
	assert.Equal(t, 5, res.Seasons)
	assert.Equal(t, rotation.Snapshot{PreviousCrop1: "mungbean", PreviousCrop2: "wheat"}, res.Final)
}

func TestCheck_Denied(t *testing.T) {
	p := mustPlan(t, `plan: north: sequence: ["wheat", "sorghum", "wheat", "chickpea"]`)

	res := Check(p)
	require.False(t, res.OK())
	v := res.Violation
	assert.Equal(t, ViolationDenied, v.Kind)
	assert.Equal(t, 3, v.Season)
	assert.Equal(t, "wheat", v.Crop)
	assert.Equal(t, rotation.RuleLegumeBreak, v.Rule)
	assert.Equal(t, rotation.Snapshot{PreviousCrop1: "sorghum", PreviousCrop2: "wheat"}, v.History)
	assert.Equal(t, 2, res.Seasons)
	assert.Equal(t, 1, v.Pos.Line())
	assert.Contains(t, v.Error(), "plans.cue:1:")
	assert.Contains(t, v.Error(), "PreviousCrop1=sorghum, PreviousCrop2=wheat")
}

func TestCheck_LegumeFirstDenied(t *testing.T) {
	p := mustPlan(t, `plan: north: sequence: ["chickpea"]`)

	res := Check(p)
	require.False(t, res.OK())
	assert.Equal(t, 1, res.Violation.Season)
	assert.Equal(t, rotation.RuleBootstrapCereal, res.Violation.Rule)
	assert.Contains(t, res.Violation.Error(), "PreviousCrop1=null, PreviousCrop2=null")
}

func TestCheck_UnknownCrop(t *testing.T) {
	p := mustPlan(t, `plan: north: sequence: ["wheat", "cotton"]`)

	res := Check(p)
	require.False(t, res.OK())
	assert.Equal(t, ViolationUnknownCrop, res.Violation.Kind)
	assert.Equal(t, "cotton", res.Violation.Crop)
	assert.Equal(t, 2, res.Violation.Season)
	assert.Equal(t, rotation.Snapshot{PreviousCrop1: "wheat"}, res.Final)
}

func TestCheckFrom_FieldHistory(t *testing.T) {
	p := mustPlan(t, `plan: north: sequence: ["wheat"]`)

	res, err := CheckFrom(p, rotation.Snapshot{PreviousCrop1: "sorghum", PreviousCrop2: "wheat"})
	require.NoError(t, err)
	require.False(t, res.OK())
	assert.Equal(t, rotation.RuleLegumeBreak, res.Violation.Rule)

	_, err = CheckFrom(p, rotation.Snapshot{PreviousCrop2: "wheat"})
	assert.ErrorIs(t, err, rotation.ErrInvalidSnapshot)
}
