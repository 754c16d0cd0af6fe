package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// Error codes for LoadError.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeInvalidPlan = "E201"
	ErrCodeNoPlans     = "E202"
)

// LoadError is a problem found while loading plans, with a CUE position
// when one is available.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// schema constrains every entry under plan.
const schema = `
#Plan: {
	field?:   string & !=""
	sequence: [string, ...string]
}
`

// LoadResult holds the plans found in a directory, sorted by name.
type LoadResult struct {
	Plans     []Plan
	FileCount int
}

// Load reads every .cue file in dir as one CUE package and compiles the
// plans under the top-level "plan" field. Invalid plans are reported and
// skipped; the remaining plans are still returned.
func Load(dir string) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("plans directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing plans directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{fromCUEError(ErrCodeBuildFailed, err)}
	}

	result := &LoadResult{FileCount: len(files)}
	errs := compileAll(value, result)
	if len(result.Plans) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoPlans, Message: "no plans found"})
	}
	return result, errs
}

// LoadString compiles plans from CUE source. filename is used in positions.
func LoadString(filename, src string) (*LoadResult, []error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{fromCUEError(ErrCodeBuildFailed, err)}
	}
	result := &LoadResult{FileCount: 1}
	errs := compileAll(value, result)
	if len(result.Plans) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoPlans, Message: "no plans found"})
	}
	return result, errs
}

func compileAll(value cue.Value, result *LoadResult) []error {
	plansVal := value.LookupPath(cue.ParsePath("plan"))
	if !plansVal.Exists() {
		return nil
	}

	def := value.Context().CompileString(schema).LookupPath(cue.ParsePath("#Plan"))

	iter, err := plansVal.Fields()
	if err != nil {
		return []error{fromCUEError(ErrCodeInvalidPlan, err)}
	}

	var errs []error
	for iter.Next() {
		p, err := Compile(iter.Label(), iter.Value(), def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.Plans = append(result.Plans, *p)
	}
	sort.Slice(result.Plans, func(i, j int) bool { return result.Plans[i].Name < result.Plans[j].Name })
	return errs
}

// Compile turns one plan value into a Plan after checking it against def.
func Compile(name string, v cue.Value, def cue.Value) (*Plan, error) {
	if def.Exists() {
		if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
			return nil, fromCUEError(ErrCodeInvalidPlan, err)
		}
	}

	p := &Plan{Name: name, Pos: v.Pos()}

	if fv := v.LookupPath(cue.ParsePath("field")); fv.Exists() {
		field, err := fv.String()
		if err != nil {
			return nil, fromCUEError(ErrCodeInvalidPlan, err)
		}
		p.Field = field
	}

	seqVal := v.LookupPath(cue.ParsePath("sequence"))
	if !seqVal.Exists() {
		return nil, &LoadError{Code: ErrCodeInvalidPlan, Message: fmt.Sprintf("plan %s: sequence is required", name), Pos: v.Pos()}
	}
	list, err := seqVal.List()
	if err != nil {
		return nil, fromCUEError(ErrCodeInvalidPlan, err)
	}
	for list.Next() {
		crop, err := list.Value().String()
		if err != nil {
			return nil, fromCUEError(ErrCodeInvalidPlan, err)
		}
		p.Sequence = append(p.Sequence, Step{Crop: crop, Pos: list.Value().Pos()})
	}
	if len(p.Sequence) == 0 {
		return nil, &LoadError{Code: ErrCodeInvalidPlan, Message: fmt.Sprintf("plan %s: sequence is empty", name), Pos: seqVal.Pos()}
	}
	return p, nil
}

// fromCUEError keeps the first CUE error and its position.
func fromCUEError(code string, err error) *LoadError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
