package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/croprot/internal/rotation"
)

// AssertionError is returned when an assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", i+1, ev.Kind, ev.Crop, ev.Outcome)
	}
	return buf.String()
}

// matches reports whether ev passes the assertion's kind, crop and outcome
// filters. Crops compare case-insensitively.
func (a Assertion) matches(ev TraceEvent) bool {
	if a.Kind != "" && a.Kind != ev.Kind {
		return false
	}
	if a.Crop != "" && rotation.Normalize(a.Crop) != rotation.Normalize(ev.Crop) {
		return false
	}
	if a.Outcome != "" && a.Outcome != ev.Outcome {
		return false
	}
	return true
}

func (a Assertion) describe() string {
	var parts []string
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Crop != "" {
		parts = append(parts, "crop="+a.Crop)
	}
	if a.Outcome != "" {
		parts = append(parts, "outcome="+a.Outcome)
	}
	if len(parts) == 0 {
		return "any event"
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that at least one event matches the filters.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if a.matches(ev) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: a.describe(),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the outcomes occur in the given order.
// Other events may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Outcomes) && ev.Outcome == a.Outcomes[next] {
			next++
		}
	}
	if next == len(a.Outcomes) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("outcomes in order: %v", a.Outcomes),
		Actual:   fmt.Sprintf("matched %d of %d, missing %s", next, len(a.Outcomes), a.Outcomes[next]),
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count events match the filters.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if a.matches(ev) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events with %s", a.Count, a.describe()),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
