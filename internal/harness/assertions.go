package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/reactstore/value"
)

// AssertionError is returned when an assertion fails.
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

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v fired=%v\n", ev.Seq, ev.Outcome, ev.Delta, ev.Fired)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertFinalState:
			err = assertFinalState(result, a)
		case AssertNotifications:
			err = assertNotifications(result, a)
		case AssertFired:
			err = assertFired(result, a)
		case AssertOutcomeCount:
			err = assertOutcomeCount(result, a)
		case AssertIterations:
			err = assertIterations(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func assertFinalState(result *Result, a Assertion) error {
	expect, err := value.Normalize(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	actual, ok := value.Lookup(result.State, a.Path)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", a.Path, expect),
			Actual:   "path not found",
		}
	}
	if !matchValue(expect, actual) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", a.Path, expect),
			Actual:   fmt.Sprintf("%v", actual),
		}
	}
	return nil
}

func assertNotifications(result *Result, a Assertion) error {
	if result.Notifications != a.Count {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("%d notifications", a.Count),
			Actual:   fmt.Sprintf("%d notifications", result.Notifications),
		}
	}
	return nil
}

func assertFired(result *Result, a Assertion) error {
	ev, ok := result.Event(a.Seq)
	if !ok {
		return &AssertionError{
			Type:     AssertFired,
			Expected: fmt.Sprintf("cycle %d", a.Seq),
			Actual:   "not in trace",
			Trace:    result.Trace,
		}
	}

	want := a.Observers
	if want == nil {
		want = []string{}
	}
	if !reflect.DeepEqual(want, ev.Fired) {
		return &AssertionError{
			Type:     AssertFired,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", ev.Fired),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertOutcomeCount(result *Result, a Assertion) error {
	n := 0
	for _, ev := range result.Trace {
		if ev.Outcome == a.Outcome {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertOutcomeCount,
			Expected: fmt.Sprintf("%d %s cycles", a.Count, a.Outcome),
			Actual:   fmt.Sprintf("%d %s cycles", n, a.Outcome),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertIterations(result *Result, a Assertion) error {
	ev, ok := result.Event(a.Seq)
	if !ok {
		return &AssertionError{
			Type:     AssertIterations,
			Expected: fmt.Sprintf("cycle %d", a.Seq),
			Actual:   "not in trace",
			Trace:    result.Trace,
		}
	}
	if ev.Iterations != a.Count {
		return &AssertionError{
			Type:     AssertIterations,
			Expected: fmt.Sprintf("%d iterations in cycle %d", a.Count, a.Seq),
			Actual:   fmt.Sprintf("%d iterations", ev.Iterations),
			Trace:    result.Trace,
		}
	}
	return nil
}

// matchValue reports whether actual contains expect: objects match as a
// subset, arrays element by element, everything else by equality.
func matchValue(expect, actual any) bool {
	switch e := expect.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, ev := range e {
			av, ok := a[k]
			if !ok || !matchValue(ev, av) {
				return false
			}
		}
		return true
	case []any:
		a, ok := actual.([]any)
		if !ok || len(a) != len(e) {
			return false
		}
		for i := range e {
			if !matchValue(e[i], a[i]) {
				return false
			}
		}
		return true
	case int64:
		// Integral floats from rule evaluation compare equal to integers.
		if f, ok := actual.(float64); ok {
			return float64(e) == f
		}
	}
	return reflect.DeepEqual(expect, actual)
}

// errorKind classifies an update error for ExpectError matching.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case isIterationLimit(err):
		return ErrorIterationLimit
	case isCallback(err):
		return ErrorCallback
	default:
		return "other"
	}
}

func expectationMet(expect string, err error) bool {
	if expect == ErrorAny {
		return err != nil
	}
	return expect == errorKind(err)
}
