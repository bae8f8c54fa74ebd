package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/blogchain/internal/ir"
	"github.com/roach88/blogchain/internal/store"
)

// Assertion validates the final trace or store.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, store_count.
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ref narrows trace_contains to events whose ref or alias matches.
	Ref string `yaml:"ref,omitempty"`

	// Outcome narrows trace_contains to events with this outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Aliases must have been bound in this order (trace_order).
	Aliases []string `yaml:"aliases,omitempty"`

	// Count is the exact number of events for Op (trace_count).
	Count int `yaml:"count,omitempty"`

	// Entries and Actions are the expected store totals (store_count).
	Entries *int `yaml:"entries,omitempty"`
	Actions *int `yaml:"actions,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertStoreCount    = "store_count"
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
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Index, event.Op)
			if event.Ref != "" {
				fmt.Fprintf(&buf, " %s", event.Ref)
			}
			if event.As != "" {
				fmt.Fprintf(&buf, " as %s", event.As)
			}
			fmt.Fprintf(&buf, " -> %s\n", event.Outcome)
		}
	}
	return buf.String()
}

func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Op != assertion.Op {
			continue
		}
		if assertion.Ref != "" && event.Ref != assertion.Ref && event.As != assertion.Ref {
			continue
		}
		if assertion.Outcome != "" && event.Outcome != assertion.Outcome {
			continue
		}
		return nil
	}

	expected := assertion.Op
	if assertion.Ref != "" {
		expected += " on " + assertion.Ref
	}
	if assertion.Outcome != "" {
		expected += " with outcome " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the aliases were bound in the given order.
// Other steps may come between them.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		if event.As != "" && event.Outcome == OutcomeOK {
			positions[event.As] = event.Index
		}
	}

	for _, alias := range assertion.Aliases {
		if positions[alias] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all aliases bound: %v", assertion.Aliases),
				Actual:   fmt.Sprintf("alias %s never bound", alias),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Aliases); i++ {
		prev, curr := assertion.Aliases[i-1], assertion.Aliases[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("aliases in order: %v", assertion.Aliases),
				Actual: fmt.Sprintf("%s (step %d) should be before %s (step %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertStoreCount scans the backend and compares object totals.
func assertStoreCount(ctx context.Context, b store.Backend, assertion Assertion) error {
	var entries, actions int
	if err := b.ScanEntries(ctx, func(ir.Address, ir.Entry) error {
		entries++
		return nil
	}); err != nil {
		return fmt.Errorf("scan entries: %w", err)
	}
	if err := b.ScanActions(ctx, func(ir.Address, ir.Action) error {
		actions++
		return nil
	}); err != nil {
		return fmt.Errorf("scan actions: %w", err)
	}

	if assertion.Entries != nil && *assertion.Entries != entries {
		return &AssertionError{
			Type:     AssertStoreCount,
			Expected: fmt.Sprintf("%d entries", *assertion.Entries),
			Actual:   fmt.Sprintf("%d entries", entries),
		}
	}
	if assertion.Actions != nil && *assertion.Actions != actions {
		return &AssertionError{
			Type:     AssertStoreCount,
			Expected: fmt.Sprintf("%d actions", *assertion.Actions),
			Actual:   fmt.Sprintf("%d actions", actions),
		}
	}
	return nil
}

// AssertionContext provides store access for store_count.
type AssertionContext struct {
	Store store.Backend
	Ctx   context.Context
}

// EvaluateAssertions returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertStoreCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: store_count requires a store", i)
			} else {
				err = assertStoreCount(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// checkExpect compares a step's event with its expect clause. A step
// without one must succeed.
func checkExpect(ev TraceEvent, exp *Expect) []string {
	want := OutcomeOK
	if exp != nil && exp.Error != "" {
		want = exp.Error
	}
	if ev.Outcome != want {
		return []string{fmt.Sprintf("outcome %s, want %s", ev.Outcome, want)}
	}
	if exp == nil {
		return nil
	}

	var errs []string
	check := func(key string, want any) {
		got, ok := ev.Result[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s missing from result", key))
			return
		}
		if !valuesEqual(got, want) {
			errs = append(errs, fmt.Sprintf("%s = %v, want %v", key, got, want))
		}
	}
	list := func(key string, want []string) {
		if want != nil {
			check(key, want)
		}
	}

	if exp.Found != nil {
		check("found", *exp.Found)
	}
	if exp.State != "" {
		check("state", exp.State)
	}
	if exp.Head != "" {
		check("head", exp.Head)
	}
	if exp.Hops != nil {
		check("hops", *exp.Hops)
	}
	if exp.Next != "" {
		check("next", exp.Next)
	}
	list("path", exp.Path)
	list("candidates", exp.Candidates)
	list("updates", exp.Updates)
	list("deletes", exp.Deletes)
	list("actions", exp.Actions)

	if len(exp.Fields) > 0 {
		got, _ := ev.Result["fields"].(map[string]any)
		if !matchFields(got, exp.Fields) {
			errs = append(errs, fmt.Sprintf("fields = %v, want subset %v", got, exp.Fields))
		}
	}
	return errs
}

// matchFields reports whether actual holds every expected key with an
// equal value. Extra keys in actual are ignored.
func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares after widening ints and string slices, so YAML
// values compare equal to trace values.
func valuesEqual(actual, expected any) bool {
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalize(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalize(elem)
		}
		return out
	default:
		return v
	}
}
