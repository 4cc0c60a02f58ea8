package harness

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/state"
)

// checkExpect validates one step's result against its expect clause.
// A step without a clause only has to succeed.
func checkExpect(result *Result, index int, step Step, sr StepResult) {
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("steps[%d] %s: %s", index, step.Run, fmt.Sprintf(format, args...)))
	}

	e := step.Expect
	if e == nil {
		if sr.Err != "" {
			fail("unexpected error: %s", sr.Err)
		}
		return
	}

	if e.Error == "" {
		if sr.Err != "" {
			fail("unexpected error: %s", sr.Err)
		}
	} else if !strings.Contains(sr.Err, e.Error) {
		fail("error %q does not contain %q", sr.Err, e.Error)
	}

	if e.Stage != "" && sr.Stage != e.Stage {
		fail("failed stage %q, want %q", sr.Stage, e.Stage)
	}
	if e.Outcome != "" && sr.Outcome != e.Outcome {
		fail("outcome %q, want %q", sr.Outcome, e.Outcome)
	}
	if e.Endpoint != "" && sr.Endpoint != e.Endpoint {
		fail("endpoint %q, want %q", sr.Endpoint, e.Endpoint)
	}
	if e.Token != "" && sr.Token != e.Token {
		fail("token %q, want %q", sr.Token, e.Token)
	}
	if e.Revision != nil && sr.Revision != *e.Revision {
		fail("revision %d, want %d", sr.Revision, *e.Revision)
	}
	if e.Applied != nil && sr.Applied != *e.Applied {
		fail("applied %d, want %d", sr.Applied, *e.Applied)
	}
	if e.Deleted != nil && sr.Deleted != *e.Deleted {
		fail("deleted %d, want %d", sr.Deleted, *e.Deleted)
	}

	if sr.Summary == nil {
		if e.Create != nil || e.Update != nil || e.Replace != nil || e.Delete != nil || e.NoOp != nil {
			fail("no plan summary to check")
		}
		return
	}
	checkCount := func(name string, want *int, got int) {
		if want != nil && got != *want {
			fail("%s count %d, want %d", name, got, *want)
		}
	}
	checkCount("create", e.Create, sr.Summary.Create)
	checkCount("update", e.Update, sr.Summary.Update)
	checkCount("replace", e.Replace, sr.Summary.Replace)
	checkCount("delete", e.Delete, sr.Summary.Delete)
	checkCount("noop", e.NoOp, sr.Summary.NoOp)
}

// evalAssertion checks one assertion against the finished result.
func evalAssertion(a Assertion, result *Result) error {
	switch a.Type {
	case AssertTraceContains:
		for _, ev := range result.Trace {
			if ev.Matches(a.Stage, a.Attrs) {
				return nil
			}
		}
		return fmt.Errorf("no event with stage %q and attrs %v", a.Stage, a.Attrs)

	case AssertTraceOrder:
		next := 0
		for _, ev := range result.Trace {
			if next < len(a.Stages) && ev.Stage() == a.Stages[next] {
				next++
			}
		}
		if next < len(a.Stages) {
			return fmt.Errorf("stage %q never appeared after its predecessors", a.Stages[next])
		}
		return nil

	case AssertTraceCount:
		count := 0
		for _, ev := range result.Trace {
			if ev.Matches(a.Stage, a.Attrs) {
				count++
			}
		}
		if count != a.Count {
			return fmt.Errorf("matched %d events, want %d", count, a.Count)
		}
		return nil

	case AssertFinalState:
		attrs, ok := result.FinalState[a.Resource]
		if a.Gone {
			if ok {
				return fmt.Errorf("resource %s still present", a.Resource)
			}
			return nil
		}
		if !ok {
			return fmt.Errorf("resource %s not in final state", a.Resource)
		}
		for k, want := range a.Expect {
			if got := attrs[k]; got != want {
				return fmt.Errorf("resource %s attr %s = %q, want %q", a.Resource, k, got, want)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// flattenLive renders the live snapshot as stringified attributes for
// assertions and golden comparison.
func flattenLive(live state.Live) map[string]map[string]string {
	out := make(map[string]map[string]string, len(live.Resources))
	for _, k := range live.Keys() {
		attrs, _ := live.Get(k)
		flat := make(map[string]string, len(attrs))
		for name, v := range attrs {
			flat[name] = formatAttr(v)
		}
		out[k.String()] = flat
	}
	return out
}

func formatAttr(v model.AttrValue) string {
	switch val := v.(type) {
	case model.StringVal:
		return string(val)
	case model.IntVal:
		return strconv.FormatInt(int64(val), 10)
	case model.BoolVal:
		return strconv.FormatBool(bool(val))
	case model.RefVal:
		return val.String()
	case model.ListVal:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = formatAttr(e)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case model.MapVal:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + formatAttr(val[k])
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}
