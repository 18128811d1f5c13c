package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/session"
	"github.com/roach88/livedoc/internal/store"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			status := "ok"
			if !ev.OK {
				status = "rejected " + ev.Code
			}
			fmt.Fprintf(&buf, "  [%d] %s %s (revision %d)\n", ev.Seq, ev.Op, status, ev.Revision)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the session and journal.
type AssertionContext struct {
	Ctx     context.Context
	Session *session.Session
	Journal *store.Store
}

// EvaluateAssertions returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	var idx markup.Index
	if doc, diags := markup.ParseAndCheck("", result.Source); doc != nil && !markup.HasErrors(diags) {
		idx = markup.BuildIndex(doc)
	}

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSourceContains:
			if !strings.Contains(result.Source, a.Text) {
				err = &AssertionError{Type: a.Type, Expected: fmt.Sprintf("source containing %q", a.Text),
					Actual: "not found", Trace: result.Trace}
			}
		case AssertSourceExcludes:
			if strings.Contains(result.Source, a.Text) {
				err = &AssertionError{Type: a.Type, Expected: fmt.Sprintf("source without %q", a.Text),
					Actual: "found", Trace: result.Trace}
			}
		case AssertNodeExists:
			err = assertNodeExists(idx, a)
		case AssertNodeAbsent:
			if _, ok := idx[a.ID]; ok {
				err = &AssertionError{Type: a.Type, Expected: fmt.Sprintf("no node %s", a.ID), Actual: "present"}
			}
		case AssertChildCount:
			err = assertChildCount(idx, a)
		case AssertRevision:
			if result.Revision != int64(*a.Count) {
				err = &AssertionError{Type: a.Type, Expected: fmt.Sprintf("revision %d", *a.Count),
					Actual: fmt.Sprintf("revision %d", result.Revision), Trace: result.Trace}
			}
		case AssertHistoryCount:
			err = assertHistoryCount(actx, a)
		case AssertDiagnostic:
			err = assertDiagnostic(actx, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertNodeExists(idx markup.Index, a Assertion) error {
	e, ok := idx[a.ID]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("node %s", a.ID), Actual: "not found"}
	}
	if a.Kind != "" && e.Node.Kind != a.Kind {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s to be a %s", a.ID, a.Kind),
			Actual: e.Node.Kind}
	}
	if a.Parent != "" && e.ParentID != a.Parent {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s under %s", a.ID, a.Parent),
			Actual: fmt.Sprintf("parent %q", e.ParentID)}
	}
	if a.Ancestor != "" && !slices.Contains(e.Path[:len(e.Path)-1], a.Ancestor) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s inside %s", a.ID, a.Ancestor),
			Actual: fmt.Sprintf("path %s", strings.Join(e.Path, "/"))}
	}
	return nil
}

func assertChildCount(idx markup.Index, a Assertion) error {
	e, ok := idx[a.ID]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("node %s", a.ID), Actual: "not found"}
	}
	n := 0
	for _, ch := range e.Node.Children {
		if a.Kind == "" || ch.Kind == a.Kind {
			n++
		}
	}
	if n != *a.Count {
		what := "children"
		if a.Kind != "" {
			what = a.Kind + " children"
		}
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d %s of %s", *a.Count, what, a.ID),
			Actual: fmt.Sprintf("%d", n)}
	}
	return nil
}

func assertHistoryCount(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Journal == nil || actx.Session == nil {
		return fmt.Errorf("history_count requires a journal")
	}
	commits, err := actx.Journal.History(actx.Ctx, actx.Session.Path(), 0)
	if err != nil {
		return fmt.Errorf("history_count: %w", err)
	}
	if len(commits) != *a.Count {
		ops := make([]string, len(commits))
		for i, c := range commits {
			ops[i] = c.Op
		}
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d commits", *a.Count),
			Actual: fmt.Sprintf("%d commits %v", len(commits), ops)}
	}
	return nil
}

func assertDiagnostic(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Session == nil {
		return fmt.Errorf("diagnostic requires a session")
	}
	diags := actx.Session.State().Diagnostics
	var codes []string
	for _, d := range diags {
		if d.Code == a.Code {
			return nil
		}
		codes = append(codes, d.Code)
	}
	return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("diagnostic %q", a.Code),
		Actual: fmt.Sprintf("%v", codes)}
}
