package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing/fstest"
	"time"

	"github.com/roach88/livedoc/internal/broadcast"
	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/scheduler"
	"github.com/roach88/livedoc/internal/session"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/testutil"
	"github.com/roach88/livedoc/internal/transform"
	"github.com/roach88/livedoc/internal/wire"
)

// epoch is the fake clock's start, so journal timestamps are stable.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness holds one scenario's session and its collaborators.
type Harness struct {
	session *session.Session
	journal *store.Store
	logger  *slog.Logger
}

// Run executes a scenario in a fresh temporary directory and returns the
// result. The returned error is reserved for failures of the harness
// itself; scenario failures are reported in Result.Errors.
func Run(s *Scenario) (*Result, error) {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "livedoc-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "doc.ld")
	if err := os.WriteFile(path, []byte(s.Document), 0o644); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	j, err := store.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFakeClock(epoch)
	hub := broadcast.NewHub(broadcast.WithLogger(quiet))
	sched := scheduler.New(hub, scheduler.WithClock(clock), scheduler.WithLogger(quiet))

	assets := fstest.MapFS{}
	for _, a := range s.Assets {
		assets[a] = &fstest.MapFile{Data: []byte{}}
	}
	sess, err := session.Open(ctx, path, sched, hub,
		session.WithAssets(assets),
		session.WithJournal(j),
		session.WithClock(clock),
		session.WithID("harness-"+s.Name),
		session.WithLogger(quiet),
	)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	h := &Harness{session: sess, journal: j, logger: quiet}
	result := NewResult()
	if err := h.executeSetup(ctx, s.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, s.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	result.Source = sess.Source().Source
	result.Revision, _ = sess.Revision()

	actx := &AssertionContext{Ctx: ctx, Session: sess, Journal: j}
	for _, msg := range EvaluateAssertions(result, s.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) apply(ctx context.Context, step Step) (wire.TransformResult, error) {
	args, err := json.Marshal(step.Args)
	if err != nil {
		return wire.TransformResult{}, fmt.Errorf("encode args: %w", err)
	}
	return h.session.Apply(ctx, transform.Request{Op: step.Op, Args: args, WriteID: step.WriteID})
}

// executeSetup applies setup steps, which must all succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		res, err := h.apply(ctx, step)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if !res.OK {
			return fmt.Errorf("setup step %d (%s) rejected: %s", i, step.Op, res.Error)
		}
		h.logger.Info("setup step applied", "step", i, "op", step.Op)
	}
	return nil
}

// executeFlow applies flow steps, tracing each and checking its expect
// clause.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		res, err := h.apply(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		rev, _ := h.session.Revision()
		ev := TraceEvent{
			Seq:      i + 1,
			Op:       step.Op,
			OK:       res.OK,
			Changed:  res.Changed,
			Revision: rev,
			Selected: res.SelectedID,
		}
		if !res.OK {
			ev.Code = failureCode(res.Diagnostics)
		}
		result.Trace = append(result.Trace, ev)

		if step.Expect != nil {
			for _, msg := range checkExpect(*step.Expect, ev) {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
			}
		}
	}
	return nil
}

// failureCode is the code of the first fail-level diagnostic.
func failureCode(diags []markup.Diagnostic) string {
	for _, d := range diags {
		if d.Level == markup.LevelFail {
			return d.Code
		}
	}
	if len(diags) > 0 {
		return diags[0].Code
	}
	return ""
}

func checkExpect(e ExpectClause, ev TraceEvent) []string {
	var out []string
	if e.OK != nil && *e.OK != ev.OK {
		out = append(out, fmt.Sprintf("expected ok=%t, got ok=%t (code %q)", *e.OK, ev.OK, ev.Code))
	}
	if e.Changed != nil && *e.Changed != ev.Changed {
		out = append(out, fmt.Sprintf("expected changed=%t, got changed=%t", *e.Changed, ev.Changed))
	}
	if e.Code != "" && e.Code != ev.Code {
		out = append(out, fmt.Sprintf("expected code %q, got %q", e.Code, ev.Code))
	}
	if e.Selected != "" && e.Selected != ev.Selected {
		out = append(out, fmt.Sprintf("expected selected %q, got %q", e.Selected, ev.Selected))
	}
	return out
}
