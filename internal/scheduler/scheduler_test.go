package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/render"
	"github.com/roach88/livedoc/internal/testutil"
	"github.com/roach88/livedoc/internal/wire"
)

type recorder struct {
	mu      sync.Mutex
	patches []wire.Patch
}

func (r *recorder) PublishPatch(p wire.Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, p)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patches)
}

func (r *recorder) last() wire.Patch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.patches[len(r.patches)-1]
}

func program(t *testing.T, body string) *render.Program {
	t.Helper()
	src := "body {\n  page p {\n    section s {\n" + body + "    }\n  }\n}\n"
	doc, diags := markup.ParseAndCheck("doc.ld", src)
	require.NotNil(t, doc)
	require.False(t, markup.HasErrors(diags), "%v", diags)
	p, err := render.Compile(doc, nil)
	require.NoError(t, err)
	return p
}

const stableSlots = `      slot a {
        refresh = never;
        generator = @choose(["x", "y"]);
      }
      slot b {
        refresh = never;
        generator = "fixed";
      }
`

const tickingSlots = `      slot step {
        generator = @docstep;
      }
      slot still {
        refresh = never;
        generator = "same";
      }
`

func newScheduler(opts ...Option) (*Scheduler, *recorder, *testutil.FakeClock) {
	rec := &recorder{}
	clock := testutil.NewFakeClock(time.Time{})
	s := New(rec, append([]Option{WithClock(clock)}, opts...)...)
	return s, rec, clock
}

func TestTick_UnchangedDocumentYieldsEmptyDiff(t *testing.T) {
	s, _, _ := newScheduler()
	s.Load(program(t, stableSlots))

	p, ok := s.Tick()
	require.True(t, ok)
	assert.NotNil(t, p.SlotPatches)
	assert.Empty(t, p.SlotPatches)
	assert.False(t, p.Full)
	assert.Equal(t, int64(1), p.Docstep)
}

func TestLoad_FullRebuildContainsEverySlot(t *testing.T) {
	s, rec, _ := newScheduler()
	s.Load(program(t, stableSlots))
	s.Tick()

	full := s.Load(program(t, stableSlots))
	assert.True(t, full.Full)
	assert.Contains(t, full.SlotPatches, "a")
	assert.Contains(t, full.SlotPatches, "b")
	assert.Equal(t, "fixed", full.SlotPatches["b"])
	assert.Len(t, full.SlotMeta, 2)
	assert.Equal(t, full, rec.last())
}

func TestLoad_RemovedSlotsAreCleared(t *testing.T) {
	s, _, _ := newScheduler()
	s.Load(program(t, stableSlots))

	full := s.Load(program(t, tickingSlots))
	assert.Equal(t, "", full.SlotPatches["a"])
	assert.Equal(t, "", full.SlotPatches["b"])
	assert.Contains(t, full.SlotPatches, "step")
}

func TestTick_DiffsChangedSlotsOnly(t *testing.T) {
	s, _, _ := newScheduler()
	s.Load(program(t, tickingSlots))

	p, ok := s.Tick()
	require.True(t, ok)
	assert.Equal(t, map[string]string{"step": "1"}, p.SlotPatches)
	assert.Contains(t, p.SlotMeta, "step")
}

func TestTick_ClampsElapsed(t *testing.T) {
	s, _, clock := newScheduler()
	s.Load(program(t, tickingSlots))

	clock.Advance(5 * time.Second)
	p, _ := s.Tick()
	assert.Equal(t, 1.0, p.Time)

	clock.Advance(250 * time.Millisecond)
	p, _ = s.Tick()
	assert.InDelta(t, 1.25, p.Time, 1e-9)
}

func TestTick_AdvanceTimeDisabled(t *testing.T) {
	s, _, clock := newScheduler(WithAdvanceTime(false))
	s.Load(program(t, tickingSlots))

	clock.Advance(time.Second)
	p, _ := s.Tick()
	assert.Equal(t, 0.0, p.Time)
	assert.Equal(t, int64(1), p.Docstep)
}

func TestInvalidate_StopsAndLoadResumes(t *testing.T) {
	s, rec, _ := newScheduler()
	s.Load(program(t, tickingSlots))

	diag := markup.Diagnostic{Level: markup.LevelFail, Message: "broken"}
	s.Invalidate([]markup.Diagnostic{diag})
	assert.Equal(t, []markup.Diagnostic{diag}, rec.last().Errors)
	assert.False(t, s.Status().Active)
	assert.True(t, s.Status().Running)

	_, ok := s.Tick()
	assert.False(t, ok)

	s.Load(program(t, tickingSlots))
	assert.True(t, s.Status().Active)
}

func TestPauseResume(t *testing.T) {
	s, _, _ := newScheduler()
	s.Load(program(t, tickingSlots))

	s.Pause()
	assert.False(t, s.Status().Running)
	assert.False(t, s.Status().Active)

	s.Resume()
	assert.True(t, s.Status().Active)
}

func TestReset_RebuildsWithNewState(t *testing.T) {
	s, rec, _ := newScheduler()
	s.Load(program(t, tickingSlots))

	seed, step, now := int64(9), int64(40), 12.5
	s.Reset(&seed, &step, &now)

	last := rec.last()
	assert.True(t, last.Full)
	assert.Equal(t, "40", last.SlotPatches["step"])
	assert.Equal(t, render.State{Seed: 9, Docstep: 40, Time: 12.5}, s.State())
}

func TestRun_TicksOnIntervalAndHonorsReschedule(t *testing.T) {
	s, rec, clock := newScheduler(WithInterval(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Load(program(t, tickingSlots))
	require.Eventually(t, func() bool { return clock.Waiters() > 0 }, time.Second, time.Millisecond)

	clock.Advance(600 * time.Millisecond)
	s.Reschedule(time.Second)
	require.Eventually(t, func() bool { return clock.Waiters() > 1 }, time.Second, time.Millisecond)

	// The original deadline passes but the cadence was re-anchored.
	clock.Advance(600 * time.Millisecond)
	assert.Equal(t, 1, rec.count())

	clock.Advance(400 * time.Millisecond)
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), s.State().Docstep)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
