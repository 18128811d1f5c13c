// Package scheduler advances the simulated document clock and turns each
// step into slot patches.
//
// The Scheduler is an actor: Run owns the timer loop, and every other
// method is a message that mutates state under the scheduler's mutex and
// wakes the loop. It never calls back into the document session; the
// session pushes an immutable render.Program through Load.
//
// States:
//
//	stopped  paused by the user, or no valid program loaded
//	running  ticking every interval
//
// Invalidate stops ticking without forgetting that the user wanted it
// running, so the next successful Load resumes automatically.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/render"
	"github.com/roach88/livedoc/internal/wire"
)

// MaxElapsed bounds how much simulated time a single tick may add after a
// stall.
const MaxElapsed = time.Second

// DefaultInterval is the docstep cadence when none is configured.
const DefaultInterval = time.Second

// Clock is the wall-clock source. Tests inject testutil.FakeClock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the system clock.
func RealClock() Clock { return realClock{} }

// Publisher receives every patch. Implementations must not block.
type Publisher interface {
	PublishPatch(p wire.Patch)
}

// Scheduler owns the simulated clock (time, docstep).
//
// Thread-safety: all methods are safe for concurrent use. Run must be
// called from exactly one goroutine.
type Scheduler struct {
	mu sync.Mutex

	clock   Clock
	pub     Publisher
	logger  *slog.Logger
	advance bool

	program  *render.Program
	valid    bool
	running  bool
	interval time.Duration
	state    render.State

	prev map[string]string
	last time.Time
	next time.Time

	wake chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithInterval sets the docstep cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithAdvanceTime controls whether ticks advance simulated time. When
// false only the docstep counter moves.
func WithAdvanceTime(on bool) Option {
	return func(s *Scheduler) { s.advance = on }
}

// WithSeed sets the initial generator seed.
func WithSeed(seed int64) Option {
	return func(s *Scheduler) { s.state.Seed = seed }
}

// WithPaused starts the scheduler paused.
func WithPaused(paused bool) Option {
	return func(s *Scheduler) { s.running = !paused }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a scheduler publishing to pub. It is running but inactive
// until a program is loaded.
func New(pub Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    realClock{},
		pub:      pub,
		logger:   slog.Default(),
		advance:  true,
		running:  true,
		interval: DefaultInterval,
		prev:     map[string]string{},
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	now := s.clock.Now()
	s.last = now
	s.next = now.Add(s.interval)
	return s
}

// Run drives ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting", "interval", s.Interval())
	for {
		s.mu.Lock()
		var timer <-chan time.Time
		if s.activeLocked() {
			wait := s.next.Sub(s.clock.Now())
			if wait < 0 {
				wait = 0
			}
			timer = s.clock.After(wait)
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping: context cancelled")
			return ctx.Err()
		case <-s.wake:
		case <-timer:
			s.tickIfDue()
		}
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) activeLocked() bool {
	return s.running && s.valid && s.program != nil
}

func (s *Scheduler) tickIfDue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked() || s.clock.Now().Before(s.next) {
		return
	}
	s.tickLocked()
}

// Tick advances one step immediately and returns the published patch. It
// reports false when no valid program is loaded.
func (s *Scheduler) Tick() (wire.Patch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid || s.program == nil {
		return wire.Patch{}, false
	}
	p := s.tickLocked()
	s.signal()
	return p, true
}

func (s *Scheduler) tickLocked() wire.Patch {
	now := s.clock.Now()
	elapsed := now.Sub(s.last)
	if elapsed > MaxElapsed {
		elapsed = MaxElapsed
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if s.advance {
		s.state.Time += elapsed.Seconds()
	}
	s.state.Docstep++
	s.last = now
	s.next = now.Add(s.interval)

	frame := s.program.Render(s.state)
	p := s.diffLocked(frame)
	s.pub.PublishPatch(p)
	return p
}

// diffLocked compares frame against the previous baseline: changed ids
// carry their new HTML, vanished ids map to "".
func (s *Scheduler) diffLocked(frame render.Frame) wire.Patch {
	p := wire.Patch{
		Docstep:     s.state.Docstep,
		Time:        s.state.Time,
		SlotPatches: map[string]string{},
		SlotMeta:    map[string]render.SlotMeta{},
	}
	for id, html := range frame.Slots {
		if old, ok := s.prev[id]; !ok || old != html {
			p.SlotPatches[id] = html
			p.SlotMeta[id] = frame.Meta[id]
		}
	}
	for id := range s.prev {
		if _, ok := frame.Slots[id]; !ok {
			p.SlotPatches[id] = ""
		}
	}
	s.prev = frame.Slots
	return p
}

// rebuildLocked renders a full frame, replaces the baseline and publishes
// every slot. Slots that vanished since the last baseline are cleared.
func (s *Scheduler) rebuildLocked() wire.Patch {
	frame := s.program.Render(s.state)
	p := wire.Patch{
		Docstep:     s.state.Docstep,
		Time:        s.state.Time,
		SlotPatches: make(map[string]string, len(frame.Slots)),
		SlotMeta:    frame.Meta,
		Full:        true,
	}
	for id := range s.prev {
		p.SlotPatches[id] = ""
	}
	for id, html := range frame.Slots {
		p.SlotPatches[id] = html
	}
	s.prev = frame.Slots
	s.pub.PublishPatch(p)
	return p
}

func (s *Scheduler) rescheduleLocked() {
	now := s.clock.Now()
	s.last = now
	s.next = now.Add(s.interval)
	s.signal()
}

// Load installs a freshly compiled program after a commit, rebuilds every
// slot and reschedules. A scheduler stopped by Invalidate resumes if it was
// running before.
func (s *Scheduler) Load(p *render.Program) wire.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.program = p
	s.valid = true
	s.rescheduleLocked()
	return s.rebuildLocked()
}

// Invalidate stops ticking because the document no longer parses or
// checks, and publishes the errors to viewers.
func (s *Scheduler) Invalidate(diags []markup.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
	s.signal()
	s.pub.PublishPatch(wire.Patch{
		Docstep: s.state.Docstep,
		Time:    s.state.Time,
		Errors:  diags,
	})
	s.logger.Info("scheduler stopped: document invalid", "diagnostics", len(diags))
}

// Rebuild re-renders every slot without advancing the clock.
func (s *Scheduler) Rebuild() (wire.Patch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid || s.program == nil {
		return wire.Patch{}, false
	}
	return s.rebuildLocked(), true
}

// Reset sets any of seed, docstep and time, then rebuilds and reschedules.
func (s *Scheduler) Reset(seed, docstep *int64, t *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seed != nil {
		s.state.Seed = *seed
	}
	if docstep != nil {
		s.state.Docstep = *docstep
	}
	if t != nil {
		s.state.Time = *t
	}
	s.rescheduleLocked()
	if s.valid && s.program != nil {
		s.rebuildLocked()
	}
}

// Pause stops ticking.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.signal()
}

// Resume restarts ticking one interval from now.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.rescheduleLocked()
}

// Reschedule changes the cadence; the next tick is one new interval from
// now.
func (s *Scheduler) Reschedule(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
	s.rescheduleLocked()
}

// Interval returns the current cadence.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// State returns the simulated clock.
func (s *Scheduler) State() render.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status reports the scheduler for state snapshots.
func (s *Scheduler) Status() wire.Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.Runtime{
		Seed:      s.state.Seed,
		Docstep:   s.state.Docstep,
		Time:      s.state.Time,
		Running:   s.running,
		Active:    s.activeLocked(),
		DocstepMs: s.interval.Milliseconds(),
	}
}

// Frame renders the current state without touching the baseline.
func (s *Scheduler) Frame() (render.Frame, *render.Program, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.program == nil {
		return render.Frame{}, nil, false
	}
	return s.program.Render(s.state), s.program, true
}
