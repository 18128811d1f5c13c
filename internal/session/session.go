// Package session owns the one document a livedoc server manages.
//
// A Session holds the source text, its revision counters, the parsed
// document and index, the current diagnostics and the compiled runtime
// program. Every mutation goes through Session methods, which serialize on
// one mutex: transforms, external file changes and state reads never
// interleave. A commit writes the candidate to a temp file, fsyncs it and
// renames it over the document, so the file on disk is never observed half
// written.
//
// The session pushes each newly committed program into the runtime
// (scheduler) and announces commits to subscribers. Neither of those ever
// calls back into the session.
package session

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/livedoc/internal/digest"
	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/render"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/transform"
	"github.com/roach88/livedoc/internal/wire"
)

// Runtime receives compiled programs. Implemented by *scheduler.Scheduler.
type Runtime interface {
	Load(p *render.Program) wire.Patch
	Invalidate(diags []markup.Diagnostic)
	State() render.State
	Status() wire.Runtime
}

// Notifier announces commits. Implemented by *broadcast.Hub.
type Notifier interface {
	PublishDocChanged(d wire.DocChanged)
}

// Clock supplies commit timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Session is the single managed document.
//
// Thread-safety: all methods are safe for concurrent use. Transforms are
// applied one at a time in arrival order.
type Session struct {
	mu sync.Mutex

	id      string
	path    string
	engine  *transform.Engine
	runtime Runtime
	notify  Notifier
	journal *store.Store
	assets  fs.FS
	clock   Clock
	logger  *slog.Logger

	// beforeRename runs between the temp-file write and the rename.
	beforeRename func(tmp string) error

	source    string
	revision  int64
	lastValid int64
	doc       *markup.Document
	index     markup.Index
	diags     []markup.Diagnostic
	banks     render.Banks
	writeIDs  map[string]int64
}

// Option configures a Session.
type Option func(*Session)

// WithJournal records every commit in j.
func WithJournal(j *store.Store) Option {
	return func(s *Session) { s.journal = j }
}

// WithAssets sets the file system asset banks are resolved against.
// Defaults to the document's directory.
func WithAssets(fsys fs.FS) Option {
	return func(s *Session) { s.assets = fsys }
}

// WithClock sets the clock used for journal timestamps.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// withBeforeRename installs a hook that runs after the temp file is
// written and before it replaces the document.
func withBeforeRename(fn func(tmp string) error) Option {
	return func(s *Session) { s.beforeRename = fn }
}

// Open loads the document at path and hands its program to rt. The
// document may be invalid; the session then starts with diagnostics and a
// stopped runtime, and only setSource can be applied.
func Open(ctx context.Context, path string, rt Runtime, n Notifier, opts ...Option) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve document path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	s := &Session{
		path:     abs,
		engine:   transform.New(abs),
		runtime:  rt,
		notify:   n,
		clock:    systemClock{},
		logger:   slog.Default(),
		writeIDs: map[string]int64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.assets == nil {
		s.assets = os.DirFS(filepath.Dir(abs))
	}

	if s.journal != nil {
		if err := s.journal.BeginSession(ctx, s.id, abs, s.clock.Now()); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx, string(data), "open", false)
	s.logger.Info("document opened",
		"path", abs, "session", s.id, "valid", s.lastValid == s.revision, "diagnostics", len(s.diags))
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Path returns the absolute document path.
func (s *Session) Path() string { return s.path }

// Owns reports whether file names the managed document. An empty name
// refers to it implicitly; a relative name is resolved against the
// document's directory.
func (s *Session) Owns(file string) bool {
	if file == "" {
		return true
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(s.path), file)
	}
	return filepath.Clean(file) == s.path
}

// Revision returns the revision and last valid revision.
func (s *Session) Revision() (revision, lastValid int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision, s.lastValid
}

// loadLocked replaces the in-memory document with src, bumps the revision
// and pushes the result to the runtime. It does not touch the file.
func (s *Session) loadLocked(ctx context.Context, src, op string, external bool) {
	before := digest.Source(s.source)
	s.source = src
	s.revision++

	doc, diags := markup.ParseAndCheck(s.path, src)
	s.diags = diags
	if doc != nil && !markup.HasErrors(diags) {
		if prog, banks, err := s.compile(doc); err != nil {
			s.diags = append(s.diags, compileDiagnostic(s.path, err))
		} else {
			s.install(doc, banks)
			s.lastValid = s.revision
			s.runtime.Load(prog)
		}
	}
	if s.lastValid != s.revision {
		s.runtime.Invalidate(s.diags)
	}
	s.record(ctx, store.Commit{
		Op:         op,
		BeforeHash: before,
		AfterHash:  digest.Source(src),
		External:   external,
		Source:     src,
	})
}

// compile resolves the document's asset banks and builds its program.
func (s *Session) compile(doc *markup.Document) (*render.Program, render.Banks, error) {
	banks, err := render.ResolveBanks(s.assets, doc)
	if err != nil {
		return nil, nil, err
	}
	prog, err := render.Compile(doc, banks)
	if err != nil {
		return nil, nil, err
	}
	return prog, banks, nil
}

func (s *Session) install(doc *markup.Document, banks render.Banks) {
	s.doc = doc
	s.index = markup.BuildIndex(doc)
	s.banks = banks
}

// record journals the current revision. Journal failures are logged; the
// file on disk is the source of truth.
func (s *Session) record(ctx context.Context, c store.Commit) {
	if s.journal == nil {
		return
	}
	c.SessionID = s.id
	c.Revision = s.revision
	c.CreatedAt = s.clock.Now()
	if _, err := s.journal.AppendCommit(ctx, c); err != nil {
		s.logger.Error("journal append failed", "revision", s.revision, "error", err)
	}
}

func (s *Session) announce(external bool) {
	st := s.runtime.State()
	s.notify.PublishDocChanged(wire.DocChanged{
		Docstep:  st.Docstep,
		Time:     st.Time,
		Revision: s.revision,
		External: external,
	})
}

func compileDiagnostic(file string, err error) markup.Diagnostic {
	return markup.NewDiagnostic(file, "", markup.Span{}, markup.LevelFail, "runtime-compile", err.Error())
}
