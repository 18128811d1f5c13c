// Package client is the editor side of the livedoc edit protocol.
//
// A Client keeps a local mirror of the document and applies each edit to it
// optimistically before the server answers. Every edit carries a write
// sequence number; only the response to the most recent one may change the
// mirror, so a slow response can never roll the editor back past a newer
// edit. A rejected edit replaces the diagnostics but leaves the optimistic
// text in place.
//
// Thread-safety: all Client methods are safe for concurrent use. Requests
// are sent without holding the client lock.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/transform"
	"github.com/roach88/livedoc/internal/wire"
)

// HistoryLimit caps the undo and redo stacks.
const HistoryLimit = 50

var (
	// ErrSuperseded is returned for a response that arrived after a newer
	// edit was issued. The response was discarded.
	ErrSuperseded = errors.New("response superseded by a newer edit")

	// ErrNothingToUndo is returned by Undo on an empty history.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo on an empty history.
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrNoPendingChange is returned by ResolveExternalChange when no
	// external change is waiting.
	ErrNoPendingChange = errors.New("no external change pending")
)

// IDGenerator produces write ids.
type IDGenerator interface {
	NewID() string
}

type uuidV7 struct{}

func (uuidV7) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Notice is a user-facing message. Retry is set when the failure was a
// timeout or network error, so the same edit can be sent again.
type Notice struct {
	Level   markup.Level
	Message string
	Retry   bool
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(Notice)
}

type logNotifier struct{ logger *slog.Logger }

func (n logNotifier) Notify(no Notice) {
	if no.Level == markup.LevelFail {
		n.logger.Error(no.Message, "retry", no.Retry)
		return
	}
	n.logger.Warn(no.Message)
}

// State is the client's view of the document.
type State struct {
	Source      string
	Doc         *markup.Document
	Index       markup.Index
	Diagnostics []markup.Diagnostic
	Outline     []markup.OutlineItem
	Selection   string
	Runtime     wire.Runtime

	// Dirty is set from the moment an edit is issued until the server
	// acknowledges a persisted write.
	Dirty    bool
	Applying bool

	// DocRev is the server revision the mirror reflects. SourceRev counts
	// changes to the local source text.
	DocRev    int64
	SourceRev int64

	LastWriteID           string
	PendingExternalChange *wire.DocChanged
	Error                 string
}

// Client applies editor intents against a server.
type Client struct {
	mu        sync.Mutex
	transport Transport
	engine    *transform.Engine
	file      string
	ids       IDGenerator
	notifier  Notifier
	logger    *slog.Logger

	seq   uint64
	state State
	undo  []string
	redo  []string
}

// Option configures a Client.
type Option func(*Client)

// WithIDs sets the write id generator. Defaults to UUIDv7.
func WithIDs(g IDGenerator) Option {
	return func(c *Client) { c.ids = g }
}

// WithNotifier sets where user-facing notices go. Defaults to the logger.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithFile names the document in requests. The server rejects requests
// for any other file.
func WithFile(path string) Option {
	return func(c *Client) { c.file = path }
}

// New creates a client. Call Resync to load the document before applying
// edits.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		ids:       uuidV7{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = logNotifier{logger: c.logger}
	}
	c.engine = transform.New(c.file)
	return c
}

// State returns a copy of the client state. The document and index are
// shared and must not be modified.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if st.PendingExternalChange != nil {
		ev := *st.PendingExternalChange
		st.PendingExternalChange = &ev
	}
	return st
}

// Select sets the selection. It reports false if id is not in the document.
func (c *Client) Select(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" {
		c.state.Selection = ""
		return true
	}
	if _, ok := c.state.Index[id]; !ok {
		return false
	}
	c.state.Selection = id
	return true
}

// Apply sends one edit. The local mirror is updated before the request is
// sent and is not reverted if the server rejects the edit.
//
// Errors: *RejectedError when the server refused the edit, ErrTimeout or
// *TransportError when no verdict arrived, ErrSuperseded when a newer edit
// was issued while this one was in flight.
func (c *Client) Apply(ctx context.Context, e EditorTransform) (wire.TransformResult, error) {
	return c.apply(ctx, e, true)
}

// pending is one edit on its way to the server.
type pending struct {
	seq      uint64
	writeID  string
	primary  transform.Operation
	fallback transform.Operation
	docRev   int64
}

func (c *Client) apply(ctx context.Context, e EditorTransform, recordHistory bool) (wire.TransformResult, error) {
	p, err := c.begin(e, recordHistory)
	if err != nil {
		c.notifier.Notify(Notice{Level: markup.LevelFail, Message: err.Error()})
		return wire.TransformResult{}, err
	}

	res, err := c.send(ctx, p, p.primary)
	switch {
	case err != nil && p.fallback != nil && IsTransportFailure(err):
		c.logger.Debug("primary request failed, sending fallback",
			"op", p.primary.Name(), "fallback", p.fallback.Name(), "error", err)
		res, err = c.send(ctx, p, p.fallback)
	case err == nil && p.fallback != nil && isNoOp(res):
		c.logger.Debug("primary request changed nothing, sending fallback",
			"op", p.primary.Name(), "fallback", p.fallback.Name())
		res, err = c.send(ctx, p, p.fallback)
	}
	return c.finish(p, res, err)
}

// begin issues the next write sequence and applies the edit locally.
func (c *Client) begin(e EditorTransform, recordHistory bool) (*pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	primary, fallback, err := e.Translate(c.state.Index)
	if err != nil {
		return nil, err
	}
	c.seq++
	p := &pending{
		seq:      c.seq,
		writeID:  c.ids.NewID(),
		primary:  primary,
		fallback: fallback,
		docRev:   c.state.DocRev,
	}
	c.state.Dirty = true
	c.state.Applying = true
	c.state.LastWriteID = p.writeID
	c.state.Error = ""

	before := c.state.Source
	out, err := c.engine.Apply(before, primary)
	if err != nil {
		// The server has the final say; its diagnostics arrive with the
		// response.
		c.logger.Debug("optimistic apply failed", "op", primary.Name(), "error", err)
		return p, nil
	}
	if !out.Changed {
		return p, nil
	}
	c.state.Source = out.Source
	c.state.Doc = out.Doc
	c.state.Index = out.Index
	c.state.SourceRev++
	if recordHistory {
		c.undo = push(c.undo, before)
		c.redo = nil
	}
	return p, nil
}

func (c *Client) send(ctx context.Context, p *pending, op transform.Operation) (wire.TransformResult, error) {
	req, err := transform.EncodeRequest(op, p.writeID)
	if err != nil {
		return wire.TransformResult{}, err
	}
	req.File = c.file
	rev := p.docRev
	req.ClientRevision = &rev
	return c.transport.Transform(ctx, req)
}

func isNoOp(res wire.TransformResult) bool {
	return res.OK && !res.Changed && res.BeforeHash != "" && res.BeforeHash == res.AfterHash
}

// finish folds a response into the state if it belongs to the latest edit.
func (c *Client) finish(p *pending, res wire.TransformResult, err error) (wire.TransformResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.seq != c.seq {
		c.logger.Debug("discarding stale response", "writeId", p.writeID, "seq", p.seq, "latest", c.seq)
		return res, ErrSuperseded
	}
	c.state.Applying = false

	if err != nil {
		var re *RejectedError
		if errors.As(err, &re) && re.Result.Diagnostics != nil {
			c.state.Diagnostics = re.Result.Diagnostics
		}
		c.state.Error = err.Error()
		c.notifier.Notify(Notice{
			Level:   markup.LevelFail,
			Message: fmt.Sprintf("%s failed: %v", p.primary.Name(), err),
			Retry:   IsTransportFailure(err),
		})
		return res, err
	}
	if !res.OK {
		rerr := &RejectedError{Result: res}
		c.state.Diagnostics = res.Diagnostics
		c.state.Error = rerr.Error()
		c.notifier.Notify(Notice{
			Level:   markup.LevelFail,
			Message: fmt.Sprintf("%s rejected: %s", p.primary.Name(), rerr.Error()),
		})
		return res, rerr
	}

	c.adoptLocked(res)
	return res, nil
}

// adoptLocked takes the server's answer as the new truth.
func (c *Client) adoptLocked(res wire.TransformResult) {
	if res.Source != nil {
		c.setSourceLocked(*res.Source)
	}
	switch {
	case res.NewRevision != nil:
		c.state.DocRev = *res.NewRevision
	case res.State != nil:
		c.state.DocRev = res.State.Revision
	}
	if res.State != nil {
		c.state.Runtime = res.State.Runtime
	}
	c.state.Diagnostics = res.Diagnostics
	if res.Outline != nil {
		c.state.Outline = res.Outline
	}
	if res.Persisted {
		c.state.Dirty = false
	}
	c.state.Error = ""
	if res.SelectedID != "" {
		if _, ok := c.state.Index[res.SelectedID]; ok {
			c.state.Selection = res.SelectedID
		}
	}
	c.revalidateSelectionLocked()
}

// setSourceLocked replaces the mirror's text and rebuilds the document.
// Source that no longer parses keeps the previous tree.
func (c *Client) setSourceLocked(src string) {
	if src != c.state.Source {
		c.state.SourceRev++
	}
	c.state.Source = src
	doc, diags := markup.ParseAndCheck(c.file, src)
	if doc == nil || markup.HasErrors(diags) {
		return
	}
	c.state.Doc = doc
	c.state.Index = markup.BuildIndex(doc)
}

func (c *Client) revalidateSelectionLocked() {
	if c.state.Selection == "" {
		return
	}
	if _, ok := c.state.Index[c.state.Selection]; !ok {
		c.logger.Debug("selection removed", "id", c.state.Selection)
		c.state.Selection = ""
	}
}

// Resync replaces the mirror with the server's current document. Any edit
// in flight is superseded.
func (c *Client) Resync(ctx context.Context) error {
	src, err := c.transport.Source(ctx)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}
	st, err := c.transport.State(ctx)
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.setSourceLocked(src.Source)
	c.state.DocRev = src.Revision
	c.state.Diagnostics = src.Diagnostics
	c.state.Outline = st.Outline
	c.state.Runtime = st.Runtime
	c.state.Dirty = false
	c.state.Applying = false
	c.state.PendingExternalChange = nil
	c.state.Error = ""
	c.revalidateSelectionLocked()
	c.logger.Debug("resynced", "revision", src.Revision)
	return nil
}
