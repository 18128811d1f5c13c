package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/wire"
)

// Subscriber is a Transport that can also stream server events.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(wire.Envelope)) error
}

// HandleDocChanged reacts to a doc-changed event. Revisions the mirror
// already reflects are ignored. A newer revision is pulled straight away
// unless the client holds unsaved edits. In that case an external change
// (the file edited outside the server) is parked as PendingExternalChange
// for the user to resolve, and any other change is left to the response
// of the edit in flight.
func (c *Client) HandleDocChanged(ctx context.Context, ev wire.DocChanged) error {
	c.mu.Lock()
	c.state.Runtime.Docstep = ev.Docstep
	c.state.Runtime.Time = ev.Time
	if ev.Revision <= c.state.DocRev {
		c.mu.Unlock()
		return nil
	}
	busy := c.state.Dirty || c.state.Applying
	if busy && !ev.External {
		// Most likely the commit of the edit in flight; its response
		// updates the mirror.
		c.mu.Unlock()
		return nil
	}
	if busy {
		parked := ev
		c.state.PendingExternalChange = &parked
		c.mu.Unlock()
		c.notifier.Notify(Notice{
			Level:   markup.LevelWarn,
			Message: fmt.Sprintf("the document changed on the server (revision %d); reload or keep local edits", ev.Revision),
		})
		return nil
	}
	c.mu.Unlock()
	return c.Resync(ctx)
}

// ResolveExternalChange settles a parked external change. reload discards
// local edits and pulls the server's document; otherwise the local source
// is written over the server's.
func (c *Client) ResolveExternalChange(ctx context.Context, reload bool) error {
	c.mu.Lock()
	if c.state.PendingExternalChange == nil {
		c.mu.Unlock()
		return ErrNoPendingChange
	}
	src := c.state.Source
	c.state.PendingExternalChange = nil
	c.mu.Unlock()

	if reload {
		return c.Resync(ctx)
	}
	_, err := c.Apply(ctx, ReplaceSource{Source: src})
	return err
}

// Watch follows the server's event stream until ctx is done. It needs a
// transport that implements Subscriber.
func (c *Client) Watch(ctx context.Context) error {
	sub, ok := c.transport.(Subscriber)
	if !ok {
		return fmt.Errorf("transport %T cannot stream events", c.transport)
	}
	return sub.Subscribe(ctx, func(env wire.Envelope) {
		switch env.Event {
		case wire.EventDocChanged:
			var ev wire.DocChanged
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				c.logger.Warn("malformed doc-changed event", "error", err)
				return
			}
			if err := c.HandleDocChanged(ctx, ev); err != nil {
				c.logger.Warn("resync after doc-changed failed", "error", err)
			}
		case wire.EventPatch:
			var p wire.Patch
			if err := json.Unmarshal(env.Data, &p); err != nil {
				c.logger.Warn("malformed patch event", "error", err)
				return
			}
			c.mu.Lock()
			c.state.Runtime.Docstep = p.Docstep
			c.state.Runtime.Time = p.Time
			c.mu.Unlock()
		}
	})
}
