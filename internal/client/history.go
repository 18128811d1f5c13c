package client

import (
	"context"

	"github.com/roach88/livedoc/internal/wire"
)

// push appends src, dropping the oldest entry beyond HistoryLimit.
func push(stack []string, src string) []string {
	stack = append(stack, src)
	if len(stack) > HistoryLimit {
		stack = append(stack[:0:0], stack[len(stack)-HistoryLimit:]...)
	}
	return stack
}

// Undo restores the source as it was before the last edit. The restore is
// sent as a setSource edit that is itself kept out of the history.
func (c *Client) Undo(ctx context.Context) (wire.TransformResult, error) {
	c.mu.Lock()
	if len(c.undo) == 0 {
		c.mu.Unlock()
		return wire.TransformResult{}, ErrNothingToUndo
	}
	src := c.undo[len(c.undo)-1]
	c.undo = c.undo[:len(c.undo)-1]
	c.redo = push(c.redo, c.state.Source)
	c.mu.Unlock()

	return c.apply(ctx, ReplaceSource{Source: src}, false)
}

// Redo reapplies the last undone edit.
func (c *Client) Redo(ctx context.Context) (wire.TransformResult, error) {
	c.mu.Lock()
	if len(c.redo) == 0 {
		c.mu.Unlock()
		return wire.TransformResult{}, ErrNothingToRedo
	}
	src := c.redo[len(c.redo)-1]
	c.redo = c.redo[:len(c.redo)-1]
	c.undo = push(c.undo, c.state.Source)
	c.mu.Unlock()

	return c.apply(ctx, ReplaceSource{Source: src}, false)
}

// CanUndo reports the depth of the undo and redo stacks.
func (c *Client) CanUndo() (undo, redo int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.undo), len(c.redo)
}
