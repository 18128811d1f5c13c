// Package wire defines the JSON payloads exchanged between the livedoc
// server, its live-preview subscribers and edit clients.
package wire

import (
	"encoding/json"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/render"
)

// Patch is one slot update pushed to viewers. A tick carries only changed
// slots; removed slots map to "". A full patch carries every slot. When the
// document is invalid, Errors is set and the slot maps are empty.
type Patch struct {
	Docstep     int64                      `json:"docstep"`
	Time        float64                    `json:"time"`
	SlotPatches map[string]string          `json:"slotPatches"`
	SlotMeta    map[string]render.SlotMeta `json:"slotMeta"`
	Full        bool                       `json:"full,omitempty"`
	Errors      []markup.Diagnostic        `json:"errors,omitempty"`
}

// DocChanged tells subscribers to pull full state.
type DocChanged struct {
	Docstep  int64   `json:"docstep"`
	Time     float64 `json:"time"`
	Revision int64   `json:"revision"`
	External bool    `json:"external,omitempty"`
}

// Capabilities advertises what the server accepts.
type Capabilities struct {
	Operations []string `json:"operations"`
	Stream     bool     `json:"stream"`
	WebSocket  bool     `json:"websocket"`
	History    bool     `json:"history"`
}

// Bank is one asset bank and its resolved files.
type Bank struct {
	Name  string   `json:"name"`
	Glob  string   `json:"glob"`
	Files []string `json:"files"`
}

// Runtime reports the scheduler.
type Runtime struct {
	Seed      int64   `json:"seed"`
	Docstep   int64   `json:"docstep"`
	Time      float64 `json:"time"`
	Running   bool    `json:"running"`
	Active    bool    `json:"active"`
	DocstepMs int64   `json:"docstepMs"`
}

// State is the full edit-state snapshot.
type State struct {
	Title             string               `json:"title"`
	Path              string               `json:"path"`
	Revision          int64                `json:"revision"`
	LastValidRevision int64                `json:"lastValidRevision"`
	Diagnostics       []markup.Diagnostic  `json:"diagnostics"`
	Outline           []markup.OutlineItem `json:"outline"`
	Banks             []Bank               `json:"banks"`
	Runtime           Runtime              `json:"runtime"`
	Capabilities      Capabilities         `json:"capabilities"`
}

// Source is the response of GET /source.
type Source struct {
	OK                bool                `json:"ok"`
	Source            string              `json:"source"`
	Diagnostics       []markup.Diagnostic `json:"diagnostics"`
	Revision          int64               `json:"revision"`
	LastValidRevision int64               `json:"lastValidRevision"`
}

// Node is the single-node inspector payload.
type Node struct {
	OK         bool                       `json:"ok"`
	ID         string                     `json:"id"`
	Kind       string                     `json:"kind"`
	ParentID   string                     `json:"parentId,omitempty"`
	Path       []string                   `json:"path"`
	Props      map[string]json.RawMessage `json:"props"`
	Refresh    string                     `json:"refresh,omitempty"`
	Transition string                     `json:"transition,omitempty"`
	Editable   bool                       `json:"editable"`
	TextEdit   bool                       `json:"textEditable"`
	Children   int                        `json:"childCount"`
}

// TransformResult is the response of POST /transform. OK false never
// carries a new revision.
type TransformResult struct {
	OK          bool                 `json:"ok"`
	NewRevision *int64               `json:"newRevision,omitempty"`
	Changed     bool                 `json:"changed"`
	Persisted   bool                 `json:"persisted"`
	Diagnostics []markup.Diagnostic  `json:"diagnostics"`
	Outline     []markup.OutlineItem `json:"outline,omitempty"`
	SelectedID  string               `json:"selectedId,omitempty"`
	State       *State               `json:"state,omitempty"`
	Source      *string              `json:"source,omitempty"`
	BeforeHash  string               `json:"beforeHash,omitempty"`
	AfterHash   string               `json:"afterHash,omitempty"`
	WriteID     string               `json:"writeId,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// RuntimeRequest is the body of POST /runtime.
type RuntimeRequest struct {
	Seed    *int64   `json:"seed,omitempty"`
	Docstep *int64   `json:"docstep,omitempty"`
	Time    *float64 `json:"time,omitempty"`
}

// TickerRequest is the body of POST /ticker.
type TickerRequest struct {
	DocstepMs *int64 `json:"docstepMs,omitempty"`
	Running   *bool  `json:"running,omitempty"`
}

// RuntimeResult answers POST /runtime and POST /ticker.
type RuntimeResult struct {
	OK      bool    `json:"ok"`
	Runtime Runtime `json:"runtime"`
	Error   string  `json:"error,omitempty"`
}

// Commit is one journal entry as served by GET /history.
type Commit struct {
	Revision   int64  `json:"revision"`
	Op         string `json:"op"`
	WriteID    string `json:"writeId,omitempty"`
	BeforeHash string `json:"beforeHash"`
	AfterHash  string `json:"afterHash"`
	External   bool   `json:"external,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// Envelope frames an event on the WebSocket channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event names.
const (
	EventPatch      = "patch"
	EventDocChanged = "doc-changed"
	EventHeartbeat  = "heartbeat"
)
