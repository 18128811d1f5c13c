package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/render"
	"github.com/roach88/livedoc/internal/transform"
	"github.com/roach88/livedoc/internal/wire"
)

// Diagnostic codes produced by the HTTP layer.
const (
	codeMalformedRequest = "malformed-request"
	codeForeignFile      = "file-not-managed"
	codeInternal         = "internal-error"
	codeNoJournal        = "journal-disabled"
)

type failure struct {
	OK          bool                `json:"ok"`
	Error       string              `json:"error"`
	Diagnostics []markup.Diagnostic `json:"diagnostics"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, code, file, msg string) {
	d := markup.NewDiagnostic(file, "", markup.Span{}, markup.LevelFail, code, msg)
	writeJSON(w, status, failure{Error: msg, Diagnostics: []markup.Diagnostic{d}})
}

// decodeBody strictly decodes a JSON body into v. An empty body leaves v
// at its zero value.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req transform.Request
	if err := s.decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, codeMalformedRequest, "", err.Error())
		return
	}
	if req.Op == "" {
		writeFailure(w, http.StatusBadRequest, codeMalformedRequest, req.File, "missing op")
		return
	}
	if !s.session.Owns(req.File) {
		writeFailure(w, http.StatusForbidden, codeForeignFile, req.File,
			fmt.Sprintf("%s is not the document managed by this server", req.File))
		return
	}

	res, err := s.session.Apply(r.Context(), req)
	if err != nil {
		s.logger.Error("transform failed", "op", req.Op, "error", err)
		writeFailure(w, http.StatusInternalServerError, codeInternal, s.session.Path(), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleSource(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Source())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeFailure(w, http.StatusBadRequest, codeMalformedRequest, "", "missing id")
		return
	}
	n, ok := s.session.Node(id)
	if !ok {
		writeFailure(w, http.StatusNotFound, string(transform.CodeNodeNotFound), s.session.Path(),
			fmt.Sprintf("node %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handlePatches(w http.ResponseWriter, _ *http.Request) {
	p, ok := s.hub.Snapshot()
	if !ok {
		st := s.sched.State()
		p = wire.Patch{
			Docstep:     st.Docstep,
			Time:        st.Time,
			SlotPatches: map[string]string{},
			SlotMeta:    map[string]render.SlotMeta{},
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	var req wire.RuntimeRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.RuntimeResult{Error: err.Error(), Runtime: s.sched.Status()})
		return
	}
	if req.Docstep != nil && *req.Docstep < 0 {
		writeJSON(w, http.StatusBadRequest, wire.RuntimeResult{Error: "docstep must be >= 0", Runtime: s.sched.Status()})
		return
	}
	if req.Time != nil && *req.Time < 0 {
		writeJSON(w, http.StatusBadRequest, wire.RuntimeResult{Error: "time must be >= 0", Runtime: s.sched.Status()})
		return
	}
	s.sched.Reset(req.Seed, req.Docstep, req.Time)
	s.logger.Info("runtime reset", "runtime", s.sched.Status())
	writeJSON(w, http.StatusOK, wire.RuntimeResult{OK: true, Runtime: s.sched.Status()})
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	var req wire.TickerRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.RuntimeResult{Error: err.Error(), Runtime: s.sched.Status()})
		return
	}
	if req.DocstepMs != nil {
		if *req.DocstepMs <= 0 {
			writeJSON(w, http.StatusBadRequest, wire.RuntimeResult{Error: "docstepMs must be > 0", Runtime: s.sched.Status()})
			return
		}
		s.sched.Reschedule(time.Duration(*req.DocstepMs) * time.Millisecond)
	}
	if req.Running != nil {
		if *req.Running {
			s.sched.Resume()
		} else {
			s.sched.Pause()
		}
	}
	writeJSON(w, http.StatusOK, wire.RuntimeResult{OK: true, Runtime: s.sched.Status()})
}

func (s *Server) handleRender(w http.ResponseWriter, _ *http.Request) {
	frame, prog, ok := s.sched.Frame()
	if !ok {
		http.Error(w, "no valid document loaded", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(render.RenderDocument(prog.Doc, frame)))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeFailure(w, http.StatusNotFound, codeNoJournal, "", "journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, codeMalformedRequest, "", "limit must be an integer")
			return
		}
		limit = n
	}
	commits, err := s.journal.History(r.Context(), s.session.Path(), limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, codeInternal, "", err.Error())
		return
	}
	out := make([]wire.Commit, len(commits))
	for i, c := range commits {
		out[i] = wire.Commit{
			Revision:   c.Revision,
			Op:         c.Op,
			WriteID:    c.WriteID,
			BeforeHash: c.BeforeHash,
			AfterHash:  c.AfterHash,
			External:   c.External,
			CreatedAt:  c.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
