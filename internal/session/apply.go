package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/livedoc/internal/markup"
	"github.com/roach88/livedoc/internal/store"
	"github.com/roach88/livedoc/internal/transform"
	"github.com/roach88/livedoc/internal/wire"
)

// Apply decodes and runs one transform request.
//
// Rejections (unknown operation, bad arguments, failed validation) come
// back as a result with OK false and only replace the session's
// diagnostics. A successful no-op is OK with Changed false and no new
// revision. A request whose write id was already committed is answered
// with that commit's revision without applying it again.
//
// The returned error is reserved for failures outside the document model,
// such as an I/O error while persisting; state is unchanged in that case.
func (s *Session) Apply(ctx context.Context, req transform.Request) (wire.TransformResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.WriteID != "" {
		rev, found, err := s.committedWrite(ctx, req.WriteID)
		if err != nil {
			return wire.TransformResult{}, err
		}
		if found {
			s.logger.Debug("transform replayed", "writeId", req.WriteID, "revision", rev)
			res := s.resultLocked()
			res.NewRevision = &rev
			res.Persisted = true
			res.WriteID = req.WriteID
			return res, nil
		}
	}

	if req.ClientRevision != nil && *req.ClientRevision != s.revision {
		// Last write wins; the client resyncs from the result.
		s.logger.Debug("transform against stale revision",
			"clientRevision", *req.ClientRevision, "revision", s.revision, "writeId", req.WriteID)
	}

	op, err := transform.DecodeRequest(s.path, req)
	if err != nil {
		return s.rejectLocked(req, err)
	}
	out, err := s.engine.Apply(s.source, op)
	if err != nil {
		return s.rejectLocked(req, err)
	}

	if !out.Changed {
		s.diags = out.Diagnostics
		res := s.resultLocked()
		res.Persisted = true
		res.SelectedID = out.SelectedID
		res.BeforeHash = out.BeforeHash
		res.AfterHash = out.AfterHash
		res.WriteID = req.WriteID
		return res, nil
	}

	prog, banks, err := s.compile(out.Doc)
	if err != nil {
		return s.rejectLocked(req, &transform.Error{
			Code:        transform.CodeValidationFailed,
			Message:     err.Error(),
			NodeID:      op.Target(),
			Diagnostics: []markup.Diagnostic{compileDiagnostic(s.path, err)},
		})
	}

	if err := writeAtomic(s.path, []byte(out.Source), s.beforeRename); err != nil {
		return wire.TransformResult{}, fmt.Errorf("persist revision %d: %w", s.revision+1, err)
	}

	s.source = out.Source
	s.revision++
	s.lastValid = s.revision
	s.diags = out.Diagnostics
	s.install(out.Doc, banks)
	if req.WriteID != "" {
		s.writeIDs[req.WriteID] = s.revision
	}
	s.record(ctx, store.Commit{
		Op:         op.Name(),
		WriteID:    req.WriteID,
		BeforeHash: out.BeforeHash,
		AfterHash:  out.AfterHash,
		Source:     out.Source,
	})
	s.runtime.Load(prog)
	s.announce(false)

	s.logger.Info("transform committed",
		"op", op.Name(), "target", op.Target(), "revision", s.revision, "writeId", req.WriteID)

	rev := s.revision
	res := s.resultLocked()
	res.NewRevision = &rev
	res.Changed = true
	res.Persisted = true
	res.SelectedID = out.SelectedID
	res.BeforeHash = out.BeforeHash
	res.AfterHash = out.AfterHash
	res.WriteID = req.WriteID
	return res, nil
}

// committedWrite looks writeID up in memory, then in the journal.
func (s *Session) committedWrite(ctx context.Context, writeID string) (int64, bool, error) {
	if rev, ok := s.writeIDs[writeID]; ok {
		return rev, true, nil
	}
	if s.journal == nil {
		return 0, false, nil
	}
	return s.journal.LookupWriteID(ctx, s.id, writeID)
}

// rejectLocked turns a transform error into an OK=false result. Anything
// that is not a *transform.Error is unexpected and propagates.
func (s *Session) rejectLocked(req transform.Request, err error) (wire.TransformResult, error) {
	var te *transform.Error
	if !errors.As(err, &te) {
		return wire.TransformResult{}, err
	}
	s.diags = te.Diagnostics
	s.logger.Debug("transform rejected", "op", req.Op, "code", te.Code, "error", te.Message)
	return wire.TransformResult{
		OK:          false,
		Diagnostics: nonNil(te.Diagnostics),
		Error:       te.Message,
		WriteID:     req.WriteID,
	}, nil
}

// resultLocked fills the state-bearing fields of a successful result.
func (s *Session) resultLocked() wire.TransformResult {
	st := s.stateLocked()
	src := s.source
	return wire.TransformResult{
		OK:          true,
		Diagnostics: nonNil(s.diags),
		Outline:     st.Outline,
		State:       &st,
		Source:      &src,
	}
}

func nonNil(d []markup.Diagnostic) []markup.Diagnostic {
	if d == nil {
		return []markup.Diagnostic{}
	}
	return d
}
