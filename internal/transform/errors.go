package transform

import (
	"errors"
	"fmt"

	"github.com/roach88/livedoc/internal/markup"
)

// Code categorizes transform failures.
type Code string

const (
	// CodeNodeNotFound indicates the target id is not a node of the document.
	CodeNodeNotFound Code = "node-not-found"

	// CodeNodeWrongKind indicates the target exists but cannot take the edit.
	CodeNodeWrongKind Code = "node-wrong-kind"

	// CodeNodeHasChildren indicates a leaf-only edit hit a container.
	CodeNodeHasChildren Code = "node-has-children"

	// CodeMissingLiteralSpan indicates there is no literal value to edit in place.
	CodeMissingLiteralSpan Code = "missing-literal-span"

	// CodeMissingSourceSpan indicates the node's span does not resolve to source bytes.
	CodeMissingSourceSpan Code = "missing-source-span"

	// CodeIDMismatch indicates a replacement node carries a different id.
	CodeIDMismatch Code = "id-mismatch"

	// CodeUnsupportedOperation indicates an unknown operation name.
	CodeUnsupportedOperation Code = "unsupported-operation"

	// CodeNoChanges indicates the operation produced no textual delta.
	CodeNoChanges Code = "no-changes-produced"

	// CodeInvalidArguments indicates arguments that do not match the operation's shape.
	CodeInvalidArguments Code = "invalid-arguments"

	// CodeDocumentInvalid indicates the current source does not parse or check,
	// so only setSource can be applied.
	CodeDocumentInvalid Code = "document-invalid"

	// CodeValidationFailed indicates the candidate source failed reparse or recheck.
	CodeValidationFailed Code = "validation-failed"
)

// Error is a transform failure. It always carries at least one diagnostic
// so callers can return it to clients unchanged.
type Error struct {
	Code        Code
	Message     string
	NodeID      string
	Diagnostics []markup.Diagnostic
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the transform code of err, or "" when err is not a
// transform error. Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsCode reports whether err is a transform error with the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// newError builds an Error with a single fail-level diagnostic.
func newError(file string, code Code, nodeID, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	d := markup.NewDiagnostic(file, "", markup.Span{}, markup.LevelFail, string(code), msg)
	d.NodeID = nodeID
	return &Error{Code: code, Message: msg, NodeID: nodeID, Diagnostics: []markup.Diagnostic{d}}
}

// newSpanError is newError with the diagnostic anchored to a span of src.
func newSpanError(file, src string, span markup.Span, code Code, nodeID, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	d := markup.NewDiagnostic(file, src, span, markup.LevelFail, string(code), msg)
	d.NodeID = nodeID
	return &Error{Code: code, Message: msg, NodeID: nodeID, Diagnostics: []markup.Diagnostic{d}}
}
