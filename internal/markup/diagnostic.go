package markup

import (
	"errors"
	"fmt"
	"strings"
)

// Level is the severity of a diagnostic.
type Level string

const (
	LevelPass Level = "pass"
	LevelWarn Level = "warn"
	LevelFail Level = "fail"
)

// Location is a resolved source position.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

// Range is a resolved source range.
type Range struct {
	Start Location `json:"start"`
	End   Location `json:"end"`
}

// Excerpt shows the offending source line with a caret under the column.
type Excerpt struct {
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Caret string `json:"caret"`
}

// Diagnostic is one parse, check or transform finding.
type Diagnostic struct {
	Level      Level    `json:"level"`
	Code       string   `json:"code,omitempty"`
	Message    string   `json:"message"`
	File       string   `json:"file"`
	Range      *Range   `json:"range,omitempty"`
	Excerpt    *Excerpt `json:"excerpt,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	NodeID     string   `json:"nodeId,omitempty"`
	Location   string   `json:"location"`
}

// HasErrors reports whether any diagnostic is fail-level.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Level == LevelFail {
			return true
		}
	}
	return false
}

// NewDiagnostic builds a diagnostic. When span is non-zero the range,
// excerpt and location are resolved against src.
func NewDiagnostic(file, src string, span Span, level Level, code, message string) Diagnostic {
	d := Diagnostic{
		Level:    level,
		Code:     code,
		Message:  message,
		File:     file,
		Location: file,
	}
	if span.IsZero() {
		return d
	}
	li := NewLineIndex(src)
	startOff, _ := li.Offset(span.Start)
	endOff, _ := li.Offset(span.End)
	d.Range = &Range{
		Start: Location{Line: span.Start.Line, Column: span.Start.Column, Offset: startOff},
		End:   Location{Line: span.End.Line, Column: span.End.Column, Offset: endOff},
	}
	text := li.LineText(span.Start.Line)
	d.Excerpt = &Excerpt{
		Line:  span.Start.Line,
		Text:  text,
		Caret: caretLine(text, span.Start.Column),
	}
	d.Location = fmt.Sprintf("%s:%d:%d", file, span.Start.Line, span.Start.Column)
	return d
}

// caretLine places a caret under column, keeping tabs so the caret lines up.
func caretLine(text string, column int) string {
	var b strings.Builder
	for i := 0; i < column-1 && i < len(text); i++ {
		if text[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte('^')
	return b.String()
}

func syntaxDiagnostic(file, src string, err error) Diagnostic {
	var pe *ParseError
	if errors.As(err, &pe) {
		return NewDiagnostic(file, src, Span{Start: pe.Pos, End: pe.Pos}, LevelFail, "syntax-error", pe.Message)
	}
	return NewDiagnostic(file, src, Span{}, LevelFail, "syntax-error", err.Error())
}
