package markup

import "sort"

// LineIndex converts between line/column positions and byte offsets using a
// prefix sum of line lengths.
type LineIndex struct {
	src    string
	starts []int
}

// NewLineIndex builds the index for src.
func NewLineIndex(src string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{src: src, starts: starts}
}

// Lines returns the number of lines.
func (li *LineIndex) Lines() int {
	return len(li.starts)
}

// Offset returns the byte offset of p. It reports false when p lies outside
// the source.
func (li *LineIndex) Offset(p Pos) (int, bool) {
	if p.Line < 1 || p.Line > len(li.starts) || p.Column < 1 {
		return 0, false
	}
	off := li.starts[p.Line-1] + p.Column - 1
	if off > len(li.src) || off > li.lineEnd(p.Line) {
		return 0, false
	}
	return off, true
}

// Pos returns the position of a byte offset.
func (li *LineIndex) Pos(off int) Pos {
	if off < 0 {
		off = 0
	}
	if off > len(li.src) {
		off = len(li.src)
	}
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > off })
	return Pos{Line: line, Column: off - li.starts[line-1] + 1}
}

// LineStart returns the offset of the first byte of a line.
func (li *LineIndex) LineStart(line int) int {
	if line < 1 {
		return 0
	}
	if line > len(li.starts) {
		return len(li.src)
	}
	return li.starts[line-1]
}

// lineEnd returns the offset of the newline ending a line (or len(src)).
func (li *LineIndex) lineEnd(line int) int {
	if line < len(li.starts) {
		return li.starts[line] - 1
	}
	return len(li.src)
}

// LineText returns a line without its newline.
func (li *LineIndex) LineText(line int) string {
	if line < 1 || line > len(li.starts) {
		return ""
	}
	return li.src[li.starts[line-1]:li.lineEnd(line)]
}

// SpanOffsets returns the half-open byte range [start, end) of an inclusive
// span.
func (li *LineIndex) SpanOffsets(s Span) (start, end int, ok bool) {
	start, ok1 := li.Offset(s.Start)
	last, ok2 := li.Offset(s.End)
	if !ok1 || !ok2 || last < start || last >= len(li.src) {
		return 0, 0, false
	}
	return start, last + 1, true
}
