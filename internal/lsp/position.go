package lsp

import "unicode/utf8"

// PositionConverter maps LSP positions onto byte offsets of a document.
// LSP uses 0-based line/character positions with UTF-16 code units for characters.
type PositionConverter struct {
	content string
	lines   []lineSpan
}

// lineSpan is the byte extent of one line, excluding its newline.
type lineSpan struct {
	start int
	end   int
}

// NewPositionConverter creates a new converter for the given content.
func NewPositionConverter(content string) *PositionConverter {
	pc := &PositionConverter{content: content}
	pc.buildLineIndex()
	return pc
}

// buildLineIndex records where every line starts and ends.
func (pc *PositionConverter) buildLineIndex() {
	start := 0
	for i := 0; i < len(pc.content); i++ {
		if pc.content[i] == '\n' {
			pc.lines = append(pc.lines, lineSpan{start: start, end: i})
			start = i + 1
		}
	}
	// Last line may not end with a newline.
	pc.lines = append(pc.lines, lineSpan{start: start, end: len(pc.content)})
}

// LineCount returns the number of lines.
func (pc *PositionConverter) LineCount() int {
	return len(pc.lines)
}

// LineContent returns the content of a line (excluding newline).
func (pc *PositionConverter) LineContent(line int) string {
	if line < 0 || line >= len(pc.lines) {
		return ""
	}
	span := pc.lines[line]
	return pc.content[span.start:span.end]
}

// PositionToByteOffset converts an LSP Position to a byte offset.
// Characters past the end of the line clamp to the line end.
func (pc *PositionConverter) PositionToByteOffset(pos Position) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= len(pc.lines) {
		return len(pc.content)
	}
	span := pc.lines[pos.Line]
	return span.start + utf16ToByteOffset(pc.content[span.start:span.end], pos.Character)
}

// CharAfter returns the character immediately following pos on its line.
// ok is false when pos is at or beyond the end of the line or the document.
func (pc *PositionConverter) CharAfter(pos Position) (r rune, ok bool) {
	if pos.Line < 0 || pos.Line >= len(pc.lines) {
		return 0, false
	}
	span := pc.lines[pos.Line]
	off := span.start + utf16ToByteOffset(pc.content[span.start:span.end], pos.Character)
	if off >= span.end {
		return 0, false
	}
	r, _ = utf8.DecodeRuneInString(pc.content[off:span.end])
	return r, true
}

// utf16ToByteOffset converts a UTF-16 offset to byte offset within a string.
func utf16ToByteOffset(s string, utf16Off int) int {
	if utf16Off <= 0 {
		return 0
	}

	count := 0
	for i, r := range s {
		if count >= utf16Off {
			return i
		}
		if r >= 0x10000 {
			count += 2 // surrogate pair
		} else {
			count++
		}
	}
	return len(s)
}

// ComparePositions returns -1, 0 or 1 as a is before, equal to or after b.
func ComparePositions(a, b Position) int {
	switch {
	case a.Line < b.Line:
		return -1
	case a.Line > b.Line:
		return 1
	case a.Character < b.Character:
		return -1
	case a.Character > b.Character:
		return 1
	default:
		return 0
	}
}
