package bf

import "strings"

// how many runes of context to keep on each side of the offending character
const excerptRadius = 9

// Diagnostic locates a structural error in the source. Rendering it is left
// to the caller.
type Diagnostic struct {
	Line    int
	Column  int
	Message string
	// Excerpt is the offending line, clipped around the error.
	Excerpt string
	// Caret is the rune offset of the offending character in Excerpt.
	Caret int
}

// newDiagnostic builds a diagnostic for the character at byte offset off.
// line and column are 1-based; column counts runes.
func newDiagnostic(src string, off, line, column int, msg string) Diagnostic {
	start := strings.LastIndexByte(src[:off], '\n') + 1
	end := strings.IndexByte(src[off:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += off
	}
	text := []rune(strings.TrimSuffix(src[start:end], "\r"))

	idx := column - 1
	if idx >= len(text) {
		idx = len(text) - 1
	}
	if idx < 0 {
		idx = 0
	}
	lo := max(idx-excerptRadius, 0)
	hi := min(idx+excerptRadius+1, len(text))

	return Diagnostic{
		Line:    line,
		Column:  column,
		Message: msg,
		Excerpt: string(text[lo:hi]),
		Caret:   idx - lo,
	}
}
