package bf

import (
	"fmt"
	"io"
)

type position struct {
	offset int
	line   int
	column int
}

// Scanner turns source text into symbols, validating bracket balance and
// the literal pointer movement on the way.
type Scanner struct {
	src     string
	line    int
	column  int
	ptr     int        // simulated cursor
	open    []position // unclosed '['
	symbols []Symbol
}

func NewScanner(src string) *Scanner {
	s := &Scanner{}
	s.Reset(src)
	return s
}

// Reset prepares the scanner for new source.
func (s *Scanner) Reset(src string) {
	s.src = src
	s.line = 1
	s.column = 0
	s.ptr = 0
	s.open = s.open[:0]
	s.symbols = nil
}

// Scan consumes the whole source from the start. Any other character than
// the eight symbols is a comment.
func (s *Scanner) Scan() ([]Symbol, error) {
	s.Reset(s.src)
	for off, c := range s.src {
		s.column++
		if c == '\n' {
			s.line++
			s.column = 0
			continue
		}
		sym, ok := symbolOf(c)
		if !ok {
			continue
		}
		here := position{offset: off, line: s.line, column: s.column}
		switch sym {
		case MoveRight:
			s.ptr++
		case MoveLeft:
			s.ptr--
			if s.ptr < 0 {
				return nil, s.fail(here, NegativeIndex, 0, "Index runs out of bounds")
			}
		case LoopOpen:
			s.open = append(s.open, here)
		case LoopClose:
			if len(s.open) == 0 {
				return nil, s.fail(here, UnmatchedClose, 0, "Not enough matches for ']'")
			}
			s.open = s.open[:len(s.open)-1]
		}
		s.symbols = append(s.symbols, sym)
	}

	if n := len(s.open); n > 0 {
		msg := fmt.Sprintf("An excess of %d '[' brackets were found", n)
		return nil, s.fail(s.open[0], UnmatchedOpen, n, msg)
	}
	return s.symbols, nil
}

func (s *Scanner) fail(at position, kind StructuralKind, excess int, msg string) error {
	return &StructuralError{
		Kind:       kind,
		Excess:     excess,
		Diagnostic: newDiagnostic(s.src, at.offset, at.line, at.column, msg),
	}
}

// Scan is a shorthand for NewScanner(src).Scan().
func Scan(src string) ([]Symbol, error) {
	return NewScanner(src).Scan()
}

// ScanReader reads r to the end and scans it.
func ScanReader(r io.Reader) ([]Symbol, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	return Scan(string(data))
}
