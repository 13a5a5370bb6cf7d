package bf

import "fmt"

// Symbol is one lexical unit of the language. Its value is the source
// character it is written as.
type Symbol rune

const (
	MoveLeft  Symbol = '<'
	MoveRight Symbol = '>'
	Increment Symbol = '+'
	Decrement Symbol = '-'
	Output    Symbol = '.'
	Input     Symbol = ','
	LoopOpen  Symbol = '['
	LoopClose Symbol = ']'
)

// Symbols lists all eight symbols in a fixed order.
var Symbols = []Symbol{MoveLeft, MoveRight, Increment, Decrement, Output, Input, LoopOpen, LoopClose}

func symbolOf(c rune) (Symbol, bool) {
	switch s := Symbol(c); s {
	case MoveLeft, MoveRight, Increment, Decrement, Output, Input, LoopOpen, LoopClose:
		return s, true
	default:
		return 0, false
	}
}

// IsBracket reports whether s opens or closes a loop.
func (s Symbol) IsBracket() bool {
	return s == LoopOpen || s == LoopClose
}

// String returns the source character of the symbol.
func (s Symbol) String() string {
	if _, ok := symbolOf(rune(s)); !ok {
		return fmt.Sprintf("symbol(%d)", int(s))
	}
	return string(rune(s))
}

// Name returns a readable name, used in tree dumps.
func (s Symbol) Name() string {
	switch s {
	case MoveLeft:
		return "left"
	case MoveRight:
		return "right"
	case Increment:
		return "inc"
	case Decrement:
		return "dec"
	case Output:
		return "out"
	case Input:
		return "in"
	case LoopOpen:
		return "loop"
	case LoopClose:
		return "end"
	}
	return fmt.Sprintf("symbol(%d)", int(s))
}
