package bf

import (
	"fmt"
	"io"
	"strings"
)

// Node is either a Loop or an Operation.
type Node interface {
	node()
}

// Loop runs its body while the current cell is non-zero.
type Loop struct {
	Body Program
}

// Operation applies a non-bracket symbol Count times.
type Operation struct {
	Symbol Symbol
	Count  int
}

func (Loop) node()      {}
func (Operation) node() {}

// Program is a sequence of nodes. Loop bodies nest.
type Program []Node

type builder struct {
	symbols []Symbol
	idx     int
}

// Build turns a validated symbol stream into a program tree. The stream
// must be bracket-balanced, as Scan guarantees; Build panics with an
// *InvariantViolation otherwise.
func Build(symbols []Symbol) Program {
	b := &builder{symbols: symbols}
	prog, closed := b.body()
	if closed {
		panic(&InvariantViolation{Msg: fmt.Sprintf("unmatched ']' at symbol %d", b.idx-1)})
	}
	return prog
}

// body returns the nodes up to the next LoopClose or the end of input, and
// whether it stopped at a LoopClose.
func (b *builder) body() (Program, bool) {
	prog := Program{}
	for b.idx < len(b.symbols) {
		sym := b.symbols[b.idx]
		b.idx++
		switch sym {
		case LoopOpen:
			inner, closed := b.body()
			if !closed {
				panic(&InvariantViolation{Msg: "unclosed '[' at end of input"})
			}
			prog = append(prog, Loop{Body: inner})
		case LoopClose:
			return prog, true
		default:
			prog = append(prog, Operation{Symbol: sym, Count: 1})
		}
	}
	return prog, false
}

// Collapse merges runs of the same operation into one node per run. Each
// loop body is collapsed on its own; nothing merges across a loop.
func Collapse(prog Program) Program {
	out := make(Program, 0, len(prog))
	for _, n := range prog {
		switch n := n.(type) {
		case Loop:
			out = append(out, Loop{Body: Collapse(n.Body)})
		case Operation:
			if len(out) > 0 {
				if prev, ok := out[len(out)-1].(Operation); ok && prev.Symbol == n.Symbol {
					prev.Count += n.Count
					out[len(out)-1] = prev
					continue
				}
			}
			out = append(out, n)
		default:
			out = append(out, n)
		}
	}
	return out
}

// Len counts nodes, loops included, at every depth.
func (p Program) Len() int {
	n := 0
	for _, node := range p {
		n++
		if l, ok := node.(Loop); ok {
			n += l.Body.Len()
		}
	}
	return n
}

// Flatten expands the tree back into symbols. Counts are expanded, so a
// collapsed tree flattens to the same stream as the uncollapsed one.
func (p Program) Flatten() []Symbol {
	var out []Symbol
	p.flatten(&out)
	return out
}

func (p Program) flatten(out *[]Symbol) {
	for _, n := range p {
		switch n := n.(type) {
		case Loop:
			*out = append(*out, LoopOpen)
			n.Body.flatten(out)
			*out = append(*out, LoopClose)
		case Operation:
			for range n.Count {
				*out = append(*out, n.Symbol)
			}
		}
	}
}

// String renders the program as source text.
func (p Program) String() string {
	var sb strings.Builder
	for _, s := range p.Flatten() {
		sb.WriteRune(rune(s))
	}
	return sb.String()
}

// Dump writes an indented listing of the tree.
func Dump(w io.Writer, p Program) error {
	return dump(w, p, 0)
}

func dump(w io.Writer, p Program, depth int) error {
	indent := strings.Repeat("  ", depth)
	for _, n := range p {
		var err error
		switch n := n.(type) {
		case Loop:
			if _, err = fmt.Fprintf(w, "%sloop (%d)\n", indent, len(n.Body)); err == nil {
				err = dump(w, n.Body, depth+1)
			}
		case Operation:
			_, err = fmt.Fprintf(w, "%s%s x%d\n", indent, n.Symbol.Name(), n.Count)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// CompileStats compares instruction counts before and after collapsing.
type CompileStats struct {
	Instructions int
	Optimised    int
}

// Reduction is the percentage of instructions removed by collapsing.
func (s CompileStats) Reduction() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return 100 * float64(s.Instructions-s.Optimised) / float64(s.Instructions)
}
