package bf

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/containerd/log"
)

var errNoInput = errors.New("no input source")

// Stats counts what a run did.
type Stats struct {
	Steps       uint64
	OutputBytes uint64
	InputBytes  uint64
	InputFaults uint64
}

// Interpreter walks a program tree over its own tape.
type Interpreter struct {
	Program Program
	Input   io.Reader
	Output  io.Writer
	opts    Options
	tape    *Tape
	stats   Stats
	buf     [2]byte
}

// NewInterpreter prepares a run of program. A nil output discards program
// output; a nil input makes every read fail.
func NewInterpreter(program Program, input io.Reader, output io.Writer, opts Options) *Interpreter {
	return &Interpreter{
		Program: program,
		Input:   input,
		Output:  output,
		opts:    opts,
		tape:    NewTape(),
	}
}

// Reset clears the tape and counters so the program can run again.
func (i *Interpreter) Reset() {
	i.tape.Reset()
	i.stats = Stats{}
}

func (i *Interpreter) At(j int) uint8 {
	return i.tape.At(j)
}

func (i *Interpreter) Cursor() int {
	return i.tape.Cursor()
}

func (i *Interpreter) TapeLen() int {
	return i.tape.Len()
}

func (i *Interpreter) Stats() Stats {
	return i.stats
}

func (i *Interpreter) Run() error {
	return i.RunContext(context.Background())
}

// RunContext executes the program to completion. The step limit covers
// every executed node; cancellation is checked once per loop iteration, so a
// read blocked on input is not interrupted.
func (i *Interpreter) RunContext(ctx context.Context) error {
	log.G(ctx).WithField("instructions", i.Program.Len()).Debug("run started")
	if err := i.exec(ctx, i.Program); err != nil {
		return err
	}
	log.G(ctx).WithField("steps", i.stats.Steps).Debug("run finished")
	return nil
}

func (i *Interpreter) exec(ctx context.Context, prog Program) error {
	for _, n := range prog {
		switch n := n.(type) {
		case Loop:
			for i.tape.Get() != 0 {
				if err := i.tick(ctx); err != nil {
					return err
				}
				if err := i.exec(ctx, n.Body); err != nil {
					return err
				}
			}
		case Operation:
			if err := i.step(); err != nil {
				return err
			}
			if err := i.apply(ctx, n); err != nil {
				return err
			}
		default:
			return &InvariantViolation{Msg: fmt.Sprintf("unknown node %T", n)}
		}
	}
	return nil
}

func (i *Interpreter) tick(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return i.step()
}

// step counts one executed operation or loop iteration.
func (i *Interpreter) step() error {
	i.stats.Steps++
	if i.opts.MaxSteps > 0 && i.stats.Steps > i.opts.MaxSteps {
		return ErrStepLimit
	}
	return nil
}

func (i *Interpreter) apply(ctx context.Context, op Operation) error {
	switch op.Symbol {
	case MoveRight:
		i.tape.Right(op.Count)
	case MoveLeft:
		if err := i.tape.Left(op.Count); err != nil {
			return err
		}
	case Increment:
		i.tape.Add(op.Count)
	case Decrement:
		i.tape.Sub(op.Count)
	case Output:
		for range op.Count {
			if err := i.write(i.tape.Get()); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		}
	case Input:
		for range op.Count {
			if err := i.read(ctx); err != nil {
				return err
			}
		}
	default:
		return &InvariantViolation{Msg: fmt.Sprintf("symbol %s cannot modify the tape", op.Symbol)}
	}
	return nil
}

func (i *Interpreter) write(c uint8) error {
	i.stats.OutputBytes++
	if i.Output == nil {
		return nil
	}
	p := i.buf[:1]
	if c == '\n' && i.opts.CRLF {
		p = i.buf[:2]
		p[0], p[1] = '\r', '\n'
	} else {
		p[0] = c
	}
	_, err := i.Output.Write(p)
	return err
}

// read fills the current cell with one input byte. A failed read is logged
// and counted; only a failing prompt write is returned.
func (i *Interpreter) read(ctx context.Context) error {
	if i.opts.Prompt && i.Output != nil {
		if _, err := io.WriteString(i.Output, "Enter one character\n"); err != nil {
			return fmt.Errorf("writing prompt: %w", err)
		}
	}

	c, err := i.readByte()
	if err != nil {
		i.stats.InputFaults++
		fault := &InputFault{Cursor: i.tape.Cursor(), Err: err}
		log.G(ctx).WithError(fault).Warn("input fault, cell left unchanged")
		return nil
	}
	i.tape.Set(c)
	i.stats.InputBytes++

	if i.opts.Prompt && i.Output != nil {
		if _, err := fmt.Fprintf(i.Output, "You entered: %c=%d\n", rune(c), c); err != nil {
			return fmt.Errorf("writing prompt: %w", err)
		}
	}
	return nil
}

func (i *Interpreter) readByte() (byte, error) {
	switch in := i.Input.(type) {
	case nil:
		return 0, errNoInput
	case io.ByteReader:
		return in.ReadByte()
	default:
		b := i.buf[:1]
		if _, err := io.ReadFull(in, b); err != nil {
			return 0, err
		}
		return b[0], nil
	}
}
