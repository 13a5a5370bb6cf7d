package bf

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrUnmatchedClose = errors.New("not enough matches for ']'")
	ErrUnmatchedOpen  = errors.New("unclosed '[' brackets")
	ErrNegativeIndex  = errors.New("index runs out of bounds")

	// ErrTapeUnderflow is returned when a loop moves the cursor left of cell
	// zero. The scanner only catches underflow along the literal move sequence.
	ErrTapeUnderflow = fmt.Errorf("cursor moved left of the first cell: %w", errdefs.ErrOutOfRange)
	ErrStepLimit     = fmt.Errorf("step limit reached: %w", errdefs.ErrResourceExhausted)
)

// StructuralKind classifies a StructuralError.
type StructuralKind int

const (
	UnmatchedClose StructuralKind = iota + 1
	UnmatchedOpen
	NegativeIndex
)

func (k StructuralKind) String() string {
	switch k {
	case UnmatchedClose:
		return "UnmatchedClose"
	case UnmatchedOpen:
		return "UnmatchedOpen"
	case NegativeIndex:
		return "NegativeIndex"
	}
	return fmt.Sprintf("StructuralKind(%d)", int(k))
}

// StructuralError is a scan-time failure. It aborts the run before anything
// executes.
type StructuralError struct {
	Kind StructuralKind
	// Excess is the number of unclosed brackets for UnmatchedOpen.
	Excess     int
	Diagnostic Diagnostic
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Diagnostic.Line, e.Diagnostic.Column, e.Diagnostic.Message)
}

func (e *StructuralError) Unwrap() []error {
	var kind error
	switch e.Kind {
	case UnmatchedClose:
		kind = ErrUnmatchedClose
	case UnmatchedOpen:
		kind = ErrUnmatchedOpen
	case NegativeIndex:
		kind = ErrNegativeIndex
	}
	if kind == nil {
		return []error{errdefs.ErrInvalidArgument}
	}
	return []error{kind, errdefs.ErrInvalidArgument}
}

// InputFault records a failed read from the input source. It is not fatal:
// the current cell keeps its value and execution continues.
type InputFault struct {
	Cursor int
	Err    error
}

func (e *InputFault) Error() string {
	return fmt.Sprintf("reading input into cell %d: %v", e.Cursor, e.Err)
}

func (e *InputFault) Unwrap() error {
	return e.Err
}

// InvariantViolation signals a malformed program tree. It can only be caused
// by a bug upstream of the executor, never by user input.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Msg
}

func (e *InvariantViolation) Unwrap() error {
	return errdefs.ErrInternal
}
