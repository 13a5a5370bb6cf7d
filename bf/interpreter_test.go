package bf_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MarcinKonowalczyk/bftree/bf"
	"github.com/MarcinKonowalczyk/bftree/utils"
	"github.com/containerd/errdefs"
)

func newInterpreter(t *testing.T, source string, input string) (*bf.Interpreter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return bf.NewInterpreter(mustBuild(t, source), strings.NewReader(input), &out, bf.Options{}), &out
}

func TestInterpreter_OutputEmptyInterpreter(t *testing.T) {
	interpreter := bf.NewInterpreter(bf.Program{op(bf.Output, 1)}, nil, nil, bf.Options{})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.Stats().OutputBytes, uint64(1))
}

func TestInterpreter_InputEmptyInterpreter(t *testing.T) {
	interpreter := bf.NewInterpreter(bf.Program{op(bf.Increment, 3), op(bf.Input, 1)}, nil, nil, bf.Options{})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(0), 3)
	utils.AssertEqual(t, interpreter.Stats().InputFaults, uint64(1))
}

func TestInterpreter_Increment(t *testing.T) {
	interpreter, _ := newInterpreter(t, "+", "")
	utils.AssertEqual(t, interpreter.At(0), 0)
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(0), 1)
}

func TestInterpreter_Decrement(t *testing.T) {
	interpreter, _ := newInterpreter(t, "-", "")
	utils.AssertEqual(t, interpreter.At(0), 0)
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(0), 255)
}

func TestInterpreter_IncrementWraps(t *testing.T) {
	interpreter := bf.NewInterpreter(bf.Program{op(bf.Increment, 255), op(bf.Increment, 1)}, nil, nil, bf.Options{})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(0), 0)
}

func TestInterpreter_CollapsedArithmetic(t *testing.T) {
	interpreter := bf.NewInterpreter(bf.Program{
		op(bf.Increment, 1000), // 1000 mod 256 = 232
		op(bf.MoveRight, 1),
		op(bf.Decrement, 513), // -513 mod 256 = 255
	}, nil, nil, bf.Options{})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(0), 232)
	utils.AssertEqual(t, interpreter.At(1), 255)
}

func TestInterpreter_MoveRight(t *testing.T) {
	interpreter, _ := newInterpreter(t, ">+", "")
	utils.AssertEqual(t, interpreter.At(0), 0)
	utils.AssertEqual(t, interpreter.At(1), 0)
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(0), 0)
	utils.AssertEqual(t, interpreter.At(1), 1)
	utils.AssertEqual(t, interpreter.Cursor(), 1)
}

func TestInterpreter_MoveLeft(t *testing.T) {
	interpreter, _ := newInterpreter(t, ">><+", "")
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(1), 1)
	utils.AssertEqual(t, interpreter.Cursor(), 1)
}

func TestInterpreter_TapeGrows(t *testing.T) {
	interpreter, _ := newInterpreter(t, "+>+>+>+>+>+>+>+>+>+>+", "")
	utils.AssertEqual(t, interpreter.TapeLen(), 10)
	utils.AssertNoError(t, interpreter.Run())
	utils.Assert(t, interpreter.TapeLen() >= 11, "tape did not grow")
	utils.AssertEqual(t, interpreter.Cursor(), 10)
	for i := range 11 {
		utils.AssertEqual(t, interpreter.At(i), 1)
	}
}

func TestInterpreter_TapeUnderflowInLoop(t *testing.T) {
	// passes the scan-time check, but the loop walks off the left end
	interpreter, _ := newInterpreter(t, ">+[<+]", "")
	err := interpreter.Run()
	utils.AssertErrorIs(t, err, bf.ErrTapeUnderflow)
	utils.AssertErrorIs(t, err, errdefs.ErrOutOfRange)
	utils.AssertEqual(t, interpreter.Cursor(), 0)
}

func TestInterpreter_Loop(t *testing.T) {
	interpreter, _ := newInterpreter(t, "+++[->+<]", "")
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(0), 0)
	utils.AssertEqual(t, interpreter.At(1), 3)
}

func TestInterpreter_ZeroTripLoop(t *testing.T) {
	interpreter, out := newInterpreter(t, "[.+]>.", "")
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqualArrays(t, out.Bytes(), []byte{0})
	utils.AssertEqual(t, interpreter.At(0), 0)
}

func TestInterpreter_Addition(t *testing.T) {
	interpreter, out := newInterpreter(t, "++>+++++[<+>-]<.", "")
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqualArrays(t, out.Bytes(), []byte{7})
}

func TestInterpreter_Input(t *testing.T) {
	interpreter, out := newInterpreter(t, ",+.,+.", "ab")
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, out.String(), "bc")
	utils.AssertEqual(t, interpreter.Stats().InputBytes, uint64(2))
}

func TestInterpreter_InputFaultLeavesCell(t *testing.T) {
	// the second read hits EOF
	interpreter, out := newInterpreter(t, ",.,.", "x")
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, out.String(), "xx")
	utils.AssertEqual(t, interpreter.Stats().InputFaults, uint64(1))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device unplugged")
}

func TestInterpreter_InputReaderError(t *testing.T) {
	interpreter := bf.NewInterpreter(mustBuild(t, "+,+"), failingReader{}, nil, bf.Options{})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.At(0), 2)
	utils.AssertEqual(t, interpreter.Stats().InputFaults, uint64(1))
}

func TestInterpreter_Prompt(t *testing.T) {
	var out bytes.Buffer
	interpreter := bf.NewInterpreter(mustBuild(t, ","), strings.NewReader("A"), &out, bf.Options{Prompt: true})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, out.String(), "Enter one character\nYou entered: A=65\n")
}

func TestInterpreter_CRLF(t *testing.T) {
	var out bytes.Buffer
	interpreter := bf.NewInterpreter(mustBuild(t, "++++++++++.>+++++[<+++++++>-]<."), nil, &out, bf.Options{CRLF: true})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, out.String(), "\r\n-")
}

func TestInterpreter_StepLimit(t *testing.T) {
	interpreter := bf.NewInterpreter(mustBuild(t, "+[]"), nil, nil, bf.Options{MaxSteps: 10_000})
	err := interpreter.Run()
	utils.AssertErrorIs(t, err, bf.ErrStepLimit)
	utils.AssertErrorIs(t, err, errdefs.ErrResourceExhausted)
	utils.AssertEqual(t, interpreter.At(0), 1)
}

func TestInterpreter_StepLimitWithoutLoops(t *testing.T) {
	interpreter := bf.NewInterpreter(mustBuild(t, "+++"), nil, nil, bf.Options{MaxSteps: 1})
	utils.AssertErrorIs(t, interpreter.Run(), bf.ErrStepLimit)
	utils.AssertEqual(t, interpreter.At(0), 1)

	interpreter = bf.NewInterpreter(mustBuild(t, "+++"), nil, nil, bf.Options{MaxSteps: 3})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqual(t, interpreter.Stats().Steps, 3)
}

func TestInterpreter_NonTerminatingLoopIsCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	interpreter, out := newInterpreter(t, "+[]", "")
	err := interpreter.RunContext(ctx)
	utils.AssertErrorIs(t, err, context.DeadlineExceeded)
	utils.AssertEqual(t, out.Len(), 0)
}

func TestInterpreter_BracketOperation(t *testing.T) {
	interpreter := bf.NewInterpreter(bf.Program{op(bf.LoopOpen, 1)}, nil, nil, bf.Options{})
	err := interpreter.Run()
	_ = utils.AssertErrorAs[*bf.InvariantViolation](t, err)
	utils.AssertErrorIs(t, err, errdefs.ErrInternal)
}

func TestInterpreter_Reset(t *testing.T) {
	interpreter, out := newInterpreter(t, "+++.", "")
	utils.AssertNoError(t, interpreter.Run())
	interpreter.Reset()
	utils.AssertEqual(t, interpreter.At(0), 0)
	utils.AssertEqual(t, interpreter.Stats(), bf.Stats{})
	utils.AssertNoError(t, interpreter.Run())
	utils.AssertEqualArrays(t, out.Bytes(), []byte{3, 3})
}

func TestInterpreter_OptimisedMatchesPlain(t *testing.T) {
	// prints "Hello World!\n"
	source := "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++."
	for _, optimise := range []bool{false, true} {
		var out bytes.Buffer
		err := bf.Run(source, nil, &out, bf.Options{Optimise: optimise})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, out.String(), "Hello World!\n")
	}
}

func TestRun_StructuralError(t *testing.T) {
	var out bytes.Buffer
	err := bf.Run("+.]", nil, &out, bf.Options{})
	utils.AssertErrorIs(t, err, bf.ErrUnmatchedClose)
	utils.AssertEqual(t, out.Len(), 0)
}

func TestCompile(t *testing.T) {
	prog, stats, err := bf.Compile(context.Background(), "+++[-]", true)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, stats.Instructions, 5)
	utils.AssertEqual(t, stats.Optimised, 3)
	utils.AssertEqual(t, prog.Len(), 3)
}
