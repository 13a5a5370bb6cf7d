package bf

import (
	"context"
	"io"

	"github.com/containerd/log"
)

// Compile scans and builds source, collapsing the tree when optimise is set.
func Compile(ctx context.Context, source string, optimise bool) (Program, CompileStats, error) {
	symbols, err := Scan(source)
	if err != nil {
		return nil, CompileStats{}, err
	}

	prog := Build(symbols)
	stats := CompileStats{Instructions: prog.Len(), Optimised: prog.Len()}
	if optimise {
		prog = Collapse(prog)
		stats.Optimised = prog.Len()
		log.G(ctx).WithField("before", stats.Instructions).
			WithField("after", stats.Optimised).
			Debugf("collapsed runs, %.2f%% fewer instructions", stats.Reduction())
	}
	return prog, stats, nil
}

// Run compiles and executes source in one go.
func Run(source string, input io.Reader, output io.Writer, opts Options) error {
	return RunContext(context.Background(), source, input, output, opts)
}

func RunContext(ctx context.Context, source string, input io.Reader, output io.Writer, opts Options) error {
	prog, _, err := Compile(ctx, source, opts.Optimise)
	if err != nil {
		return err
	}
	return NewInterpreter(prog, input, output, opts).RunContext(ctx)
}
