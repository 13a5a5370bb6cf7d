// Package cli implements the brainfuck command: it loads a source file,
// runs it and reports structural errors.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/MarcinKonowalczyk/bftree/bf"
	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// comptime override for debug flag
// set with `-ldflags="-X 'github.com/MarcinKonowalczyk/bftree/cli.debug=true'"`
var debug string

const (
	ExitOK         = 0
	ExitStructural = 1
	ExitFailure    = 2
)

type flags struct {
	file     string
	config   string
	optimise bool
	crlf     bool
	prompt   bool
	maxSteps uint64
	stats    bool
	dump     bool
	debug    bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, *flag.FlagSet, error) {
	f := &flags{}
	fs := flag.NewFlagSet("brainfuck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.file, "file", "", "brainfuck source file")
	fs.StringVar(&f.config, "config", "", "YAML file with run options")
	fs.BoolVar(&f.optimise, "O", false, "collapse runs of identical instructions")
	fs.BoolVar(&f.crlf, "crlf", false, "write \\r\\n for every \\n")
	fs.BoolVar(&f.prompt, "prompt", false, "prompt for and echo every input byte")
	fs.Uint64Var(&f.maxSteps, "max-steps", 0, "stop after this many steps (0 for no limit)")
	fs.BoolVar(&f.stats, "stats", false, "print instruction counts and run statistics to stderr")
	fs.BoolVar(&f.dump, "dump", false, "print the program tree instead of running it")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if f.file == "" && fs.NArg() == 1 {
		f.file = fs.Arg(0)
	}
	return f, fs, nil
}

// options merges the config file with the flags set on the command line.
func (f *flags) options(fs *flag.FlagSet) (bf.Options, error) {
	var opts bf.Options
	if f.config != "" {
		var err error
		if opts, err = bf.LoadOptions(f.config); err != nil {
			return bf.Options{}, fmt.Errorf("loading options: %w", err)
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "O":
			opts.Optimise = f.optimise
		case "crlf":
			opts.CRLF = f.crlf
		case "prompt":
			opts.Prompt = f.prompt
		case "max-steps":
			opts.MaxSteps = f.maxSteps
		}
	})
	return opts, nil
}

func setupLogging(stderr io.Writer, verbose bool) error {
	log.L.Logger.SetOutput(stderr)
	if verbose || debug != "" {
		return log.SetLevel("debug")
	}
	return log.SetLevel("warn")
}

// Run executes the brainfuck command with the given arguments (without the
// program name). Structural errors are rendered to stderr before being
// returned.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if err := setupLogging(stderr, f.debug); err != nil {
		return err
	}
	if f.file == "" {
		return fmt.Errorf("-file is required: %w", errdefs.ErrInvalidArgument)
	}
	opts, err := f.options(fs)
	if err != nil {
		return err
	}

	ctx = log.WithLogger(ctx, log.G(ctx).WithField("file", f.file))

	source, err := os.ReadFile(f.file)
	if err != nil {
		return err
	}

	prog, cstats, err := bf.Compile(ctx, string(source), opts.Optimise)
	if err != nil {
		var serr *bf.StructuralError
		if errors.As(err, &serr) {
			RenderDiagnostic(stderr, serr.Diagnostic)
		}
		return err
	}

	if f.dump {
		return bf.Dump(stdout, prog)
	}

	interpreter := bf.NewInterpreter(prog, stdin, stdout, opts)
	runErr := interpreter.RunContext(ctx)

	if f.stats {
		printStats(stderr, cstats, interpreter.Stats())
	}
	return runErr
}

func printStats(w io.Writer, c bf.CompileStats, r bf.Stats) {
	fmt.Fprintf(w, "instructions: %d -> %d (%.2f%% fewer)\n", c.Instructions, c.Optimised, c.Reduction())
	fmt.Fprintf(w, "steps: %d, output: %d bytes, input: %d bytes, input faults: %d\n",
		r.Steps, r.OutputBytes, r.InputBytes, r.InputFaults)
}

// ExitCode maps the result of Run to a process exit status.
func ExitCode(err error) int {
	var serr *bf.StructuralError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.As(err, &serr):
		return ExitStructural
	default:
		return ExitFailure
	}
}
