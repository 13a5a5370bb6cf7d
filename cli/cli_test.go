package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcinKonowalczyk/bftree/bf"
	"github.com/MarcinKonowalczyk/bftree/cli"
	"github.com/MarcinKonowalczyk/bftree/utils"
	"github.com/containerd/errdefs"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	utils.AssertNoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := cli.Run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_Addition(t *testing.T) {
	file := writeFile(t, "add.bf", "++>+++++[<+>-]<.")
	stdout, _, err := run("-file", file)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, stdout, "\x07")
	utils.AssertEqual(t, cli.ExitCode(err), cli.ExitOK)
}

func TestRun_PositionalFile(t *testing.T) {
	file := writeFile(t, "add.bf", "+++.")
	stdout, _, err := run(file)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, stdout, "\x03")
}

func TestRun_StructuralError(t *testing.T) {
	file := writeFile(t, "bad.bf", "]")
	stdout, stderr, err := run("-file", file)
	utils.AssertErrorIs(t, err, bf.ErrUnmatchedClose)
	utils.AssertEqual(t, cli.ExitCode(err), cli.ExitStructural)
	utils.AssertEqual(t, stdout, "")
	utils.Assert(t, strings.Contains(stderr, "Error: Line=1 | Col=1"), "missing location in diagnostic")
	utils.Assert(t, strings.Contains(stderr, "|----- Not enough matches for ']'"), "missing message in diagnostic")
}

func TestRun_MissingFile(t *testing.T) {
	_, _, err := run()
	utils.AssertErrorIs(t, err, errdefs.ErrInvalidArgument)
	utils.AssertEqual(t, cli.ExitCode(err), cli.ExitFailure)

	_, _, err = run("-file", filepath.Join(t.TempDir(), "nope.bf"))
	utils.AssertErrorIs(t, err, os.ErrNotExist)
}

func TestRun_Help(t *testing.T) {
	_, stderr, err := run("-h")
	utils.AssertEqual(t, cli.ExitCode(err), cli.ExitOK)
	utils.Assert(t, strings.Contains(stderr, "-max-steps"), "usage does not list flags")
}

func TestRun_Dump(t *testing.T) {
	file := writeFile(t, "loop.bf", "++[-]")
	stdout, _, err := run("-O", "-dump", "-file", file)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, stdout, "inc x2\nloop (1)\n  dec x1\n")
}

func TestRun_ConfigStepLimit(t *testing.T) {
	file := writeFile(t, "forever.bf", "+[]")
	config := writeFile(t, "bf.yaml", "max_steps: 1000\n")
	_, _, err := run("-config", config, "-file", file)
	utils.AssertErrorIs(t, err, bf.ErrStepLimit)
	utils.AssertEqual(t, cli.ExitCode(err), cli.ExitFailure)
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	file := writeFile(t, "runs.bf", "++++.")
	config := writeFile(t, "bf.yaml", "optimise: false\n")
	_, stderr, err := run("-config", config, "-O", "-stats", "-file", file)
	utils.AssertNoError(t, err)
	utils.Assert(t, strings.Contains(stderr, "instructions: 5 -> 2 (60.00% fewer)"), "unexpected stats output")
}

func TestRun_BadConfig(t *testing.T) {
	file := writeFile(t, "add.bf", "+")
	config := writeFile(t, "bf.yaml", "unknown: 1\n")
	_, _, err := run("-config", config, "-file", file)
	utils.Assert(t, err != nil, "expected an error for a bad config")
}

func TestRenderDiagnostic(t *testing.T) {
	var sb strings.Builder
	cli.RenderDiagnostic(&sb, bf.Diagnostic{
		Line:    1,
		Column:  4,
		Message: "Not enough matches for ']'",
		Excerpt: "+[]]",
		Caret:   3,
	})
	expected := "Error: Line=1 | Col=4\n" +
		"    +[]]\n" +
		"       ^\n" +
		"       |----- Not enough matches for ']'\n"
	utils.AssertEqual(t, sb.String(), expected)
}
