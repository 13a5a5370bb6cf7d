package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/MarcinKonowalczyk/bftree/bf"
)

// RenderDiagnostic writes a structural error with its source excerpt and a
// caret under the offending character:
//
//	Error: Line=1 | Col=4
//	    +[]]
//	       ^
//	       |----- Not enough matches for ']'
func RenderDiagnostic(w io.Writer, d bf.Diagnostic) {
	space := strings.Repeat(" ", d.Caret)
	fmt.Fprintf(w, "Error: Line=%d | Col=%d\n", d.Line, d.Column)
	fmt.Fprintf(w, "    %s\n", d.Excerpt)
	fmt.Fprintf(w, "    %s^\n", space)
	fmt.Fprintf(w, "    %s|----- %s\n", space, d.Message)
}
