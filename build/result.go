package build

import (
	"io"

	"github.com/aledsdavies/gramforge/dfa"
	"github.com/aledsdavies/gramforge/diag"
	"github.com/aledsdavies/gramforge/grammarfile"
	"github.com/aledsdavies/gramforge/lalr"
	"github.com/aledsdavies/gramforge/model"
)

// Result is everything one Build invocation produces (spec.md §4.7, §7).
type Result struct {
	Grammar     *model.Grammar
	DFA         *dfa.Table
	LR          *lalr.Table
	Diagnostics []diag.Diagnostic
}

// Unparsable reports whether any SeverityError diagnostic was raised
// during the build. Consumers of an Unparsable result get a descriptive
// error on any parse attempt rather than a parse result (spec.md §7). A
// GLR table is not itself an error (spec.md §4.4 says an unresolved
// conflict only "may" set this flag, at the orchestrator's discretion);
// this build treats every such conflict as a reported SeverityError
// diagnostic instead, so the two checks coincide in practice.
func (r *Result) Unparsable() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == diag.SeverityError {
			return true
		}
	}
	return false
}

// Encode serializes the built grammar, DFA, and LR table into the bit-
// exact binary container (spec.md §4.5, §6), returning its content hash.
func (r *Result) Encode(w io.Writer) ([32]byte, error) {
	return grammarfile.Encode(w, &grammarfile.Image{
		Grammar: r.Grammar,
		DFA:     r.DFA,
		LR:      r.LR,
	})
}
