package diag

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// wireDiagnostic is the CBOR-visible shape of a Diagnostic. Severity is
// encoded as its string name rather than its raw integer so the exported
// format is stable across a future reordering of the Severity constants.
type wireDiagnostic struct {
	Severity string `cbor:"severity"`
	Code     string `cbor:"code,omitempty"`
	Message  string `cbor:"message"`
}

var severityByName = map[string]Severity{
	SeverityVerbose.String():     SeverityVerbose,
	SeverityDebug.String():       SeverityDebug,
	SeverityInformation.String(): SeverityInformation,
	SeverityWarning.String():     SeverityWarning,
	SeverityError.String():       SeverityError,
}

// EncodeBatch serializes a batch of diagnostics to CBOR, for tooling/export
// consumers that want a structured diagnostic dump separate from the
// bit-exact grammar binary container (SPEC_FULL.md §6).
func EncodeBatch(diagnostics []Diagnostic) ([]byte, error) {
	wire := make([]wireDiagnostic, len(diagnostics))
	for i, d := range diagnostics {
		wire[i] = wireDiagnostic{
			Severity: d.Severity.String(),
			Code:     string(d.Code),
			Message:  d.Message,
		}
	}
	return cbor.Marshal(wire)
}

// DecodeBatch deserializes a batch produced by EncodeBatch.
func DecodeBatch(data []byte) ([]Diagnostic, error) {
	var wire []wireDiagnostic
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("diag: decoding diagnostic batch: %w", err)
	}
	out := make([]Diagnostic, len(wire))
	for i, w := range wire {
		sev, ok := severityByName[w.Severity]
		if !ok {
			return nil, fmt.Errorf("diag: unknown severity %q at index %d", w.Severity, i)
		}
		out[i] = Diagnostic{Severity: sev, Code: Code(w.Code), Message: w.Message}
	}
	return out, nil
}
