// Package diag implements the diagnostics contract from spec §6–§7: a
// severity-and-stable-code record type collected during a build and
// surfaced to the caller's listener.
package diag

import (
	"fmt"
)

// Severity is the diagnostic's importance level.
type Severity uint8

const (
	SeverityVerbose Severity = iota
	SeverityDebug
	SeverityInformation
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityVerbose:
		return "Verbose"
	case SeverityDebug:
		return "Debug"
	case SeverityInformation:
		return "Information"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

// Code is a stable diagnostic code. The codes below are carried by the DFA
// state-limit and indistinguishable-symbol errors and by the LALR conflict
// errors; the build orchestrator's own errors and the DFA's
// unmatchable-alternative warning carry an empty Code.
type Code string

const (
	CodeDfaStateLimitExceeded    Code = "FARKLE0001"
	CodeIndistinguishableSymbols Code = "FARKLE0002"
	CodeShiftReduceConflict      Code = "FARKLE0003"
	CodeReduceReduceConflict     Code = "FARKLE0004"
	CodeAcceptReduceConflict     Code = "FARKLE0005"
)

// Diagnostic is one record emitted during a build.
type Diagnostic struct {
	Severity Severity
	Code     Code   // empty for Verbose/Debug/Information and for the uncoded warnings and errors listed on Code
	Message  string
}

func (d Diagnostic) String() string {
	if d.Code == "" {
		return fmt.Sprintf("[%s] %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("[%s %s] %s", d.Severity, d.Code, d.Message)
}

// Collector accumulates diagnostics raised during one build invocation and
// forwards each one, as it arrives, to an optional listener callback
// (spec §6's {onDiagnostic} builder option).
type Collector struct {
	diagnostics []Diagnostic
	onDiagnostic func(Diagnostic)
}

// NewCollector returns a Collector that also forwards every diagnostic to
// onDiagnostic, if non-nil, as soon as it is raised.
func NewCollector(onDiagnostic func(Diagnostic)) *Collector {
	return &Collector{onDiagnostic: onDiagnostic}
}

// Report appends d and forwards it to the listener.
func (c *Collector) Report(d Diagnostic) {
	c.diagnostics = append(c.diagnostics, d)
	if c.onDiagnostic != nil {
		c.onDiagnostic(d)
	}
}

// Reportf is a convenience wrapper building a Diagnostic from a format
// string.
func (c *Collector) Reportf(severity Severity, code Code, format string, args ...interface{}) {
	c.Report(Diagnostic{Severity: severity, Code: code, Message: fmt.Sprintf(format, args...)})
}

// All returns every diagnostic reported so far, in report order.
func (c *Collector) All() []Diagnostic { return c.diagnostics }

// HasErrors reports whether any SeverityError diagnostic was reported.
// A built grammar with HasErrors true is marked Unparsable (spec §7).
func (c *Collector) HasErrors() bool {
	for _, d := range c.diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
