package build

import "github.com/aledsdavies/gramforge/lalr"

// TerminalDef declares one lexical terminal. Pattern is textual regex-
// string syntax (spec.md §4.6), resolved via regexstring.Parse during
// Build.
type TerminalDef struct {
	Name        string
	Pattern     string
	Hidden      bool
	SpecialName string
}

// MemberKind discriminates a ProductionDef member's namespace.
type MemberKind uint8

const (
	MemberTerminal MemberKind = iota
	MemberNonterminal
)

// Member is one right-hand-side symbol of a production, named rather than
// handle-addressed since GrammarDefinition is the caller-facing, pre-build
// description of a grammar.
type Member struct {
	Kind MemberKind
	Name string
}

// ProductionDef declares one grammar rule. Precedence, if set, names a
// terminal whose operator-scope precedence this production inherits
// instead of its own last terminal member (spec.md §4.4).
type ProductionDef struct {
	Head       string
	Members    []Member
	Precedence string
}

// NonterminalDef declares one nonterminal.
type NonterminalDef struct {
	Name        string
	SpecialName string
}

// GroupDef declares a lexical bracket pair (spec.md §3's Group, e.g. a
// block comment or a quoted string). Start/End are literal delimiter
// strings; groups whose End literal coincides with another group's End
// literal share a single End token symbol (spec.md §4.7 step 3's
// "deduplicate group-end literals").
type GroupDef struct {
	Name               string
	StartLiteral       string
	EndLiteral         string
	AdvanceByCharacter bool
	EndsOnEndOfInput   bool
	KeepEndToken       bool
	Nesting            []string
}

// NoiseDef declares a miscellaneous noise token symbol (spec.md §4.7
// step 6) that the DFA recognizes and the parser discards.
type NoiseDef struct {
	Name    string
	Pattern string
}

// CommentOptions synthesizes comment groups (spec.md §4.7 step 4). Line
// comments run to end of line; block comments run from Start to End.
// Either or both may be left empty to disable that comment style.
type CommentOptions struct {
	Line       string
	BlockStart string
	BlockEnd   string
}

// PrecedenceGroup is one operator-scope associativity level, naming its
// member symbols by terminal name rather than handle (spec.md §4.4).
type PrecedenceGroup struct {
	Type    lalr.Associativity
	Symbols []string
}

// GlobalOptions bundles the grammar-level options spec.md §6 calls
// "global grammar options": values that change the produced grammar,
// as opposed to builder-only options like cancellation and log level.
type GlobalOptions struct {
	GrammarName            string
	CaseSensitive          bool
	AutoWhitespace         bool
	Comments               CommentOptions
	OperatorScope          []PrecedenceGroup
	CanResolveReduceReduce bool
}

// GrammarDefinition is the normalized input to Build: a flat description
// of a grammar's symbols, productions, and groups (spec.md §4.7). Renames
// overrides a terminal's table name without touching its Pattern, for
// terminals whose name was auto-derived from a literal and needs a
// friendlier diagnostic label.
type GrammarDefinition struct {
	Options      GlobalOptions
	Terminals    []TerminalDef
	Nonterminals []NonterminalDef
	Productions  []ProductionDef
	Groups       []GroupDef
	Noise        []NoiseDef
	Renames      map[string]string
}
