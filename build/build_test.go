package build_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/gramforge/build"
	"github.com/aledsdavies/gramforge/dfa"
	"github.com/aledsdavies/gramforge/diag"
	"github.com/aledsdavies/gramforge/lalr"
	"github.com/aledsdavies/gramforge/model"
)

// token is one lexed unit, mirroring regexstring's own (unexported) token
// type since this package cannot reach it.
type token struct {
	Symbol model.EntityHandle
	Text   string
}

func lookupEdge(st dfa.State, c uint16) (int, bool) {
	for _, e := range st.Edges {
		if c >= e.KeyFrom && c <= e.KeyTo {
			return e.Target - 1, true
		}
	}
	if st.Default != 0 {
		return st.Default - 1, true
	}
	return 0, false
}

// tokenize walks table over input using maximal munch, the same driver
// shape regexstring/lexer.go uses over its own bootstrap table.
func tokenize(input string, table *dfa.Table) ([]token, error) {
	runes := []rune(input)
	pos := 0
	var tokens []token

	for pos < len(runes) {
		state := 0
		lastLen := -1
		var lastAccept model.EntityHandle
		cur := pos

		for {
			st := table.States[state]
			if !st.Accept.IsNil() {
				lastLen = cur - pos
				lastAccept = st.Accept
			}
			if cur >= len(runes) {
				break
			}
			c := uint16(runes[cur])
			target, ok := lookupEdge(st, c)
			if !ok {
				break
			}
			state = target
			cur++
		}

		if lastLen < 0 {
			return nil, fmt.Errorf("unexpected character %q at position %d", runes[pos], pos)
		}
		if lastLen == 0 {
			return nil, fmt.Errorf("empty token matched at position %d", pos)
		}
		tokens = append(tokens, token{Symbol: lastAccept, Text: string(runes[pos : pos+lastLen])})
		pos += lastLen
	}

	return tokens, nil
}

type frame struct {
	state int
	value interface{}
}

// driveResult captures the outcome of driving an LALR table to EOF, along
// with the shift/reduce counts the single-shift/single-reduce scenario
// needs to check.
type driveResult struct {
	value   interface{}
	shifts  int
	reduces int
}

// drive runs a generic shift-reduce loop over table, shifting each token's
// Text as its semantic value and calling reduceFn for every reduction. This
// mirrors regexstring/parse.go's drive function, generalized over a
// caller-supplied reduction function since each test grammar's semantic
// values differ.
func drive(g *model.Grammar, table *lalr.Table, tokens []token, reduceFn func(p *model.Production, values []interface{}) (interface{}, error)) (driveResult, error) {
	stack := []frame{{state: 0}}
	pos := 0
	var result driveResult

	reduce := func(prodIdx int) error {
		p := &g.Productions[prodIdx-1]
		n := len(p.Members)
		values := make([]interface{}, n)
		for i := n - 1; i >= 0; i-- {
			values[i] = stack[len(stack)-1].value
			stack = stack[:len(stack)-1]
		}
		v, err := reduceFn(p, values)
		if err != nil {
			return err
		}
		from := stack[len(stack)-1].state
		for _, ge := range table.States[from].Gotos {
			if ge.Nonterminal == p.Head {
				stack = append(stack, frame{state: ge.State, value: v})
				result.reduces++
				return nil
			}
		}
		return fmt.Errorf("no goto for nonterminal %s from state %d", p.Head, from)
	}

	for {
		top := stack[len(stack)-1].state
		if pos >= len(tokens) {
			eof := table.States[top].EOFActions
			if len(eof) != 1 {
				return result, fmt.Errorf("state %d: expected exactly one EOF action, got %d", top, len(eof))
			}
			switch eof[0].Kind {
			case lalr.ActionAccept:
				result.value = stack[len(stack)-1].value
				return result, nil
			case lalr.ActionReduce:
				if err := reduce(eof[0].Production); err != nil {
					return result, err
				}
			default:
				return result, fmt.Errorf("state %d: unexpected EOF action %v", top, eof[0].Kind)
			}
			continue
		}

		tok := tokens[pos]
		var action *lalr.Action
		for i := range table.States[top].Actions {
			if table.States[top].Actions[i].Terminal == tok.Symbol {
				action = &table.States[top].Actions[i].Action
				break
			}
		}
		if action == nil {
			return result, fmt.Errorf("state %d: unexpected token %q", top, tok.Text)
		}
		switch action.Kind {
		case lalr.ActionShift:
			stack = append(stack, frame{state: action.Target, value: tok.Text})
			result.shifts++
			pos++
		case lalr.ActionReduce:
			if err := reduce(action.Production); err != nil {
				return result, err
			}
		default:
			return result, fmt.Errorf("state %d: unexpected action %v on %q", top, action.Kind, tok.Text)
		}
	}
}

func passthroughOrJoin(p *model.Production, values []interface{}) (interface{}, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected production arity %d", len(values))
	}
	return values[0], nil
}

// Scenario 1: grammar S -> a; input "a" accepts after one shift and one
// reduce, consuming exactly one token.
func TestBuildSingleShiftReduceGrammar(t *testing.T) {
	def := &build.GrammarDefinition{
		Options:      build.GlobalOptions{GrammarName: "SingleShiftReduce"},
		Terminals:    []build.TerminalDef{{Name: "A", Pattern: "a"}},
		Nonterminals: []build.NonterminalDef{{Name: "S"}},
		Productions: []build.ProductionDef{
			{Head: "S", Members: []build.Member{{Kind: build.MemberTerminal, Name: "A"}}},
		},
	}

	res, err := build.Build(context.Background(), def, build.Options{})
	require.NoError(t, err)
	require.False(t, res.Unparsable())
	require.NotNil(t, res.DFA)
	require.NotNil(t, res.LR)

	tokens, err := tokenize("a", res.DFA)
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	dr, err := drive(res.Grammar, res.LR, tokens, passthroughOrJoin)
	require.NoError(t, err)
	require.Equal(t, 1, dr.shifts)
	require.Equal(t, 1, dr.reduces)
	require.Equal(t, "a", dr.value)
}

// Scenario 2: INT/FLOAT longest-match tokenizing.
func TestBuildLongestMatchTokenizing(t *testing.T) {
	def := &build.GrammarDefinition{
		Options: build.GlobalOptions{GrammarName: "Numbers", CaseSensitive: true},
		Terminals: []build.TerminalDef{
			{Name: "INT", Pattern: `[0-9]+`},
			{Name: "FLOAT", Pattern: `[0-9]+\.[0-9]+`},
		},
		Nonterminals: []build.NonterminalDef{{Name: "S"}},
		Productions: []build.ProductionDef{
			{Head: "S", Members: []build.Member{{Kind: build.MemberTerminal, Name: "INT"}}},
			{Head: "S", Members: []build.Member{{Kind: build.MemberTerminal, Name: "FLOAT"}}},
		},
	}

	res, err := build.Build(context.Background(), def, build.Options{})
	require.NoError(t, err)
	require.False(t, res.Unparsable())
	require.NotNil(t, res.DFA)

	floatHandle := res.Grammar.TokenSymbols[1].Handle() // FLOAT declared second
	intHandle := res.Grammar.TokenSymbols[0].Handle()

	floatTokens, err := tokenize("3.14", res.DFA)
	require.NoError(t, err)
	require.Len(t, floatTokens, 1)
	require.Equal(t, floatHandle, floatTokens[0].Symbol)
	require.Equal(t, "3.14", floatTokens[0].Text)

	intTokens, err := tokenize("42", res.DFA)
	require.NoError(t, err)
	require.Len(t, intTokens, 1)
	require.Equal(t, intHandle, intTokens[0].Symbol)
	require.Equal(t, "42", intTokens[0].Text)
}

// Scenario 3: case-insensitive literal "if" matches "if"/"IF"/"If", and
// "iff" splits into IF followed by a single-letter token.
func TestBuildCaseInsensitiveLiteral(t *testing.T) {
	def := &build.GrammarDefinition{
		Options: build.GlobalOptions{GrammarName: "CaseInsensitive", CaseSensitive: false},
		Terminals: []build.TerminalDef{
			{Name: "IF", Pattern: "if"},
			{Name: "LETTER", Pattern: "[a-z]"},
		},
		Nonterminals: []build.NonterminalDef{{Name: "S"}},
		Productions: []build.ProductionDef{
			{Head: "S", Members: []build.Member{{Kind: build.MemberTerminal, Name: "IF"}}},
			{Head: "S", Members: []build.Member{{Kind: build.MemberTerminal, Name: "LETTER"}}},
		},
	}

	res, err := build.Build(context.Background(), def, build.Options{})
	require.NoError(t, err)
	require.False(t, res.Unparsable())

	ifHandle := res.Grammar.TokenSymbols[0].Handle()
	letterHandle := res.Grammar.TokenSymbols[1].Handle()

	for _, in := range []string{"if", "IF", "If"} {
		tokens, err := tokenize(in, res.DFA)
		require.NoError(t, err, in)
		require.Len(t, tokens, 1, in)
		require.Equal(t, ifHandle, tokens[0].Symbol, in)
	}

	tokens, err := tokenize("iff", res.DFA)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	require.Equal(t, ifHandle, tokens[0].Symbol)
	require.Equal(t, "if", tokens[0].Text)
	require.Equal(t, letterHandle, tokens[1].Symbol)
	require.Equal(t, "f", tokens[1].Text)
}

// Scenario 4: left-associative operator scope with two precedence levels
// gives "*"/"/" tighter binding than "+"/"-", and same-precedence operators
// associate left.
func TestBuildOperatorPrecedence(t *testing.T) {
	def := &build.GrammarDefinition{
		Options: build.GlobalOptions{
			GrammarName:   "Arith",
			CaseSensitive: true,
			OperatorScope: []build.PrecedenceGroup{
				{Type: lalr.LeftAssociative, Symbols: []string{"PLUS", "MINUS"}},
				{Type: lalr.LeftAssociative, Symbols: []string{"STAR", "SLASH"}},
			},
		},
		Terminals: []build.TerminalDef{
			{Name: "NUMBER", Pattern: `[0-9]+`},
			{Name: "PLUS", Pattern: `\+`},
			{Name: "MINUS", Pattern: `\-`},
			{Name: "STAR", Pattern: `\*`},
			{Name: "SLASH", Pattern: `\/`},
		},
		Nonterminals: []build.NonterminalDef{{Name: "E"}},
		Productions: []build.ProductionDef{
			{Head: "E", Members: []build.Member{
				{Kind: build.MemberNonterminal, Name: "E"},
				{Kind: build.MemberTerminal, Name: "PLUS"},
				{Kind: build.MemberNonterminal, Name: "E"},
			}},
			{Head: "E", Members: []build.Member{
				{Kind: build.MemberNonterminal, Name: "E"},
				{Kind: build.MemberTerminal, Name: "MINUS"},
				{Kind: build.MemberNonterminal, Name: "E"},
			}},
			{Head: "E", Members: []build.Member{
				{Kind: build.MemberNonterminal, Name: "E"},
				{Kind: build.MemberTerminal, Name: "STAR"},
				{Kind: build.MemberNonterminal, Name: "E"},
			}},
			{Head: "E", Members: []build.Member{
				{Kind: build.MemberNonterminal, Name: "E"},
				{Kind: build.MemberTerminal, Name: "SLASH"},
				{Kind: build.MemberNonterminal, Name: "E"},
			}},
			{Head: "E", Members: []build.Member{{Kind: build.MemberTerminal, Name: "NUMBER"}}},
		},
	}

	res, err := build.Build(context.Background(), def, build.Options{})
	require.NoError(t, err)
	require.False(t, res.Unparsable())
	require.NotNil(t, res.LR)
	require.False(t, res.LR.IsGLR)

	reduceArith := func(p *model.Production, values []interface{}) (interface{}, error) {
		switch len(values) {
		case 1:
			return values[0], nil
		case 3:
			return fmt.Sprintf("(%s %s %s)", values[0], values[1], values[2]), nil
		default:
			return nil, fmt.Errorf("unexpected arity %d", len(values))
		}
	}

	tokens, err := tokenize("1+2*3", res.DFA)
	require.NoError(t, err)
	dr, err := drive(res.Grammar, res.LR, tokens, reduceArith)
	require.NoError(t, err)
	require.Equal(t, "(1 + (2 * 3))", dr.value)

	tokens, err = tokenize("1-2-3", res.DFA)
	require.NoError(t, err)
	dr, err = drive(res.Grammar, res.LR, tokens, reduceArith)
	require.NoError(t, err)
	require.Equal(t, "((1 - 2) - 3)", dr.value)
}

// Scenario 5: a regex exceeding the default DFA state budget fails with
// FARKLE0001 and produces no LR table.
func TestBuildDfaStateLimitExceeded(t *testing.T) {
	def := &build.GrammarDefinition{
		Options:      build.GlobalOptions{GrammarName: "TooBig", CaseSensitive: true},
		Terminals:    []build.TerminalDef{{Name: "BIG", Pattern: `[ab]*[ab]{32}`}},
		Nonterminals: []build.NonterminalDef{{Name: "S"}},
		Productions: []build.ProductionDef{
			{Head: "S", Members: []build.Member{{Kind: build.MemberTerminal, Name: "BIG"}}},
		},
	}

	res, err := build.Build(context.Background(), def, build.Options{})
	require.NoError(t, err)
	require.Nil(t, res.DFA)
	require.Nil(t, res.LR)
	require.True(t, res.Unparsable())

	var found bool
	for _, d := range res.Diagnostics {
		if d.Code == diag.CodeDfaStateLimitExceeded {
			found = true
		}
	}
	require.True(t, found, "expected a %s diagnostic", diag.CodeDfaStateLimitExceeded)
}

// Scenario 6: a grammar with two groups that share the same end-of-group
// literal ("//") must build successfully, with both groups' End handle
// deduplicated to a single token symbol.
func TestBuildGroupEndLiteralDeduplication(t *testing.T) {
	def := &build.GrammarDefinition{
		Options:      build.GlobalOptions{GrammarName: "SharedEnd", CaseSensitive: true},
		Nonterminals: []build.NonterminalDef{{Name: "S"}},
		Groups: []build.GroupDef{
			{Name: "BlockA", StartLiteral: "/*", EndLiteral: "//", AdvanceByCharacter: true},
			{Name: "BlockB", StartLiteral: "<!--", EndLiteral: "//", AdvanceByCharacter: true},
		},
		Productions: []build.ProductionDef{
			{Head: "S", Members: []build.Member{
				{Kind: build.MemberTerminal, Name: "BlockA"},
				{Kind: build.MemberTerminal, Name: "BlockB"},
			}},
		},
	}

	res, err := build.Build(context.Background(), def, build.Options{})
	require.NoError(t, err)
	require.False(t, res.Unparsable())
	require.Len(t, res.Grammar.Groups, 2)
	require.Equal(t, res.Grammar.Groups[0].End, res.Grammar.Groups[1].End)

	endSymbolCount := 0
	for _, ts := range res.Grammar.TokenSymbols {
		if ts.Name == "BlockAEnd" {
			endSymbolCount++
		}
	}
	require.Equal(t, 1, endSymbolCount)
}
