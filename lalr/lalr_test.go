package lalr_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aledsdavies/gramforge/diag"
	"github.com/aledsdavies/gramforge/lalr"
	"github.com/aledsdavies/gramforge/model"
)

// buildSimpleGrammar builds S -> a, used for the "grammar S -> a; input a"
// scenario (spec §8 scenario 1).
func buildSimpleGrammar(t *testing.T) (*model.Grammar, model.EntityHandle) {
	t.Helper()
	g := model.NewGrammar("simple")
	a, err := g.NewTokenSymbol("a", model.AttrTerminal)
	if err != nil {
		t.Fatalf("NewTokenSymbol: %v", err)
	}
	s := g.NewNonterminal("S")
	g.Start = s.Handle()
	if _, err := g.NewProduction(s.Handle(), []model.EntityHandle{a.Handle()}); err != nil {
		t.Fatalf("NewProduction: %v", err)
	}
	if err := g.FinalizeProductionRanges(); err != nil {
		t.Fatalf("FinalizeProductionRanges: %v", err)
	}
	return g, a.Handle()
}

// TestSimpleGrammarAcceptsSingleShiftReduce verifies scenario 1: S -> a;
// input "a" accepts after one shift and one reduce.
func TestSimpleGrammarAcceptsSingleShiftReduce(t *testing.T) {
	g, a := buildSimpleGrammar(t)
	collector := diag.NewCollector(nil)
	table, err := lalr.Build(context.Background(), g, lalr.OperatorScope{}, collector)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if collector.HasErrors() {
		t.Fatalf("unexpected errors: %+v", collector.All())
	}

	state := 0
	shiftFound := false
	for _, e := range table.States[state].Actions {
		if e.Terminal == a && e.Action.Kind == lalr.ActionShift {
			shiftFound = true
			state = e.Action.Target
		}
	}
	if !shiftFound {
		t.Fatalf("expected a shift action on %v in state 0", a)
	}
	acts := table.States[state].EOFActions
	if len(acts) != 1 || acts[0].Kind != lalr.ActionReduce {
		t.Fatalf("expected a single reduce action at EOF, got %+v", acts)
	}
	reduceTo := acts[0].Production
	if reduceTo != 1 {
		t.Fatalf("expected reduce to production 1, got %d", reduceTo)
	}
}

// arithGrammar builds E -> E+E | E-E | E*E | E/E | NUMBER, used by spec §8
// scenario 4.
type arithGrammar struct {
	g                            *model.Grammar
	number, plus, minus, star, slash model.EntityHandle
}

func buildArithGrammar(t *testing.T) arithGrammar {
	t.Helper()
	g := model.NewGrammar("arith")
	number, err := g.NewTokenSymbol("NUMBER", model.AttrTerminal)
	if err != nil {
		t.Fatalf("NewTokenSymbol NUMBER: %v", err)
	}
	plus, err := g.NewTokenSymbol("+", model.AttrTerminal)
	if err != nil {
		t.Fatalf("NewTokenSymbol +: %v", err)
	}
	minus, err := g.NewTokenSymbol("-", model.AttrTerminal)
	if err != nil {
		t.Fatalf("NewTokenSymbol -: %v", err)
	}
	star, err := g.NewTokenSymbol("*", model.AttrTerminal)
	if err != nil {
		t.Fatalf("NewTokenSymbol *: %v", err)
	}
	slash, err := g.NewTokenSymbol("/", model.AttrTerminal)
	if err != nil {
		t.Fatalf("NewTokenSymbol /: %v", err)
	}
	e := g.NewNonterminal("E")
	g.Start = e.Handle()

	for _, op := range []model.EntityHandle{plus.Handle(), minus.Handle(), star.Handle(), slash.Handle()} {
		if _, err := g.NewProduction(e.Handle(), []model.EntityHandle{e.Handle(), op, e.Handle()}); err != nil {
			t.Fatalf("NewProduction E op E: %v", err)
		}
	}
	if _, err := g.NewProduction(e.Handle(), []model.EntityHandle{number.Handle()}); err != nil {
		t.Fatalf("NewProduction E -> NUMBER: %v", err)
	}
	if err := g.FinalizeProductionRanges(); err != nil {
		t.Fatalf("FinalizeProductionRanges: %v", err)
	}
	return arithGrammar{g: g, number: number.Handle(), plus: plus.Handle(), minus: minus.Handle(), star: star.Handle(), slash: slash.Handle()}
}

func arithScope(ag arithGrammar) lalr.OperatorScope {
	return lalr.OperatorScope{
		Groups: []lalr.AssociativityGroup{
			{Type: lalr.LeftAssociative, Symbols: []model.EntityHandle{ag.plus, ag.minus}},
			{Type: lalr.LeftAssociative, Symbols: []model.EntityHandle{ag.star, ag.slash}},
		},
		CanResolveReduceReduce: true,
	}
}

type tok struct {
	term model.EntityHandle
	text string
}

// runParse drives table over input using a plain shift-reduce stack
// machine, building a fully-parenthesized string via each reduction,
// against the grammar's 5 productions in declaration order (+,-,*,/,NUMBER).
func runParse(t *testing.T, ag arithGrammar, table *lalr.Table, input []tok) string {
	t.Helper()
	type frame struct {
		state int
		value string
	}
	stack := []frame{{state: 0}}
	pos := 0

	opText := map[int]string{1: "+", 2: "-", 3: "*", 4: "/"}

	reduce := func(prodIdx int) {
		members := 3
		if prodIdx == 5 {
			members = 1
		}
		popped := stack[len(stack)-members:]
		stack = stack[:len(stack)-members]
		var value string
		if prodIdx == 5 {
			value = popped[0].value
		} else {
			value = fmt.Sprintf("(%s%s%s)", popped[0].value, opText[prodIdx], popped[2].value)
		}
		top := stack[len(stack)-1].state
		var next int
		for _, gt := range table.States[top].Gotos {
			if gt.Nonterminal == ag.g.Start {
				next = gt.State
			}
		}
		stack = append(stack, frame{state: next, value: value})
	}

	for {
		top := stack[len(stack)-1].state
		if pos >= len(input) {
			acts := table.States[top].EOFActions
			if len(acts) != 1 {
				t.Fatalf("ambiguous or missing EOF action at state %d: %+v", top, acts)
			}
			switch acts[0].Kind {
			case lalr.ActionAccept:
				return stack[len(stack)-1].value
			case lalr.ActionReduce:
				reduce(acts[0].Production)
				continue
			default:
				t.Fatalf("unexpected EOF action kind %v", acts[0].Kind)
			}
		}

		cur := input[pos]
		var found *lalr.Action
		for _, e := range table.States[top].Actions {
			if e.Terminal == cur.term {
				a := e.Action
				found = &a
				break
			}
		}
		if found == nil {
			t.Fatalf("no action for %v at state %d", cur.term, top)
		}
		switch found.Kind {
		case lalr.ActionShift:
			stack = append(stack, frame{state: found.Target, value: cur.text})
			pos++
		case lalr.ActionReduce:
			reduce(found.Production)
		default:
			t.Fatalf("unexpected action kind %v", found.Kind)
		}
	}
}

// TestOperatorPrecedenceLeftAssociative verifies spec §8 scenario 4: with
// LeftAssociative groups ["+","-"] and ["*","/"] (ascending precedence),
// "1+2*3" parses as (1+(2*3)) and "1-2-3" parses as ((1-2)-3).
func TestOperatorPrecedenceLeftAssociative(t *testing.T) {
	ag := buildArithGrammar(t)
	collector := diag.NewCollector(nil)
	table, err := lalr.Build(context.Background(), ag.g, arithScope(ag), collector)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if collector.HasErrors() {
		t.Fatalf("unexpected errors: %+v", collector.All())
	}

	got := runParse(t, ag, table, []tok{
		{ag.number, "1"}, {ag.plus, "+"}, {ag.number, "2"}, {ag.star, "*"}, {ag.number, "3"},
	})
	if want := "(1+(2*3))"; got != want {
		t.Fatalf("1+2*3: got %q, want %q", got, want)
	}

	got = runParse(t, ag, table, []tok{
		{ag.number, "1"}, {ag.minus, "-"}, {ag.number, "2"}, {ag.minus, "-"}, {ag.number, "3"},
	})
	if want := "((1-2)-3)"; got != want {
		t.Fatalf("1-2-3: got %q, want %q", got, want)
	}
}

// TestOperatorPrecedenceWithoutScopeIsAmbiguous verifies the same grammar
// without an operator scope reports shift/reduce conflicts, since nothing
// resolves the dangling-operator ambiguity (spec §4.4).
func TestOperatorPrecedenceWithoutScopeIsAmbiguous(t *testing.T) {
	ag := buildArithGrammar(t)
	collector := diag.NewCollector(nil)
	_, err := lalr.Build(context.Background(), ag.g, lalr.OperatorScope{}, collector)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	found := false
	for _, d := range collector.All() {
		if d.Code == diag.CodeShiftReduceConflict {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected at least one shift/reduce conflict diagnostic, got %+v", collector.All())
	}
}
