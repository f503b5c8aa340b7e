package model_test

import (
	"testing"

	"github.com/aledsdavies/gramforge/model"
)

// TestTerminalMustPrecedeNonterminalTokenSymbols verifies the low-prefix
// invariant from spec §3: no terminal may be registered after the first
// non-terminal token symbol.
func TestTerminalMustPrecedeNonterminalTokenSymbols(t *testing.T) {
	g := model.NewGrammar("G")

	if _, err := g.NewTokenSymbol("NUMBER", model.AttrTerminal); err != nil {
		t.Fatalf("first terminal: %v", err)
	}
	if _, err := g.NewTokenSymbol("(", model.AttrGroupStart); err != nil {
		t.Fatalf("group start: %v", err)
	}
	if _, err := g.NewTokenSymbol("PLUS", model.AttrTerminal); err == nil {
		t.Fatal("expected error registering a terminal after a non-terminal token symbol")
	}
}

// TestGroupStartConsumedOnce verifies exactly one Group may consume a given
// GroupStart token symbol (spec §3).
func TestGroupStartConsumedOnce(t *testing.T) {
	g := model.NewGrammar("G")
	container, _ := g.NewTokenSymbol("Comment", model.AttrNoise)
	start, _ := g.NewTokenSymbol("/*", model.AttrGroupStart)
	end, _ := g.NewTokenSymbol("*/", 0)

	if _, err := g.NewGroup(container.Handle(), start.Handle(), end.Handle(), 0); err != nil {
		t.Fatalf("first group: %v", err)
	}
	if _, err := g.NewGroup(container.Handle(), start.Handle(), end.Handle(), 0); err == nil {
		t.Fatal("expected error reusing the same group start token symbol")
	}
}

// TestFinalizeProductionRangesComputesHeadRanges verifies FirstProduction/
// ProductionCount are derived correctly and that the total matches the
// production table row count (spec §3, §8).
func TestFinalizeProductionRangesComputesHeadRanges(t *testing.T) {
	g := model.NewGrammar("G")
	num, _ := g.NewTokenSymbol("NUM", model.AttrTerminal)
	expr := g.NewNonterminal("Expr")

	p1, _ := g.NewProduction(expr.Handle(), []model.EntityHandle{num.Handle()})
	p2, _ := g.NewProduction(expr.Handle(), []model.EntityHandle{expr.Handle(), num.Handle()})

	if err := g.FinalizeProductionRanges(); err != nil {
		t.Fatalf("FinalizeProductionRanges: %v", err)
	}

	if expr.ProductionCount != 2 {
		t.Errorf("ProductionCount = %d, want 2", expr.ProductionCount)
	}
	if expr.FirstProduction != p1.Index {
		t.Errorf("FirstProduction = %d, want %d", expr.FirstProduction, p1.Index)
	}
	_ = p2
}

// TestFinalizeProductionRangesRejectsOutOfRangeMember verifies production
// member bounds are checked against the actual table sizes (spec §8).
func TestFinalizeProductionRangesRejectsOutOfRangeMember(t *testing.T) {
	g := model.NewGrammar("G")
	expr := g.NewNonterminal("Expr")
	bogus := model.EntityHandle{Kind: model.TableKindTokenSymbol, Index: 99}
	if _, err := g.NewProduction(expr.Handle(), []model.EntityHandle{bogus}); err != nil {
		t.Fatalf("NewProduction: %v", err)
	}

	if err := g.FinalizeProductionRanges(); err == nil {
		t.Fatal("expected error for out-of-range production member")
	}
}

// TestSpecialNameUniqueness verifies re-registering a name under a
// different handle is rejected (spec §3).
func TestSpecialNameUniqueness(t *testing.T) {
	g := model.NewGrammar("G")
	a, _ := g.NewTokenSymbol("A", model.AttrTerminal)
	b, _ := g.NewTokenSymbol("B", model.AttrTerminal)

	if err := g.AddSpecialName("Whitespace", a.Handle()); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := g.AddSpecialName("Whitespace", a.Handle()); err != nil {
		t.Fatalf("idempotent re-registration: %v", err)
	}
	if err := g.AddSpecialName("Whitespace", b.Handle()); err == nil {
		t.Fatal("expected error re-mapping an existing special name")
	}
}

// TestEntityHandleIsNil verifies the zero EntityHandle is considered nil.
func TestEntityHandleIsNil(t *testing.T) {
	var h model.EntityHandle
	if !h.IsNil() {
		t.Error("zero-value EntityHandle should be nil")
	}
}
