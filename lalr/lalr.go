// Package lalr builds an LALR(1) (or, when conflicts survive, GLR-style)
// parser table from a model.Grammar: augmentation, canonical LR(1) item
// sets merged by LALR-core, action/goto tables, and operator-precedence
// conflict resolution (spec §4.4).
package lalr

import (
	"context"
	"sort"

	"github.com/aledsdavies/gramforge/diag"
	"github.com/aledsdavies/gramforge/model"
)

// ActionKind discriminates one parser action.
type ActionKind uint8

const (
	ActionShift ActionKind = iota
	ActionReduce
	ActionAccept
	ActionError
)

// Action is a tagged union: Shift carries Target (a state index), Reduce
// carries Production (a model.Production index), Accept and Error carry no
// payload (spec §9: "tagged unions... a reduce action carries its
// production index, a shift carries its target state").
type Action struct {
	Kind       ActionKind
	Target     int // ActionShift: next state
	Production int // ActionReduce: model.Production.Index
}

// ActionEntry is one (terminal, action) pair in a state's action table.
// Terminal is never the EOF sentinel; EOF actions live in State.EOFActions.
type ActionEntry struct {
	Terminal model.EntityHandle
	Action   Action
}

// GotoEntry is one (nonterminal, state) pair in a state's goto table.
type GotoEntry struct {
	Nonterminal model.EntityHandle
	State       int
}

// State is one LALR automaton state (spec §3 "LR tables"). Actions and
// Gotos are sorted by symbol index. EOFActions holds the state's action(s)
// on end-of-input; more than one entry means the table is GLR at this
// state.
type State struct {
	Actions    []ActionEntry
	EOFActions []Action
	Gotos      []GotoEntry
}

// Table is the built LALR/GLR parser table.
type Table struct {
	States []State
	// IsGLR is true if any state retains more than one action for some
	// symbol because a conflict could not be resolved (spec §4.4's
	// "writer marks the machine as GLR").
	IsGLR bool
}

// Build runs the full LALR(1) pipeline over g, resolving conflicts with
// scope, and reports FARKLE0003/0004/0005 diagnostics for conflicts as they
// are encountered. It checks ctx at the start of each item-set expansion
// (spec §5).
func Build(ctx context.Context, g *model.Grammar, scope OperatorScope, collector *diag.Collector) (*Table, error) {
	if err := ctx.Err(); err != nil {
		collector.Reportf(diag.SeverityInformation, "", "LALR construction cancelled")
		return nil, err
	}

	ag := augment(g)
	states, transitions, cancelled := canonicalCollection(ctx, ag)
	if cancelled {
		collector.Reportf(diag.SeverityInformation, "", "LALR item-set expansion cancelled")
		return nil, ctx.Err()
	}

	table := &Table{States: make([]State, len(states))}
	for i, items := range states {
		st, err := buildStateActions(ag, items, transitions[i], scope, collector)
		if err != nil {
			return nil, err
		}
		table.States[i] = st
		if len(st.EOFActions) > 1 {
			table.IsGLR = true
		}
	}
	for i, trans := range transitions {
		for x, j := range trans {
			if isTerminal(x) {
				continue
			}
			table.States[i].Gotos = append(table.States[i].Gotos, GotoEntry{Nonterminal: x, State: j})
		}
		sort.Slice(table.States[i].Gotos, func(a, b int) bool {
			return table.States[i].Gotos[a].Nonterminal.Index < table.States[i].Gotos[b].Nonterminal.Index
		})
	}

	// Recompute IsGLR over the grouped action table (a state can have
	// multiple ActionEntry rows for the same terminal if unresolved).
	for _, st := range table.States {
		byTerm := make(map[model.EntityHandle]int)
		for _, e := range st.Actions {
			byTerm[e.Terminal]++
		}
		for _, n := range byTerm {
			if n > 1 {
				table.IsGLR = true
			}
		}
	}

	return table, nil
}

// buildStateActions derives one state's action/EOF-action rows from its
// item set, resolving shift/reduce, reduce/reduce, and accept/reduce
// conflicts via scope (spec §4.4).
func buildStateActions(ag *augmentedGrammar, items map[lr1Item]bool, trans map[model.EntityHandle]int, scope OperatorScope, collector *diag.Collector) (State, error) {
	type pending struct {
		terminal model.EntityHandle // eofSymbol for EOF actions
		action   Action
	}
	var rows []pending

	for it := range items {
		sym, hasNext := ag.atDot(it)
		if hasNext {
			if !isTerminal(sym) {
				continue
			}
			target, ok := trans[sym]
			if !ok {
				continue
			}
			if sym == eofSymbol {
				// S' -> S . # : accept under EOF. EOF actions are only ever
				// Accept or Reduce, so the shift on # is folded into Accept.
				rows = append(rows, pending{terminal: eofSymbol, action: Action{Kind: ActionAccept}})
			} else {
				rows = append(rows, pending{terminal: sym, action: Action{Kind: ActionShift, Target: target}})
			}
			continue
		}

		// Dot at end of production.
		if ag.prods[it.prod].modelIndex == 0 {
			// S' -> S # . : accept under EOF.
			rows = append(rows, pending{terminal: eofSymbol, action: Action{Kind: ActionAccept}})
			continue
		}
		rows = append(rows, pending{terminal: it.lookahead, action: Action{Kind: ActionReduce, Production: ag.prods[it.prod].modelIndex}})
	}

	// Group by terminal (including eofSymbol) and resolve conflicts.
	// Every item with the same terminal after the dot yields the same
	// shift, so identical actions are collapsed before resolution.
	byTerminal := make(map[model.EntityHandle][]Action)
	for _, r := range rows {
		dup := false
		for _, a := range byTerminal[r.terminal] {
			if a == r.action {
				dup = true
				break
			}
		}
		if !dup {
			byTerminal[r.terminal] = append(byTerminal[r.terminal], r.action)
		}
	}

	var st State
	for terminal, actions := range byTerminal {
		resolved := resolveConflicts(ag, terminal, actions, scope, collector)
		if terminal == eofSymbol {
			st.EOFActions = append(st.EOFActions, resolved...)
			continue
		}
		for _, a := range resolved {
			st.Actions = append(st.Actions, ActionEntry{Terminal: terminal, Action: a})
		}
	}

	sort.Slice(st.Actions, func(i, j int) bool {
		if st.Actions[i].Terminal.Index != st.Actions[j].Terminal.Index {
			return st.Actions[i].Terminal.Index < st.Actions[j].Terminal.Index
		}
		return st.Actions[i].Action.Kind < st.Actions[j].Action.Kind
	})
	return st, nil
}

// resolveConflicts applies spec §4.4's operator-scope rules to a bucket of
// actions that all occur under the same lookahead terminal in one state.
// It returns every action still standing: a singleton slice when fully
// resolved, or more than one when the conflict could not be resolved
// (GLR-style retention).
func resolveConflicts(ag *augmentedGrammar, terminal model.EntityHandle, actions []Action, scope OperatorScope, collector *diag.Collector) []Action {
	if len(actions) <= 1 {
		return actions
	}

	hasAccept := false
	for _, a := range actions {
		if a.Kind == ActionAccept {
			hasAccept = true
		}
	}
	if hasAccept {
		collector.Reportf(diag.SeverityError, diag.CodeAcceptReduceConflict, "accept/reduce conflict: a completed parse competes with a pending reduction")
		// No action is preferred: every action is retained in the returned
		// table, and the hard error already flags the grammar as
		// Unparsable.
		return actions
	}

	var shifts, reduces []Action
	for _, a := range actions {
		switch a.Kind {
		case ActionShift:
			shifts = append(shifts, a)
		case ActionReduce:
			reduces = append(reduces, a)
		}
	}

	if len(shifts) == 1 && len(reduces) == 1 {
		resolved, ok := resolveShiftReduce(ag, terminal, shifts[0], reduces[0], scope)
		if ok {
			return []Action{resolved}
		}
		collector.Reportf(diag.SeverityError, diag.CodeShiftReduceConflict, "unresolved shift/reduce conflict (production %d)", reduces[0].Production)
		return actions
	}

	if len(shifts) == 0 && len(reduces) > 1 {
		if scope.CanResolveReduceReduce {
			lowest := reduces[0]
			for _, r := range reduces[1:] {
				if r.Production < lowest.Production {
					lowest = r
				}
			}
			return []Action{lowest}
		}
		collector.Reportf(diag.SeverityError, diag.CodeReduceReduceConflict, "unresolved reduce/reduce conflict among %d productions", len(reduces))
		return actions
	}

	// Multiple shifts should not occur (a DFA only ever has one shift per
	// terminal per state); multiple shifts plus multiple reduces is an
	// unusual, deeply ambiguous grammar. Report as shift/reduce and retain
	// all actions.
	collector.Reportf(diag.SeverityError, diag.CodeShiftReduceConflict, "unresolved conflict with %d shift and %d reduce actions", len(shifts), len(reduces))
	return actions
}

// resolveShiftReduce implements the precedence/associativity table from
// spec §4.4.
func resolveShiftReduce(ag *augmentedGrammar, terminal model.EntityHandle, shift, reduce Action, scope OperatorScope) (Action, bool) {
	prod := findProduction(ag, reduce.Production)
	pPrec, pAssoc, pOk := scope.precedenceOf(productionPrecedence(prod))
	tPrec, _, tOk := scope.precedenceOf(terminal)
	if !pOk || !tOk {
		return Action{}, false
	}
	switch {
	case tPrec > pPrec:
		return shift, true
	case tPrec < pPrec:
		return reduce, true
	default:
		switch pAssoc {
		case LeftAssociative:
			return reduce, true
		case RightAssociative:
			return shift, true
		case NonAssociative:
			return Action{Kind: ActionError}, true
		default: // PrecedenceOnly
			return Action{}, false
		}
	}
}

func findProduction(ag *augmentedGrammar, modelIndex int) *model.Production {
	for i := range ag.prods {
		if ag.prods[i].modelIndex == modelIndex {
			return &model.Production{
				Index:      modelIndex,
				Head:       ag.prods[i].head,
				Members:    ag.prods[i].members,
				Precedence: ag.prods[i].precedence,
			}
		}
	}
	return &model.Production{}
}
