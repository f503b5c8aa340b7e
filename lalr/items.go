package lalr

import (
	"context"
	"sort"

	"github.com/aledsdavies/gramforge/model"
)

// eofSymbol and augStart are sentinels local to this package's internal
// grammar representation; they never escape to the public Table (spec
// §4.4: "new start nonterminal S', new terminal # (EOF)"). Negative
// indices keep them out of the caller's real (1-based) index space.
var (
	eofSymbol = model.EntityHandle{Kind: model.TableKindTokenSymbol, Index: -1}
	augStart  = model.EntityHandle{Kind: model.TableKindNonterminal, Index: -1}
)

// prodRef is one production in the augmented grammar: index 0 is the
// synthetic S' -> S # production; indices 1.. mirror model.Grammar's
// Productions in order, so prodRef.modelIndex is the original 1-based
// model.Production.Index.
type prodRef struct {
	modelIndex int // 0 for the augmented production
	head       model.EntityHandle
	members    []model.EntityHandle
	precedence model.EntityHandle
}

// augmentedGrammar is the grammar representation the LALR algorithm walks:
// the caller's grammar plus the synthetic start production.
type augmentedGrammar struct {
	prods       []prodRef
	prodsByHead map[model.EntityHandle][]int // index into prods
	nullable    map[model.EntityHandle]bool
	first       map[model.EntityHandle]map[model.EntityHandle]bool // nonterminal -> FIRST set (terminals + eofSymbol)
}

func augment(g *model.Grammar) *augmentedGrammar {
	prods := []prodRef{{modelIndex: 0, head: augStart, members: []model.EntityHandle{g.Start, eofSymbol}}}
	for i := range g.Productions {
		p := &g.Productions[i]
		prods = append(prods, prodRef{modelIndex: p.Index, head: p.Head, members: append([]model.EntityHandle(nil), p.Members...), precedence: p.Precedence})
	}

	byHead := make(map[model.EntityHandle][]int)
	for i, p := range prods {
		byHead[p.head] = append(byHead[p.head], i)
	}

	ag := &augmentedGrammar{prods: prods, prodsByHead: byHead}
	ag.computeNullableAndFirst()
	return ag
}

func isTerminal(h model.EntityHandle) bool {
	return h == eofSymbol || h.Kind == model.TableKindTokenSymbol
}

// computeNullableAndFirst runs the standard fixpoint iteration for
// nullability and FIRST sets over nonterminals (spec §4.4's "standard
// closure over FIRST of the tail+lookahead").
func (ag *augmentedGrammar) computeNullableAndFirst() {
	ag.nullable = make(map[model.EntityHandle]bool)
	ag.first = make(map[model.EntityHandle]map[model.EntityHandle]bool)
	for head := range ag.prodsByHead {
		ag.first[head] = make(map[model.EntityHandle]bool)
	}

	changed := true
	for changed {
		changed = false
		for _, p := range ag.prods {
			allNullable := true
			for _, m := range p.members {
				if isTerminal(m) {
					allNullable = false
					if !ag.first[p.head][m] {
						ag.first[p.head][m] = true
						changed = true
					}
					break
				}
				if !ag.nullable[m] {
					allNullable = false
					for sym := range ag.first[m] {
						if !ag.first[p.head][sym] {
							ag.first[p.head][sym] = true
							changed = true
						}
					}
					break
				}
				for sym := range ag.first[m] {
					if !ag.first[p.head][sym] {
						ag.first[p.head][sym] = true
						changed = true
					}
				}
			}
			if allNullable && !ag.nullable[p.head] {
				ag.nullable[p.head] = true
				changed = true
			}
		}
	}
}

// firstOfSequence computes FIRST(seq) followed by lookahead if every
// symbol in seq is nullable (the standard LR(1) lookahead-propagation
// rule).
func (ag *augmentedGrammar) firstOfSequence(seq []model.EntityHandle, lookahead model.EntityHandle) map[model.EntityHandle]bool {
	out := make(map[model.EntityHandle]bool)
	for _, sym := range seq {
		if isTerminal(sym) {
			out[sym] = true
			return out
		}
		for t := range ag.first[sym] {
			out[t] = true
		}
		if !ag.nullable[sym] {
			return out
		}
	}
	out[lookahead] = true
	return out
}

// lr1Item is (production, dot position, lookahead terminal).
type lr1Item struct {
	prod      int // index into augmentedGrammar.prods
	dot       int
	lookahead model.EntityHandle
}

func (ag *augmentedGrammar) atDot(it lr1Item) (model.EntityHandle, bool) {
	members := ag.prods[it.prod].members
	if it.dot >= len(members) {
		return model.EntityHandle{}, false
	}
	return members[it.dot], true
}

// closure expands items to its LR(1) closure (spec §4.4).
func (ag *augmentedGrammar) closure(items map[lr1Item]bool) map[lr1Item]bool {
	out := make(map[lr1Item]bool, len(items))
	for it := range items {
		out[it] = true
	}
	worklist := make([]lr1Item, 0, len(items))
	for it := range items {
		worklist = append(worklist, it)
	}
	for len(worklist) > 0 {
		it := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		sym, ok := ag.atDot(it)
		if !ok || isTerminal(sym) {
			continue
		}
		rest := ag.prods[it.prod].members[it.dot+1:]
		lookaheads := ag.firstOfSequence(rest, it.lookahead)
		for _, prodIdx := range ag.prodsByHead[sym] {
			for la := range lookaheads {
				cand := lr1Item{prod: prodIdx, dot: 0, lookahead: la}
				if !out[cand] {
					out[cand] = true
					worklist = append(worklist, cand)
				}
			}
		}
	}
	return out
}

// gotoSet advances every item in items past symbol X, then closes.
func (ag *augmentedGrammar) gotoSet(items map[lr1Item]bool, x model.EntityHandle) map[lr1Item]bool {
	moved := make(map[lr1Item]bool)
	for it := range items {
		sym, ok := ag.atDot(it)
		if ok && sym == x {
			moved[lr1Item{prod: it.prod, dot: it.dot + 1, lookahead: it.lookahead}] = true
		}
	}
	if len(moved) == 0 {
		return nil
	}
	return ag.closure(moved)
}

// coreKey identifies a state by its LR(0) core (production+dot pairs,
// ignoring lookahead), used to merge canonical LR(1) states into LALR
// states (spec §4.4: "merge by LALR-core").
func coreKey(items map[lr1Item]bool) string {
	type pd struct{ prod, dot int }
	seen := make(map[pd]bool)
	var pairs []pd
	for it := range items {
		p := pd{it.prod, it.dot}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].prod != pairs[j].prod {
			return pairs[i].prod < pairs[j].prod
		}
		return pairs[i].dot < pairs[j].dot
	})
	b := make([]byte, 0, len(pairs)*8)
	for _, p := range pairs {
		b = append(b, byte(p.prod), byte(p.prod>>8), byte(p.prod>>16), byte(p.prod>>24),
			byte(p.dot), byte(p.dot>>8), byte(p.dot>>16), byte(p.dot>>24))
	}
	return string(b)
}

// allSymbols enumerates every grammar symbol (terminals, incl. eofSymbol,
// and nonterminals, incl. augStart) appearing in any production, for
// driving the goto/transition sweep during canonical collection.
func (ag *augmentedGrammar) allSymbols() []model.EntityHandle {
	seen := make(map[model.EntityHandle]bool)
	var out []model.EntityHandle
	add := func(h model.EntityHandle) {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	for _, p := range ag.prods {
		add(p.head)
		for _, m := range p.members {
			add(m)
		}
	}
	return out
}

// canonicalCollection builds the canonical LR(1) item-set collection and
// its transition function, then merges states sharing an LR(0) core into
// LALR states, unioning lookaheads (spec §4.4).
func canonicalCollection(ctx context.Context, ag *augmentedGrammar) (states []map[lr1Item]bool, transitions []map[model.EntityHandle]int, cancelled bool) {
	start := ag.closure(map[lr1Item]bool{{prod: 0, dot: 0, lookahead: eofSymbol}: true})

	var canonical []map[lr1Item]bool
	var canonicalTrans []map[model.EntityHandle]int
	byCanonicalCore := make(map[string]int)

	addCanonical := func(items map[lr1Item]bool) int {
		key := coreKeyWithLookaheads(items)
		if idx, ok := byCanonicalCore[key]; ok {
			return idx
		}
		idx := len(canonical)
		byCanonicalCore[key] = idx
		canonical = append(canonical, items)
		canonicalTrans = append(canonicalTrans, make(map[model.EntityHandle]int))
		return idx
	}

	startIdx := addCanonical(start)
	symbols := ag.allSymbols()
	worklist := []int{startIdx}
	for len(worklist) > 0 {
		if ctx.Err() != nil {
			return nil, nil, true
		}
		i := worklist[0]
		worklist = worklist[1:]
		for _, x := range symbols {
			if isAugmentedStart(x) {
				continue
			}
			target := ag.gotoSet(canonical[i], x)
			if target == nil {
				continue
			}
			key := coreKeyWithLookaheads(target)
			if _, ok := byCanonicalCore[key]; !ok {
				j := addCanonical(target)
				canonicalTrans[i][x] = j
				worklist = append(worklist, j)
				continue
			}
			canonicalTrans[i][x] = byCanonicalCore[key]
		}
	}

	// Merge by LR(0) core into LALR states.
	coreToLALR := make(map[string]int)
	var lalrCores []string
	for _, items := range canonical {
		ck := coreKey(items)
		if _, ok := coreToLALR[ck]; !ok {
			coreToLALR[ck] = len(lalrCores)
			lalrCores = append(lalrCores, ck)
			states = append(states, make(map[lr1Item]bool))
		}
		lalrIdx := coreToLALR[ck]
		for it := range items {
			states[lalrIdx][it] = true
		}
	}

	transitions = make([]map[model.EntityHandle]int, len(states))
	for i := range transitions {
		transitions[i] = make(map[model.EntityHandle]int)
	}
	canonicalToLALR := make([]int, len(canonical))
	for ci, items := range canonical {
		canonicalToLALR[ci] = coreToLALR[coreKey(items)]
	}
	for ci, trans := range canonicalTrans {
		lalrI := canonicalToLALR[ci]
		for x, cj := range trans {
			transitions[lalrI][x] = canonicalToLALR[cj]
		}
	}
	return states, transitions, false
}

func isAugmentedStart(h model.EntityHandle) bool { return h == augStart }

// coreKeyWithLookaheads distinguishes canonical LR(1) states (including
// lookaheads), used only during canonical construction before the LALR
// merge collapses them.
func coreKeyWithLookaheads(items map[lr1Item]bool) string {
	type full struct {
		prod, dot int
		la        model.EntityHandle
	}
	var all []full
	for it := range items {
		all = append(all, full{it.prod, it.dot, it.lookahead})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].prod != all[j].prod {
			return all[i].prod < all[j].prod
		}
		if all[i].dot != all[j].dot {
			return all[i].dot < all[j].dot
		}
		return all[i].la.Index < all[j].la.Index || (all[i].la.Index == all[j].la.Index && all[i].la.Kind < all[j].la.Kind)
	})
	b := make([]byte, 0, len(all)*12)
	for _, f := range all {
		b = append(b, byte(f.prod), byte(f.prod>>8), byte(f.prod>>16), byte(f.prod>>24))
		b = append(b, byte(f.dot), byte(f.dot>>8))
		b = append(b, byte(f.la.Kind), byte(f.la.Index), byte(f.la.Index>>8), byte(f.la.Index>>16))
	}
	return string(b)
}
