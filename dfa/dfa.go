// Package dfa lowers a set of terminal regexes to position leaves (after
// Aho-Sethi-Ullman §3.9.5), computes firstpos/lastpos/followpos, and builds
// a deterministic finite automaton via subset construction, with priority-
// based accept-conflict resolution and a state-count budget (spec §4.3).
package dfa

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/aledsdavies/gramforge/charset"
	"github.com/aledsdavies/gramforge/diag"
	"github.com/aledsdavies/gramforge/model"
	"github.com/aledsdavies/gramforge/regex"
)

// Terminal is one token symbol's regex, ready for DFA lowering. Regex must
// have had regex.ResolveRegexStrings already applied.
type Terminal struct {
	Symbol model.EntityHandle
	Regex  regex.Node
}

// Options configures DFA construction.
type Options struct {
	// MaxTokenizerStates caps the number of DFA states. 0 selects the
	// default budget max(256, 16*leafCount), per spec §4.3/§9.
	MaxTokenizerStates int
	// DefaultCaseSensitive is the case mode assumed for nodes whose own
	// CaseMode is regex.Inherit at the grammar root.
	DefaultCaseSensitive bool
}

// Edge is one transition range within a state: matching code units in
// [KeyFrom, KeyTo] go to Target-1 (Target == 0 means "fail").
type Edge struct {
	KeyFrom, KeyTo uint16
	Target         int
}

// State is one DFA state: a sorted, non-overlapping edge list, an optional
// accept symbol (zero handle = none), and an optional default transition
// (0 = none, else Target-1 is the next state).
type State struct {
	Edges   []Edge
	Accept  model.EntityHandle
	Default int
}

// Table is the built DFA (spec §3 "DFA tables").
type Table struct {
	States []State
}

const universeMax = 0xFFFF // DFA operates over 16-bit code units (spec §1 Non-goals)

// stateBudget returns the effective maxTokenizerStates, applying the
// resolved Open Question from spec §9: max(256, 16*leafCount) clamped to
// int32 max, unless the caller supplied an explicit positive override.
func stateBudget(opts Options, leafCount int) int {
	if opts.MaxTokenizerStates > 0 {
		return opts.MaxTokenizerStates
	}
	budget := 16 * leafCount
	if budget < 256 {
		budget = 256
	}
	if budget > math.MaxInt32 {
		budget = math.MaxInt32
	}
	return budget
}

// Build lowers terminals to position leaves and runs subset construction,
// reporting grammar-level diagnostics (state limit, indistinguishable
// symbols, unmatchable regexes) to collector rather than failing outright,
// per spec §7's "collect as many diagnostics as possible" policy. It
// returns a nil Table only when the state budget is exceeded (spec §4.3)
// or ctx is cancelled; all other diagnostics still yield a usable, if
// imperfect, Table.
func Build(ctx context.Context, terminals []Terminal, collector *diag.Collector, opts Options) (*Table, error) {
	lw := newLowering()
	defaultCase := regex.CaseSensitive
	if !opts.DefaultCaseSensitive {
		defaultCase = regex.CaseInsensitive
	}

	type subRegex struct {
		first []int
	}
	var roots []int // initial DFA state = union of every sub-regex's extended firstpos

	for _, term := range terminals {
		alternatives := topLevelAlternatives(term.Regex)
		for _, alt := range alternatives {
			info := lw.lower(alt, defaultCase)
			if info.hasVoid && len(info.last) == 0 {
				collector.Reportf(diag.SeverityWarning, "", "symbol %s has an unmatchable alternative (contains Void with no reachable accept)", term.Symbol)
			}
			priority := 0
			if info.hasStar {
				priority = 1
			}
			endIdx := lw.addLeaf(leaf{Kind: LeafEnd, TokenSymbol: term.Symbol, Priority: priority})
			for _, p := range info.last {
				lw.addFollow(p, []int{endIdx})
			}
			first := info.first
			if info.nullable {
				first = unionSlices(first, []int{endIdx})
			}
			roots = unionSlices(roots, first)
		}
	}

	return subsetConstruct(ctx, lw, roots, collector, opts)
}

// topLevelAlternatives returns a root regex's top-level Alt branches as
// separate sub-regexes sharing the same accept symbol, or a single-element
// slice of the root itself if it is not a top-level Alt (spec §4.3).
func topLevelAlternatives(root regex.Node) []regex.Node {
	if alt, ok := root.(*regex.AltNode); ok && alt.Case() == regex.Inherit {
		if len(alt.Items) == 0 {
			return nil
		}
		return alt.Items
	}
	return []regex.Node{root}
}

func subsetConstruct(ctx context.Context, lw *lowering, roots []int, collector *diag.Collector, opts Options) (*Table, error) {
	nbits := len(lw.leaves)
	maxStates := stateBudget(opts, nbits)

	byKey := make(map[string]int)
	var states []State
	var stateSets []positionSet

	addState := func(ps positionSet) (int, bool) {
		k := ps.key()
		if idx, ok := byKey[k]; ok {
			return idx, false
		}
		idx := len(states)
		byKey[k] = idx
		states = append(states, State{})
		stateSets = append(stateSets, ps)
		return idx, true
	}

	rootSet := fromSlice(nbits, roots)
	worklist := []int{}
	if idx, isNew := addState(rootSet); isNew {
		worklist = append(worklist, idx)
	} else {
		worklist = append(worklist, idx)
	}

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			collector.Reportf(diag.SeverityInformation, "", "DFA construction cancelled")
			return nil, err
		}
		stateIdx := worklist[0]
		worklist = worklist[1:]

		if len(states) > maxStates {
			collector.Reportf(diag.SeverityError, diag.CodeDfaStateLimitExceeded, "DFA state count exceeded the limit of %d states", maxStates)
			return nil, fmt.Errorf("dfa: state limit %d exceeded", maxStates)
		}

		positions := stateSets[stateIdx]
		edges, defaultTarget, accept, err := buildStateTransitions(lw, positions, addState, &worklist, collector)
		if err != nil {
			return nil, err
		}
		states[stateIdx] = State{Edges: edges, Accept: accept, Default: defaultTarget}

		if len(states) > maxStates {
			collector.Reportf(diag.SeverityError, diag.CodeDfaStateLimitExceeded, "DFA state count exceeded the limit of %d states", maxStates)
			return nil, fmt.Errorf("dfa: state limit %d exceeded", maxStates)
		}
	}

	return &Table{States: states}, nil
}

// charRun is one leaf's matched sub-ranges against the 16-bit universe,
// pre-expanded so inverted charsets are simple ranges too.
type charRun struct {
	leafIdx int
	ranges  []charset.Range
}

func buildStateTransitions(
	lw *lowering,
	positions positionSet,
	addState func(positionSet) (int, bool),
	worklist *[]int,
	collector *diag.Collector,
) (edges []Edge, defaultTarget int, accept model.EntityHandle, err error) {
	var runs []charRun
	var anyLeaf = -1
	var endLeaves []int

	positions.forEach(func(i int) {
		l := lw.leaves[i]
		switch l.Kind {
		case LeafEnd:
			endLeaves = append(endLeaves, i)
		case LeafAny:
			anyLeaf = i
			runs = append(runs, charRun{leafIdx: i, ranges: []charset.Range{{Start: 0, End: universeMax}}})
		case LeafChars:
			ranges := l.Ranges
			if l.Inverted {
				ranges = invertRanges(ranges)
			}
			runs = append(runs, charRun{leafIdx: i, ranges: ranges})
		}
	})

	accept = resolveAccept(lw, endLeaves, collector)

	// Sweep-line: collect every boundary introduced by any leaf's ranges,
	// then walk consecutive boundaries to find maximal equivalence classes
	// (spec §4.3).
	type point struct {
		at   int
		kind int8 // +1 open, -1 close (close is exclusive, i.e. end+1)
		leaf int
	}
	var points []point
	for _, run := range runs {
		for _, rg := range run.ranges {
			points = append(points, point{at: int(rg.Start), kind: 1, leaf: run.leafIdx})
			points = append(points, point{at: int(rg.End) + 1, kind: -1, leaf: run.leafIdx})
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].at < points[j].at })

	active := make(map[int]int) // leaf -> active count (ranges can't overlap within one leaf normally, but guard anyway)
	var defaultRuns []struct{ from, to, target int }
	idx := 0
	for idx < len(points) {
		cur := points[idx].at
		for idx < len(points) && points[idx].at == cur {
			if points[idx].kind == 1 {
				active[points[idx].leaf]++
			} else {
				active[points[idx].leaf]--
				if active[points[idx].leaf] <= 0 {
					delete(active, points[idx].leaf)
				}
			}
			idx++
		}
		if idx >= len(points) {
			break
		}
		next := points[idx].at
		if len(active) == 0 || next > universeMax+1 {
			continue
		}
		if cur > universeMax {
			break
		}
		hi := next - 1
		if hi > universeMax {
			hi = universeMax
		}

		var follow []int
		for leafIdx := range active {
			follow = unionSlices(follow, lw.followpos[leafIdx])
		}
		if len(follow) == 0 {
			continue
		}
		targetIdx, isNew := addState(fromSlice(len(lw.leaves), follow))
		if isNew {
			*worklist = append(*worklist, targetIdx)
		}

		onlyAny := len(active) == 1
		if onlyAny {
			for leafIdx := range active {
				if leafIdx != anyLeaf {
					onlyAny = false
				}
			}
		}
		if onlyAny && anyLeaf >= 0 {
			defaultRuns = append(defaultRuns, struct{ from, to, target int }{cur, hi, targetIdx})
			continue
		}

		edges = append(edges, Edge{KeyFrom: uint16(cur), KeyTo: uint16(hi), Target: targetIdx + 1})
	}

	// Default-transition extraction (spec §4.3): if every class attributable
	// solely to the Any leaf lands on the same target, fold them into a
	// single default transition instead of an explicit edge run.
	if len(defaultRuns) > 0 {
		sameTarget := true
		for _, r := range defaultRuns[1:] {
			if r.target != defaultRuns[0].target {
				sameTarget = false
				break
			}
		}
		if sameTarget {
			defaultTarget = defaultRuns[0].target + 1
		} else {
			for _, r := range defaultRuns {
				edges = append(edges, Edge{KeyFrom: uint16(r.from), KeyTo: uint16(r.to), Target: r.target + 1})
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].KeyFrom < edges[j].KeyFrom })
	return edges, defaultTarget, accept, nil
}

// resolveAccept picks the accept symbol from a state's End leaves: highest
// priority wins, ties broken by lowest token-symbol index (spec §4.3). If
// more than one distinct token symbol survives at the top priority tier,
// the grammar is genuinely ambiguous at the lexical level; the tie-break
// still yields a usable (deterministic) DFA, but an Indistinguishable
// Symbols diagnostic is raised so the author can fix the grammar.
func resolveAccept(lw *lowering, endLeaves []int, collector *diag.Collector) model.EntityHandle {
	if len(endLeaves) == 0 {
		return model.EntityHandle{}
	}
	bestPriority := -1
	for _, i := range endLeaves {
		if lw.leaves[i].Priority > bestPriority {
			bestPriority = lw.leaves[i].Priority
		}
	}
	var winners []model.EntityHandle
	seen := map[model.EntityHandle]bool{}
	for _, i := range endLeaves {
		l := lw.leaves[i]
		if l.Priority == bestPriority && !seen[l.TokenSymbol] {
			seen[l.TokenSymbol] = true
			winners = append(winners, l.TokenSymbol)
		}
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].Index < winners[j].Index })
	if len(winners) > 1 {
		collector.Reportf(diag.SeverityError, diag.CodeIndistinguishableSymbols,
			"symbols %s and %d others are indistinguishable at the same DFA state and priority tier; resolving to %s by lowest index",
			winners[0], len(winners)-1, winners[0])
	}
	return winners[0]
}

// invertRanges returns the complement of ranges within [0, universeMax],
// assuming ranges is already canonicalized (sorted, disjoint).
func invertRanges(ranges []charset.Range) []charset.Range {
	var out []charset.Range
	cursor := rune(0)
	for _, r := range ranges {
		if r.Start > cursor {
			out = append(out, charset.Range{Start: cursor, End: r.Start - 1})
		}
		if r.End+1 > cursor {
			cursor = r.End + 1
		}
	}
	if cursor <= universeMax {
		out = append(out, charset.Range{Start: cursor, End: universeMax})
	}
	return out
}
