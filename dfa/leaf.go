package dfa

import (
	"github.com/aledsdavies/gramforge/charset"
	"github.com/aledsdavies/gramforge/model"
	"github.com/aledsdavies/gramforge/regex"
)

// LeafKind discriminates the three atomic position-leaf shapes (spec §4.3).
type LeafKind uint8

const (
	LeafAny LeafKind = iota
	LeafChars
	LeafEnd
)

// leaf is one position in the Aho-Sethi-Ullman position tree: one atomic
// match opportunity, numbered by its index in builder.leaves.
type leaf struct {
	Kind     LeafKind
	Ranges   []charset.Range // LeafChars only
	Inverted bool            // LeafChars only

	TokenSymbol model.EntityHandle // LeafEnd only
	Priority    int                // LeafEnd only: 1 if the sub-regex contains a star/unbounded loop, else 0
}

// lowering accumulates leaves and their followpos sets as regex trees are
// walked into position form.
type lowering struct {
	leaves    []leaf
	followpos [][]int // grown in lockstep with leaves; index i holds followpos(i)
}

func newLowering() *lowering { return &lowering{} }

func (lw *lowering) addLeaf(l leaf) int {
	idx := len(lw.leaves)
	lw.leaves = append(lw.leaves, l)
	lw.followpos = append(lw.followpos, nil)
	return idx
}

func (lw *lowering) addFollow(pos int, targets []int) {
	for _, t := range targets {
		lw.followpos[pos] = append(lw.followpos[pos], t)
	}
}

// posInfo is the (nullable, firstpos, lastpos) triple the position-automaton
// rules compute per subtree (spec §4.3).
type posInfo struct {
	nullable     bool
	first, last  []int
	hasStar      bool
	hasVoid      bool
}

func effectiveCase(n regex.Node, inherited regex.CaseMode) regex.CaseMode {
	if n.Case() != regex.Inherit {
		return n.Case()
	}
	return inherited
}

// concat2 combines two adjacent subtrees' posInfo per the standard
// concatenation rule, wiring followpos(lastpos(a)) += firstpos(b) as a side
// effect.
func (lw *lowering) concat2(a, b posInfo) posInfo {
	for _, p := range a.last {
		lw.addFollow(p, b.first)
	}
	out := posInfo{
		nullable: a.nullable && b.nullable,
		hasStar:  a.hasStar || b.hasStar,
		hasVoid:  a.hasVoid || b.hasVoid,
	}
	if a.nullable {
		out.first = unionSlices(a.first, b.first)
	} else {
		out.first = a.first
	}
	if b.nullable {
		out.last = unionSlices(a.last, b.last)
	} else {
		out.last = b.last
	}
	return out
}

// lower walks n, emitting position leaves and followpos links, fully
// expanding StringLiteral and Loop per spec §4.3.
func (lw *lowering) lower(n regex.Node, inherited regex.CaseMode) posInfo {
	eff := effectiveCase(n, inherited)
	switch v := n.(type) {
	case *regex.AnyNode:
		idx := lw.addLeaf(leaf{Kind: LeafAny})
		return posInfo{first: []int{idx}, last: []int{idx}}

	case *regex.CharSetNode:
		return lw.lowerCharSet(v.Ranges, v.Inverted, eff)

	case *regex.LiteralNode:
		return lw.lowerLiteral(v.Value, eff)

	case *regex.ConcatNode:
		acc := posInfo{nullable: true}
		for _, item := range v.Items {
			acc = lw.concat2(acc, lw.lower(item, eff))
		}
		return acc

	case *regex.AltNode:
		acc := posInfo{nullable: false}
		for i, item := range v.Items {
			child := lw.lower(item, eff)
			if i == 0 {
				acc = child
				continue
			}
			acc.nullable = acc.nullable || child.nullable
			acc.first = unionSlices(acc.first, child.first)
			acc.last = unionSlices(acc.last, child.last)
			acc.hasStar = acc.hasStar || child.hasStar
			acc.hasVoid = acc.hasVoid || child.hasVoid
		}
		return acc

	case *regex.LoopNode:
		return lw.lowerLoop(v, eff)

	case *regex.RegexStringNode:
		// Unreached in practice: callers must run regex.ResolveRegexStrings
		// before lowering. Treated as void rather than panicking so a
		// missing resolution surfaces as an ordinary "unmatchable" warning
		// instead of crashing the whole build.
		return posInfo{hasVoid: true}

	default:
		return posInfo{hasVoid: true}
	}
}

func (lw *lowering) lowerCharSet(ranges []charset.Range, inverted bool, eff regex.CaseMode) posInfo {
	folded := ranges
	if eff == regex.CaseInsensitive {
		folded = charset.Canonicalize(ranges, true)
	}
	if len(folded) == 0 && !inverted {
		// An empty, non-inverted character set matches nothing: a Void leaf
		// with no position at all (spec §4.3's HasVoid bit).
		return posInfo{hasVoid: true}
	}
	idx := lw.addLeaf(leaf{Kind: LeafChars, Ranges: folded, Inverted: inverted})
	return posInfo{first: []int{idx}, last: []int{idx}}
}

func (lw *lowering) lowerLiteral(value string, eff regex.CaseMode) posInfo {
	acc := posInfo{nullable: true}
	for _, r := range value {
		acc = lw.concat2(acc, lw.lowerCharSet([]charset.Range{{Start: r, End: r}}, false, eff))
	}
	return acc
}

func (lw *lowering) lowerLoop(v *regex.LoopNode, eff regex.CaseMode) posInfo {
	acc := posInfo{nullable: true}
	for i := 0; i < v.Min; i++ {
		acc = lw.concat2(acc, lw.lower(v.Item, eff))
	}
	switch {
	case v.Max == regex.Unbounded:
		star := lw.lowerStar(v.Item, eff)
		acc = lw.concat2(acc, star)
	default:
		for i := 0; i < v.Max-v.Min; i++ {
			acc = lw.concat2(acc, lw.lowerOptional(v.Item, eff))
		}
	}
	return acc
}

// lowerStar lowers item once, then makes its own lastpos positions follow
// their own firstpos (the classical self-reflective star rule), and marks
// HasStar for the caller's priority computation (spec §4.3).
func (lw *lowering) lowerStar(item regex.Node, eff regex.CaseMode) posInfo {
	child := lw.lower(item, eff)
	for _, p := range child.last {
		lw.addFollow(p, child.first)
	}
	child.nullable = true
	child.hasStar = true
	return child
}

// lowerOptional lowers item once as an optional (0-or-1) occurrence: same
// firstpos/lastpos as item, nullable forced true, no extra followpos edges.
func (lw *lowering) lowerOptional(item regex.Node, eff regex.CaseMode) posInfo {
	child := lw.lower(item, eff)
	child.nullable = true
	return child
}
