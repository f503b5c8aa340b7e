// Package regex implements the lazily-constructed regex algebra described
// in spec §4.1: a sum-typed expression tree with seven shapes (Any,
// StringLiteral, CharSet, Concat, Alt, Loop, and a deferred RegexString),
// case-sensitivity override bits, and algebraic simplifications applied at
// construction time.
//
// Empty (matches ε) and Void (matches nothing) are not separate shapes:
// they fall out of Join and Choice applied to zero arguments, exactly as
// spec §4.1 states ("join([]) returns empty", "choice([]) returns void").
package regex

import (
	"errors"
	"fmt"
	"math"

	"github.com/aledsdavies/gramforge/charset"
)

// CaseMode is the per-node case-sensitivity override bit pair (spec §3).
// During DFA lowering the first non-Inherit ancestor wins.
type CaseMode uint8

const (
	Inherit CaseMode = iota
	CaseSensitive
	CaseInsensitive
)

// Unbounded is the sentinel Loop max meaning "no upper bound". MaxFinite is
// the reserved value that may never be used as a finite bound (spec §3: "max
// is encoded as sentinel for unbounded ... MAX_INT is reserved and
// rejected").
const (
	Unbounded = math.MaxInt32 - 1
	MaxFinite = math.MaxInt32
)

var (
	ErrReverseRange  = errors.New("regex: character range end precedes start")
	ErrNegativeBound = errors.New("regex: loop bound must be non-negative")
	ErrBoundOrder    = errors.New("regex: loop min exceeds max")
	ErrReservedBound = errors.New("regex: loop max uses the reserved sentinel value")
)

// Node is any node in the regex tree. Concrete types are *AnyNode,
// *LiteralNode, *CharSetNode, *ConcatNode, *AltNode, *LoopNode, and
// *RegexStringNode.
type Node interface {
	Case() CaseMode
	node()
}

// withCase returns a copy of n with its case mode set to m. Used internally
// by CaseSensitive/CaseInsensitive.
func withCase(n Node, m CaseMode) Node {
	switch v := n.(type) {
	case *AnyNode:
		c := *v
		c.CaseMode = m
		return &c
	case *LiteralNode:
		c := *v
		c.CaseMode = m
		return &c
	case *CharSetNode:
		c := *v
		c.CaseMode = m
		return &c
	case *ConcatNode:
		c := *v
		c.CaseMode = m
		return &c
	case *AltNode:
		c := *v
		c.CaseMode = m
		return &c
	case *LoopNode:
		c := *v
		c.CaseMode = m
		return &c
	case *RegexStringNode:
		c := *v
		c.CaseMode = m
		return &c
	default:
		panic(fmt.Sprintf("regex: unrecognized node type %T", n))
	}
}

// AnyNode matches any single 16-bit code unit.
type AnyNode struct{ CaseMode CaseMode }

func (n *AnyNode) Case() CaseMode { return n.CaseMode }
func (*AnyNode) node()            {}

// Any returns a node matching any single code unit.
func Any() Node { return &AnyNode{} }

// LiteralNode matches a fixed string.
type LiteralNode struct {
	Value    string
	CaseMode CaseMode
}

func (n *LiteralNode) Case() CaseMode { return n.CaseMode }
func (*LiteralNode) node()            {}

// Literal returns a node matching the exact string s.
func Literal(s string) Node { return &LiteralNode{Value: s} }

// CharSetNode matches a single code unit falling in (or, if Inverted, falling
// outside of) Ranges. Ranges are canonicalized (sorted, merged, optionally
// case-folded) at construction time.
type CharSetNode struct {
	Ranges   []charset.Range
	Inverted bool
	CaseMode CaseMode
}

func (n *CharSetNode) Case() CaseMode { return n.CaseMode }
func (*CharSetNode) node()            {}

func validateRanges(ranges []charset.Range) error {
	for _, r := range ranges {
		if r.End < r.Start {
			return fmt.Errorf("%w: [%d-%d]", ErrReverseRange, r.Start, r.End)
		}
	}
	return nil
}

// OneOf returns a node matching any code unit in one of ranges.
func OneOf(ranges []charset.Range) (Node, error) {
	if err := validateRanges(ranges); err != nil {
		return nil, err
	}
	return &CharSetNode{Ranges: charset.Canonicalize(ranges, false)}, nil
}

// NotOneOf returns a node matching any code unit outside all of ranges.
func NotOneOf(ranges []charset.Range) (Node, error) {
	if err := validateRanges(ranges); err != nil {
		return nil, err
	}
	return &CharSetNode{Ranges: charset.Canonicalize(ranges, false), Inverted: true}, nil
}

// ConcatNode matches its Items in sequence.
type ConcatNode struct {
	Items    []Node
	CaseMode CaseMode
}

func (n *ConcatNode) Case() CaseMode { return n.CaseMode }
func (*ConcatNode) node()            {}

// Join concatenates seq in order, applying the flattening and adjacent-
// literal-merging simplifications from spec §4.1. An empty seq returns the
// empty-matching node (the identity element of Join); a single-element seq
// returns that element unchanged.
func Join(seq []Node) Node {
	var flat []Node
	for _, n := range seq {
		if c, ok := n.(*ConcatNode); ok && c.CaseMode == Inherit {
			flat = append(flat, c.Items...)
			continue
		}
		flat = append(flat, n)
	}
	flat = mergeAdjacentLiterals(flat)
	switch len(flat) {
	case 0:
		return &ConcatNode{}
	case 1:
		return flat[0]
	default:
		return &ConcatNode{Items: flat}
	}
}

// mergeAdjacentLiterals collapses runs of adjacent same-case-mode literal
// nodes into one, per spec §4.1 ("abc" + "def" collapses to "abcdef").
func mergeAdjacentLiterals(items []Node) []Node {
	out := make([]Node, 0, len(items))
	for _, n := range items {
		if len(out) > 0 {
			prev, prevOK := out[len(out)-1].(*LiteralNode)
			cur, curOK := n.(*LiteralNode)
			if prevOK && curOK && prev.CaseMode == cur.CaseMode {
				out[len(out)-1] = &LiteralNode{Value: prev.Value + cur.Value, CaseMode: prev.CaseMode}
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

// AltNode matches any one of its Items.
type AltNode struct {
	Items    []Node
	CaseMode CaseMode
}

func (n *AltNode) Case() CaseMode { return n.CaseMode }
func (*AltNode) node()            {}

// Choice returns a node matching any alternative in seq, applying the
// flattening and adjacent-charset-union simplifications from spec §4.1. An
// empty seq returns the never-matching node (the identity element of
// Choice); a single-element seq returns that element unchanged.
func Choice(seq []Node) Node {
	var flat []Node
	for _, n := range seq {
		if a, ok := n.(*AltNode); ok && a.CaseMode == Inherit {
			flat = append(flat, a.Items...)
			continue
		}
		flat = append(flat, n)
	}
	flat = mergeAdjacentCharSets(flat)
	switch len(flat) {
	case 0:
		return &AltNode{}
	case 1:
		return flat[0]
	default:
		return &AltNode{Items: flat}
	}
}

// mergeAdjacentCharSets collapses adjacent non-inverted same-case-mode
// CharSet alternatives by unioning their ranges, per spec §4.1
// ("[a-c] | [d-f] collapses to [a-f]").
func mergeAdjacentCharSets(items []Node) []Node {
	out := make([]Node, 0, len(items))
	for _, n := range items {
		if len(out) > 0 {
			prev, prevOK := out[len(out)-1].(*CharSetNode)
			cur, curOK := n.(*CharSetNode)
			if prevOK && curOK && !prev.Inverted && !cur.Inverted && prev.CaseMode == cur.CaseMode {
				union := append(append([]charset.Range{}, prev.Ranges...), cur.Ranges...)
				out[len(out)-1] = &CharSetNode{Ranges: charset.Canonicalize(union, false), CaseMode: prev.CaseMode}
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

// LoopNode matches Item repeated between Min and Max times inclusive. Max
// equal to Unbounded means no upper bound.
type LoopNode struct {
	Item     Node
	Min, Max int
	CaseMode CaseMode
}

func (n *LoopNode) Case() CaseMode { return n.CaseMode }
func (*LoopNode) node()            {}

// Loop returns a node matching item repeated min..max times. Loop is
// idempotent: looping an already-identical loop with the same bounds
// returns it unchanged (spec §4.1).
func Loop(item Node, min, max int) (Node, error) {
	if min < 0 {
		return nil, ErrNegativeBound
	}
	if max == MaxFinite {
		return nil, ErrReservedBound
	}
	if max != Unbounded && max < min {
		return nil, ErrBoundOrder
	}
	if l, ok := item.(*LoopNode); ok && l.CaseMode == Inherit && l.Min == min && l.Max == max {
		return item, nil
	}
	return &LoopNode{Item: item, Min: min, Max: max}, nil
}

// RegexStringNode defers parsing of a user-supplied textual pattern until
// DFA lowering, keeping the regex tree pure data (spec §9). Resolve it with
// ResolveRegexStrings before lowering.
type RegexStringNode struct {
	Pattern  string
	CaseMode CaseMode
}

func (n *RegexStringNode) Case() CaseMode { return n.CaseMode }
func (*RegexStringNode) node()            {}

// FromRegexString returns a deferred node wrapping a textual pattern.
func FromRegexString(pattern string) Node { return &RegexStringNode{Pattern: pattern} }

// WithCaseSensitive returns a copy of n whose case mode is forced to
// CaseSensitive.
func WithCaseSensitive(n Node) Node { return withCase(n, CaseSensitive) }

// WithCaseInsensitive returns a copy of n whose case mode is forced to
// CaseInsensitive.
func WithCaseInsensitive(n Node) Node { return withCase(n, CaseInsensitive) }

// ResolveRegexStrings walks n, replacing every RegexStringNode leaf with
// parse(pattern)'s result, preserving the leaf's case-mode override. parse
// is injected by the caller (the regexstring package) to avoid an import
// cycle between regex and its own bootstrap parser.
func ResolveRegexStrings(n Node, parse func(pattern string) (Node, error)) (Node, error) {
	switch v := n.(type) {
	case *RegexStringNode:
		resolved, err := parse(v.Pattern)
		if err != nil {
			return nil, fmt.Errorf("regex: resolving deferred pattern %q: %w", v.Pattern, err)
		}
		if v.CaseMode != Inherit {
			resolved = withCase(resolved, v.CaseMode)
		}
		return resolved, nil
	case *ConcatNode:
		items, err := resolveAll(v.Items, parse)
		if err != nil {
			return nil, err
		}
		return &ConcatNode{Items: items, CaseMode: v.CaseMode}, nil
	case *AltNode:
		items, err := resolveAll(v.Items, parse)
		if err != nil {
			return nil, err
		}
		return &AltNode{Items: items, CaseMode: v.CaseMode}, nil
	case *LoopNode:
		item, err := ResolveRegexStrings(v.Item, parse)
		if err != nil {
			return nil, err
		}
		return &LoopNode{Item: item, Min: v.Min, Max: v.Max, CaseMode: v.CaseMode}, nil
	default:
		return n, nil
	}
}

func resolveAll(items []Node, parse func(string) (Node, error)) ([]Node, error) {
	out := make([]Node, len(items))
	for i, it := range items {
		r, err := ResolveRegexStrings(it, parse)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
