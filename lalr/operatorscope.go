package lalr

import "github.com/aledsdavies/gramforge/model"

// Associativity is the conflict-resolution behavior of one precedence
// group (spec §4.4).
type Associativity uint8

const (
	NonAssociative Associativity = iota
	LeftAssociative
	RightAssociative
	PrecedenceOnly
)

// AssociativityGroup is one precedence level: a set of symbols (terminals
// and/or production precedence tokens) sharing the same associativity.
type AssociativityGroup struct {
	Type    Associativity
	Symbols []model.EntityHandle
}

// OperatorScope is an ordered list of associativity groups, ascending in
// precedence (later groups bind tighter), used to resolve shift/reduce and
// (optionally) reduce/reduce conflicts (spec §4.4). It is a non-nilable
// value type: an empty scope (zero Groups) simply resolves nothing, rather
// than requiring callers to special-case a nil pointer.
type OperatorScope struct {
	Groups []AssociativityGroup
	// CanResolveReduceReduce gates whether reduce/reduce conflicts are
	// resolved by lowest-production-index tie-break, or left unresolved.
	CanResolveReduceReduce bool
}

// precedenceOf returns the 1-based precedence level of h (0 = unset) and
// the associativity of the group it was found in.
func (s OperatorScope) precedenceOf(h model.EntityHandle) (level int, assoc Associativity, ok bool) {
	for i, g := range s.Groups {
		for _, sym := range g.Symbols {
			if sym == h {
				return i + 1, g.Type, true
			}
		}
	}
	return 0, 0, false
}

// productionPrecedence resolves a production's precedence per spec §4.4:
// its explicit Precedence token if set, else its last terminal member.
func productionPrecedence(p *model.Production) model.EntityHandle {
	if !p.Precedence.IsNil() {
		return p.Precedence
	}
	for i := len(p.Members) - 1; i >= 0; i-- {
		if p.Members[i].Kind == model.TableKindTokenSymbol {
			return p.Members[i]
		}
	}
	return model.EntityHandle{}
}
