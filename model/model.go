// Package model holds the grammar data model shared by dfa, lalr, and
// grammarfile: token symbols, nonterminals, productions, groups, and the
// tagged entity handles that address them (spec §3).
//
// All tables are 1-based; index 0 of every table is reserved and means
// "absent". Construction is two-phase ("declare-then-set", spec §9): a
// symbol or production is allocated an index on creation, and its body
// (e.g. a production's members) is attached afterward, which is what lets
// a nonterminal's productions reference that same nonterminal before the
// grammar is fully built.
package model

import "fmt"

// TableKind discriminates which table an EntityHandle addresses.
type TableKind uint8

const (
	TableKindNone TableKind = iota
	TableKindTokenSymbol
	TableKindNonterminal
	TableKindProduction
	TableKindGroup
)

func (k TableKind) String() string {
	switch k {
	case TableKindTokenSymbol:
		return "TokenSymbol"
	case TableKindNonterminal:
		return "Nonterminal"
	case TableKindProduction:
		return "Production"
	case TableKindGroup:
		return "Group"
	default:
		return "None"
	}
}

// EntityHandle is a tagged (kind, index) pair. Only TokenSymbol and
// Nonterminal kinds are valid as production members (spec §3).
type EntityHandle struct {
	Kind  TableKind
	Index int // 1-based; 0 means absent
}

// IsNil reports whether h refers to nothing.
func (h EntityHandle) IsNil() bool { return h.Kind == TableKindNone || h.Index == 0 }

func (h EntityHandle) String() string {
	if h.IsNil() {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d", h.Kind, h.Index)
}

// TokenSymbolAttr is a bitmask of TokenSymbol attributes (spec §3).
type TokenSymbolAttr uint8

const (
	AttrTerminal TokenSymbolAttr = 1 << iota
	AttrHidden
	AttrNoise
	AttrGroupStart
	AttrGenerated
)

func (a TokenSymbolAttr) Has(flag TokenSymbolAttr) bool { return a&flag != 0 }

// TokenSymbol is the unit of DFA output: terminals, group delimiters, and
// noise symbols all live in this one table, in insertion order, with
// terminals required to occupy the table's low prefix (spec §3 invariant).
type TokenSymbol struct {
	Index int // 1-based
	Name  string
	Attr  TokenSymbolAttr
}

func (t *TokenSymbol) Handle() EntityHandle {
	return EntityHandle{Kind: TableKindTokenSymbol, Index: t.Index}
}

// Nonterminal is a 1-based grammar nonterminal. FirstProduction/
// ProductionCount describe the contiguous run of this nonterminal's
// productions once the grammar is finalized (spec §4.5); they are 0 until
// then.
type Nonterminal struct {
	Index           int
	Name            string
	FirstProduction int // 1-based index into the production table, 0 = none yet
	ProductionCount int
}

func (nt *Nonterminal) Handle() EntityHandle {
	return EntityHandle{Kind: TableKindNonterminal, Index: nt.Index}
}

// Production is a single grammar rule. Members is the (ordered) right-hand
// side; Precedence is an opaque token-or-production identity used only by
// the operator scope (spec §3, §4.4) and may be the zero handle.
type Production struct {
	Index      int
	Head       EntityHandle // must be TableKindNonterminal
	Members    []EntityHandle
	Precedence EntityHandle // zero value = unset
}

func (p *Production) Handle() EntityHandle {
	return EntityHandle{Kind: TableKindProduction, Index: p.Index}
}

// GroupFlags is a bitmask of Group behavior flags (spec §3).
type GroupFlags uint8

const (
	GroupAdvanceByCharacter GroupFlags = 1 << iota
	GroupEndsOnEndOfInput
	GroupKeepEndToken
)

func (f GroupFlags) Has(flag GroupFlags) bool { return f&flag != 0 }

// Group is a lexical bracket pair (spec §3). Container is the token symbol
// the group reduces to; Start/End are the delimiter token symbols (End may
// be shared with another group or a NewLine symbol). Nesting lists the
// groups this one may nest inside of.
type Group struct {
	Index     int
	Container EntityHandle // TableKindTokenSymbol
	Start     EntityHandle // TableKindTokenSymbol, AttrGroupStart
	End       EntityHandle // TableKindTokenSymbol
	Flags     GroupFlags
	Nesting   []EntityHandle // TableKindGroup, groups nestable inside this one
}

func (g *Group) Handle() EntityHandle {
	return EntityHandle{Kind: TableKindGroup, Index: g.Index}
}

// Grammar is the arena owning all tables. Indices are stable for the
// lifetime of the Grammar: once assigned by one of the New* methods, a
// handle's Index never changes, which is what lets productions reference
// nonterminals (including themselves) before the grammar is finished.
type Grammar struct {
	Name  string
	Start EntityHandle // TableKindNonterminal

	TokenSymbols []TokenSymbol
	Nonterminals []Nonterminal
	Productions  []Production
	Groups       []Group

	// SpecialNames maps a user-chosen unique name to the entity it
	// identifies (spec §3, "Special names are a unique mapping").
	SpecialNames map[string]EntityHandle

	sawNonterminalTokenSymbol bool
}

// NewGrammar returns an empty Grammar ready for symbol/production
// registration.
func NewGrammar(name string) *Grammar {
	return &Grammar{
		Name:         name,
		SpecialNames: make(map[string]EntityHandle),
	}
}

// NewTokenSymbol appends a token symbol and returns it. Terminals
// (AttrTerminal set) must all be added before the first non-terminal token
// symbol (group starts/ends, noise); this enforces the "terminals occupy
// the low prefix" invariant from spec §3.
func (g *Grammar) NewTokenSymbol(name string, attr TokenSymbolAttr) (*TokenSymbol, error) {
	if attr.Has(AttrTerminal) && g.sawNonterminalTokenSymbol {
		return nil, fmt.Errorf("model: terminal %q added after a non-terminal token symbol; terminals must occupy the table's low prefix", name)
	}
	if !attr.Has(AttrTerminal) {
		g.sawNonterminalTokenSymbol = true
	}
	g.TokenSymbols = append(g.TokenSymbols, TokenSymbol{
		Index: len(g.TokenSymbols) + 1,
		Name:  name,
		Attr:  attr,
	})
	return &g.TokenSymbols[len(g.TokenSymbols)-1], nil
}

// NewNonterminal appends a nonterminal and returns it.
func (g *Grammar) NewNonterminal(name string) *Nonterminal {
	g.Nonterminals = append(g.Nonterminals, Nonterminal{
		Index: len(g.Nonterminals) + 1,
		Name:  name,
	})
	return &g.Nonterminals[len(g.Nonterminals)-1]
}

// NewProduction appends a production under head and returns it. members may
// be nil and filled in later (two-phase construction for cyclic references).
func (g *Grammar) NewProduction(head EntityHandle, members []EntityHandle) (*Production, error) {
	if head.Kind != TableKindNonterminal {
		return nil, fmt.Errorf("model: production head must be a Nonterminal, got %s", head.Kind)
	}
	g.Productions = append(g.Productions, Production{
		Index:   len(g.Productions) + 1,
		Head:    head,
		Members: members,
	})
	return &g.Productions[len(g.Productions)-1], nil
}

// NewGroup appends a group bracket pair and returns it. It enforces the
// "exactly one Group row may consume each GroupStart token symbol"
// invariant from spec §3.
func (g *Grammar) NewGroup(container, start, end EntityHandle, flags GroupFlags) (*Group, error) {
	for i := range g.Groups {
		if g.Groups[i].Start == start {
			return nil, fmt.Errorf("model: token symbol %s is already consumed as the start of group #%d", start, g.Groups[i].Index)
		}
	}
	g.Groups = append(g.Groups, Group{
		Index:     len(g.Groups) + 1,
		Container: container,
		Start:     start,
		End:       end,
		Flags:     flags,
	})
	return &g.Groups[len(g.Groups)-1], nil
}

// AddSpecialName records a unique special-name mapping. Re-registering the
// same name with a different handle is an error (spec §3).
func (g *Grammar) AddSpecialName(name string, h EntityHandle) error {
	if existing, ok := g.SpecialNames[name]; ok && existing != h {
		return fmt.Errorf("model: special name %q already maps to %s", name, existing)
	}
	g.SpecialNames[name] = h
	return nil
}

// TokenSymbol looks up a token symbol by 1-based index, or nil if h does not
// refer to one.
func (g *Grammar) TokenSymbol(h EntityHandle) *TokenSymbol {
	if h.Kind != TableKindTokenSymbol || h.Index < 1 || h.Index > len(g.TokenSymbols) {
		return nil
	}
	return &g.TokenSymbols[h.Index-1]
}

// Nonterminal looks up a nonterminal by 1-based index, or nil if h does not
// refer to one.
func (g *Grammar) Nonterminal(h EntityHandle) *Nonterminal {
	if h.Kind != TableKindNonterminal || h.Index < 1 || h.Index > len(g.Nonterminals) {
		return nil
	}
	return &g.Nonterminals[h.Index-1]
}

// Production looks up a production by 1-based index, or nil if h does not
// refer to one.
func (g *Grammar) Production(h EntityHandle) *Production {
	if h.Kind != TableKindProduction || h.Index < 1 || h.Index > len(g.Productions) {
		return nil
	}
	return &g.Productions[h.Index-1]
}

// FinalizeProductionRanges computes each nonterminal's FirstProduction and
// ProductionCount from the accumulated production list, and validates the
// row-count invariants from spec §3 and §8: the count of production rows
// equals the sum of productionCount across nonterminals, and production
// members must reference only TokenSymbol or Nonterminal handles within
// their table's bounds.
func (g *Grammar) FinalizeProductionRanges() error {
	byHead := make(map[int][]int) // nonterminal index -> production indices, in order
	for i := range g.Productions {
		p := &g.Productions[i]
		if p.Head.Kind != TableKindNonterminal {
			return fmt.Errorf("model: production #%d has non-nonterminal head %s", p.Index, p.Head)
		}
		byHead[p.Head.Index] = append(byHead[p.Head.Index], p.Index)
		for _, m := range p.Members {
			switch m.Kind {
			case TableKindTokenSymbol:
				if m.Index < 1 || m.Index > len(g.TokenSymbols) {
					return fmt.Errorf("model: production #%d references out-of-range token symbol %s", p.Index, m)
				}
			case TableKindNonterminal:
				if m.Index < 1 || m.Index > len(g.Nonterminals) {
					return fmt.Errorf("model: production #%d references out-of-range nonterminal %s", p.Index, m)
				}
			default:
				return fmt.Errorf("model: production #%d has a member of kind %s, only TokenSymbol and Nonterminal are valid", p.Index, m.Kind)
			}
		}
	}

	total := 0
	for i := range g.Nonterminals {
		nt := &g.Nonterminals[i]
		ids := byHead[nt.Index]
		nt.ProductionCount = len(ids)
		if len(ids) > 0 {
			nt.FirstProduction = ids[0]
		} else {
			nt.FirstProduction = 0
		}
		total += len(ids)
	}
	if total != len(g.Productions) {
		return fmt.Errorf("model: production count mismatch: nonterminals claim %d, table has %d", total, len(g.Productions))
	}
	return nil
}
