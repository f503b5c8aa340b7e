package regexstring

import (
	"fmt"
	"strconv"

	"github.com/aledsdavies/gramforge/internal/invariant"
	"github.com/aledsdavies/gramforge/lalr"
	"github.com/aledsdavies/gramforge/model"
	"github.com/aledsdavies/gramforge/regex"
)

// Parse parses pattern as the textual regex-string syntax from spec.md
// §4.6 into a regex.Node. The bootstrap grammar is built at most once per
// process (see bootstrap.go); pattern is re-lexed and re-parsed on every
// call.
func Parse(pattern string) (regex.Node, error) {
	bs, err := getBootstrap()
	if err != nil {
		return nil, fmt.Errorf("regexstring: bootstrap unavailable: %w", err)
	}
	tokens, err := tokenize(pattern, bs.dfa)
	if err != nil {
		return nil, err
	}
	return drive(bs, tokens)
}

// quantBounds is the Quant nonterminal's semantic value.
type quantBounds struct{ min, max int }

type frame struct {
	state int
	value interface{}
}

func drive(bs *bootstrap, tokens []token) (regex.Node, error) {
	table := bs.lalr
	stack := []frame{{state: 0}}
	pos := 0

	gotoState := func(fromState int, nt model.EntityHandle) (int, error) {
		for _, g := range table.States[fromState].Gotos {
			if g.Nonterminal == nt {
				return g.State, nil
			}
		}
		return 0, fmt.Errorf("regexstring: internal error: no goto for %v from state %d", nt, fromState)
	}

	reduce := func(prodIdx int) error {
		p := bs.grammar.g.Productions[prodIdx-1]
		n := len(p.Members)
		popped := make([]interface{}, n)
		for i := 0; i < n; i++ {
			popped[i] = stack[len(stack)-n+i].value
		}
		stack = stack[:len(stack)-n]

		val, err := reduceAction(prodIdx, popped)
		if err != nil {
			return err
		}
		top := stack[len(stack)-1].state
		next, err := gotoState(top, p.Head)
		if err != nil {
			return err
		}
		stack = append(stack, frame{state: next, value: val})
		return nil
	}

	for {
		top := stack[len(stack)-1].state

		if pos >= len(tokens) {
			acts := table.States[top].EOFActions
			if len(acts) != 1 {
				return nil, fmt.Errorf("regexstring: incomplete or ambiguous pattern at end of input (state %d)", top)
			}
			switch acts[0].Kind {
			case lalr.ActionAccept:
				node, ok := stack[len(stack)-1].value.(regex.Node)
				invariant.Precondition(ok, "regexstring: accept state holds a non-Node value")
				return node, nil
			case lalr.ActionReduce:
				if err := reduce(acts[0].Production); err != nil {
					return nil, err
				}
				continue
			default:
				return nil, fmt.Errorf("regexstring: unexpected end-of-pattern action at state %d", top)
			}
		}

		cur := tokens[pos]
		var found *lalr.Action
		for _, e := range table.States[top].Actions {
			if e.Terminal == cur.Symbol {
				a := e.Action
				found = &a
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("regexstring: unexpected token %q at position %d", cur.Text, cur.Pos)
		}

		switch found.Kind {
		case lalr.ActionShift:
			stack = append(stack, frame{state: found.Target, value: cur.Text})
			pos++
		case lalr.ActionReduce:
			if err := reduce(found.Production); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("regexstring: unexpected parser action on %q at position %d", cur.Text, cur.Pos)
		}
	}
}

// reduceAction implements the semantic action for each of grammar.go's 28
// productions, dispatched by Production.Index.
func reduceAction(prodIdx int, v []interface{}) (interface{}, error) {
	switch prodIdx {
	case 1: // Pattern -> Alt
		return v[0], nil
	case 2: // Alt -> Concat
		return regex.Join(v[0].([]regex.Node)), nil
	case 3: // Alt -> Alt '|' Concat
		return regex.Choice([]regex.Node{v[0].(regex.Node), regex.Join(v[2].([]regex.Node))}), nil
	case 4: // Concat -> (empty)
		return []regex.Node{}, nil
	case 5: // Concat -> Concat Term
		return append(v[0].([]regex.Node), v[1].(regex.Node)), nil
	case 6: // Term -> Atom
		return v[0], nil
	case 7: // Term -> Atom Quant
		q := v[1].(quantBounds)
		return regex.Loop(v[0].(regex.Node), q.min, q.max)
	case 8: // Quant -> '*'
		return quantBounds{0, regex.Unbounded}, nil
	case 9: // Quant -> '+'
		return quantBounds{1, regex.Unbounded}, nil
	case 10: // Quant -> '?'
		return quantBounds{0, 1}, nil
	case 11: // Quant -> '{' INT '}'
		n, err := parseQuantInt(v[1].(string))
		if err != nil {
			return nil, err
		}
		return quantBounds{n, n}, nil
	case 12: // Quant -> '{' INT ',' '}'
		n, err := parseQuantInt(v[1].(string))
		if err != nil {
			return nil, err
		}
		return quantBounds{n, regex.Unbounded}, nil
	case 13: // Quant -> '{' INT ',' INT '}'
		lo, err := parseQuantInt(v[1].(string))
		if err != nil {
			return nil, err
		}
		hi, err := parseQuantInt(v[3].(string))
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, regex.ErrBoundOrder
		}
		return quantBounds{lo, hi}, nil
	case 14: // Atom -> CHAR
		return regex.Literal(v[0].(string)), nil
	case 15: // Atom -> '.'
		return regex.Any(), nil
	case 16: // Atom -> \d
		node, err := regex.OneOf(digitRanges())
		invariant.ExpectNoError(err, "digit class ranges")
		return node, nil
	case 17: // Atom -> \D
		node, err := regex.NotOneOf(digitRanges())
		invariant.ExpectNoError(err, "negated digit class ranges")
		return node, nil
	case 18: // Atom -> \s
		node, err := regex.OneOf(whitespaceRanges())
		invariant.ExpectNoError(err, "whitespace class ranges")
		return node, nil
	case 19: // Atom -> \S
		node, err := regex.NotOneOf(whitespaceRanges())
		invariant.ExpectNoError(err, "negated whitespace class ranges")
		return node, nil
	case 20: // Atom -> \x (ESCAPED_CHAR)
		text := []rune(v[0].(string))
		return regex.Literal(string(text[1:])), nil
	case 21: // Atom -> CHARSET
		return charSetNode(v[0].(string))
	case 22: // Atom -> '(' Alt ')'
		return v[1], nil
	case 23: // Atom -> \p{ PropBody }
		return nil, fmt.Errorf(`regexstring: \p{%s} is not supported`, v[2].(string))
	case 24: // Atom -> \P{ PropBody }
		return nil, fmt.Errorf(`regexstring: \P{%s} is not supported`, v[2].(string))
	case 25: // Atom -> \p CHARSET
		return nil, fmt.Errorf(`regexstring: \p%s is not supported`, v[1].(string))
	case 26: // Atom -> \P CHARSET
		return nil, fmt.Errorf(`regexstring: \P%s is not supported`, v[1].(string))
	case 27: // PropBody -> CHAR
		return v[0], nil
	case 28: // PropBody -> PropBody CHAR
		return v[0].(string) + v[1].(string), nil
	default:
		invariant.Invariant(false, "regexstring: no semantic action registered for production %d", prodIdx)
		return nil, nil
	}
}

func parseQuantInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("regexstring: parsing quantifier bound %q: %w", s, err)
	}
	return n, nil
}
