package regexstring

import (
	"fmt"

	"github.com/aledsdavies/gramforge/dfa"
	"github.com/aledsdavies/gramforge/model"
)

// token is one lexed unit of the regex-string input.
type token struct {
	Symbol model.EntityHandle
	Text   string
	Pos    int // rune offset into the original pattern
}

// lookupEdge finds the transition for code unit c out of st, preferring an
// explicit Edge over the state's Default transition (spec §4.3's "default
// transition extraction").
func lookupEdge(st dfa.State, c uint16) (int, bool) {
	for _, e := range st.Edges {
		if c >= e.KeyFrom && c <= e.KeyTo {
			return e.Target - 1, true
		}
	}
	if st.Default != 0 {
		return st.Default - 1, true
	}
	return 0, false
}

// tokenize walks table over pattern using maximal munch: at every starting
// position it advances as far as transitions allow, remembering the most
// recent accepting state, then backtracks to that accept (spec.md §4.6's
// "character-set parser runs a small state machine over the raw span"
// describes the charset sub-scanner; this is the analogous driver for the
// main token grammar, since the dfa package builds tables but does not ship
// a driver itself).
func tokenize(pattern string, table *dfa.Table) ([]token, error) {
	runes := []rune(pattern)
	pos := 0
	var tokens []token

	for pos < len(runes) {
		state := 0
		lastLen := -1
		var lastAccept model.EntityHandle
		cur := pos

		for {
			st := table.States[state]
			if !st.Accept.IsNil() {
				lastLen = cur - pos
				lastAccept = st.Accept
			}
			if cur >= len(runes) {
				break
			}
			c := uint16(runes[cur])
			target, ok := lookupEdge(st, c)
			if !ok {
				break
			}
			state = target
			cur++
		}

		if lastLen < 0 {
			return nil, fmt.Errorf("regexstring: unexpected character %q at position %d", runes[pos], pos)
		}
		if lastLen == 0 {
			return nil, fmt.Errorf("regexstring: empty token matched at position %d", pos)
		}
		tokens = append(tokens, token{Symbol: lastAccept, Text: string(runes[pos : pos+lastLen]), Pos: pos})
		pos += lastLen
	}

	return tokens, nil
}
