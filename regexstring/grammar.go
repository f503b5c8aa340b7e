// Package regexstring parses the textual regex-string syntax from spec.md
// §4.6 into a regex.Node, using a tiny LALR(1) grammar that is itself
// declared with the model/regex/dfa/lalr packages and built once, lazily,
// behind a sync.Once guard.
package regexstring

import (
	"github.com/aledsdavies/gramforge/charset"
	"github.com/aledsdavies/gramforge/model"
	"github.com/aledsdavies/gramforge/regex"
)

// tokenSet names every terminal of the bootstrap grammar.
type tokenSet struct {
	char, dot                                     model.EntityHandle
	lparen, rparen, pipe                          model.EntityHandle
	star, plus, question                          model.EntityHandle
	lbrace, rbrace, comma, integer                model.EntityHandle
	digitClass, digitClassNeg                     model.EntityHandle
	spaceClass, spaceClassNeg                     model.EntityHandle
	escapedChar, charsetTok                       model.EntityHandle
	unicodePropLower, unicodePropUpper            model.EntityHandle
}

// nonterminalSet names every nonterminal of the bootstrap grammar.
type nonterminalSet struct {
	pattern, alt, concat, term, atom, quant, propBody model.EntityHandle
}

// bootstrapGrammar is a built model.Grammar plus everything needed to map
// its productions back to semantic actions and its terminals to DFA
// regexes.
type bootstrapGrammar struct {
	g      *model.Grammar
	tokens tokenSet
	nt     nonterminalSet
}

// specialChars are the characters spec.md §4.6 reserves for the bootstrap
// grammar's own punctuation; an unescaped CHAR atom is any code unit
// outside this set (plus '}' and ',', claimed outright by RBRACE and COMMA
// to avoid a lexer-level tie between CHAR and those tokens on that single
// character).
var specialChars = []rune{'\\', '.', '[', '{', '(', ')', '|', '?', '*', '+', '}', ','}

func specialCharRanges() []charset.Range {
	ranges := make([]charset.Range, len(specialChars))
	for i, r := range specialChars {
		ranges[i] = charset.Range{Start: r, End: r}
	}
	return ranges
}

// whitespaceRanges backs \s and \S (spec.md §4.6's \d/\D/\s/\S atoms).
func whitespaceRanges() []charset.Range {
	return []charset.Range{
		{Start: ' ', End: ' '},
		{Start: '\t', End: '\t'},
		{Start: '\n', End: '\n'},
		{Start: '\r', End: '\r'},
		{Start: '\f', End: '\f'},
		{Start: '\v', End: '\v'},
	}
}

func digitRanges() []charset.Range {
	return []charset.Range{{Start: '0', End: '9'}}
}

// buildGrammar declares the bootstrap grammar's token symbols and
// productions as plain data, the way spec.md §4.6 describes ("defined
// using the same algebra").
func buildGrammar() (*bootstrapGrammar, error) {
	g := model.NewGrammar("regexstring")

	newTerm := func(name string) (model.EntityHandle, error) {
		ts, err := g.NewTokenSymbol(name, model.AttrTerminal)
		if err != nil {
			return model.EntityHandle{}, err
		}
		return ts.Handle(), nil
	}

	var tokens tokenSet
	var err error
	for _, pair := range []struct {
		name string
		dst  *model.EntityHandle
	}{
		{"CHAR", &tokens.char},
		{"DOT", &tokens.dot},
		{"LPAREN", &tokens.lparen},
		{"RPAREN", &tokens.rparen},
		{"PIPE", &tokens.pipe},
		{"STAR", &tokens.star},
		{"PLUS", &tokens.plus},
		{"QUESTION", &tokens.question},
		{"LBRACE", &tokens.lbrace},
		{"RBRACE", &tokens.rbrace},
		{"COMMA", &tokens.comma},
		{"INTEGER", &tokens.integer},
		{"DIGIT_CLASS", &tokens.digitClass},
		{"DIGIT_CLASS_NEG", &tokens.digitClassNeg},
		{"SPACE_CLASS", &tokens.spaceClass},
		{"SPACE_CLASS_NEG", &tokens.spaceClassNeg},
		{"UNICODE_PROP_LOWER", &tokens.unicodePropLower},
		{"UNICODE_PROP_UPPER", &tokens.unicodePropUpper},
		{"ESCAPED_CHAR", &tokens.escapedChar},
		{"CHARSET", &tokens.charsetTok},
	} {
		*pair.dst, err = newTerm(pair.name)
		if err != nil {
			return nil, err
		}
	}

	var nt nonterminalSet
	nt.pattern = g.NewNonterminal("Pattern").Handle()
	nt.alt = g.NewNonterminal("Alt").Handle()
	nt.concat = g.NewNonterminal("Concat").Handle()
	nt.term = g.NewNonterminal("Term").Handle()
	nt.atom = g.NewNonterminal("Atom").Handle()
	nt.quant = g.NewNonterminal("Quant").Handle()
	nt.propBody = g.NewNonterminal("PropBody").Handle()
	g.Start = nt.pattern

	rule := func(head model.EntityHandle, members ...model.EntityHandle) error {
		_, err := g.NewProduction(head, members)
		return err
	}

	// Production.Index assignment below (1-based, in declaration order) is
	// load-bearing: parse.go's reduceTable dispatches on these exact
	// indices.
	rules := []struct {
		head    model.EntityHandle
		members []model.EntityHandle
	}{
		{nt.pattern, []model.EntityHandle{nt.alt}},                                                    // 1: Pattern -> Alt
		{nt.alt, []model.EntityHandle{nt.concat}},                                                     // 2: Alt -> Concat
		{nt.alt, []model.EntityHandle{nt.alt, tokens.pipe, nt.concat}},                                 // 3: Alt -> Alt '|' Concat
		{nt.concat, nil},                                                                               // 4: Concat -> (empty)
		{nt.concat, []model.EntityHandle{nt.concat, nt.term}},                                          // 5: Concat -> Concat Term
		{nt.term, []model.EntityHandle{nt.atom}},                                                       // 6: Term -> Atom
		{nt.term, []model.EntityHandle{nt.atom, nt.quant}},                                             // 7: Term -> Atom Quant
		{nt.quant, []model.EntityHandle{tokens.star}},                                                  // 8: Quant -> '*'
		{nt.quant, []model.EntityHandle{tokens.plus}},                                                  // 9: Quant -> '+'
		{nt.quant, []model.EntityHandle{tokens.question}},                                              // 10: Quant -> '?'
		{nt.quant, []model.EntityHandle{tokens.lbrace, tokens.integer, tokens.rbrace}},                 // 11: Quant -> '{' INT '}'
		{nt.quant, []model.EntityHandle{tokens.lbrace, tokens.integer, tokens.comma, tokens.rbrace}},   // 12: Quant -> '{' INT ',' '}'
		{nt.quant, []model.EntityHandle{tokens.lbrace, tokens.integer, tokens.comma, tokens.integer, tokens.rbrace}}, // 13: Quant -> '{' INT ',' INT '}'
		{nt.atom, []model.EntityHandle{tokens.char}},                                                  // 14: Atom -> CHAR
		{nt.atom, []model.EntityHandle{tokens.dot}},                                                    // 15: Atom -> '.'
		{nt.atom, []model.EntityHandle{tokens.digitClass}},                                             // 16: Atom -> \d
		{nt.atom, []model.EntityHandle{tokens.digitClassNeg}},                                          // 17: Atom -> \D
		{nt.atom, []model.EntityHandle{tokens.spaceClass}},                                             // 18: Atom -> \s
		{nt.atom, []model.EntityHandle{tokens.spaceClassNeg}},                                          // 19: Atom -> \S
		{nt.atom, []model.EntityHandle{tokens.escapedChar}},                                            // 20: Atom -> \x
		{nt.atom, []model.EntityHandle{tokens.charsetTok}},                                             // 21: Atom -> [...]
		{nt.atom, []model.EntityHandle{tokens.lparen, nt.alt, tokens.rparen}},                           // 22: Atom -> '(' Alt ')'
		{nt.atom, []model.EntityHandle{tokens.unicodePropLower, tokens.lbrace, nt.propBody, tokens.rbrace}}, // 23: Atom -> \p{ PropBody }
		{nt.atom, []model.EntityHandle{tokens.unicodePropUpper, tokens.lbrace, nt.propBody, tokens.rbrace}}, // 24: Atom -> \P{ PropBody }
		{nt.atom, []model.EntityHandle{tokens.unicodePropLower, tokens.charsetTok}},                     // 25: Atom -> \p[...]
		{nt.atom, []model.EntityHandle{tokens.unicodePropUpper, tokens.charsetTok}},                     // 26: Atom -> \P[...]
		{nt.propBody, []model.EntityHandle{tokens.char}},                                               // 27: PropBody -> CHAR
		{nt.propBody, []model.EntityHandle{nt.propBody, tokens.char}},                                  // 28: PropBody -> PropBody CHAR
	}
	for _, r := range rules {
		if err := rule(r.head, r.members...); err != nil {
			return nil, err
		}
	}

	if err := g.FinalizeProductionRanges(); err != nil {
		return nil, err
	}

	return &bootstrapGrammar{g: g, tokens: tokens, nt: nt}, nil
}

// terminalRegexes returns each token symbol's DFA regex, grounded directly
// on spec.md §4.6's atom list.
func (bg *bootstrapGrammar) terminalRegexes() ([]terminalRegex, error) {
	charRanges, err := regex.NotOneOf(specialCharRanges())
	if err != nil {
		return nil, err
	}
	escapeExclusions := []charset.Range{{Start: 'd', End: 'd'}, {Start: 'D', End: 'D'},
		{Start: 's', End: 's'}, {Start: 'S', End: 'S'},
		{Start: 'p', End: 'p'}, {Start: 'P', End: 'P'}}
	escapedBody, err := regex.NotOneOf(escapeExclusions)
	if err != nil {
		return nil, err
	}
	escapedChar := regex.Join([]regex.Node{regex.Literal("\\"), escapedBody})

	digits, err := regex.OneOf(digitRanges())
	if err != nil {
		return nil, err
	}
	integer, err := regex.Loop(digits, 1, regex.Unbounded)
	if err != nil {
		return nil, err
	}

	notBracketOrBackslash, err := regex.NotOneOf([]charset.Range{{Start: ']', End: ']'}, {Start: '\\', End: '\\'}})
	if err != nil {
		return nil, err
	}
	escapedAny := regex.Join([]regex.Node{regex.Literal("\\"), regex.Any()})
	bodyItem := regex.Choice([]regex.Node{escapedAny, notBracketOrBackslash})
	body, err := regex.Loop(bodyItem, 0, regex.Unbounded)
	if err != nil {
		return nil, err
	}
	charsetRegex := regex.Join([]regex.Node{regex.Literal("["), body, regex.Literal("]")})

	t := bg.tokens
	return []terminalRegex{
		{t.digitClass, regex.Literal("\\d")},
		{t.digitClassNeg, regex.Literal("\\D")},
		{t.spaceClass, regex.Literal("\\s")},
		{t.spaceClassNeg, regex.Literal("\\S")},
		{t.unicodePropLower, regex.Literal("\\p")},
		{t.unicodePropUpper, regex.Literal("\\P")},
		{t.escapedChar, escapedChar},
		{t.charsetTok, charsetRegex},
		{t.dot, regex.Literal(".")},
		{t.lparen, regex.Literal("(")},
		{t.rparen, regex.Literal(")")},
		{t.pipe, regex.Literal("|")},
		{t.star, regex.Literal("*")},
		{t.plus, regex.Literal("+")},
		{t.question, regex.Literal("?")},
		{t.lbrace, regex.Literal("{")},
		{t.rbrace, regex.Literal("}")},
		{t.comma, regex.Literal(",")},
		{t.integer, integer},
		{t.char, charRanges},
	}, nil
}

// terminalRegex pairs a token symbol with the regex it lexes as.
type terminalRegex struct {
	Symbol model.EntityHandle
	Regex  regex.Node
}
