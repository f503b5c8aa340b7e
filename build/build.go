// Package build implements the orchestration stage (spec.md §4.7): given a
// GrammarDefinition, it drives regex resolution, token-symbol/group/noise
// registration, DFA construction, and LALR construction, emitting
// structured diagnostics along the way (spec.md §6, §7).
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aledsdavies/gramforge/charset"
	"github.com/aledsdavies/gramforge/dfa"
	"github.com/aledsdavies/gramforge/diag"
	"github.com/aledsdavies/gramforge/lalr"
	"github.com/aledsdavies/gramforge/model"
	"github.com/aledsdavies/gramforge/regex"
	"github.com/aledsdavies/gramforge/regexstring"
)

// Options configures one Build invocation (spec.md §6's "Builder
// options": {cancellationToken, maxTokenizerStates, logLevel,
// onDiagnostic}). Cancellation is the ctx argument to Build itself.
type Options struct {
	MaxTokenizerStates int
	LogLevel           slog.Level
	OnDiagnostic       func(diag.Diagnostic)
}

func buildLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Build runs the full pipeline described by spec.md §4.7's nine steps over
// def, returning a Result that carries the built grammar, DFA, LR table,
// and every diagnostic raised. A non-nil error indicates a user input
// error (spec.md §7) or the cancellation of ctx, either of which prevented
// the build from producing any result at all; grammar-level problems are reported as diagnostics on the returned
// Result instead.
func Build(ctx context.Context, def *GrammarDefinition, opts Options) (*Result, error) {
	if def == nil {
		return nil, fmt.Errorf("build: GrammarDefinition is nil")
	}

	collector := diag.NewCollector(opts.OnDiagnostic)
	logger := buildLogger(opts.LogLevel)

	collector.Reportf(diag.SeverityInformation, "", "building started: grammar %q", def.Options.GrammarName)
	logger.Debug("build started", "grammar", def.Options.GrammarName)

	g := model.NewGrammar(def.Options.GrammarName)
	reg := newRegistry(g, def, collector)

	// Step 2: terminals.
	if err := reg.registerTerminals(); err != nil {
		return nil, err
	}
	// Step 3: groups.
	if err := reg.registerGroups(); err != nil {
		return nil, err
	}
	// Step 4: comment groups.
	if err := reg.registerComments(); err != nil {
		return nil, err
	}
	// Step 5: whitespace noise.
	reg.registerWhitespaceNoise()
	// Step 6: miscellaneous noise.
	if err := reg.registerNoise(); err != nil {
		return nil, err
	}

	if err := reg.registerNonterminals(); err != nil {
		return nil, err
	}
	if err := reg.registerProductions(); err != nil {
		return nil, err
	}

	if err := g.FinalizeProductionRanges(); err != nil {
		return nil, err
	}
	reg.checkNonterminalsHaveProductions()

	resolved, err := reg.resolveRegexStrings()
	if err != nil {
		return nil, err
	}

	// Step 7: DFA.
	dfaTable, err := dfa.Build(ctx, resolved, collector, dfa.Options{
		MaxTokenizerStates:   opts.MaxTokenizerStates,
		DefaultCaseSensitive: def.Options.CaseSensitive,
	})
	if err != nil && ctx.Err() != nil {
		// Cancellation: dfa.Build returns ctx.Err() itself in this case,
		// and collector already carries an Information diagnostic for it.
		return nil, err
	}
	if dfaTable == nil {
		// The DFA state budget was exceeded (spec.md §4.3's
		// DfaStateLimitExceeded); collector already carries the
		// FARKLE0001 diagnostic. There is no DFA to lex with, so the
		// LALR stage is skipped entirely rather than built over an
		// ungrounded table.
		logger.Debug("build aborted: DFA state budget exceeded")
		return &Result{Grammar: g, Diagnostics: collector.All()}, nil
	}

	// Step 8: LALR.
	scope, err := reg.operatorScope()
	if err != nil {
		return nil, err
	}
	lrTable, err := lalr.Build(ctx, g, scope, collector)
	if err != nil {
		return nil, err
	}

	collector.Reportf(diag.SeverityInformation, "", "building finished: %d symbols, %d nonterminals, %d productions, %d dfa states, %d lr states",
		len(g.TokenSymbols), len(g.Nonterminals), len(g.Productions), len(dfaTable.States), len(lrTable.States))
	logger.Debug("build finished", "dfaStates", len(dfaTable.States), "lrStates", len(lrTable.States), "isGLR", lrTable.IsGLR)

	return &Result{
		Grammar:     g,
		DFA:         dfaTable,
		LR:          lrTable,
		Diagnostics: collector.All(),
	}, nil
}

// registry tracks name-to-handle bindings accumulated while registering a
// GrammarDefinition's symbols, and the DFA-ready regex for every token
// symbol that the DFA must lex (everything except group container
// symbols, which are produced at runtime, not lexed).
type registry struct {
	g         *model.Grammar
	def       *GrammarDefinition
	collector *diag.Collector

	terminalByName       map[string]model.EntityHandle
	nonterminalByName    map[string]model.EntityHandle
	groupContainerByName map[string]model.EntityHandle
	groupHandleByName    map[string]model.EntityHandle
	groupIndexByName     map[string]int
	groupEndByLiteral    map[string]model.EntityHandle

	lexedRegex map[model.EntityHandle]regex.Node // terminal/group-delimiter/noise -> deferred or built regex
}

func newRegistry(g *model.Grammar, def *GrammarDefinition, collector *diag.Collector) *registry {
	return &registry{
		g:                    g,
		def:                  def,
		collector:            collector,
		terminalByName:       make(map[string]model.EntityHandle),
		nonterminalByName:    make(map[string]model.EntityHandle),
		groupContainerByName: make(map[string]model.EntityHandle),
		groupHandleByName:    make(map[string]model.EntityHandle),
		groupIndexByName:     make(map[string]int),
		groupEndByLiteral:    make(map[string]model.EntityHandle),
		lexedRegex:           make(map[model.EntityHandle]regex.Node),
	}
}

func (r *registry) displayName(name string) string {
	if renamed, ok := r.def.Renames[name]; ok {
		return renamed
	}
	return name
}

func (r *registry) registerTerminals() error {
	for _, t := range r.def.Terminals {
		attr := model.AttrTerminal
		if t.Hidden {
			attr |= model.AttrHidden
		}
		ts, err := r.g.NewTokenSymbol(r.displayName(t.Name), attr)
		if err != nil {
			return fmt.Errorf("build: registering terminal %q: %w", t.Name, err)
		}
		h := ts.Handle()
		r.terminalByName[t.Name] = h
		r.lexedRegex[h] = regex.FromRegexString(t.Pattern)
		if t.SpecialName != "" {
			if err := r.g.AddSpecialName(t.SpecialName, h); err != nil {
				return fmt.Errorf("build: terminal %q: %w", t.Name, err)
			}
		}
	}
	return nil
}

func (r *registry) registerGroups() error {
	for i, gd := range r.def.Groups {
		container, err := r.g.NewTokenSymbol(r.displayName(gd.Name), model.AttrGenerated)
		if err != nil {
			return fmt.Errorf("build: registering group %q container: %w", gd.Name, err)
		}
		r.groupContainerByName[gd.Name] = container.Handle()

		start, err := r.g.NewTokenSymbol(gd.Name+"Start", model.AttrGroupStart|model.AttrGenerated|model.AttrNoise)
		if err != nil {
			return fmt.Errorf("build: registering group %q start: %w", gd.Name, err)
		}
		r.lexedRegex[start.Handle()] = regex.Literal(gd.StartLiteral)

		end, err := r.endTokenSymbol(gd.Name, gd.EndLiteral)
		if err != nil {
			return err
		}

		var flags model.GroupFlags
		if gd.AdvanceByCharacter {
			flags |= model.GroupAdvanceByCharacter
		}
		if gd.EndsOnEndOfInput {
			flags |= model.GroupEndsOnEndOfInput
		}
		if gd.KeepEndToken {
			flags |= model.GroupKeepEndToken
		}

		group, err := r.g.NewGroup(container.Handle(), start.Handle(), end, flags)
		if err != nil {
			return fmt.Errorf("build: registering group %q: %w", gd.Name, err)
		}
		r.groupHandleByName[gd.Name] = group.Handle()
		r.groupIndexByName[gd.Name] = i
	}

	for _, gd := range r.def.Groups {
		if len(gd.Nesting) == 0 {
			continue
		}
		idx := r.groupIndexByName[gd.Name]
		for _, nested := range gd.Nesting {
			h, ok := r.groupHandleByName[nested]
			if !ok {
				return fmt.Errorf("build: group %q nests unknown group %q", gd.Name, nested)
			}
			r.g.Groups[idx].Nesting = append(r.g.Groups[idx].Nesting, h)
		}
	}
	return nil
}

// endTokenSymbol returns the End token symbol for literal, creating and
// lexing a new one on first use and reusing it afterward (spec.md §4.7
// step 3's "deduplicate group-end literals"). EndsOnEndOfInput groups may
// pass an empty literal, in which case no End symbol is created at all.
func (r *registry) endTokenSymbol(groupName, literal string) (model.EntityHandle, error) {
	if literal == "" {
		return model.EntityHandle{}, nil
	}
	if h, ok := r.groupEndByLiteral[literal]; ok {
		return h, nil
	}
	end, err := r.g.NewTokenSymbol(groupName+"End", model.AttrGenerated|model.AttrNoise)
	if err != nil {
		return model.EntityHandle{}, fmt.Errorf("build: registering group end literal %q: %w", literal, err)
	}
	h := end.Handle()
	r.lexedRegex[h] = regex.Literal(literal)
	r.groupEndByLiteral[literal] = h
	return h, nil
}

func (r *registry) registerComments() error {
	c := r.def.Options.Comments
	if c.Line != "" {
		start, err := r.g.NewTokenSymbol("CommentLineStart", model.AttrGroupStart|model.AttrGenerated|model.AttrNoise)
		if err != nil {
			return fmt.Errorf("build: registering line comment: %w", err)
		}
		r.lexedRegex[start.Handle()] = regex.Literal(c.Line)
		container, err := r.g.NewTokenSymbol("CommentLine", model.AttrGenerated)
		if err != nil {
			return fmt.Errorf("build: registering line comment: %w", err)
		}
		if _, err := r.g.NewGroup(container.Handle(), start.Handle(), model.EntityHandle{}, model.GroupEndsOnEndOfInput); err != nil {
			return fmt.Errorf("build: registering line comment group: %w", err)
		}
	}
	if c.BlockStart != "" && c.BlockEnd != "" {
		start, err := r.g.NewTokenSymbol("CommentBlockStart", model.AttrGroupStart|model.AttrGenerated|model.AttrNoise)
		if err != nil {
			return fmt.Errorf("build: registering block comment: %w", err)
		}
		r.lexedRegex[start.Handle()] = regex.Literal(c.BlockStart)
		end, err := r.endTokenSymbol("CommentBlock", c.BlockEnd)
		if err != nil {
			return err
		}
		container, err := r.g.NewTokenSymbol("CommentBlock", model.AttrGenerated)
		if err != nil {
			return fmt.Errorf("build: registering block comment: %w", err)
		}
		if _, err := r.g.NewGroup(container.Handle(), start.Handle(), end, model.GroupAdvanceByCharacter); err != nil {
			return fmt.Errorf("build: registering block comment group: %w", err)
		}
	}
	return nil
}

func whitespaceRangesExcluding(newLine bool) []charset.Range {
	ranges := []charset.Range{
		{Start: ' ', End: ' '}, {Start: '\t', End: '\t'},
		{Start: '\r', End: '\r'}, {Start: '\f', End: '\f'}, {Start: '\v', End: '\v'},
	}
	if !newLine {
		ranges = append(ranges, charset.Range{Start: '\n', End: '\n'})
	}
	return ranges
}

// registerWhitespaceNoise implements spec.md §4.7 step 5: a whitespace
// noise symbol is added when AutoWhitespace is set, excluding '\n' from
// its character class whenever a "NewLine" terminal is itself declared
// (that terminal is then presumably significant to the grammar, e.g. an
// indentation-sensitive language).
func (r *registry) registerWhitespaceNoise() {
	if !r.def.Options.AutoWhitespace {
		return
	}
	_, hasNewLineTerminal := r.terminalByName["NewLine"]
	ranges := whitespaceRangesExcluding(hasNewLineTerminal)

	ws, err := r.g.NewTokenSymbol("Whitespace", model.AttrNoise|model.AttrGenerated)
	if err != nil {
		r.collector.Reportf(diag.SeverityError, "", "registering whitespace noise symbol: %v", err)
		return
	}
	body, err := regex.OneOf(ranges)
	if err != nil {
		r.collector.Reportf(diag.SeverityError, "", "building whitespace noise regex: %v", err)
		return
	}
	loop, err := regex.Loop(body, 1, regex.Unbounded)
	if err != nil {
		r.collector.Reportf(diag.SeverityError, "", "building whitespace noise regex: %v", err)
		return
	}
	r.lexedRegex[ws.Handle()] = loop
}

func (r *registry) registerNoise() error {
	for _, n := range r.def.Noise {
		ts, err := r.g.NewTokenSymbol(r.displayName(n.Name), model.AttrNoise|model.AttrGenerated)
		if err != nil {
			return fmt.Errorf("build: registering noise symbol %q: %w", n.Name, err)
		}
		r.lexedRegex[ts.Handle()] = regex.FromRegexString(n.Pattern)
	}
	return nil
}

// registerNonterminals registers every declared nonterminal and sets the
// grammar's start symbol to the first one declared, the conventional
// default for grammar-definition front ends (spec.md's GrammarDefinition
// names no separate "start symbol" field).
func (r *registry) registerNonterminals() error {
	for i, nt := range r.def.Nonterminals {
		h := r.g.NewNonterminal(nt.Name).Handle()
		r.nonterminalByName[nt.Name] = h
		if i == 0 {
			r.g.Start = h
		}
		if nt.SpecialName != "" {
			if err := r.g.AddSpecialName(nt.SpecialName, h); err != nil {
				return fmt.Errorf("build: nonterminal %q: %w", nt.Name, err)
			}
		}
	}
	if len(r.def.Nonterminals) == 0 {
		return fmt.Errorf("build: grammar definition declares no nonterminals")
	}
	return nil
}

func (r *registry) resolveMember(m Member) (model.EntityHandle, error) {
	switch m.Kind {
	case MemberTerminal:
		if h, ok := r.terminalByName[m.Name]; ok {
			return h, nil
		}
		if h, ok := r.groupContainerByName[m.Name]; ok {
			return h, nil
		}
		return model.EntityHandle{}, fmt.Errorf("build: unknown terminal or group %q", m.Name)
	case MemberNonterminal:
		h, ok := r.nonterminalByName[m.Name]
		if !ok {
			return model.EntityHandle{}, fmt.Errorf("build: unknown nonterminal %q", m.Name)
		}
		return h, nil
	default:
		return model.EntityHandle{}, fmt.Errorf("build: unknown member kind %d for %q", m.Kind, m.Name)
	}
}

func (r *registry) registerProductions() error {
	for i, pd := range r.def.Productions {
		head, ok := r.nonterminalByName[pd.Head]
		if !ok {
			return fmt.Errorf("build: production #%d: unknown head nonterminal %q", i, pd.Head)
		}
		members := make([]model.EntityHandle, len(pd.Members))
		for j, m := range pd.Members {
			h, err := r.resolveMember(m)
			if err != nil {
				return fmt.Errorf("build: production #%d (%s): %w", i, pd.Head, err)
			}
			members[j] = h
		}
		p, err := r.g.NewProduction(head, members)
		if err != nil {
			return fmt.Errorf("build: production #%d (%s): %w", i, pd.Head, err)
		}
		if pd.Precedence != "" {
			prec, ok := r.terminalByName[pd.Precedence]
			if !ok {
				return fmt.Errorf("build: production #%d (%s): unknown precedence terminal %q", i, pd.Head, pd.Precedence)
			}
			p.Precedence = prec
		}
	}
	return nil
}

// checkNonterminalsHaveProductions reports spec.md §7's "nonterminal with
// no productions" grammar error for every nonterminal that ended up with
// zero productions after FinalizeProductionRanges, excluding the start
// symbol reserved index 0 case (Start is always set for a valid
// definition).
func (r *registry) checkNonterminalsHaveProductions() {
	for i := range r.g.Nonterminals {
		nt := &r.g.Nonterminals[i]
		if nt.ProductionCount == 0 {
			r.collector.Reportf(diag.SeverityError, "", "nonterminal %q has no productions", nt.Name)
		}
	}
}

// resolveRegexStrings parses every registered lexed token symbol's
// deferred regex-string pattern (via regexstring.Parse) into a real
// regex.Node, producing the dfa.Terminal slice Build passes to dfa.Build.
func (r *registry) resolveRegexStrings() ([]dfa.Terminal, error) {
	terminals := make([]dfa.Terminal, 0, len(r.lexedRegex))
	for _, ts := range r.g.TokenSymbols {
		h := ts.Handle()
		node, ok := r.lexedRegex[h]
		if !ok {
			continue
		}
		resolved, err := regex.ResolveRegexStrings(node, regexstring.Parse)
		if err != nil {
			return nil, fmt.Errorf("build: token symbol %q: %w", ts.Name, err)
		}
		terminals = append(terminals, dfa.Terminal{Symbol: h, Regex: resolved})
	}
	return terminals, nil
}

func (r *registry) operatorScope() (lalr.OperatorScope, error) {
	scope := lalr.OperatorScope{CanResolveReduceReduce: r.def.Options.CanResolveReduceReduce}
	for _, pg := range r.def.Options.OperatorScope {
		group := lalr.AssociativityGroup{Type: pg.Type}
		for _, name := range pg.Symbols {
			h, ok := r.terminalByName[name]
			if !ok {
				return lalr.OperatorScope{}, fmt.Errorf("build: operator scope references unknown terminal %q", name)
			}
			group.Symbols = append(group.Symbols, h)
		}
		scope.Groups = append(scope.Groups, group)
	}
	return scope, nil
}
