package regexstring

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aledsdavies/gramforge/dfa"
	"github.com/aledsdavies/gramforge/diag"
	"github.com/aledsdavies/gramforge/lalr"
)

// bootstrap bundles the built grammar and its DFA/LALR tables, constructed
// at most once per process (spec.md §4.6, §5, §9).
type bootstrap struct {
	grammar *bootstrapGrammar
	dfa     *dfa.Table
	lalr    *lalr.Table
}

var (
	bootstrapOnce  sync.Once
	bootstrapValue *bootstrap
	bootstrapErr   error
)

// debugLogger mirrors the teacher's DEVCMD_DEBUG_PARSER convention: debug
// output is silent unless GRAMFORGE_DEBUG_REGEXSTRING is set.
func debugLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("GRAMFORGE_DEBUG_REGEXSTRING") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getBootstrap builds (once) and returns the bootstrap grammar's tables.
func getBootstrap() (*bootstrap, error) {
	bootstrapOnce.Do(func() {
		bootstrapValue, bootstrapErr = buildBootstrap()
	})
	return bootstrapValue, bootstrapErr
}

func buildBootstrap() (*bootstrap, error) {
	logger := debugLogger()
	logger.Debug("building regex-string bootstrap grammar")

	bg, err := buildGrammar()
	if err != nil {
		return nil, fmt.Errorf("regexstring: building bootstrap grammar: %w", err)
	}
	regexes, err := bg.terminalRegexes()
	if err != nil {
		return nil, fmt.Errorf("regexstring: building terminal regexes: %w", err)
	}

	terminals := make([]dfa.Terminal, len(regexes))
	for i, r := range regexes {
		terminals[i] = dfa.Terminal{Symbol: r.Symbol, Regex: r.Regex}
	}

	collector := diag.NewCollector(nil)
	dfaTable, err := dfa.Build(context.Background(), terminals, collector, dfa.Options{DefaultCaseSensitive: true})
	if err != nil {
		return nil, fmt.Errorf("regexstring: building bootstrap DFA: %w", err)
	}
	if collector.HasErrors() {
		return nil, fmt.Errorf("regexstring: bootstrap DFA has errors: %+v", collector.All())
	}

	lrTable, err := lalr.Build(context.Background(), bg.g, lalr.OperatorScope{}, collector)
	if err != nil {
		return nil, fmt.Errorf("regexstring: building bootstrap LALR table: %w", err)
	}
	if collector.HasErrors() {
		return nil, fmt.Errorf("regexstring: bootstrap grammar has conflicts: %+v", collector.All())
	}

	logger.Debug("bootstrap grammar built", "states.dfa", len(dfaTable.States), "states.lalr", len(lrTable.States))
	return &bootstrap{grammar: bg, dfa: dfaTable, lalr: lrTable}, nil
}
