package ictiobus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/ictiobus/internal/ictiobus/grammarir"
	"github.com/dekarrin/ictiobus/internal/ictiobus/icterrors"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

// buildRightRecursiveGrammar returns the grammar s -> a s | a, where a is a
// single-character lexical token, the smallest shape that exercises every
// pipeline stage end to end.
func buildRightRecursiveGrammar() grammarir.Grammar {
	sSym := symbol.Symbol{Index: 0, Kind: symbol.NonTerminal}
	aSym := symbol.Symbol{Index: 1, Kind: symbol.Terminal}

	sRule := rule.Choice{Children: []rule.Rule{
		rule.Seq{Left: &rule.SymbolRef{Symbol: aSym}, Right: &rule.SymbolRef{Symbol: sSym}}.Build(),
		&rule.SymbolRef{Symbol: aSym},
	}}.Build()

	aRule := rule.NewCharacterSet().Include('a')

	return grammarir.NewBuilder().
		AddVariable("s", sRule, grammarir.Named).
		AddVariable("a", aRule, grammarir.Named).
		Build()
}

func TestCompile_RightRecursiveGrammarProducesCode(t *testing.T) {
	g := buildRightRecursiveGrammar()

	result := Compile(g, CompileOptions{})
	require.True(t, result.Error.None(), result.Error.Error())
	assert.NotEmpty(t, result.Code)
}

func TestCompile_UseLALRAlsoSucceeds(t *testing.T) {
	g := buildRightRecursiveGrammar()

	result := Compile(g, CompileOptions{UseLALR: true})
	require.True(t, result.Error.None(), result.Error.Error())
	assert.NotEmpty(t, result.Code)
}

func TestCompile_TraceSinkReceivesStageNames(t *testing.T) {
	g := buildRightRecursiveGrammar()

	var stages []string
	result := Compile(g, CompileOptions{TraceSink: func(msg string) { stages = append(stages, msg) }})
	require.True(t, result.Error.None())
	assert.NotEmpty(t, stages)
}

func TestCompile_CancelledContextAbortsEarly(t *testing.T) {
	g := buildRightRecursiveGrammar()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Compile(g, CompileOptions{Context: ctx})
	assert.Equal(t, icterrors.KindCancelled, result.Error.Kind)
	assert.Empty(t, result.Code)
}

func TestCompile_NestedChoiceInSeqIsAGrammarError(t *testing.T) {
	sSym := symbol.Symbol{Index: 0, Kind: symbol.NonTerminal}
	aSym := symbol.Symbol{Index: 1, Kind: symbol.Terminal}
	bSym := symbol.Symbol{Index: 2, Kind: symbol.Terminal}

	// s -> (a | b) s | <empty>: the self-reference to s keeps this variable
	// correctly classified as structural (not folded into a lexical token
	// rule), while "(a | b)" sits nested directly inside a Seq step — a
	// shape that would need its own auxiliary non-terminal to flatten into
	// BNF productions and is rejected rather than silently mis-flattened.
	sRule := rule.Choice{Children: []rule.Rule{
		rule.Seq{
			Left:  rule.Choice{Children: []rule.Rule{&rule.SymbolRef{Symbol: aSym}, &rule.SymbolRef{Symbol: bSym}}}.Build(),
			Right: &rule.SymbolRef{Symbol: sSym},
		}.Build(),
		&rule.Blank{},
	}}.Build()

	g := grammarir.NewBuilder().
		AddVariable("s", sRule, grammarir.Named).
		AddVariable("a", rule.NewCharacterSet().Include('a'), grammarir.Named).
		AddVariable("b", rule.NewCharacterSet().Include('b'), grammarir.Named).
		Build()

	result := Compile(g, CompileOptions{})
	assert.Equal(t, icterrors.KindGrammarError, result.Error.Kind)
	assert.Empty(t, result.Code)
}
