package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/ictiobus/internal/ictiobus/grammarir"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

func termAt(i uint32) symbol.Symbol    { return symbol.Symbol{Index: i, Kind: symbol.Terminal} }
func nontermAt(i uint32) symbol.Symbol { return symbol.Symbol{Index: i, Kind: symbol.NonTerminal} }

func TestSplit_ClassifiesLexicalVsStructural(t *testing.T) {
	aSym := termAt(1)
	sSym := nontermAt(0)

	g := grammarir.Grammar{
		Variables: []grammarir.Variable{
			{Name: "s", Rule: rule.Choice{Children: []rule.Rule{
				rule.Seq{Left: &rule.SymbolRef{Symbol: aSym}, Right: &rule.SymbolRef{Symbol: sSym}}.Build(),
				&rule.SymbolRef{Symbol: aSym},
			}}.Build(), Type: grammarir.Named},
			{Name: "a", Rule: rule.NewCharacterSet().Include('a'), Type: grammarir.Named},
		},
	}

	lex, syntaxVars, syntaxSyms := Split(g)

	require.Len(t, lex.Tokens, 1)
	assert.Equal(t, aSym, lex.Tokens[0].Symbol)

	require.Len(t, syntaxVars, 1)
	assert.Equal(t, "s", syntaxVars[0].Name)
	require.Len(t, syntaxSyms, 1)
	assert.Equal(t, sSym, syntaxSyms[0])
}

func TestSplit_MetadataIsTokenOverridesReferenceShape(t *testing.T) {
	// A rule wrapped in Metadata{IsToken: true} is lexical even though it
	// would otherwise look structural-shaped were it not for the wrapper
	// (here it just wraps a CharacterSet, the simplest case that still
	// exercises the metadata-overrides-shape path).
	wrapped := rule.Metadata{
		Inner:  rule.NewCharacterSet().Include('x'),
		Params: rule.MetadataParams{IsToken: true, Precedence: 2},
	}.Build()

	g := grammarir.Grammar{
		Variables: []grammarir.Variable{
			{Name: "x", Rule: wrapped, Type: grammarir.Named},
		},
	}

	lex, syntaxVars, _ := Split(g)
	require.Len(t, lex.Tokens, 1)
	assert.Empty(t, syntaxVars)
	assert.Equal(t, 2, lex.Tokens[0].Precedence)
	assert.True(t, lex.Tokens[0].Rule.Equal(rule.NewCharacterSet().Include('x')), "metadata wrapper is stripped from the stored token rule")
}

func TestSplit_ExternalTokensBecomeBlankPlaceholders(t *testing.T) {
	extSym := symbol.Symbol{Index: 0, Kind: symbol.External}
	g := grammarir.Grammar{
		External: []grammarir.ExternalToken{{Name: "comment", Symbol: extSym}},
	}

	lex, _, _ := Split(g)
	require.Len(t, lex.Tokens, 1)
	assert.Equal(t, extSym, lex.Tokens[0].Symbol)
	assert.True(t, lex.Tokens[0].Rule.Equal(&rule.Blank{}))
}

func TestSplit_ExternalTokenInheritsInternalPrecedence(t *testing.T) {
	intSym := termAt(0)
	extSym := symbol.Symbol{Index: 0, Kind: symbol.External}

	g := grammarir.Grammar{
		Variables: []grammarir.Variable{
			{Name: "kw", Rule: rule.Metadata{
				Inner:  rule.NewCharacterSet().Include('k'),
				Params: rule.MetadataParams{IsToken: true, Precedence: 3},
			}.Build(), Type: grammarir.Named},
		},
		External: []grammarir.ExternalToken{
			{Name: "kw_ext", Symbol: extSym, CorrespondingInternal: &intSym},
		},
	}

	lex, _, _ := Split(g)
	require.Len(t, lex.Tokens, 2)
	ext, ok := lex.TokenFor(extSym)
	require.True(t, ok)
	assert.Equal(t, 3, ext.Precedence)
}

func TestSplit_MainTokenAlternativeBecomesMainSubrule(t *testing.T) {
	keyword := rule.NewCharacterSet().Include('k')
	pattern := rule.NewCharacterSet().IncludeRange('a', 'z')

	tokRule := rule.Choice{Children: []rule.Rule{
		rule.Metadata{Inner: keyword, Params: rule.MetadataParams{IsMainToken: true}}.Build(),
		pattern,
	}}.Build()

	g := grammarir.Grammar{
		Variables: []grammarir.Variable{
			{Name: "kw", Rule: tokRule, Type: grammarir.Named},
		},
	}

	lex, _, _ := Split(g)
	require.Len(t, lex.Tokens, 1)
	require.NotNil(t, lex.Tokens[0].MainSubrule)
	assert.True(t, lex.Tokens[0].MainSubrule.Equal(rule.NewCharacterSet().Include('k')))
}

func TestExpandRepeats_TopLevelRepeatBecomesDirectAuxReference(t *testing.T) {
	a := rule.NewCharacterSet().Include('a')
	v := grammarir.Variable{Name: "s", Rule: &rule.Repeat{Inner: a}}

	expanded, aux := ExpandRepeats([]grammarir.Variable{v}, nil, 1)

	require.Len(t, aux, 1)
	auxSym := symbol.Symbol{Index: 1, Kind: symbol.Auxiliary}
	assert.Equal(t, "s_repeat0", aux[0].Name)

	// s now references the auxiliary symbol directly: a bare Repeat is
	// one-or-more, and the auxiliary rule matches one-or-more by
	// construction.
	assert.True(t, expanded[0].Rule.Equal(&rule.SymbolRef{Symbol: auxSym}))

	// s_repeat0 -> Seq(a, Choice(Sym(s_repeat0), Blank))
	wantBody := rule.Seq{
		Left: rule.NewCharacterSet().Include('a'),
		Right: rule.Choice{Children: []rule.Rule{
			&rule.SymbolRef{Symbol: auxSym},
			&rule.Blank{},
		}}.Build(),
	}.Build()
	assert.True(t, aux[0].Rule.Equal(wantBody), "got %s", aux[0].Rule.String())
}

func TestExpandRepeats_ZeroOrMoreKeepsItsBlankAlternative(t *testing.T) {
	// Choice(Repeat(a), Blank) is the zero-or-more encoding; after expansion
	// the Blank alternative must survive so zero occurrences still match.
	v := grammarir.Variable{
		Name: "s",
		Rule: rule.ZeroOrMore(rule.NewCharacterSet().Include('a')),
	}

	expanded, aux := ExpandRepeats([]grammarir.Variable{v}, nil, 1)

	require.Len(t, aux, 1)
	auxSym := symbol.Symbol{Index: 1, Kind: symbol.Auxiliary}
	want := rule.Choice{Children: []rule.Rule{
		&rule.SymbolRef{Symbol: auxSym},
		&rule.Blank{},
	}}.Build()
	assert.True(t, expanded[0].Rule.Equal(want), "got %s", expanded[0].Rule.String())
}

func TestExpandRepeats_MemoizesStructurallyEqualRepeats(t *testing.T) {
	digit := rule.NewCharacterSet().IncludeRange('0', '9')
	repeatNode := &rule.Repeat{Inner: digit}

	// s -> digit+ digit+ : both occurrences are the same Repeat, structurally,
	// and must share one auxiliary rule.
	v := grammarir.Variable{
		Name: "s",
		Rule: rule.Seq{Left: repeatNode, Right: &rule.Repeat{Inner: rule.NewCharacterSet().IncludeRange('0', '9')}}.Build(),
	}

	expanded, aux := ExpandRepeats([]grammarir.Variable{v}, nil, 1)
	require.Len(t, aux, 1, "both Repeat occurrences memoize to the same auxiliary rule")

	seq, ok := expanded[0].Rule.(*rule.Seq)
	require.True(t, ok)
	assert.True(t, seq.Left.Equal(seq.Right), "both positions now reference the same auxiliary symbol")
}

func TestExpandRepeats_DistinctRepeatsGetDistinctAuxRules(t *testing.T) {
	v := grammarir.Variable{
		Name: "s",
		Rule: rule.Seq{
			Left:  &rule.Repeat{Inner: rule.NewCharacterSet().Include('a')},
			Right: &rule.Repeat{Inner: rule.NewCharacterSet().Include('b')},
		}.Build(),
	}

	_, aux := ExpandRepeats([]grammarir.Variable{v}, nil, 1)
	assert.Len(t, aux, 2)
}

func TestPrepare_FlattensRightRecursiveGrammar(t *testing.T) {
	sSym := nontermAt(0)
	aSym := termAt(1)

	sRule := rule.Choice{Children: []rule.Rule{
		rule.Seq{Left: &rule.SymbolRef{Symbol: aSym}, Right: &rule.SymbolRef{Symbol: sSym}}.Build(),
		&rule.SymbolRef{Symbol: aSym},
	}}.Build()

	g := grammarir.NewBuilder().
		AddVariable("s", sRule, grammarir.Named).
		AddVariable("a", rule.NewCharacterSet().Include('a'), grammarir.Named).
		Build()

	lex, syn, err := Prepare(g)
	require.True(t, err.None(), err.Error())

	require.Len(t, lex.Tokens, 1)
	assert.Equal(t, aSym, lex.Tokens[0].Symbol)

	assert.Equal(t, sSym, syn.StartSymbol)
	require.Len(t, syn.Productions, 2, "one production per Choice alternative")
	for _, p := range syn.Productions {
		assert.Equal(t, sSym, p.LHS)
	}
}

func TestPrepare_NestedChoiceInSeqIsAGrammarError(t *testing.T) {
	sSym := nontermAt(0)
	aSym := termAt(1)
	bSym := termAt(2)

	// s -> (a | b) s | <empty>: the self-reference to s keeps this variable
	// classified as structural rather than folded into a lexical token rule,
	// while "(a | b)" still sits nested directly inside a Seq step.
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

	_, _, err := Prepare(g)
	assert.False(t, err.None())
}
