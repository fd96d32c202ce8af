package lexgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/ictiobus/internal/ictiobus/icterrors"
	"github.com/dekarrin/ictiobus/internal/ictiobus/lextoks"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

func tokSym(i uint32) symbol.Symbol { return symbol.Symbol{Index: i, Kind: symbol.Terminal} }

func charset(lo, hi rune) rule.Rule {
	return rule.NewCharacterSet().IncludeRange(lo, hi)
}

// walk follows table from its start state through each rune of input,
// returning the id of the last accepting state reached and how much of
// input it consumed (the "longest match" a real scanning driver performs).
func walk(t *testing.T, table *LexTable, input []rune) (acceptedAt int, consumed int) {
	t.Helper()
	state := table.Start
	acceptedAt = -1
	consumed = 0

	if table.States[state].Accept != nil {
		acceptedAt = state
		consumed = 0
	}

	for i, r := range input {
		next := -1
		for cr, to := range table.States[state].Transitions {
			if r >= cr.Lo && r <= cr.Hi {
				next = to
				break
			}
		}
		if next == -1 {
			break
		}
		state = next
		if table.States[state].Accept != nil {
			acceptedAt = state
			consumed = i + 1
		}
	}
	return acceptedAt, consumed
}

func TestBuild_SingleCharacterToken(t *testing.T) {
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: tokSym(0), Rule: charset('a', 'a'), IsString: true},
		},
	}

	table, err := Build(g)
	require.True(t, err.None())
	require.NotEmpty(t, table.States)

	acc, consumed := walk(t, table, []rune("a"))
	require.GreaterOrEqual(t, acc, 0, "expected 'a' to be accepted")
	assert.Equal(t, 1, consumed)
	assert.Equal(t, tokSym(0), table.States[acc].Accept.Symbol)
}

func TestBuild_RepeatMatchesMultipleCharacters(t *testing.T) {
	// digit+
	digit := charset('0', '9')
	pattern := &rule.Repeat{Inner: digit}

	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: tokSym(0), Rule: pattern},
		},
	}

	table, err := Build(g)
	require.True(t, err.None())

	acc, consumed := walk(t, table, []rune("123"))
	require.GreaterOrEqual(t, acc, 0)
	assert.Equal(t, 3, consumed, "digit+ should consume all three digits")
}

func TestBuild_HigherPrecedenceWinsOverLongerDeclarationOrder(t *testing.T) {
	// Two tokens matching the exact same single character 'x': one a
	// generic pattern (declared first), one a higher-precedence keyword.
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: tokSym(0), Rule: charset('x', 'x'), Precedence: 0},
			{Symbol: tokSym(1), Rule: charset('x', 'x'), Precedence: 5, IsString: true},
		},
	}

	table, err := Build(g)
	require.True(t, err.None())

	acc, consumed := walk(t, table, []rune("x"))
	require.GreaterOrEqual(t, acc, 0)
	assert.Equal(t, 1, consumed)
	assert.Equal(t, tokSym(1), table.States[acc].Accept.Symbol, "higher-precedence token must win the tie")
}

func TestBuild_EqualPrecedenceTieIsALexConflict(t *testing.T) {
	// Two distinct pattern tokens covering the same single character with
	// the same precedence: nothing left to order them by.
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: tokSym(0), Rule: charset('a', 'z')},
			{Symbol: tokSym(1), Rule: charset('x', 'x')},
		},
	}

	_, err := Build(g)
	require.False(t, err.None())
	assert.Equal(t, icterrors.KindLexConflict, err.Kind)
}

func TestBuild_EmptyStringTokenIsAGrammarError(t *testing.T) {
	// a* can match zero characters, which would make the scanner's start
	// state accepting.
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: tokSym(0), Rule: rule.ZeroOrMore(charset('a', 'a'))},
		},
	}

	_, err := Build(g)
	require.False(t, err.None())
	assert.Equal(t, icterrors.KindGrammarError, err.Kind)
}

func TestBuild_ExternalTokensAreSkipped(t *testing.T) {
	ext := symbol.Symbol{Index: 7, Kind: symbol.External}
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: ext, Rule: &rule.Blank{}},
			{Symbol: tokSym(0), Rule: charset('a', 'a')},
		},
	}

	table, err := Build(g)
	require.True(t, err.None())

	acc, _ := walk(t, table, []rune("a"))
	require.GreaterOrEqual(t, acc, 0)
	assert.Equal(t, tokSym(0), table.States[acc].Accept.Symbol)
	for _, st := range table.States {
		if st.Accept != nil {
			assert.NotEqual(t, ext, st.Accept.Symbol)
		}
	}
}

func TestBuild_TokenReferencingAnotherTokenIsInlined(t *testing.T) {
	// word = letter+, where letter is its own token rule referenced by
	// symbol.
	letter := tokSym(0)
	word := tokSym(1)

	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: letter, Rule: charset('a', 'z'), Precedence: 1},
			{Symbol: word, Rule: &rule.Repeat{Inner: &rule.SymbolRef{Symbol: letter}}},
		},
	}

	table, err := Build(g)
	require.True(t, err.None(), err.Error())

	acc, consumed := walk(t, table, []rune("abc"))
	require.GreaterOrEqual(t, acc, 0)
	assert.Equal(t, 3, consumed, "word must scan through the inlined letter rule")
	assert.Equal(t, word, table.States[acc].Accept.Symbol)
}

func TestBuild_TokenReferenceCycleIsAGrammarError(t *testing.T) {
	a, b := tokSym(0), tokSym(1)
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: a, Rule: &rule.SymbolRef{Symbol: b}},
			{Symbol: b, Rule: &rule.SymbolRef{Symbol: a}},
		},
	}

	_, err := Build(g)
	require.False(t, err.None())
	assert.Equal(t, icterrors.KindGrammarError, err.Kind)
}

func TestBuild_UndefinedTokenReferenceIsAGrammarError(t *testing.T) {
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: tokSym(0), Rule: &rule.SymbolRef{Symbol: tokSym(9)}},
		},
	}

	_, err := Build(g)
	require.False(t, err.None())
	assert.Equal(t, icterrors.KindGrammarError, err.Kind)
}

func TestBuild_EmptyGrammarProducesEmptyTable(t *testing.T) {
	table, err := Build(lextoks.Grammar{})
	require.True(t, err.None())
	assert.Empty(t, table.States)
}

func TestBuild_ChoiceBranchesBothReachable(t *testing.T) {
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{
				Symbol: tokSym(0),
				Rule:   rule.Choice{Children: []rule.Rule{charset('a', 'a'), charset('b', 'b')}}.Build(),
			},
		},
	}

	table, err := Build(g)
	require.True(t, err.None())

	accA, consumedA := walk(t, table, []rune("a"))
	accB, consumedB := walk(t, table, []rune("b"))
	assert.GreaterOrEqual(t, accA, 0)
	assert.GreaterOrEqual(t, accB, 0)
	assert.Equal(t, 1, consumedA)
	assert.Equal(t, 1, consumedB)
}
