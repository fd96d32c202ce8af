package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/ictiobus/internal/ictiobus/lexgen"
	"github.com/dekarrin/ictiobus/internal/ictiobus/lextoks"
	"github.com/dekarrin/ictiobus/internal/ictiobus/parsetable"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

func term(i uint32) symbol.Symbol    { return symbol.Symbol{Index: i, Kind: symbol.Terminal} }
func nonterm(i uint32) symbol.Symbol { return symbol.Symbol{Index: i, Kind: symbol.NonTerminal} }

func buildSampleParseTable() *parsetable.ParseTable {
	pt := parsetable.New()
	s0 := pt.AddState()
	s1 := pt.AddState()

	pt.AddTerminalAction(s0, term(0), parsetable.ParseAction{Type: parsetable.Shift, StateIndex: s1})
	pt.AddTerminalAction(s1, symbol.EndOfInputSymbol, parsetable.ParseAction{Type: parsetable.Accept})
	pt.SetNonterminalAction(s0, 0, s1)
	pt.MarkMergeable(term(0))

	return pt
}

func buildSampleLexTable() *lexgen.LexTable {
	g := lextoks.Grammar{
		Tokens: []lextoks.TokenRule{
			{Symbol: term(0), Rule: rule.NewCharacterSet().IncludeRange('a', 'z'), IsString: false},
		},
	}
	lt, err := lexgen.Build(g)
	if !err.None() {
		panic(err.Error())
	}
	return lt
}

func TestEncodeDecode_RoundTripsParseTable(t *testing.T) {
	pt := buildSampleParseTable()
	lt := buildSampleLexTable()

	data, err := Encode(lt, pt)
	require.True(t, err.None())
	require.NotEmpty(t, data)

	gotLex, gotParse, err := Decode(data)
	require.True(t, err.None())

	require.Equal(t, len(pt.States), len(gotParse.States))
	for i := range pt.States {
		assert.True(t, pt.States[i].TerminalEntries[term(0)].Equal(gotParse.States[i].TerminalEntries[term(0)]) ||
			(pt.States[i].TerminalEntries[term(0)] == nil && gotParse.States[i].TerminalEntries[term(0)] == nil))
	}
	assert.Equal(t, pt.States[0].NonterminalEntries, gotParse.States[0].NonterminalEntries)
	assert.True(t, gotParse.MergeableSymbols[term(0)])

	require.Equal(t, len(lt.States), len(gotLex.States))
	assert.Equal(t, lt.Start, gotLex.Start)
}
