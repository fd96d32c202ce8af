package grammarir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

func TestBuilder_AssemblesGrammarInCallOrder(t *testing.T) {
	aSym := symbol.Symbol{Index: 0, Kind: symbol.Terminal}
	extSym := symbol.Symbol{Index: 1, Kind: symbol.External}

	g := NewBuilder().
		AddVariable("s", &rule.SymbolRef{Symbol: aSym}, Named).
		AddVariable("aux0", &rule.Blank{}, Auxiliary).
		AddAuxRule("r_repeat0", &rule.Blank{}).
		AddUbiquitous(aSym).
		AddExternal("comment", extSym, &aSym).
		AddConflict(aSym, extSym).
		Build()

	require.Len(t, g.Variables, 2)
	assert.Equal(t, "s", g.Variables[0].Name)
	assert.Equal(t, Named, g.Variables[0].Type)
	assert.Equal(t, "aux0", g.Variables[1].Name)
	assert.Equal(t, Auxiliary, g.Variables[1].Type)

	require.Len(t, g.AuxRules, 1)
	assert.Equal(t, "r_repeat0", g.AuxRules[0].Name)

	assert.Equal(t, []symbol.Symbol{aSym}, g.Ubiquitous)

	require.Len(t, g.External, 1)
	assert.Equal(t, "comment", g.External[0].Name)
	assert.Equal(t, extSym, g.External[0].Symbol)
	require.NotNil(t, g.External[0].CorrespondingInternal)
	assert.Equal(t, aSym, *g.External[0].CorrespondingInternal)

	require.Len(t, g.Conflicts, 1)
	assert.Equal(t, []symbol.Symbol{aSym, extSym}, g.Conflicts[0])
}

func TestBuilder_EmptyBuildYieldsZeroValueGrammar(t *testing.T) {
	g := NewBuilder().Build()
	assert.Empty(t, g.Variables)
	assert.Empty(t, g.AuxRules)
	assert.Empty(t, g.Ubiquitous)
	assert.Empty(t, g.External)
	assert.Empty(t, g.Conflicts)
}
