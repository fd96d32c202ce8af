package lextoks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

func TestTokenFor_FindsBySymbol(t *testing.T) {
	a := symbol.Symbol{Index: 0, Kind: symbol.Terminal}
	b := symbol.Symbol{Index: 1, Kind: symbol.Terminal}

	g := Grammar{Tokens: []TokenRule{
		{Symbol: a, Rule: rule.NewCharacterSet().Include('a')},
	}}

	tok, ok := g.TokenFor(a)
	assert.True(t, ok)
	assert.Equal(t, a, tok.Symbol)

	_, ok = g.TokenFor(b)
	assert.False(t, ok)
}

func TestIsUbiquitous(t *testing.T) {
	ws := symbol.Symbol{Index: 0, Kind: symbol.Terminal}
	other := symbol.Symbol{Index: 1, Kind: symbol.Terminal}

	g := Grammar{Ubiquitous: []symbol.Symbol{ws}}
	assert.True(t, g.IsUbiquitous(ws))
	assert.False(t, g.IsUbiquitous(other))
}
