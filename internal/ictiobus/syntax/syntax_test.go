package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

func term(i uint32) symbol.Symbol    { return symbol.Symbol{Index: i, Kind: symbol.Terminal} }
func nonterm(i uint32) symbol.Symbol { return symbol.Symbol{Index: i, Kind: symbol.NonTerminal} }

func TestAddProduction_ReturnsStableHandle(t *testing.T) {
	var g Grammar
	h0 := g.AddProduction(Production{LHS: nonterm(0), Steps: []Step{{Symbol: term(0)}}})
	h1 := g.AddProduction(Production{LHS: nonterm(0), Steps: []Step{{Symbol: term(1)}}})

	assert.Equal(t, ProductionHandle(0), h0)
	assert.Equal(t, ProductionHandle(1), h1)
	assert.Equal(t, term(0), g.Production(h0).Steps[0].Symbol)
	assert.Equal(t, term(1), g.Production(h1).Steps[0].Symbol)
}

func TestProduction_PanicsOnOutOfRangeHandle(t *testing.T) {
	var g Grammar
	g.AddProduction(Production{LHS: nonterm(0)})

	assert.Panics(t, func() { g.Production(ProductionHandle(5)) })
	assert.Panics(t, func() { g.Production(ProductionHandle(-1)) })
}

func TestProductionsFor_FiltersByLHSInDeclarationOrder(t *testing.T) {
	var g Grammar
	g.AddProduction(Production{LHS: nonterm(0), Steps: []Step{{Symbol: term(0)}}})
	g.AddProduction(Production{LHS: nonterm(1), Steps: []Step{{Symbol: term(1)}}})
	g.AddProduction(Production{LHS: nonterm(0), Steps: []Step{{Symbol: term(2)}}})

	handles := g.ProductionsFor(nonterm(0))
	require.Len(t, handles, 2)
	assert.Equal(t, ProductionHandle(0), handles[0])
	assert.Equal(t, ProductionHandle(2), handles[1])

	assert.Empty(t, g.ProductionsFor(nonterm(5)))
}

func TestProduction_PrecedenceAndAssociativity_AtDotOrFinalStep(t *testing.T) {
	p := Production{
		LHS: nonterm(0),
		Steps: []Step{
			{Symbol: term(0), Precedence: 1, Assoc: rule.AssocLeft},
			{Symbol: term(1), Precedence: 2, Assoc: rule.AssocRight},
		},
	}

	assert.Equal(t, 1, p.Precedence(0))
	assert.Equal(t, rule.AssocLeft, p.Associativity(0))

	assert.Equal(t, 2, p.Precedence(2), "past the end of Steps falls back to the final step")
	assert.Equal(t, rule.AssocRight, p.Associativity(2))
}

func TestProduction_PrecedenceOfEmptyProductionIsZero(t *testing.T) {
	p := Production{LHS: nonterm(0)}
	assert.Equal(t, 0, p.Precedence(0))
	assert.Equal(t, rule.AssocNone, p.Associativity(0))
}
