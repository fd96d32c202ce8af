package parsegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/ictiobus/internal/ictiobus/icterrors"
	"github.com/dekarrin/ictiobus/internal/ictiobus/parsetable"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
	"github.com/dekarrin/ictiobus/internal/ictiobus/syntax"
)

func term(i uint32) symbol.Symbol    { return symbol.Symbol{Index: i, Kind: symbol.Terminal} }
func nonterm(i uint32) symbol.Symbol { return symbol.Symbol{Index: i, Kind: symbol.NonTerminal} }

// buildRightRecursive constructs:
//
//	S -> A
//	A -> a A
//	A -> b
//
// an unambiguous LR(1) grammar with no conflicts.
func buildRightRecursive() syntax.Grammar {
	S, A := nonterm(0), nonterm(1)
	a, b := term(0), term(1)

	g := syntax.Grammar{StartSymbol: S}
	g.AddProduction(syntax.Production{LHS: S, Steps: []syntax.Step{{Symbol: A}}})
	g.AddProduction(syntax.Production{LHS: A, Steps: []syntax.Step{{Symbol: a}, {Symbol: A}}})
	g.AddProduction(syntax.Production{LHS: A, Steps: []syntax.Step{{Symbol: b}}})
	return g
}

func TestBuild_UnambiguousGrammar_NoConflicts(t *testing.T) {
	g := buildRightRecursive()

	pt, err := Build(g, nil, nil)
	require.True(t, err.None(), "unexpected error: %v", err)
	require.NotNil(t, pt)
	assert.Greater(t, len(pt.States), 1)

	a, b := term(0), term(1)
	start := pt.States[0]

	aEntry := start.TerminalEntries[a]
	require.NotNil(t, aEntry, "start state must shift on 'a'")
	last, ok := aEntry.LastAction()
	require.True(t, ok)
	assert.Equal(t, parsetable.Shift, last.Type)

	bEntry := start.TerminalEntries[b]
	require.NotNil(t, bEntry, "start state must shift on 'b'")
	last, ok = bEntry.LastAction()
	require.True(t, ok)
	assert.Equal(t, parsetable.Shift, last.Type)
}

func TestBuild_AcceptsOnEndOfInputInFinalState(t *testing.T) {
	g := buildRightRecursive()

	pt, err := Build(g, nil, nil)
	require.True(t, err.None())

	var sawAccept bool
	for _, st := range pt.States {
		if e, ok := st.TerminalEntries[symbol.EndOfInputSymbol]; ok {
			if last, ok := e.LastAction(); ok && last.Type == parsetable.Accept {
				sawAccept = true
			}
		}
	}
	assert.True(t, sawAccept, "some state must accept on end-of-input")
}

// buildAmbiguousExpr constructs the classic ambiguous grammar:
//
//	E -> E + E
//	E -> id
//
// which has an unresolved shift/reduce conflict on '+' absent any
// precedence declaration or conflict permission.
func buildAmbiguousExpr() (syntax.Grammar, symbol.Symbol, symbol.Symbol) {
	E := nonterm(0)
	plus, id := term(0), term(1)

	g := syntax.Grammar{StartSymbol: E}
	g.AddProduction(syntax.Production{LHS: E, Steps: []syntax.Step{{Symbol: E}, {Symbol: plus}, {Symbol: E}}})
	g.AddProduction(syntax.Production{LHS: E, Steps: []syntax.Step{{Symbol: id}}})
	return g, plus, E
}

func TestBuild_UndeclaredShiftReduceConflict_IsFatal(t *testing.T) {
	g, _, _ := buildAmbiguousExpr()

	_, err := Build(g, nil, nil)
	require.False(t, err.None(), "ambiguous grammar without precedence must fail")
	assert.Equal(t, icterrors.KindParseConflict, err.Kind)
}

func TestBuild_DeclaredConflict_RetainsBothActionsAsFragile(t *testing.T) {
	g, plus, E := buildAmbiguousExpr()

	conflicts := [][]symbol.Symbol{{plus, E}}
	pt, err := Build(g, nil, conflicts)
	require.True(t, err.None(), "declared conflict must let the build succeed: %v", err)

	var found bool
	for _, st := range pt.States {
		e, ok := st.TerminalEntries[plus]
		if !ok || len(e.Actions) < 2 {
			continue
		}
		found = true
		var sawShift, sawFragileReduce bool
		for _, a := range e.Actions {
			if a.Type == parsetable.Shift {
				sawShift = true
			}
			if a.Type == parsetable.Reduce && a.Fragile {
				sawFragileReduce = true
			}
		}
		assert.True(t, sawShift, "retained conflict entry must keep the shift")
		assert.True(t, sawFragileReduce, "retained conflict entry must mark the reduce fragile")
	}
	assert.True(t, found, "expected at least one state with a retained shift/reduce conflict on '+'")
}

func TestBuildLALR_HasNoMoreStatesThanBuild(t *testing.T) {
	g := buildRightRecursive()

	plain, err := Build(g, nil, nil)
	require.True(t, err.None())

	lalr, err := BuildLALR(g, nil, nil)
	require.True(t, err.None())

	assert.LessOrEqual(t, len(lalr.States), len(plain.States))
}
