// Package syntax holds the SyntaxGrammar half of a prepared grammar: the
// non-terminal productions the parse table builder consumes, each step
// carrying its own precedence and associativity.
package syntax

import (
	"fmt"

	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

// Step is one symbol position within a Production's right-hand side.
type Step struct {
	Symbol     symbol.Symbol
	Precedence int
	Assoc      rule.Associativity
	Alias      string
}

func (s Step) String() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Symbol.String()
}

// Production is a single right-hand-side alternative of a non-terminal.
// Productions are owned by the Grammar and referenced elsewhere by stable
// index (ProductionHandle) rather than by pointer, so the handle can be
// serialized, ordered, and compared cheaply (spec.md §9 "Production handles
// inside ParseAction").
type Production struct {
	LHS   symbol.Symbol
	Steps []Step
}

func (p Production) String() string {
	s := p.LHS.String() + " ->"
	for _, step := range p.Steps {
		s += " " + step.String()
	}
	return s
}

// Precedence returns the step-at-cursor precedence: the precedence of the
// step at dot, or of the final step if dot is past the end (spec.md §3
// "Derived: precedence()").
func (p Production) Precedence(dot int) int {
	if dot >= len(p.Steps) {
		if len(p.Steps) == 0 {
			return 0
		}
		return p.Steps[len(p.Steps)-1].Precedence
	}
	return p.Steps[dot].Precedence
}

// Associativity is the associativity analog of Precedence.
func (p Production) Associativity(dot int) rule.Associativity {
	if dot >= len(p.Steps) {
		if len(p.Steps) == 0 {
			return rule.AssocNone
		}
		return p.Steps[len(p.Steps)-1].Assoc
	}
	return p.Steps[dot].Assoc
}

// ProductionHandle is a stable, serializable reference into a Grammar's
// Productions slice.
type ProductionHandle int

// Grammar is the SyntaxGrammar: the set of non-terminal productions over
// token symbols that the parse table builder consumes.
type Grammar struct {
	Productions []Production

	// StartSymbol is the augmented grammar's original start symbol (before
	// the S' -> S augmentation the parse table builder performs itself).
	StartSymbol symbol.Symbol
}

// AddProduction appends p and returns its handle.
func (g *Grammar) AddProduction(p Production) ProductionHandle {
	g.Productions = append(g.Productions, p)
	return ProductionHandle(len(g.Productions) - 1)
}

// Production dereferences a handle. Panics if h is out of range — an
// out-of-range handle is a programming error (spec.md §7), never a
// user-facing one.
func (g Grammar) Production(h ProductionHandle) Production {
	if int(h) < 0 || int(h) >= len(g.Productions) {
		panic(fmt.Sprintf("production handle out of range: %d", h))
	}
	return g.Productions[h]
}

// ProductionsFor returns the handles of every production whose LHS is sym,
// in declaration order.
func (g Grammar) ProductionsFor(sym symbol.Symbol) []ProductionHandle {
	var handles []ProductionHandle
	for i, p := range g.Productions {
		if p.LHS == sym {
			handles = append(handles, ProductionHandle(i))
		}
	}
	return handles
}
