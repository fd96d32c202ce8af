// Package grammarir defines the Grammar description that is the core's
// external input: an ordered list of named variables, auxiliary rules,
// ubiquitous tokens, external token declarations, and conflict
// declarations (spec.md §6).
package grammarir

import (
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

// VariableType discriminates how a grammar variable is surfaced to callers.
type VariableType int

const (
	Named VariableType = iota
	Anonymous
	Auxiliary
	Hidden
)

// Variable is one named rule in the grammar, keyed by its symbol index.
type Variable struct {
	Name string
	Rule rule.Rule
	Type VariableType
}

// AuxRule is a generator-created rule, such as the ones repeat-expansion
// introduces. It carries the same shape as Variable but is kept in its own
// ordered list, matching spec.md §3's Grammar IR split.
type AuxRule struct {
	Name string
	Rule rule.Rule
}

// ExternalToken is a token whose scanning is delegated outside the core
// (spec.md §6), optionally aliasing an internal token for precedence and
// associativity purposes.
type ExternalToken struct {
	Name                  string
	Symbol                symbol.Symbol
	CorrespondingInternal *symbol.Symbol
}

// Grammar is the full input to the compile pipeline.
type Grammar struct {
	Variables  []Variable
	AuxRules   []AuxRule
	Ubiquitous []symbol.Symbol
	External   []ExternalToken

	// Conflicts lists sets of symbols the grammar author has declared are
	// permitted to conflict; the parse table builder consults this before
	// raising a fatal ParseConflict (spec.md §4.6, §7).
	Conflicts [][]symbol.Symbol
}

// Builder assembles a Grammar incrementally, in the style of the teacher's
// test-fixture construction helpers (AddTerm/AddRule) rather than requiring
// callers to build the slice literals by hand.
type Builder struct {
	g Grammar
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddVariable(name string, r rule.Rule, t VariableType) *Builder {
	b.g.Variables = append(b.g.Variables, Variable{Name: name, Rule: r, Type: t})
	return b
}

func (b *Builder) AddAuxRule(name string, r rule.Rule) *Builder {
	b.g.AuxRules = append(b.g.AuxRules, AuxRule{Name: name, Rule: r})
	return b
}

func (b *Builder) AddUbiquitous(s symbol.Symbol) *Builder {
	b.g.Ubiquitous = append(b.g.Ubiquitous, s)
	return b
}

func (b *Builder) AddExternal(name string, s symbol.Symbol, correspondingInternal *symbol.Symbol) *Builder {
	b.g.External = append(b.g.External, ExternalToken{Name: name, Symbol: s, CorrespondingInternal: correspondingInternal})
	return b
}

func (b *Builder) AddConflict(syms ...symbol.Symbol) *Builder {
	b.g.Conflicts = append(b.g.Conflicts, syms)
	return b
}

func (b *Builder) Build() Grammar {
	return b.g
}
