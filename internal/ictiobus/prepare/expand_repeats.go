// Package prepare implements the grammar-preparation pipeline stage:
// repeat expansion and the lexical/syntax grammar split.
package prepare

import (
	"fmt"

	"github.com/dekarrin/ictiobus/internal/ictiobus/grammarir"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

type repeatMemo struct {
	original *rule.Repeat
	sym      symbol.Symbol
}

// expander rewrites one top-level variable's rule tree, replacing every
// Repeat node with a reference to a fresh (or memoized) auxiliary
// non-terminal implementing right-recursion. auxRules is shared and grows
// across every variable processed by a given ExpandRepeats call, so
// auxiliary symbol indices are assigned in global discovery order.
type expander struct {
	varName  string
	auxRules *[]grammarir.AuxRule
	offset   uint32
	memo     []repeatMemo
}

func (e *expander) expand(r rule.Rule) rule.Rule {
	switch t := r.(type) {
	case *rule.Blank:
		return t
	case *rule.CharacterSet:
		return t
	case *rule.SymbolRef:
		return t
	case *rule.Choice:
		children := make([]rule.Rule, len(t.Children))
		for i, c := range t.Children {
			children[i] = e.expand(c)
		}
		return rule.Choice{Children: children}.Build()
	case *rule.Seq:
		return rule.Seq{Left: e.expand(t.Left), Right: e.expand(t.Right)}.Build()
	case *rule.Metadata:
		return rule.Metadata{Inner: e.expand(t.Inner), Params: t.Params}.Build()
	case *rule.Repeat:
		return e.expandRepeat(t)
	default:
		panic(fmt.Sprintf("prepare.expander: unhandled rule variant %T", r))
	}
}

func (e *expander) expandRepeat(r *rule.Repeat) rule.Rule {
	for _, m := range e.memo {
		if m.original.Equal(r) {
			return &rule.SymbolRef{Symbol: m.sym}
		}
	}

	innerExpanded := e.expand(r.Inner)
	index := len(*e.auxRules)
	sym := symbol.Symbol{Index: e.offset + uint32(index), Kind: symbol.Auxiliary}
	name := fmt.Sprintf("%s_repeat%d", e.varName, index)

	body := rule.Seq{
		Left:  innerExpanded,
		Right: wrapOptional(sym),
	}.Build()

	*e.auxRules = append(*e.auxRules, grammarir.AuxRule{Name: name, Rule: body})
	e.memo = append(e.memo, repeatMemo{original: r, sym: sym})

	// The replacement is the auxiliary symbol itself: Repeat means
	// one-or-more, and sym matches one-or-more of the inner rule by
	// construction. A zero-or-more context is already Choice(Repeat, Blank)
	// in the tree, so it becomes Choice(sym, Blank) without any special
	// casing here.
	return &rule.SymbolRef{Symbol: sym}
}

func wrapOptional(sym symbol.Symbol) rule.Rule {
	return rule.Choice{Children: []rule.Rule{&rule.SymbolRef{Symbol: sym}, &rule.Blank{}}}.Build()
}

// ExpandRepeats replaces every Repeat node across every syntax variable's
// rule tree with a reference to a fresh auxiliary non-terminal, memoized
// per-variable by structural equality of the repeat subtree, and returns
// the rewritten variables alongside the auxiliary rules it created.
//
// This runs on the SyntaxGrammar side of the split, never on lexical token
// rules: a token definition's own Repeat (e.g. `a+`) is handled directly by
// lexgen's Thompson-construction Kleene-star helper, since the lex table
// builder operates on rule trees, not flattened Production/Step lists, and
// has no need of the auxiliary-non-terminal workaround the LR constructor
// requires. The pass is idempotent on inputs containing no Repeat.
//
// offset is added to every auxiliary symbol's index so auxiliary indices
// never collide with variable indices in the parse table's index-keyed
// goto entries; callers pass the total variable count of the grammar.
func ExpandRepeats(vars []grammarir.Variable, existingAux []grammarir.AuxRule, offset uint32) ([]grammarir.Variable, []grammarir.AuxRule) {
	auxRules := append([]grammarir.AuxRule{}, existingAux...)

	variables := make([]grammarir.Variable, len(vars))
	for i, v := range vars {
		e := &expander{varName: v.Name, auxRules: &auxRules, offset: offset}
		variables[i] = grammarir.Variable{
			Name: v.Name,
			Rule: e.expand(v.Rule),
			Type: v.Type,
		}
	}

	return variables, auxRules
}
