// Package rule implements the rule algebra: the tagged sum type Blank |
// CharacterSet | SymbolRef | Choice | Seq | Repeat | Metadata that every
// token and grammar variable body is built from.
//
// Rules are immutable once built; sharing is by reference and equality is
// always structural.
package rule

import (
	"fmt"
	"strings"

	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

// Associativity of a Metadata-wrapped rule, relevant when the rule is used
// as a production step with a declared precedence.
type Associativity int

const (
	AssocNone Associativity = iota
	AssocLeft
	AssocRight
)

func (a Associativity) String() string {
	switch a {
	case AssocLeft:
		return "LEFT"
	case AssocRight:
		return "RIGHT"
	default:
		return "NONE"
	}
}

// Rule is the interface implemented by every rule-tree node. All variants
// are structurally comparable, visitable, and render a stable debug string.
type Rule interface {
	// Equal reports structural equality against another rule. Follows the
	// direct-then-pointer double type-assert idiom used throughout this
	// repo's other Equal methods.
	Equal(o any) bool

	// String renders a canonical, stable debug form. Two rules with equal
	// String() output are always Equal, and vice versa.
	String() string

	// Accept dispatches to the matching method of v.
	Accept(v Visitor) Rule

	isRule()
}

// Visitor is the rule-tree visitation protocol: one method per variant.
// Rewrite, a plain function rather than a Visitor implementation, is the
// default identity rebuild: it rebuilds children and passes them back
// through the relevant Build function.
type Visitor interface {
	VisitBlank(r *Blank) Rule
	VisitCharacterSet(r *CharacterSet) Rule
	VisitSymbolRef(r *SymbolRef) Rule
	VisitChoice(r *Choice) Rule
	VisitSeq(r *Seq) Rule
	VisitRepeat(r *Repeat) Rule
	VisitMetadata(r *Metadata) Rule
}

// Rewrite walks r, replacing every node with the result of calling fn on a
// shallow copy whose children have already been rewritten. It is the
// "IdentityRuleFn" default rebuild helper; repeat expansion
// (prepare/expand_repeats.go) walks the tree with its own switch instead.
func Rewrite(r Rule, fn func(Rule) Rule) Rule {
	switch t := r.(type) {
	case *Blank:
		return fn(t)
	case *CharacterSet:
		return fn(t)
	case *SymbolRef:
		return fn(t)
	case *Choice:
		children := make([]Rule, len(t.Children))
		for i, c := range t.Children {
			children[i] = Rewrite(c, fn)
		}
		return fn(Choice{Children: children}.Build())
	case *Seq:
		return fn(Seq{
			Left:  Rewrite(t.Left, fn),
			Right: Rewrite(t.Right, fn),
		}.Build())
	case *Repeat:
		return fn(&Repeat{Inner: Rewrite(t.Inner, fn)})
	case *Metadata:
		return fn(Metadata{
			Inner:  Rewrite(t.Inner, fn),
			Params: t.Params,
		}.Build())
	default:
		panic(fmt.Sprintf("rule.Rewrite: unhandled rule variant %T", r))
	}
}

// Blank matches the empty string.
type Blank struct{}

func (b *Blank) isRule() {}

func (b *Blank) Equal(o any) bool {
	_, ok := o.(*Blank)
	if !ok {
		_, ok = o.(Blank)
	}
	return ok
}

func (b *Blank) String() string { return "Blank" }

func (b *Blank) Accept(v Visitor) Rule { return v.VisitBlank(b) }

// SymbolRef references another rule by table index; Kind discriminates
// terminal vs. non-terminal vs. auxiliary vs. external vs. built-in.
type SymbolRef struct {
	Symbol symbol.Symbol
}

func (s *SymbolRef) isRule() {}

func (s *SymbolRef) Equal(o any) bool {
	other, ok := o.(*SymbolRef)
	if !ok {
		var direct SymbolRef
		direct, ok = o.(SymbolRef)
		if !ok {
			return false
		}
		other = &direct
	}
	if other == nil {
		return false
	}
	return s.Symbol == other.Symbol
}

func (s *SymbolRef) String() string {
	return fmt.Sprintf("Symbol(%s)", s.Symbol)
}

func (s *SymbolRef) Accept(v Visitor) Rule { return v.VisitSymbolRef(s) }

// Choice is an ordered alternation; after Build there are always >= 2
// children.
type Choice struct {
	Children []Rule
}

func (c *Choice) isRule() {}

func (c *Choice) Equal(o any) bool {
	other, ok := o.(*Choice)
	if !ok {
		var direct Choice
		direct, ok = o.(Choice)
		if !ok {
			return false
		}
		other = &direct
	}
	if other == nil || len(c.Children) != len(other.Children) {
		return false
	}
	for i := range c.Children {
		if !c.Children[i].Equal(other.Children[i]) {
			return false
		}
	}
	return true
}

func (c *Choice) String() string {
	parts := make([]string, len(c.Children))
	for i, ch := range c.Children {
		parts[i] = ch.String()
	}
	return fmt.Sprintf("Choice(%s)", strings.Join(parts, ", "))
}

func (c *Choice) Accept(v Visitor) Rule { return v.VisitChoice(c) }

// Build flattens nested choices, deduplicates adjacent equal alternatives
// (order-preserving), and collapses a singleton down to its one child.
func (c Choice) Build() Rule {
	var flat []Rule
	for _, child := range c.Children {
		if nested, ok := child.(*Choice); ok {
			flat = append(flat, nested.Children...)
		} else {
			flat = append(flat, child)
		}
	}

	var deduped []Rule
	for _, r := range flat {
		if len(deduped) > 0 && deduped[len(deduped)-1].Equal(r) {
			continue
		}
		deduped = append(deduped, r)
	}

	if len(deduped) == 0 {
		return &Blank{}
	}
	if len(deduped) == 1 {
		return deduped[0]
	}
	return &Choice{Children: deduped}
}

// Seq is a concatenation of two rules, left-associated by builder
// convention.
type Seq struct {
	Left, Right Rule
}

func (s *Seq) isRule() {}

func (s *Seq) Equal(o any) bool {
	other, ok := o.(*Seq)
	if !ok {
		var direct Seq
		direct, ok = o.(Seq)
		if !ok {
			return false
		}
		other = &direct
	}
	if other == nil {
		return false
	}
	return s.Left.Equal(other.Left) && s.Right.Equal(other.Right)
}

func (s *Seq) String() string {
	return fmt.Sprintf("Seq(%s, %s)", s.Left.String(), s.Right.String())
}

func (s *Seq) Accept(v Visitor) Rule { return v.VisitSeq(s) }

// Build collapses Blank operands and returns the other operand; if both are
// Blank, returns Blank.
func (s Seq) Build() Rule {
	_, leftBlank := s.Left.(*Blank)
	_, rightBlank := s.Right.(*Blank)

	switch {
	case leftBlank && rightBlank:
		return &Blank{}
	case leftBlank:
		return s.Right
	case rightBlank:
		return s.Left
	default:
		return &Seq{Left: s.Left, Right: s.Right}
	}
}

// Repeat is one-or-more iteration of its child. Zero-or-more is expressed as
// Choice(Repeat(c), Blank), which is exactly what ZeroOrMore below builds.
type Repeat struct {
	Inner Rule
}

func (r *Repeat) isRule() {}

func (r *Repeat) Equal(o any) bool {
	other, ok := o.(*Repeat)
	if !ok {
		var direct Repeat
		direct, ok = o.(Repeat)
		if !ok {
			return false
		}
		other = &direct
	}
	if other == nil {
		return false
	}
	return r.Inner.Equal(other.Inner)
}

func (r *Repeat) String() string {
	return fmt.Sprintf("Repeat(%s)", r.Inner.String())
}

func (r *Repeat) Accept(v Visitor) Rule { return v.VisitRepeat(r) }

// ZeroOrMore builds Choice(Repeat(r), Blank), the `*` operator's expansion.
func ZeroOrMore(r Rule) Rule {
	return Choice{Children: []Rule{&Repeat{Inner: r}, &Blank{}}}.Build()
}

// Optional builds Choice(r, Blank), the `?` operator's expansion.
func Optional(r Rule) Rule {
	return Choice{Children: []Rule{r, &Blank{}}}.Build()
}

// MetadataParams holds the attribute bits a Metadata node wraps a rule with.
type MetadataParams struct {
	Precedence    int
	HasPrecedence bool
	IsActive      bool
	Associativity Associativity
	IsToken       bool
	IsMainToken   bool
}

// merge combines p with an outer set of params, outer overriding unless
// inner (p) is IsActive, matching Metadata::build's documented merge rule.
func (p MetadataParams) merge(outer MetadataParams) MetadataParams {
	if p.IsActive {
		return p
	}
	return outer
}

// Metadata wraps a rule with precedence/associativity/token attributes.
type Metadata struct {
	Inner  Rule
	Params MetadataParams
}

func (m *Metadata) isRule() {}

func (m *Metadata) Equal(o any) bool {
	other, ok := o.(*Metadata)
	if !ok {
		var direct Metadata
		direct, ok = o.(Metadata)
		if !ok {
			return false
		}
		other = &direct
	}
	if other == nil {
		return false
	}
	return m.Inner.Equal(other.Inner) && m.Params == other.Params
}

func (m *Metadata) String() string {
	return fmt.Sprintf("Metadata(%s, prec=%d, has_prec=%t, active=%t, assoc=%s, token=%t, main_token=%t)",
		m.Inner.String(), m.Params.Precedence, m.Params.HasPrecedence, m.Params.IsActive, m.Params.Associativity, m.Params.IsToken, m.Params.IsMainToken)
}

func (m *Metadata) Accept(v Visitor) Rule { return v.VisitMetadata(m) }

// Build merges params with an existing Metadata wrapper around r (outer
// params override the inner's unless the inner marks IsActive, which always
// survives the merge), and otherwise wraps r fresh.
func (m Metadata) Build() Rule {
	if inner, ok := m.Inner.(*Metadata); ok {
		return &Metadata{
			Inner:  inner.Inner,
			Params: inner.Params.merge(m.Params),
		}
	}
	return &Metadata{Inner: m.Inner, Params: m.Params}
}
