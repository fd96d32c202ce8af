package prepare

import (
	"github.com/dekarrin/ictiobus/internal/ictiobus/grammarir"
	"github.com/dekarrin/ictiobus/internal/ictiobus/icterrors"
	"github.com/dekarrin/ictiobus/internal/ictiobus/lextoks"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
	"github.com/dekarrin/ictiobus/internal/ictiobus/syntax"
)

// Split classifies each grammar variable as lexical or structural and
// returns the lexical half as a LexicalGrammar, plus the structural half as
// the raw (still Repeat-containing, not yet flattened into Productions)
// list of syntax variables. A variable is treated as a lexical rule when
// its body never references another non-terminal/auxiliary symbol — i.e.
// it is built purely from CharacterSet/Choice/Seq/Repeat/Blank, the shape
// of a regular expression — or when it is explicitly wrapped in a Metadata
// node with IsToken set. Everything else is a structural production,
// handed to ExpandRepeats and then flattened by Prepare.
func Split(g grammarir.Grammar) (lextoks.Grammar, []grammarir.Variable, []symbol.Symbol) {
	lex := lextoks.Grammar{Ubiquitous: g.Ubiquitous}
	var syntaxVars []grammarir.Variable
	var syntaxSyms []symbol.Symbol

	for i, v := range g.Variables {
		// A lexical variable is what the parse table builder treats as a
		// terminal (shiftable on lookahead); a structural variable is what
		// it treats as a non-terminal (reducible, with a GOTO entry).
		// Callers building SymbolRef nodes that reference variable i must
		// use the same Kind this classification assigns.
		kind := symbol.NonTerminal
		if isLexicalRule(v.Rule) {
			kind = symbol.Terminal
		}
		sym := symbol.Symbol{Index: uint32(i), Kind: kind}
		if isLexicalRule(v.Rule) {
			prec, isString := tokenMeta(v.Rule)
			lex.Tokens = append(lex.Tokens, lextoks.TokenRule{
				Symbol:      sym,
				Rule:        stripMetadata(v.Rule),
				Precedence:  prec,
				IsString:    isString,
				MainSubrule: mainSubrule(v.Rule),
			})
			continue
		}
		syntaxVars = append(syntaxVars, v)
		syntaxSyms = append(syntaxSyms, sym)
	}

	for _, ext := range g.External {
		tok := lextoks.TokenRule{Symbol: ext.Symbol, Rule: &rule.Blank{}}
		// An external token that aliases an internal one inherits that
		// token's precedence and string-ness, so the parse table builder
		// can still rank it against ordinary tokens.
		if ext.CorrespondingInternal != nil {
			if internal, ok := lex.TokenFor(*ext.CorrespondingInternal); ok {
				tok.Precedence = internal.Precedence
				tok.IsString = internal.IsString
			}
		}
		lex.Tokens = append(lex.Tokens, tok)
	}

	return lex, syntaxVars, syntaxSyms
}

// mainSubrule finds the alternative of a multi-alternative token rule
// flagged IsMainToken, the token's canonical spelling for error messages.
// Returns nil when the rule has no such alternative.
func mainSubrule(r rule.Rule) rule.Rule {
	ch, ok := stripMetadata(r).(*rule.Choice)
	if !ok {
		return nil
	}
	for _, alt := range ch.Children {
		if m, ok := alt.(*rule.Metadata); ok && m.Params.IsMainToken {
			return m.Inner
		}
	}
	return nil
}

// Prepare runs the full preparation pipeline named in spec.md §2 step 5:
// split into lexical/structural variables, expand Repeat nodes on the
// structural side only, then flatten the expanded rule trees into
// syntax.Grammar Productions.
func Prepare(g grammarir.Grammar) (lextoks.Grammar, syntax.Grammar, icterrors.CompileError) {
	lex, syntaxVars, syntaxSyms := Split(g)

	// Auxiliary symbol indices start past every variable index so the two
	// kinds never collide in the parse table's index-keyed goto entries.
	auxOffset := uint32(len(g.Variables))
	expandedVars, auxRules := ExpandRepeats(syntaxVars, g.AuxRules, auxOffset)

	syn := syntax.Grammar{}
	if len(syntaxSyms) > 0 {
		syn.StartSymbol = syntaxSyms[0]
	}

	for i, v := range expandedVars {
		prods, err := flattenProductions(syntaxSyms[i], v.Rule)
		if !err.None() {
			return lextoks.Grammar{}, syntax.Grammar{}, err
		}
		for _, p := range prods {
			syn.AddProduction(p)
		}
	}

	for i, a := range auxRules {
		auxSym := symbol.Symbol{Index: auxOffset + uint32(i), Kind: symbol.Auxiliary}
		prods, err := flattenProductions(auxSym, a.Rule)
		if !err.None() {
			return lextoks.Grammar{}, syntax.Grammar{}, err
		}
		for _, p := range prods {
			syn.AddProduction(p)
		}
	}

	return lex, syn, icterrors.CompileError{}
}

// isLexicalRule reports whether r contains no reference to a non-terminal
// or auxiliary symbol, or is explicitly flagged IsToken via an outer
// Metadata wrapper.
func isLexicalRule(r rule.Rule) bool {
	if m, ok := stripToOuterMetadata(r); ok && m.Params.IsToken {
		return true
	}
	return !referencesGrammarSymbol(r)
}

func stripToOuterMetadata(r rule.Rule) (*rule.Metadata, bool) {
	m, ok := r.(*rule.Metadata)
	return m, ok
}

func stripMetadata(r rule.Rule) rule.Rule {
	if m, ok := r.(*rule.Metadata); ok {
		return m.Inner
	}
	return r
}

func tokenMeta(r rule.Rule) (precedence int, isString bool) {
	if m, ok := r.(*rule.Metadata); ok {
		return m.Params.Precedence, isLiteralRule(m.Inner)
	}
	return 0, isLiteralRule(r)
}

// isLiteralRule reports whether r matches exactly one fixed string (a Seq
// chain of single-code-point CharacterSets with no Choice/Repeat), the
// shape tree-sitter calls a "string" token for IsString bookkeeping.
func isLiteralRule(r rule.Rule) bool {
	switch t := r.(type) {
	case *rule.Blank:
		return true
	case *rule.CharacterSet:
		rs := t.Ranges()
		return len(rs) == 1 && rs[0][0] == rs[0][1]
	case *rule.Seq:
		return isLiteralRule(t.Left) && isLiteralRule(t.Right)
	default:
		return false
	}
}

func referencesGrammarSymbol(r rule.Rule) bool {
	switch t := r.(type) {
	case *rule.Blank, *rule.CharacterSet:
		return false
	case *rule.SymbolRef:
		return t.Symbol.Kind == symbol.NonTerminal || t.Symbol.Kind == symbol.Auxiliary
	case *rule.Choice:
		for _, c := range t.Children {
			if referencesGrammarSymbol(c) {
				return true
			}
		}
		return false
	case *rule.Seq:
		return referencesGrammarSymbol(t.Left) || referencesGrammarSymbol(t.Right)
	case *rule.Repeat:
		return referencesGrammarSymbol(t.Inner)
	case *rule.Metadata:
		return referencesGrammarSymbol(t.Inner)
	default:
		return false
	}
}

// flattenProductions turns a (possibly Choice-of-Seq) rule tree into one or
// more Productions for lhs: a top-level Choice becomes one Production per
// alternative; a Seq chain flattens in left-to-right order into Steps; a
// lone symbol reference or Blank becomes a single-step (or zero-step,
// epsilon) Production. An optional symbol embedded mid-sequence — the
// Choice(Sym, Blank) shape repeat expansion leaves behind — is unrolled
// into with/without alternatives.
func flattenProductions(lhs symbol.Symbol, r rule.Rule) ([]syntax.Production, icterrors.CompileError) {
	alternatives := flattenChoice(r)

	prods := make([]syntax.Production, 0, len(alternatives))
	for _, alt := range alternatives {
		stepLists, err := flattenSteps(alt)
		if !err.None() {
			return nil, err
		}
		for _, steps := range stepLists {
			prods = append(prods, syntax.Production{LHS: lhs, Steps: steps})
		}
	}
	return prods, icterrors.CompileError{}
}

func flattenChoice(r rule.Rule) []rule.Rule {
	if c, ok := r.(*rule.Choice); ok {
		var out []rule.Rule
		for _, child := range c.Children {
			out = append(out, flattenChoice(child)...)
		}
		return out
	}
	return []rule.Rule{r}
}

// flattenSteps flattens one alternative into its possible step sequences.
// Most shapes yield exactly one sequence; an optional symbol
// (Choice(Sym, Blank), the repeat-expansion artifact) yields two, and a
// Seq combines its sides' sequences pairwise in order.
func flattenSteps(r rule.Rule) ([][]syntax.Step, icterrors.CompileError) {
	switch t := r.(type) {
	case *rule.Blank:
		return [][]syntax.Step{nil}, icterrors.CompileError{}
	case *rule.SymbolRef:
		return [][]syntax.Step{{{Symbol: t.Symbol}}}, icterrors.CompileError{}
	case *rule.Metadata:
		lists, err := flattenSteps(t.Inner)
		if !err.None() {
			return nil, err
		}
		for _, steps := range lists {
			for i := range steps {
				steps[i].Precedence = t.Params.Precedence
				steps[i].Assoc = t.Params.Associativity
			}
		}
		return lists, icterrors.CompileError{}
	case *rule.Seq:
		left, err := flattenSteps(t.Left)
		if !err.None() {
			return nil, err
		}
		right, err := flattenSteps(t.Right)
		if !err.None() {
			return nil, err
		}
		var out [][]syntax.Step
		for _, ls := range left {
			for _, rs := range right {
				combined := make([]syntax.Step, 0, len(ls)+len(rs))
				combined = append(combined, ls...)
				combined = append(combined, rs...)
				out = append(out, combined)
			}
		}
		return out, icterrors.CompileError{}
	case *rule.Choice:
		// The only nested choice this grammar's own builders ever place
		// inside a sequence is the optional-symbol artifact repeat
		// expansion leaves behind; it unrolls into with/without step
		// sequences. Any other nested choice would need its own auxiliary
		// non-terminal to stay a pure BNF production, so it is reported as
		// a grammar error rather than silently mis-flattened.
		if sym, ok := optionalSymbol(t); ok {
			return [][]syntax.Step{{{Symbol: sym}}, nil}, icterrors.CompileError{}
		}
		return nil, icterrors.New(icterrors.KindGrammarError, "nested choice in production body requires its own auxiliary non-terminal: %s", t.String())
	default:
		return nil, icterrors.New(icterrors.KindGrammarError, "cannot flatten rule into production steps: %s", r.String())
	}
}

// optionalSymbol reports whether c is exactly Choice(SymbolRef, Blank) and
// returns the symbol if so.
func optionalSymbol(c *rule.Choice) (symbol.Symbol, bool) {
	if len(c.Children) != 2 {
		return symbol.Symbol{}, false
	}
	ref, ok := c.Children[0].(*rule.SymbolRef)
	if !ok {
		return symbol.Symbol{}, false
	}
	if _, ok := c.Children[1].(*rule.Blank); !ok {
		return symbol.Symbol{}, false
	}
	return ref.Symbol, true
}
