// Package lexgen builds the lexical table spec.md §4.5 describes: a
// deterministic finite automaton over a partitioned code-point alphabet,
// one token pattern at a time via Thompson construction, joined under a
// single start state and reduced to a DFA with the teacher's
// automaton.NFA[E].ToDFA subset-construction implementation, with each
// accepting state's winning token resolved by precedence, then literal
// ("string") tokens over pattern tokens. Two tokens still tied after both
// comparisons are a LexConflict.
package lexgen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dekarrin/rosed"

	"github.com/dekarrin/ictiobus/internal/ictiobus/automaton"
	"github.com/dekarrin/ictiobus/internal/ictiobus/icterrors"
	"github.com/dekarrin/ictiobus/internal/ictiobus/lextoks"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

// CharRange is an inclusive code point range, one cell of the lex table's
// transition alphabet.
type CharRange struct {
	Lo, Hi rune
}

func (r CharRange) label() string { return fmt.Sprintf("%d-%d", r.Lo, r.Hi) }

func (r CharRange) String() string {
	if r.Lo == r.Hi {
		return fmt.Sprintf("%U", r.Lo)
	}
	return fmt.Sprintf("%U-%U", r.Lo, r.Hi)
}

// LexAccept is what a DFA state does when scanning halts there.
type LexAccept struct {
	Symbol     symbol.Symbol
	Precedence int
	IsString   bool
}

// LexState is one DFA state.
type LexState struct {
	Transitions map[CharRange]int
	Accept      *LexAccept
}

// LexTable is the compiled lexer: a DFA over a code point range alphabet
// with accept-action resolution already baked into every accepting state.
type LexTable struct {
	States []LexState
	Start  int
	Ranges []CharRange
}

// acceptTag is the per-NFA-accept-state payload threaded through
// automaton.NFA's generic E parameter: which token pattern this path
// completes, and the data needed to resolve a tie against another token
// reaching the same DFA state.
type acceptTag struct {
	symbol     symbol.Symbol
	precedence int
	isString   bool
	index      int
}

// better returns whichever of a, b wins the accept-action tie-break:
// higher precedence, then string literal over pattern, then earlier
// declaration order. Either argument may be nil. Declaration order only
// matters when the two tags carry the same symbol via different accept
// paths; distinct symbols that get that far are a conflict, which
// resolveAccept reports.
func better(a, b *acceptTag) *acceptTag {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.precedence != b.precedence {
		if a.precedence > b.precedence {
			return a
		}
		return b
	}
	if a.isString != b.isString {
		if a.isString {
			return a
		}
		return b
	}
	if a.index <= b.index {
		return a
	}
	return b
}

// resolveAccept picks the winning token among every accept path reaching
// one DFA state. Two distinct tokens with equal precedence and equal
// string-ness cannot be ordered and are a LexConflict.
func resolveAccept(tags []*acceptTag) (*acceptTag, icterrors.CompileError) {
	live := make([]*acceptTag, 0, len(tags))
	for _, tag := range tags {
		if tag != nil {
			live = append(live, tag)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].index < live[j].index })
	tags = live

	var winner *acceptTag
	for _, tag := range tags {
		winner = better(winner, tag)
	}
	if winner == nil {
		return nil, icterrors.CompileError{}
	}
	for _, tag := range tags {
		if tag.symbol == winner.symbol {
			continue
		}
		if tag.precedence == winner.precedence && tag.isString == winner.isString {
			return nil, icterrors.New(icterrors.KindLexConflict,
				"tokens %s and %s match the same input with equal precedence", winner.symbol, tag.symbol)
		}
	}
	return winner, icterrors.CompileError{}
}

// inlineRefs replaces every symbol reference in a token rule with the
// referenced token's own rule, so the Thompson construction only ever sees
// self-contained regex shapes. A reference to an undefined token or a
// reference cycle is a grammar error.
func inlineRefs(g lextoks.Grammar, r rule.Rule, visiting map[symbol.Symbol]bool) (rule.Rule, icterrors.CompileError) {
	switch t := r.(type) {
	case *rule.SymbolRef:
		if visiting[t.Symbol] {
			return nil, icterrors.New(icterrors.KindGrammarError, "token rule reference cycle through %s", t.Symbol)
		}
		ref, ok := g.TokenFor(t.Symbol)
		if !ok {
			return nil, icterrors.New(icterrors.KindGrammarError, "token rule references undefined token %s", t.Symbol)
		}
		visiting[t.Symbol] = true
		out, err := inlineRefs(g, ref.Rule, visiting)
		delete(visiting, t.Symbol)
		return out, err
	case *rule.Choice:
		children := make([]rule.Rule, len(t.Children))
		for i, c := range t.Children {
			inlined, err := inlineRefs(g, c, visiting)
			if !err.None() {
				return nil, err
			}
			children[i] = inlined
		}
		return rule.Choice{Children: children}.Build(), icterrors.CompileError{}
	case *rule.Seq:
		left, err := inlineRefs(g, t.Left, visiting)
		if !err.None() {
			return nil, err
		}
		right, err := inlineRefs(g, t.Right, visiting)
		if !err.None() {
			return nil, err
		}
		return rule.Seq{Left: left, Right: right}.Build(), icterrors.CompileError{}
	case *rule.Repeat:
		inner, err := inlineRefs(g, t.Inner, visiting)
		if !err.None() {
			return nil, err
		}
		return &rule.Repeat{Inner: inner}, icterrors.CompileError{}
	case *rule.Metadata:
		inner, err := inlineRefs(g, t.Inner, visiting)
		if !err.None() {
			return nil, err
		}
		return rule.Metadata{Inner: inner, Params: t.Params}.Build(), icterrors.CompileError{}
	default:
		return r, icterrors.CompileError{}
	}
}

// collectRanges gathers every CharacterSet leaf's ranges out of r.
func collectRanges(r rule.Rule, out *[][2]rune) {
	switch t := r.(type) {
	case *rule.CharacterSet:
		*out = append(*out, t.Ranges()...)
	case *rule.Seq:
		collectRanges(t.Left, out)
		collectRanges(t.Right, out)
	case *rule.Choice:
		for _, c := range t.Children {
			collectRanges(c, out)
		}
	case *rule.Repeat:
		collectRanges(t.Inner, out)
	case *rule.Metadata:
		collectRanges(t.Inner, out)
	}
}

// partition turns a list of (possibly overlapping) ranges into the minimal
// set of disjoint ranges such that every input range is a union of some of
// the output ranges — the standard "alphabet minimization" step that lets a
// Thompson-constructed NFA transition on whole equivalence classes of code
// points instead of one state per rune.
func partition(allRanges [][2]rune) []CharRange {
	if len(allRanges) == 0 {
		return nil
	}
	boundarySet := map[rune]bool{}
	for _, r := range allRanges {
		boundarySet[r[0]] = true
		if r[1] < rule.MaxCodePoint {
			boundarySet[r[1]+1] = true
		}
	}
	bounds := make([]rune, 0, len(boundarySet))
	for b := range boundarySet {
		bounds = append(bounds, b)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	var out []CharRange
	for i := 0; i+1 < len(bounds); i++ {
		out = append(out, CharRange{Lo: bounds[i], Hi: bounds[i+1] - 1})
	}
	last := bounds[len(bounds)-1]
	out = append(out, CharRange{Lo: last, Hi: rule.MaxCodePoint})
	return out
}

// builder assembles the Thompson-constructed NFA for every token pattern,
// sharing one partitioned alphabet and one monotonic state-name counter.
type builder struct {
	nfa     automaton.NFA[*acceptTag]
	counter int
	ranges  []CharRange
}

func (b *builder) newState(accepting bool) string {
	name := fmt.Sprintf("s%d", b.counter)
	b.counter++
	b.nfa.AddState(name, accepting)
	return name
}

// fragment builds the NFA fragment for r, returning its (start, end)
// states; end is never itself marked accepting (accept states are only
// ever the one Build adds per top-level token).
func (b *builder) fragment(r rule.Rule) (start, end string) {
	switch t := r.(type) {
	case *rule.Blank:
		s, e := b.newState(false), b.newState(false)
		b.nfa.AddTransition(s, automaton.Epsilon, e)
		return s, e
	case *rule.CharacterSet:
		s, e := b.newState(false), b.newState(false)
		for _, cr := range b.ranges {
			if t.Contains(cr.Lo) {
				b.nfa.AddTransition(s, cr.label(), e)
			}
		}
		return s, e
	case *rule.SymbolRef:
		// Build inlines every token-to-token reference before constructing
		// fragments, so a SymbolRef reaching here is a programming error.
		panic(fmt.Sprintf("lexgen: unresolved symbol reference in token pattern: %s", t.String()))
	case *rule.Seq:
		s1, e1 := b.fragment(t.Left)
		s2, e2 := b.fragment(t.Right)
		b.nfa.AddTransition(e1, automaton.Epsilon, s2)
		return s1, e2
	case *rule.Choice:
		s, e := b.newState(false), b.newState(false)
		for _, c := range t.Children {
			cs, ce := b.fragment(c)
			b.nfa.AddTransition(s, automaton.Epsilon, cs)
			b.nfa.AddTransition(ce, automaton.Epsilon, e)
		}
		return s, e
	case *rule.Repeat:
		is, ie := b.fragment(t.Inner)
		s, e := b.newState(false), b.newState(false)
		b.nfa.AddTransition(s, automaton.Epsilon, is)
		b.nfa.AddTransition(ie, automaton.Epsilon, e)
		b.nfa.AddTransition(ie, automaton.Epsilon, is)
		return s, e
	case *rule.Metadata:
		return b.fragment(t.Inner)
	default:
		panic(fmt.Sprintf("lexgen: unhandled rule variant %T", r))
	}
}

// Build constructs the lex table for g: one Thompson fragment per token,
// joined under a shared start with an epsilon edge each, reduced to a DFA,
// and with each accepting state's token resolved via better().
func Build(g lextoks.Grammar) (*LexTable, icterrors.CompileError) {
	if len(g.Tokens) == 0 {
		return &LexTable{Ranges: nil}, icterrors.CompileError{}
	}

	// External tokens are scanned by an external scanner, not the generated
	// DFA; their placeholder rules contribute nothing to the table.
	tokens := make([]lextoks.TokenRule, 0, len(g.Tokens))
	for _, tok := range g.Tokens {
		if tok.Symbol.Kind == symbol.External {
			continue
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return &LexTable{Ranges: nil}, icterrors.CompileError{}
	}

	for i, tok := range tokens {
		inlined, cerr := inlineRefs(g, tok.Rule, map[symbol.Symbol]bool{tok.Symbol: true})
		if !cerr.None() {
			return nil, cerr
		}
		tokens[i].Rule = inlined
	}

	var allRanges [][2]rune
	for _, tok := range tokens {
		collectRanges(tok.Rule, &allRanges)
	}
	parts := partition(allRanges)

	labelToRange := make(map[string]CharRange, len(parts))
	for _, p := range parts {
		labelToRange[p.label()] = p
	}

	b := &builder{ranges: parts}
	superStart := b.newState(false)
	b.nfa.Start = superStart

	for i, tok := range tokens {
		s, e := b.fragment(tok.Rule)
		accept := b.newState(true)
		b.nfa.AddTransition(e, automaton.Epsilon, accept)
		b.nfa.SetValue(accept, &acceptTag{
			symbol:     tok.Symbol,
			precedence: tok.Precedence,
			isString:   tok.IsString,
			index:      i,
		})
		b.nfa.AddTransition(superStart, automaton.Epsilon, s)
	}

	dfa := b.nfa.ToDFA()
	dfa.NumberStates()

	n := dfa.States().Len()
	states := make([]LexState, n)
	for i := 0; i < n; i++ {
		name := strconv.Itoa(i)
		ls := LexState{Transitions: map[CharRange]int{}}

		for _, t := range dfa.Transitions(name) {
			cr, ok := labelToRange[t.Input()]
			if !ok {
				continue
			}
			toIdx, err := strconv.Atoi(t.To())
			if err != nil {
				continue
			}
			ls.Transitions[cr] = toIdx
		}

		if dfa.IsAccepting(name) {
			var tags []*acceptTag
			for _, tag := range dfa.GetValue(name) {
				tags = append(tags, tag)
			}
			winner, cerr := resolveAccept(tags)
			if !cerr.None() {
				return nil, cerr
			}
			if winner != nil {
				ls.Accept = &LexAccept{
					Symbol:     winner.symbol,
					Precedence: winner.precedence,
					IsString:   winner.isString,
				}
			}
		}

		states[i] = ls
	}

	if states[0].Accept != nil {
		return nil, icterrors.New(icterrors.KindGrammarError,
			"token %s matches the empty string", states[0].Accept.Symbol)
	}

	return &LexTable{States: states, Start: 0, Ranges: parts}, icterrors.CompileError{}
}

// String renders the table in the same InsertTableOpts-aligned form
// parsetable.ParseTable.String uses.
func (lt *LexTable) String() string {
	data := [][]string{{"state", "accept", "transitions"}}
	for i, st := range lt.States {
		accept := ""
		if st.Accept != nil {
			accept = fmt.Sprintf("%s (prec=%d)", st.Accept.Symbol, st.Accept.Precedence)
		}

		ranges := make([]CharRange, 0, len(st.Transitions))
		for cr := range st.Transitions {
			ranges = append(ranges, cr)
		}
		sort.Slice(ranges, func(a, b int) bool { return ranges[a].Lo < ranges[b].Lo })

		var parts []string
		for _, cr := range ranges {
			parts = append(parts, fmt.Sprintf("%s -> %d", cr, st.Transitions[cr]))
		}

		data = append(data, []string{fmt.Sprintf("%d", i), accept, strings.Join(parts, ", ")})
	}

	return rosed.Edit("").
		InsertTableOpts(0, data, 20, rosed.Options{
			TableHeaders:             true,
			NoTrailingLineSeparators: true,
		}).
		String()
}
