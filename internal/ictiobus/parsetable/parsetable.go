// Package parsetable implements the parse-table data model spec.md §3/§4.7-4.8
// describes: ParseAction, ParseTableEntry, ParseState, ParseTable, and the
// state-merge algorithm used for table compaction. It is the output of
// parsegen's LR(1) item-set construction, and the input to the artifact
// encoder.
package parsetable

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dekarrin/rosed"

	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
	"github.com/dekarrin/ictiobus/internal/ictiobus/syntax"
)

// ActionType discriminates what a ParseAction does.
type ActionType int

const (
	Error ActionType = iota
	Shift
	Reduce
	Accept
	Recover
)

func (t ActionType) String() string {
	switch t {
	case Error:
		return "ERROR"
	case Shift:
		return "SHIFT"
	case Reduce:
		return "REDUCE"
	case Accept:
		return "ACCEPT"
	case Recover:
		return "RECOVER"
	default:
		return fmt.Sprintf("ActionType(%d)", int(t))
	}
}

// NoProduction is a sentinel ParseAction.Production value for actions whose
// Type doesn't carry one (anything but Reduce). It is not the zero value.
const NoProduction = syntax.ProductionHandle(-1)

// ParseAction is a single action an LR state takes on some lookahead.
//
// Precedence/Assoc are captured at construction time from whichever step was
// in play when parsegen built this action (the reduce production's
// step-at-cursor, or the shifted terminal's declared precedence) so that
// Precedence()/Associativity() are plain accessors rather than needing a
// live reference back into the owning syntax.Grammar (spec.md §3's
// "Derived" methods, adapted to this repo's value-type action).
type ParseAction struct {
	Type    ActionType
	Extra   bool
	Fragile bool

	// StateIndex is used for Shift/Recover: the state to transition to.
	StateIndex int

	// Symbol is used for Reduce: the LHS non-terminal being reduced to.
	Symbol symbol.Symbol

	// ConsumedSymbolCount is used for Reduce: the number of steps in
	// Production, i.e. how many stack symbols the reduce pops.
	ConsumedSymbolCount int

	// Production is used for Reduce: the handle of the production being
	// reduced. Other action types do not use it; parsegen leaves it at the
	// zero value for them.
	Production syntax.ProductionHandle

	Precedence int
	Assoc      rule.Associativity
}

func (a ParseAction) String() string {
	switch a.Type {
	case Accept:
		return "ACTION<accept>"
	case Error:
		return "ACTION<error>"
	case Shift:
		s := fmt.Sprintf("ACTION<shift %d", a.StateIndex)
		if a.Extra {
			s += ", extra"
		}
		return s + ">"
	case Recover:
		return fmt.Sprintf("ACTION<recover %d>", a.StateIndex)
	case Reduce:
		s := fmt.Sprintf("ACTION<reduce %s (%d)", a.Symbol, a.Production)
		if a.Fragile {
			s += ", fragile"
		}
		return s + ">"
	default:
		return "ACTION<unknown>"
	}
}

// Equal reports whether a and o are the same action in every field spec.md
// §3 lists.
func (a ParseAction) Equal(o ParseAction) bool {
	return a.Type == o.Type &&
		a.Extra == o.Extra &&
		a.Fragile == o.Fragile &&
		a.StateIndex == o.StateIndex &&
		a.Symbol == o.Symbol &&
		a.ConsumedSymbolCount == o.ConsumedSymbolCount &&
		a.Production == o.Production
}

// Less implements the total order spec.md §3 requires: lexicographic on
// (type, extra, fragile, symbol, state_index, production-handle,
// consumed_count).
func (a ParseAction) Less(o ParseAction) bool {
	if a.Type != o.Type {
		return a.Type < o.Type
	}
	if a.Extra != o.Extra {
		return !a.Extra
	}
	if a.Fragile != o.Fragile {
		return !a.Fragile
	}
	if a.Symbol != o.Symbol {
		return a.Symbol.Less(o.Symbol)
	}
	if a.StateIndex != o.StateIndex {
		return a.StateIndex < o.StateIndex
	}
	if a.Production != o.Production {
		return a.Production < o.Production
	}
	return a.ConsumedSymbolCount < o.ConsumedSymbolCount
}

// SortActions sorts acts in place per ParseAction.Less.
func SortActions(acts []ParseAction) {
	sort.Slice(acts, func(i, j int) bool { return acts[i].Less(acts[j]) })
}

// ParseTableEntry is everything a state does on one lookahead symbol.
// Multiple Actions denote a conflict retained per spec.md §7's conflict
// declarations (each reduce among them marked Fragile).
type ParseTableEntry struct {
	Actions            []ParseAction
	Reusable           bool
	DependsOnLookahead bool
}

// LastAction returns the final action in entry order, per spec.md §4.7's
// "the last action of S_i[k] must be a Reduce" merge condition.
func (e *ParseTableEntry) LastAction() (ParseAction, bool) {
	if e == nil || len(e.Actions) == 0 {
		return ParseAction{}, false
	}
	return e.Actions[len(e.Actions)-1], true
}

// Equal reports structural equality, independent of the order Actions was
// built in (two orderings of the same conflict set are the same entry).
func (e *ParseTableEntry) Equal(o *ParseTableEntry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Reusable != o.Reusable || e.DependsOnLookahead != o.DependsOnLookahead {
		return false
	}
	if len(e.Actions) != len(o.Actions) {
		return false
	}
	a := append([]ParseAction{}, e.Actions...)
	b := append([]ParseAction{}, o.Actions...)
	SortActions(a)
	SortActions(b)
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// SymbolMeta tracks, per-symbol, whether it is ever used as an extra/
// ubiquitous shift or a structural one (spec.md §3's "symbols" field).
type SymbolMeta struct {
	Extra      bool
	Structural bool
}

// ParseState is a single LR state: what it does on every lookahead
// (TerminalEntries) and where it goes on every non-terminal (goto,
// NonterminalEntries keyed by the non-terminal's bare Index per spec.md
// §3).
type ParseState struct {
	TerminalEntries    map[symbol.Symbol]*ParseTableEntry
	NonterminalEntries map[uint32]int
	LexStateID         string
}

func newParseState() ParseState {
	return ParseState{
		TerminalEntries:    map[symbol.Symbol]*ParseTableEntry{},
		NonterminalEntries: map[uint32]int{},
	}
}

// HasShiftAction reports whether any terminal entry's last action is Shift,
// or any goto exists.
func (s ParseState) HasShiftAction() bool {
	for _, e := range s.TerminalEntries {
		if last, ok := e.LastAction(); ok && last.Type == Shift {
			return true
		}
	}
	return len(s.NonterminalEntries) > 0
}

// ExpectedInputs returns the key set of TerminalEntries, ordered by Symbol.
func (s ParseState) ExpectedInputs() []symbol.Symbol {
	out := make([]symbol.Symbol, 0, len(s.TerminalEntries))
	for sym := range s.TerminalEntries {
		out = append(out, sym)
	}
	symbol.Sort(out)
	return out
}

// ShiftActionsSignature is a hash of the state's shift-action fingerprint
// (which terminals it shifts, and to where), used by the merger to cheaply
// rule out non-candidates before running the full MergeState check.
func (s ParseState) ShiftActionsSignature() uint64 {
	syms := s.ExpectedInputs()
	var h uint64 = 1469598103934665603 // FNV-1a offset basis
	const prime uint64 = 1099511628211
	for _, sym := range syms {
		e := s.TerminalEntries[sym]
		last, ok := e.LastAction()
		if !ok || last.Type != Shift {
			continue
		}
		for _, b := range []byte(fmt.Sprintf("%s:%d|", sym, last.StateIndex)) {
			h ^= uint64(b)
			h *= prime
		}
	}
	return h
}

// ParseTable is the full LR table: its states plus the per-symbol metadata
// and mergeable-lookahead set spec.md §3 names.
type ParseTable struct {
	States           []ParseState
	Symbols          map[symbol.Symbol]SymbolMeta
	MergeableSymbols map[symbol.Symbol]bool
}

// New returns an empty ParseTable ready for AddState/AddTerminalAction calls.
func New() *ParseTable {
	return &ParseTable{
		Symbols:          map[symbol.Symbol]SymbolMeta{},
		MergeableSymbols: map[symbol.Symbol]bool{},
	}
}

// AddState appends a fresh ParseState and returns its id.
func (pt *ParseTable) AddState() int {
	pt.States = append(pt.States, newParseState())
	return len(pt.States) - 1
}

// MarkMergeable records sym as a lookahead permitted to participate in the
// default-reduce-replay merge condition (spec.md §4.7 point 2).
func (pt *ParseTable) MarkMergeable(sym symbol.Symbol) {
	pt.MergeableSymbols[sym] = true
}

func (pt *ParseTable) markSymbol(sym symbol.Symbol, extra bool) {
	meta := pt.Symbols[sym]
	if extra {
		meta.Extra = true
	} else {
		meta.Structural = true
	}
	pt.Symbols[sym] = meta
}

// AddTerminalAction records action under sym in state, marking sym extra or
// structural in the table's symbol metadata (spec.md §4.8). It returns a
// pointer to the just-appended action so callers (parsegen's conflict
// resolution) can further annotate it, e.g. mark Fragile.
func (pt *ParseTable) AddTerminalAction(state int, sym symbol.Symbol, action ParseAction) *ParseAction {
	st := &pt.States[state]
	entry, ok := st.TerminalEntries[sym]
	if !ok {
		entry = &ParseTableEntry{}
		st.TerminalEntries[sym] = entry
	}
	entry.Actions = append(entry.Actions, action)

	pt.markSymbol(sym, action.Type == Shift && action.Extra)

	return &entry.Actions[len(entry.Actions)-1]
}

// SetNonterminalAction sets the goto entry for non-terminal index idx in
// state, and marks idx's symbol structural.
func (pt *ParseTable) SetNonterminalAction(state int, idx uint32, next int) {
	pt.States[state].NonterminalEntries[idx] = next
	pt.markSymbol(symbol.Symbol{Index: idx, Kind: symbol.NonTerminal}, false)
}

// AllSymbols returns every symbol that appears as a key in Symbols, ordered
// by (Kind, Index).
func (pt *ParseTable) AllSymbols() []symbol.Symbol {
	out := make([]symbol.Symbol, 0, len(pt.Symbols))
	for sym := range pt.Symbols {
		out = append(out, sym)
	}
	symbol.Sort(out)
	return out
}

// eachReferencedState visits every state index s's action table
// references, rewriting it via visit. It follows the *intended* predicate
// spec.md §9 adopts for the source's each_referenced_state bug: only
// Shift and Recover actions carry a meaningful StateIndex, not Error
// actions (whose StateIndex field, if ever populated, must never be
// mistaken for a live reference).
func eachReferencedState(s *ParseState, visit func(int) int) {
	for _, entry := range s.TerminalEntries {
		for i := range entry.Actions {
			if entry.Actions[i].Type == Shift || entry.Actions[i].Type == Recover {
				entry.Actions[i].StateIndex = visit(entry.Actions[i].StateIndex)
			}
		}
	}
	for k, v := range s.NonterminalEntries {
		s.NonterminalEntries[k] = visit(v)
	}
}

// EachReferencedState exposes eachReferencedState for regression testing
// (spec.md §9's call for a test that Error actions are never visited).
func EachReferencedState(s *ParseState, visit func(int) int) {
	eachReferencedState(s, visit)
}

func nonterminalEntriesEqual(a, b *ParseState) bool {
	if len(a.NonterminalEntries) != len(b.NonterminalEntries) {
		return false
	}
	for k, v := range a.NonterminalEntries {
		if bv, ok := b.NonterminalEntries[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func entryOccursIn(state *ParseState, target *ParseTableEntry) bool {
	for _, e := range state.TerminalEntries {
		if e.Equal(target) {
			return true
		}
	}
	return false
}

// MergeState attempts to merge state j into state i per spec.md §4.7: it
// succeeds only when the two states have identical gotos and every
// lookahead present in just one of the two states is a mergeable/built-in
// default-reduce that the other state already performs under some other
// lookahead. On success, j's unique entries are copied into i and every
// state's Shift/Recover/goto references to j are redirected to i; j itself
// is left in place but unreferenced (callers that want a dense table run a
// separate compaction pass to drop orphaned states).
func (pt *ParseTable) MergeState(i, j int) bool {
	if i == j {
		return true
	}
	si, sj := &pt.States[i], &pt.States[j]

	if !nonterminalEntriesEqual(si, sj) {
		return false
	}

	for sym, ei := range si.TerminalEntries {
		ej, ok := sj.TerminalEntries[sym]
		if ok {
			if !ei.Equal(ej) {
				return false
			}
			continue
		}
		if !(pt.MergeableSymbols[sym] || sym.IsBuiltIn()) {
			return false
		}
		last, ok := ei.LastAction()
		if !ok || last.Type != Reduce {
			return false
		}
		if !entryOccursIn(sj, ei) {
			return false
		}
	}

	toInsert := map[symbol.Symbol]*ParseTableEntry{}
	for sym, ej := range sj.TerminalEntries {
		if _, ok := si.TerminalEntries[sym]; ok {
			continue
		}
		if !(pt.MergeableSymbols[sym] || sym.IsBuiltIn()) {
			return false
		}
		last, ok := ej.LastAction()
		if !ok || last.Type != Reduce {
			return false
		}
		if !entryOccursIn(si, ej) {
			return false
		}
		toInsert[sym] = ej
	}

	for sym, e := range toInsert {
		si.TerminalEntries[sym] = e
	}

	for idx := range pt.States {
		eachReferencedState(&pt.States[idx], func(s int) int {
			if s == j {
				return i
			}
			return s
		})
	}

	return true
}

// MergeStates greedily attempts MergeState over every pair of states whose
// ShiftActionsSignature matches, in ascending (i, j) order, repeating the
// whole sweep after any sweep in which a merge succeeded so newly-redirected
// states are considered again. It returns the number of successful merges. Iteration order is
// fixed (ascending indices) so the result is deterministic, per spec.md
// §5's "Deterministic iteration order is required everywhere."
func (pt *ParseTable) MergeStates() int {
	merged := 0
	referenced := func(s int) bool {
		if s == 0 {
			return true
		}
		for idx := range pt.States {
			if idx == s {
				continue
			}
			found := false
			eachReferencedState(&pt.States[idx], func(ref int) int {
				if ref == s {
					found = true
				}
				return ref
			})
			if found {
				return true
			}
		}
		return false
	}

	for {
		didMerge := false
		for i := 0; i < len(pt.States); i++ {
			if i != 0 && !referenced(i) {
				continue
			}
			for j := i + 1; j < len(pt.States); j++ {
				if !referenced(j) {
					continue
				}
				if pt.States[i].ShiftActionsSignature() != pt.States[j].ShiftActionsSignature() {
					continue
				}
				if pt.MergeState(i, j) {
					merged++
					didMerge = true
				}
			}
		}
		if !didMerge {
			break
		}
	}
	return merged
}

// String renders the table in the same InsertTableOpts-aligned form the
// teacher's LALR/CLR1/SLR builders use for debug output.
func (pt *ParseTable) String() string {
	syms := pt.AllSymbols()

	var header []string
	header = append(header, "")
	for _, sym := range syms {
		header = append(header, sym.String())
	}

	data := [][]string{header}
	for i, st := range pt.States {
		row := []string{fmt.Sprintf("%d", i)}
		for _, sym := range syms {
			cell := ""
			if sym.Kind == symbol.NonTerminal || sym.Kind == symbol.Auxiliary {
				if next, ok := st.NonterminalEntries[sym.Index]; ok {
					cell = fmt.Sprintf("%d", next)
				}
			} else if e, ok := st.TerminalEntries[sym]; ok {
				var parts []string
				for _, a := range e.Actions {
					parts = append(parts, a.String())
				}
				cell = strings.Join(parts, " / ")
			}
			row = append(row, cell)
		}
		data = append(data, row)
	}

	return rosed.Edit("").
		InsertTableOpts(0, data, 10, rosed.Options{
			TableHeaders:             true,
			NoTrailingLineSeparators: true,
		}).
		String()
}
