// Package artifact encodes a compiled lex table and parse table into a
// single self-contained byte stream using github.com/dekarrin/rezi, the
// same binary codec the teacher's session/game-state persistence layer
// uses (server/dao/sqlite).
//
// rezi works in terms of encoding.BinaryMarshaler values: EncBinary
// length-prefixes whatever MarshalBinary returns, and DecBinary hands
// UnmarshalBinary exactly that payload back. Each Wire* type below
// implements the pair by composing rezi's scalar encoders, so the whole
// artifact nests cleanly. Maps keyed by struct types (symbol.Symbol,
// lexgen.CharRange) are flattened to sorted key/value slices before
// encoding so that re-encoding the same tables always yields identical
// bytes.
package artifact

import (
	"encoding"
	"fmt"
	"sort"

	"github.com/dekarrin/rezi"

	"github.com/dekarrin/ictiobus/internal/ictiobus/icterrors"
	"github.com/dekarrin/ictiobus/internal/ictiobus/lexgen"
	"github.com/dekarrin/ictiobus/internal/ictiobus/parsetable"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
	"github.com/dekarrin/ictiobus/internal/ictiobus/syntax"
)

func encSlice[E encoding.BinaryMarshaler](sl []E) []byte {
	data := rezi.EncInt(len(sl))
	for _, e := range sl {
		data = append(data, rezi.EncBinary(e)...)
	}
	return data
}

func decSlice[E any, PE interface {
	*E
	encoding.BinaryUnmarshaler
}](data []byte) ([]E, int, error) {
	count, n, err := rezi.DecInt(data)
	if err != nil {
		return nil, 0, err
	}
	var out []E
	for i := 0; i < count; i++ {
		var e E
		consumed, err := rezi.DecBinary(data[n:], PE(&e))
		if err != nil {
			return nil, 0, fmt.Errorf("element %d: %w", i, err)
		}
		n += consumed
		out = append(out, e)
	}
	return out, n, nil
}

// Artifact is the full compile output in wire form: everything a generated
// parser needs at runtime to scan and parse.
type Artifact struct {
	Lex   WireLexTable
	Parse WireParseTable
}

func (a Artifact) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncBinary(a.Lex)...)
	data = append(data, rezi.EncBinary(a.Parse)...)
	return data, nil
}

func (a *Artifact) UnmarshalBinary(data []byte) error {
	n, err := rezi.DecBinary(data, &a.Lex)
	if err != nil {
		return err
	}
	data = data[n:]

	_, err = rezi.DecBinary(data, &a.Parse)
	return err
}

// WireSymbol is symbol.Symbol flattened to its two scalar fields.
type WireSymbol struct {
	Index uint32
	Kind  int
}

func toWireSymbol(s symbol.Symbol) WireSymbol {
	return WireSymbol{Index: s.Index, Kind: int(s.Kind)}
}

func (w WireSymbol) toSymbol() symbol.Symbol {
	return symbol.Symbol{Index: w.Index, Kind: symbol.Kind(w.Kind)}
}

func (w WireSymbol) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncInt(int(w.Index))...)
	data = append(data, rezi.EncInt(w.Kind)...)
	return data, nil
}

func (w *WireSymbol) UnmarshalBinary(data []byte) error {
	idx, n, err := rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]
	w.Index = uint32(idx)

	w.Kind, _, err = rezi.DecInt(data)
	return err
}

// WireLexTransition is one entry of a lexgen.LexState's Transitions map:
// an inclusive code point range and the state it leads to.
type WireLexTransition struct {
	Lo, Hi rune
	To     int
}

func (w WireLexTransition) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncInt(int(w.Lo))...)
	data = append(data, rezi.EncInt(int(w.Hi))...)
	data = append(data, rezi.EncInt(w.To)...)
	return data, nil
}

func (w *WireLexTransition) UnmarshalBinary(data []byte) error {
	lo, n, err := rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]
	w.Lo = rune(lo)

	hi, n, err := rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]
	w.Hi = rune(hi)

	w.To, _, err = rezi.DecInt(data)
	return err
}

// WireLexAccept mirrors lexgen.LexAccept.
type WireLexAccept struct {
	Symbol     WireSymbol
	Precedence int
	IsString   bool
}

func (w WireLexAccept) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncBinary(w.Symbol)...)
	data = append(data, rezi.EncInt(w.Precedence)...)
	data = append(data, rezi.EncBool(w.IsString)...)
	return data, nil
}

func (w *WireLexAccept) UnmarshalBinary(data []byte) error {
	n, err := rezi.DecBinary(data, &w.Symbol)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Precedence, n, err = rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.IsString, _, err = rezi.DecBool(data)
	return err
}

// WireLexState mirrors lexgen.LexState, with Transitions flattened to a
// sorted slice and Accept turned into a has/value pair since a nil-able
// struct field has no direct wire form.
type WireLexState struct {
	Transitions []WireLexTransition
	HasAccept   bool
	Accept      WireLexAccept
}

func (w WireLexState) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, encSlice(w.Transitions)...)
	data = append(data, rezi.EncBool(w.HasAccept)...)
	data = append(data, rezi.EncBinary(w.Accept)...)
	return data, nil
}

func (w *WireLexState) UnmarshalBinary(data []byte) error {
	var err error
	var n int

	w.Transitions, n, err = decSlice[WireLexTransition](data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.HasAccept, n, err = rezi.DecBool(data)
	if err != nil {
		return err
	}
	data = data[n:]

	_, err = rezi.DecBinary(data, &w.Accept)
	return err
}

// WireLexTable mirrors lexgen.LexTable; Ranges is dropped, since it is
// rebuildable from the transitions themselves and only existed to label
// debug output.
type WireLexTable struct {
	States []WireLexState
	Start  int
}

func (w WireLexTable) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, encSlice(w.States)...)
	data = append(data, rezi.EncInt(w.Start)...)
	return data, nil
}

func (w *WireLexTable) UnmarshalBinary(data []byte) error {
	var err error
	var n int

	w.States, n, err = decSlice[WireLexState](data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Start, _, err = rezi.DecInt(data)
	return err
}

func fromLexTable(lt *lexgen.LexTable) WireLexTable {
	w := WireLexTable{Start: lt.Start, States: make([]WireLexState, len(lt.States))}
	for i, st := range lt.States {
		ws := WireLexState{}

		ranges := make([]lexgen.CharRange, 0, len(st.Transitions))
		for cr := range st.Transitions {
			ranges = append(ranges, cr)
		}
		sort.Slice(ranges, func(a, b int) bool { return ranges[a].Lo < ranges[b].Lo })
		for _, cr := range ranges {
			ws.Transitions = append(ws.Transitions, WireLexTransition{
				Lo: cr.Lo,
				Hi: cr.Hi,
				To: st.Transitions[cr],
			})
		}

		if st.Accept != nil {
			ws.HasAccept = true
			ws.Accept = WireLexAccept{
				Symbol:     toWireSymbol(st.Accept.Symbol),
				Precedence: st.Accept.Precedence,
				IsString:   st.Accept.IsString,
			}
		}

		w.States[i] = ws
	}
	return w
}

func (w WireLexTable) toLexTable() *lexgen.LexTable {
	lt := &lexgen.LexTable{Start: w.Start, States: make([]lexgen.LexState, len(w.States))}
	for i, ws := range w.States {
		st := lexgen.LexState{Transitions: map[lexgen.CharRange]int{}}
		for _, t := range ws.Transitions {
			st.Transitions[lexgen.CharRange{Lo: t.Lo, Hi: t.Hi}] = t.To
		}
		if ws.HasAccept {
			st.Accept = &lexgen.LexAccept{
				Symbol:     ws.Accept.Symbol.toSymbol(),
				Precedence: ws.Accept.Precedence,
				IsString:   ws.Accept.IsString,
			}
		}
		lt.States[i] = st
	}
	return lt
}

// WireParseAction mirrors parsetable.ParseAction.
type WireParseAction struct {
	Type                int
	Extra               bool
	Fragile             bool
	StateIndex          int
	Symbol              WireSymbol
	ConsumedSymbolCount int
	Production          int
	Precedence          int
	Assoc               int
}

func (w WireParseAction) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncInt(w.Type)...)
	data = append(data, rezi.EncBool(w.Extra)...)
	data = append(data, rezi.EncBool(w.Fragile)...)
	data = append(data, rezi.EncInt(w.StateIndex)...)
	data = append(data, rezi.EncBinary(w.Symbol)...)
	data = append(data, rezi.EncInt(w.ConsumedSymbolCount)...)
	data = append(data, rezi.EncInt(w.Production)...)
	data = append(data, rezi.EncInt(w.Precedence)...)
	data = append(data, rezi.EncInt(w.Assoc)...)
	return data, nil
}

func (w *WireParseAction) UnmarshalBinary(data []byte) error {
	var err error
	var n int

	w.Type, n, err = rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Extra, n, err = rezi.DecBool(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Fragile, n, err = rezi.DecBool(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.StateIndex, n, err = rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]

	n, err = rezi.DecBinary(data, &w.Symbol)
	if err != nil {
		return err
	}
	data = data[n:]

	w.ConsumedSymbolCount, n, err = rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Production, n, err = rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Precedence, n, err = rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Assoc, _, err = rezi.DecInt(data)
	return err
}

func fromParseAction(a parsetable.ParseAction) WireParseAction {
	return WireParseAction{
		Type:                int(a.Type),
		Extra:               a.Extra,
		Fragile:             a.Fragile,
		StateIndex:          a.StateIndex,
		Symbol:              toWireSymbol(a.Symbol),
		ConsumedSymbolCount: a.ConsumedSymbolCount,
		Production:          int(a.Production),
		Precedence:          a.Precedence,
		Assoc:               int(a.Assoc),
	}
}

func (w WireParseAction) toParseAction() parsetable.ParseAction {
	return parsetable.ParseAction{
		Type:                parsetable.ActionType(w.Type),
		Extra:               w.Extra,
		Fragile:             w.Fragile,
		StateIndex:          w.StateIndex,
		Symbol:              w.Symbol.toSymbol(),
		ConsumedSymbolCount: w.ConsumedSymbolCount,
		Production:          syntax.ProductionHandle(w.Production),
		Precedence:          w.Precedence,
		Assoc:               rule.Associativity(w.Assoc),
	}
}

// WireParseEntry is one ParseTableEntry, keyed explicitly by its lookahead
// symbol since it came from a ParseState.TerminalEntries map.
type WireParseEntry struct {
	Symbol             WireSymbol
	Actions            []WireParseAction
	Reusable           bool
	DependsOnLookahead bool
}

func (w WireParseEntry) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncBinary(w.Symbol)...)
	data = append(data, encSlice(w.Actions)...)
	data = append(data, rezi.EncBool(w.Reusable)...)
	data = append(data, rezi.EncBool(w.DependsOnLookahead)...)
	return data, nil
}

func (w *WireParseEntry) UnmarshalBinary(data []byte) error {
	n, err := rezi.DecBinary(data, &w.Symbol)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Actions, n, err = decSlice[WireParseAction](data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Reusable, n, err = rezi.DecBool(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.DependsOnLookahead, _, err = rezi.DecBool(data)
	return err
}

// WireGoto is one entry of a ParseState.NonterminalEntries map.
type WireGoto struct {
	NonterminalIndex uint32
	NextState        int
}

func (w WireGoto) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncInt(int(w.NonterminalIndex))...)
	data = append(data, rezi.EncInt(w.NextState)...)
	return data, nil
}

func (w *WireGoto) UnmarshalBinary(data []byte) error {
	idx, n, err := rezi.DecInt(data)
	if err != nil {
		return err
	}
	data = data[n:]
	w.NonterminalIndex = uint32(idx)

	w.NextState, _, err = rezi.DecInt(data)
	return err
}

// WireParseState mirrors parsetable.ParseState.
type WireParseState struct {
	TerminalEntries []WireParseEntry
	Gotos           []WireGoto
	LexStateID      string
}

func (w WireParseState) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, encSlice(w.TerminalEntries)...)
	data = append(data, encSlice(w.Gotos)...)
	data = append(data, rezi.EncString(w.LexStateID)...)
	return data, nil
}

func (w *WireParseState) UnmarshalBinary(data []byte) error {
	var err error
	var n int

	w.TerminalEntries, n, err = decSlice[WireParseEntry](data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Gotos, n, err = decSlice[WireGoto](data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.LexStateID, _, err = rezi.DecString(data)
	return err
}

// WireSymbolMeta is one entry of a ParseTable.Symbols map.
type WireSymbolMeta struct {
	Symbol     WireSymbol
	Extra      bool
	Structural bool
}

func (w WireSymbolMeta) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncBinary(w.Symbol)...)
	data = append(data, rezi.EncBool(w.Extra)...)
	data = append(data, rezi.EncBool(w.Structural)...)
	return data, nil
}

func (w *WireSymbolMeta) UnmarshalBinary(data []byte) error {
	n, err := rezi.DecBinary(data, &w.Symbol)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Extra, n, err = rezi.DecBool(data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Structural, _, err = rezi.DecBool(data)
	return err
}

// WireParseTable mirrors parsetable.ParseTable.
type WireParseTable struct {
	States           []WireParseState
	Symbols          []WireSymbolMeta
	MergeableSymbols []WireSymbol
}

func (w WireParseTable) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, encSlice(w.States)...)
	data = append(data, encSlice(w.Symbols)...)
	data = append(data, encSlice(w.MergeableSymbols)...)
	return data, nil
}

func (w *WireParseTable) UnmarshalBinary(data []byte) error {
	var err error
	var n int

	w.States, n, err = decSlice[WireParseState](data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.Symbols, n, err = decSlice[WireSymbolMeta](data)
	if err != nil {
		return err
	}
	data = data[n:]

	w.MergeableSymbols, _, err = decSlice[WireSymbol](data)
	return err
}

func fromParseTable(pt *parsetable.ParseTable) WireParseTable {
	w := WireParseTable{States: make([]WireParseState, len(pt.States))}

	for i, st := range pt.States {
		ws := WireParseState{LexStateID: st.LexStateID}

		for _, sym := range st.ExpectedInputs() {
			entry := st.TerminalEntries[sym]
			we := WireParseEntry{
				Symbol:             toWireSymbol(sym),
				Reusable:           entry.Reusable,
				DependsOnLookahead: entry.DependsOnLookahead,
			}
			for _, a := range entry.Actions {
				we.Actions = append(we.Actions, fromParseAction(a))
			}
			ws.TerminalEntries = append(ws.TerminalEntries, we)
		}

		idxs := make([]uint32, 0, len(st.NonterminalEntries))
		for idx := range st.NonterminalEntries {
			idxs = append(idxs, idx)
		}
		sort.Slice(idxs, func(a, b int) bool { return idxs[a] < idxs[b] })
		for _, idx := range idxs {
			ws.Gotos = append(ws.Gotos, WireGoto{NonterminalIndex: idx, NextState: st.NonterminalEntries[idx]})
		}

		w.States[i] = ws
	}

	for _, sym := range pt.AllSymbols() {
		meta := pt.Symbols[sym]
		w.Symbols = append(w.Symbols, WireSymbolMeta{
			Symbol:     toWireSymbol(sym),
			Extra:      meta.Extra,
			Structural: meta.Structural,
		})
	}

	mergeable := make([]symbol.Symbol, 0, len(pt.MergeableSymbols))
	for sym := range pt.MergeableSymbols {
		mergeable = append(mergeable, sym)
	}
	symbol.Sort(mergeable)
	for _, sym := range mergeable {
		w.MergeableSymbols = append(w.MergeableSymbols, toWireSymbol(sym))
	}

	return w
}

func (w WireParseTable) toParseTable() *parsetable.ParseTable {
	pt := parsetable.New()
	for range w.States {
		pt.AddState()
	}

	for i, ws := range w.States {
		pt.States[i].LexStateID = ws.LexStateID
		for _, we := range ws.TerminalEntries {
			for _, wa := range we.Actions {
				pt.AddTerminalAction(i, we.Symbol.toSymbol(), wa.toParseAction())
			}
			if entry := pt.States[i].TerminalEntries[we.Symbol.toSymbol()]; entry != nil {
				entry.Reusable = we.Reusable
				entry.DependsOnLookahead = we.DependsOnLookahead
			}
		}
		for _, g := range ws.Gotos {
			pt.SetNonterminalAction(i, g.NonterminalIndex, g.NextState)
		}
	}

	for _, wm := range w.Symbols {
		sym := wm.Symbol.toSymbol()
		meta := pt.Symbols[sym]
		meta.Extra = wm.Extra
		meta.Structural = wm.Structural
		pt.Symbols[sym] = meta
	}

	for _, ws := range w.MergeableSymbols {
		pt.MarkMergeable(ws.toSymbol())
	}

	return pt
}

// Encode serializes lex and parse into a single deterministic byte stream.
func Encode(lex *lexgen.LexTable, parse *parsetable.ParseTable) ([]byte, icterrors.CompileError) {
	art := Artifact{Lex: fromLexTable(lex), Parse: fromParseTable(parse)}
	return rezi.EncBinary(art), icterrors.CompileError{}
}

// Decode reverses Encode.
func Decode(data []byte) (*lexgen.LexTable, *parsetable.ParseTable, icterrors.CompileError) {
	var art Artifact
	n, err := rezi.DecBinary(data, &art)
	if err != nil {
		return nil, nil, icterrors.New(icterrors.KindGrammarError, "decode artifact: %v", err)
	}
	if n != len(data) {
		return nil, nil, icterrors.New(icterrors.KindGrammarError, "decode artifact: consumed %d/%d bytes", n, len(data))
	}
	return art.Lex.toLexTable(), art.Parse.toParseTable(), icterrors.CompileError{}
}
