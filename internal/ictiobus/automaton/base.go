// Package automaton provides generic finite-automaton types (NFA and DFA)
// used by the lexical table builder to turn CharacterSet-labeled regular
// expressions into a deterministic transition table.
package automaton

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dekarrin/ictiobus/internal/util"
)

// Epsilon is the transition label used for an ε-move. It is not a valid
// input symbol.
const Epsilon = ""

// FATransition is a single edge in a finite automaton: an input symbol and
// the state it leads to.
type FATransition struct {
	input string
	next  string
}

func (t FATransition) String() string {
	inp := t.input
	if inp == "" {
		inp = "ε"
	}
	return fmt.Sprintf("=(%s)=> %s", inp, t.next)
}

// Input is the transition's input symbol label (Epsilon for an ε-move).
func (t FATransition) Input() string { return t.input }

// To is the name of the state the transition leads to.
func (t FATransition) To() string { return t.next }

// DFAState is a single state of a DFA, carrying a caller-supplied value of
// type E (typically the set of lex/parse items the state represents).
type DFAState[E any] struct {
	ordering    uint64
	name        string
	value       E
	transitions map[string]FATransition
	accepting   bool
}

func (ns DFAState[E]) Copy() DFAState[E] {
	copied := DFAState[E]{
		ordering:    ns.ordering,
		name:        ns.name,
		value:       ns.value,
		accepting:   ns.accepting,
		transitions: make(map[string]FATransition),
	}
	for k := range ns.transitions {
		copied.transitions[k] = ns.transitions[k]
	}
	return copied
}

func (ns DFAState[E]) String() string {
	var moves strings.Builder

	inputs := util.OrderedKeys(ns.transitions)

	for i, input := range inputs {
		moves.WriteString(ns.transitions[input].String())
		if i+1 < len(inputs) {
			moves.WriteString(", ")
		}
	}

	str := fmt.Sprintf("(%s [%s])", ns.name, moves.String())

	if ns.accepting {
		str = "(" + str + ")"
	}

	return str
}

// NFAState is a single state of an NFA; unlike DFAState, a given input
// symbol may lead to more than one next state (or none).
type NFAState[E any] struct {
	name        string
	value       E
	transitions map[string][]FATransition
	accepting   bool
}

func (ns NFAState[E]) Copy() NFAState[E] {
	copied := NFAState[E]{
		name:      ns.name,
		value:     ns.value,
		accepting: ns.accepting,
	}
	copied.transitions = make(map[string][]FATransition)
	for k := range ns.transitions {
		copiedTrans := make([]FATransition, len(ns.transitions[k]))
		copy(copiedTrans, ns.transitions[k])
		copied.transitions[k] = copiedTrans
	}
	return copied
}

func (ns NFAState[E]) String() string {
	var moves strings.Builder

	inputs := util.OrderedKeys(ns.transitions)

	for i, input := range inputs {
		var tStrings []string

		for _, t := range ns.transitions[input] {
			tStrings = append(tStrings, t.String())
		}

		sort.Strings(tStrings)

		for tIdx, t := range tStrings {
			moves.WriteString(t)
			if tIdx+1 < len(tStrings) || i+1 < len(inputs) {
				moves.WriteString(", ")
			}
		}
	}

	str := fmt.Sprintf("(%s [%s])", ns.name, moves.String())

	if ns.accepting {
		str = "(" + str + ")"
	}

	return str
}
