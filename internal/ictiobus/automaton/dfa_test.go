package automaton

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_DFA_AddState_AddTransition(t *testing.T) {
	assert := assert.New(t)

	dfa := &DFA[string]{}
	dfa.AddState("0", false)
	dfa.AddState("1", true)
	dfa.AddTransition("0", "a", "1")
	dfa.Start = "0"

	assert.Equal("1", dfa.Next("0", "a"))
	assert.Equal("", dfa.Next("0", "b"))
	assert.True(dfa.IsAccepting("1"))
	assert.False(dfa.IsAccepting("0"))
	assert.NoError(dfa.Validate())
}

func Test_DFA_Validate_catches_unreachable_state(t *testing.T) {
	assert := assert.New(t)

	dfa := &DFA[string]{}
	dfa.AddState("0", false)
	dfa.AddState("1", true)
	dfa.Start = "0"

	assert.Error(dfa.Validate())
}

func Test_DFA_NumberStates_keeps_start_at_zero(t *testing.T) {
	assert := assert.New(t)

	dfa := &DFA[string]{}
	dfa.AddState("start", false)
	dfa.AddState("middle", false)
	dfa.AddState("end", true)
	dfa.AddTransition("start", "a", "middle")
	dfa.AddTransition("middle", "b", "end")
	dfa.Start = "start"

	dfa.NumberStates()

	assert.Equal("0", dfa.Start)
	assert.True(dfa.States().Has("0"))
	assert.True(dfa.States().Has("1"))
	assert.True(dfa.States().Has("2"))
	assert.Equal("2", dfa.Next("0", "a"))
}

// Test_NFA_ToDFA_subset_construction builds a small NFA with a
// non-deterministic choice reachable via an ε-move and checks that subset
// construction collapses it into an equivalent DFA.
func Test_NFA_ToDFA_subset_construction(t *testing.T) {
	assert := assert.New(t)

	nfa := &NFA[string]{}
	nfa.AddState("0", false)
	nfa.AddState("1", false)
	nfa.AddState("2", true)
	nfa.AddTransition("0", Epsilon, "1")
	nfa.AddTransition("0", "a", "2")
	nfa.AddTransition("1", "a", "2")
	nfa.Start = "0"

	dfa := nfa.ToDFA()

	startClosure := nfa.EpsilonClosure("0")
	startName := startClosure.StringOrdered()

	assert.True(dfa.IsAccepting(dfa.Next(startName, "a")))
}

func Test_NFA_EpsilonClosure(t *testing.T) {
	assert := assert.New(t)

	nfa := &NFA[string]{}
	nfa.AddState("0", false)
	nfa.AddState("1", false)
	nfa.AddState("2", false)
	nfa.AddTransition("0", Epsilon, "1")
	nfa.AddTransition("1", Epsilon, "2")
	nfa.Start = "0"

	closure := nfa.EpsilonClosure("0")

	assert.True(closure.Has("0"))
	assert.True(closure.Has("1"))
	assert.True(closure.Has("2"))
}
