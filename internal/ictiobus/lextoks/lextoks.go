// Package lextoks holds the LexicalGrammar half of a prepared grammar: the
// token rules the lex table builder consumes.
package lextoks

import (
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
	"github.com/dekarrin/ictiobus/internal/ictiobus/symbol"
)

// TokenRule associates a token symbol with the rule tree that recognizes it
// and the precedence used to break ties on ambiguous matches (spec.md
// §4.5's accept-action precedence/longest-match rules).
type TokenRule struct {
	Symbol     symbol.Symbol
	Rule       rule.Rule
	Precedence int
	IsString   bool

	// MainSubrule, when set, names the alternative within Rule that is the
	// token's canonical spelling for error messages, mirroring
	// tree-sitter's is_main_token distinction between a token's full rule
	// and its single representative subrule.
	MainSubrule rule.Rule
}

// Grammar is the LexicalGrammar: the token rules and external-token
// declarations the lex table builder consumes.
type Grammar struct {
	Tokens []TokenRule

	// Ubiquitous lists the extra/ubiquitous tokens (commonly whitespace or
	// comments) that may appear between any two structural tokens.
	Ubiquitous []symbol.Symbol
}

// TokenFor returns the TokenRule for sym and whether it was found.
func (g Grammar) TokenFor(sym symbol.Symbol) (TokenRule, bool) {
	for _, t := range g.Tokens {
		if t.Symbol == sym {
			return t, true
		}
	}
	return TokenRule{}, false
}

// IsUbiquitous reports whether sym is one of the grammar's extra tokens.
func (g Grammar) IsUbiquitous(sym symbol.Symbol) bool {
	for _, s := range g.Ubiquitous {
		if s == sym {
			return true
		}
	}
	return false
}
