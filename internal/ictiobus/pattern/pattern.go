// Package pattern compiles a regular-expression token definition into a
// rule.Rule tree. It finishes the job the teacher's lex/regex.go left as a
// stub ("no part of ictiobus is self-hosted, and that includes the lexer")
// by giving the grammar compiler its own regex-to-rule-tree front end,
// instead of reaching for the pre-built regex/NFA processors the teacher's
// comment says it used instead.
package pattern

import (
	"unicode/utf8"

	"github.com/dekarrin/ictiobus/internal/ictiobus/icterrors"
	"github.com/dekarrin/ictiobus/internal/ictiobus/rule"
)

// Parse compiles a regular expression string into a rule.Rule tree. On the
// first syntactic error it short-circuits, returning a Blank placeholder
// paired with an InvalidRegex CompileError; no partial rule is returned on
// error.
func Parse(input string) (rule.Rule, icterrors.CompileError) {
	p := &parser{input: input}
	p.advance()
	r, err := p.parseRule(false)
	if !err.None() {
		return &rule.Blank{}, err
	}
	return r, icterrors.CompileError{}
}

type parser struct {
	input     string
	pos       int  // byte offset of the rune *after* cur
	cur       rune // current lookahead code point, 0 at end of input
	curIsZero bool // true once advance() has run off the end
}

func (p *parser) advance() {
	if p.pos >= len(p.input) {
		p.cur = 0
		p.curIsZero = true
		return
	}
	r, size := utf8.DecodeRuneInString(p.input[p.pos:])
	p.cur = r
	p.pos += size
	p.curIsZero = r == 0
}

func (p *parser) hasMore() bool {
	return !p.curIsZero
}

func (p *parser) peek() rune {
	return p.cur
}

func (p *parser) errorf(msg string) (rule.Rule, icterrors.CompileError) {
	return &rule.Blank{}, icterrors.New(icterrors.KindInvalidRegex, "%s", msg)
}

// parseRule := term ('|' term)*
func (p *parser) parseRule(nested bool) (rule.Rule, icterrors.CompileError) {
	var choices []rule.Rule
	for {
		if len(choices) > 0 {
			if p.peek() == '|' {
				p.advance()
			} else {
				break
			}
		}
		t, err := p.parseTerm(nested)
		if !err.None() {
			return &rule.Blank{}, err
		}
		choices = append(choices, t)
		if !p.hasMore() {
			break
		}
	}
	return rule.Choice{Children: choices}.Build(), icterrors.CompileError{}
}

// parseTerm := factor*
func (p *parser) parseTerm(nested bool) (rule.Rule, icterrors.CompileError) {
	var result rule.Rule = &rule.Blank{}
	for p.hasMore() {
		if p.peek() == '|' {
			break
		}
		if nested && p.peek() == ')' {
			break
		}
		f, err := p.parseFactor()
		if !err.None() {
			return &rule.Blank{}, err
		}
		result = rule.Seq{Left: result, Right: f}.Build()
		if !p.hasMore() {
			break
		}
	}
	return result, icterrors.CompileError{}
}

// parseFactor := atom ('*' | '+' | '?')?
func (p *parser) parseFactor() (rule.Rule, icterrors.CompileError) {
	result, err := p.parseAtom()
	if !err.None() {
		return &rule.Blank{}, err
	}
	if p.hasMore() {
		switch p.peek() {
		case '*':
			p.advance()
			result = rule.ZeroOrMore(result)
		case '+':
			p.advance()
			result = &rule.Repeat{Inner: result}
		case '?':
			p.advance()
			result = rule.Optional(result)
		}
	}
	return result, icterrors.CompileError{}
}

// parseAtom := '(' rule ')' | '[' charset ']' | '.' | single_char
func (p *parser) parseAtom() (rule.Rule, icterrors.CompileError) {
	switch p.peek() {
	case '(':
		p.advance()
		r, err := p.parseRule(true)
		if !err.None() {
			return &rule.Blank{}, err
		}
		if p.peek() != ')' {
			return p.errorf("unmatched open paren")
		}
		p.advance()
		return r, icterrors.CompileError{}
	case '[':
		p.advance()
		cs, err := p.parseCharSet()
		if !err.None() {
			return &rule.Blank{}, err
		}
		if p.peek() != ']' {
			return p.errorf("unmatched open square bracket")
		}
		p.advance()
		return cs, icterrors.CompileError{}
	case ')':
		return p.errorf("unmatched close paren")
	case ']':
		return p.errorf("unmatched close square bracket")
	case '.':
		p.advance()
		return rule.IncludeAll().Exclude('\n'), icterrors.CompileError{}
	default:
		return p.parseSingleChar()
	}
}

// charset := '^'? single_char*
func (p *parser) parseCharSet() (rule.Rule, icterrors.CompileError) {
	result := rule.NewCharacterSet()
	affirmative := true
	if p.peek() == '^' {
		p.advance()
		affirmative = false
		result = rule.IncludeAll()
	}

	for p.hasMore() && p.peek() != ']' {
		cs, err := p.parseSingleCharSet()
		if !err.None() {
			return &rule.Blank{}, err
		}
		if affirmative {
			result.AddSet(cs)
		} else {
			result.RemoveSet(cs)
		}
	}

	return result, icterrors.CompileError{}
}

// single_char := '\\' esc | codepoint ('-' codepoint)?
// parseSingleChar wraps parseSingleCharSet's result as a Rule for use
// outside a charset ([...]) context.
func (p *parser) parseSingleChar() (rule.Rule, icterrors.CompileError) {
	cs, err := p.parseSingleCharSet()
	if !err.None() {
		return &rule.Blank{}, err
	}
	return cs, icterrors.CompileError{}
}

func (p *parser) parseSingleCharSet() (*rule.CharacterSet, icterrors.CompileError) {
	if p.peek() == '\\' {
		p.advance()
		esc := p.peek()
		p.advance()
		return escapedCharSet(esc), icterrors.CompileError{}
	}

	first := p.peek()
	p.advance()
	if p.peek() == '-' {
		p.advance()
		last := p.peek()
		p.advance()
		return rule.NewCharacterSet().IncludeRange(first, last), icterrors.CompileError{}
	}
	return rule.NewCharacterSet().Include(first), icterrors.CompileError{}
}

// escapedCharSet implements the escape-class table: \a letters, \w word
// chars, \W complement, \d digits, \D complement, \s whitespace, \S
// complement, \t \n \r literal control characters, any other escape is the
// literal character.
func escapedCharSet(value rune) *rule.CharacterSet {
	switch value {
	case 'a':
		return rule.NewCharacterSet().IncludeRange('a', 'z').IncludeRange('A', 'Z')
	case 'w':
		return rule.NewCharacterSet().
			IncludeRange('a', 'z').
			IncludeRange('A', 'Z').
			IncludeRange('0', '9').
			Include('_')
	case 'W':
		return rule.IncludeAll().
			Exclude2('a', 'z').
			Exclude2('A', 'Z').
			Exclude2('0', '9').
			Exclude('_')
	case 'd':
		return rule.NewCharacterSet().IncludeRange('0', '9')
	case 'D':
		return rule.IncludeAll().Exclude2('0', '9')
	case 's':
		return rule.NewCharacterSet().Include(' ').Include('\t').Include('\n').Include('\r')
	case 'S':
		return rule.IncludeAll().Exclude(' ').Exclude('\t').Exclude('\n').Exclude('\r')
	case 't':
		return rule.NewCharacterSet().Include('\t')
	case 'n':
		return rule.NewCharacterSet().Include('\n')
	case 'r':
		return rule.NewCharacterSet().Include('\r')
	default:
		return rule.NewCharacterSet().Include(value)
	}
}
