package typekey

import (
	"fmt"
	"unicode"
)

// ParseError reports a malformed type key string.
type ParseError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid type key %q at offset %d: %s", e.Input, e.Offset, e.Msg)
}

// Parse reads a type key from its textual form.
//
// Grammar:
//
//	key    = param | ident [ open key { "," key } close ]
//	param  = "?" ident
//	open   = "<" | "("
//	ident  = letter { letter | digit | "_" | "." }
//
// Both bracket styles are accepted, so "Eq(Int, Int)" and "Eq<Int, Int>"
// yield the same key. Brackets must match.
func Parse(s string) (Key, error) {
	p := &parser{src: []rune(s), input: s}
	p.skipSpace()
	k, err := p.key()
	if err != nil {
		return Key{}, err
	}
	p.skipSpace()
	if !p.eof() {
		return Key{}, p.errorf("unexpected %q", p.peek())
	}
	return k, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level variables.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

type parser struct {
	src   []rune
	pos   int
	input string
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{Input: p.input, Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) key() (Key, error) {
	if p.peek() == '?' {
		p.pos++
		name, err := p.ident()
		if err != nil {
			return Key{}, err
		}
		return Param(name), nil
	}

	name, err := p.ident()
	if err != nil {
		return Key{}, err
	}
	p.skipSpace()

	var closer rune
	switch p.peek() {
	case '<':
		closer = '>'
	case '(':
		closer = ')'
	default:
		return Con(name), nil
	}
	p.pos++

	var args []Key
	for {
		p.skipSpace()
		arg, err := p.key()
		if err != nil {
			return Key{}, err
		}
		args = append(args, arg)
		p.skipSpace()

		switch p.peek() {
		case ',':
			p.pos++
			continue
		case closer:
			p.pos++
			return App(name, args...), nil
		case 0:
			return Key{}, p.errorf("missing %q", closer)
		default:
			return Key{}, p.errorf("expected ',' or %q, got %q", closer, p.peek())
		}
	}
}

func (p *parser) ident() (string, error) {
	start := p.pos
	if p.eof() || !unicode.IsLetter(p.peek()) {
		if p.eof() {
			return "", p.errorf("expected type name, got end of input")
		}
		return "", p.errorf("expected type name, got %q", p.peek())
	}
	for !p.eof() {
		r := p.peek()
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
			p.pos++
			continue
		}
		break
	}
	return string(p.src[start:p.pos]), nil
}
