package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// SyntaxError describes where and why an expression failed to compile.
type SyntaxError struct {
	Expr    string
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filter %q: %s at position %d", e.Expr, e.Message, e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokPredicate
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokAnd
	tokOr
	tokNot
	tokIn
	tokContains
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Expr: l.src, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch c {
	case '(':
		l.pos++
		return token{kind: tokLParen, pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, pos: start}, nil
	case '[':
		l.pos++
		return token{kind: tokLBracket, pos: start}, nil
	case ']':
		l.pos++
		return token{kind: tokRBracket, pos: start}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, pos: start}, nil
	case '=':
		if strings.HasPrefix(l.src[l.pos:], "==") {
			l.pos += 2
			return token{kind: tokEq, pos: start}, nil
		}
		return token{}, l.errorf(start, "unexpected '=' (use '==')")
	case '!':
		if strings.HasPrefix(l.src[l.pos:], "!=") {
			l.pos += 2
			return token{kind: tokNeq, pos: start}, nil
		}
		l.pos++
		return token{kind: tokNot, pos: start}, nil
	case '<':
		if strings.HasPrefix(l.src[l.pos:], "<=") {
			l.pos += 2
			return token{kind: tokLte, pos: start}, nil
		}
		l.pos++
		return token{kind: tokLt, pos: start}, nil
	case '>':
		if strings.HasPrefix(l.src[l.pos:], ">=") {
			l.pos += 2
			return token{kind: tokGte, pos: start}, nil
		}
		l.pos++
		return token{kind: tokGt, pos: start}, nil
	case '&':
		if strings.HasPrefix(l.src[l.pos:], "&&") {
			l.pos += 2
			return token{kind: tokAnd, pos: start}, nil
		}
		return token{}, l.errorf(start, "unexpected '&' (use '&&')")
	case '|':
		if strings.HasPrefix(l.src[l.pos:], "||") {
			l.pos += 2
			return token{kind: tokOr, pos: start}, nil
		}
		return token{}, l.errorf(start, "unexpected '|' (use '||')")
	case '\'', '"':
		return l.lexString(c)
	case '@':
		l.pos++
		name := l.lexIdentText()
		if name == "" {
			return token{}, l.errorf(start, "expected predicate name after '@'")
		}
		return token{kind: tokPredicate, text: name, pos: start}, nil
	}

	if c == '-' || c == '+' || (c >= '0' && c <= '9') {
		return l.lexNumber()
	}

	if isIdentStart(rune(c)) {
		text := l.lexIdentText()
		switch text {
		case "and":
			return token{kind: tokAnd, pos: start}, nil
		case "or":
			return token{kind: tokOr, pos: start}, nil
		case "not":
			return token{kind: tokNot, pos: start}, nil
		case "in":
			return token{kind: tokIn, pos: start}, nil
		case "contains":
			return token{kind: tokContains, pos: start}, nil
		}
		return token{kind: tokIdent, text: text, pos: start}, nil
	}

	return token{}, l.errorf(start, "unexpected character %q", string(c))
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, l.errorf(start, "unterminated string")
			}
			l.pos++
			switch esc := l.src[l.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(esc)
			default:
				return token{}, l.errorf(l.pos, "unknown escape %q", string(esc))
			}
			l.pos++
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, l.errorf(start, "unterminated string")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' || l.src[l.pos] == '+' {
		l.pos++
	}
	digits := 0
	for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
		if l.src[l.pos] != '.' {
			digits++
		}
		l.pos++
	}
	text := l.src[start:l.pos]
	if digits == 0 {
		return token{}, l.errorf(start, "malformed number %q", text)
	}
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return token{}, l.errorf(start, "malformed number %q", text)
	}
	return token{kind: tokNumber, text: text, pos: start}, nil
}

func (l *lexer) lexIdentText() string {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	return l.src[start:l.pos]
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// --- parser ---

type parser struct {
	lex *lexer
	tok token
}

func newParser(src string) *parser {
	return &parser{lex: &lexer{src: src}}
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Expr: p.lex.src, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parse() (node, error) {
	if strings.TrimSpace(p.lex.src) == "" {
		return nil, p.errorf(0, "empty expression")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf(p.tok.pos, "unexpected trailing input")
	}
	return expr, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.tok.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	var op cmpOp
	switch p.tok.kind {
	case tokEq:
		op = opEq
	case tokNeq:
		op = opNeq
	case tokLt:
		op = opLt
	case tokLte:
		op = opLte
	case tokGt:
		op = opGt
	case tokGte:
		op = opGte
	case tokIn:
		op = opIn
	case tokContains:
		op = opContains
	case tokNot:
		// "x not in list"
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIn {
			return nil, p.errorf(p.tok.pos, "expected 'in' after 'not'")
		}
		op = opNotIn
	default:
		return left, nil
	}

	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return cmpNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (node, error) {
	switch p.tok.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf(p.tok.pos, "expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr, nil

	case tokLBracket:
		return p.parseList()

	case tokString:
		n := literalNode{value: p.tok.text}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil

	case tokNumber:
		f, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, p.errorf(p.tok.pos, "malformed number %q", p.tok.text)
		}
		n := literalNode{value: f}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil

	case tokPredicate:
		name := p.tok.text
		fn, ok := Lookup(name)
		if !ok {
			return nil, p.errorf(p.tok.pos, "unknown predicate @%s (registered: %s)", name, strings.Join(Names(), ", "))
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return predicateNode{name: name, fn: fn}, nil

	case tokIdent:
		var n node
		switch p.tok.text {
		case "true":
			n = literalNode{value: true}
		case "false":
			n = literalNode{value: false}
		case "null":
			n = literalNode{value: nil}
		default:
			n = fieldNode{path: strings.Split(p.tok.text, ".")}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	}

	return nil, p.errorf(p.tok.pos, "expected a value, field, or '('")
}

func (p *parser) parseList() (node, error) {
	if err := p.advance(); err != nil { // consume '['
		return nil, err
	}
	var elems []node
	for p.tok.kind != tokRBracket {
		elem, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.tok.kind != tokRBracket {
			return nil, p.errorf(p.tok.pos, "expected ',' or ']' in list")
		}
	}
	if err := p.advance(); err != nil { // consume ']'
		return nil, err
	}
	return listNode{elems: elems}, nil
}
