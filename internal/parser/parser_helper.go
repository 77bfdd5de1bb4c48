package parser

import (
	"panoptes/internal/ir"
	"panoptes/internal/lexer"
)

// fill ensures at least n tokens are buffered. After EOF or a lexical error
// the buffer is padded with EOF so lookahead never reaches the stream again.
func (p *Parser) fill(n int) {
	for len(p.buf) < n {
		if len(p.buf) > 0 && p.buf[len(p.buf)-1].Kind == lexer.EOF {
			p.buf = append(p.buf, p.buf[len(p.buf)-1])
			continue
		}
		tok, err := p.stream.Next()
		if err != nil {
			p.fail(err)
			tok = lexer.Token{Kind: lexer.EOF, Pos: p.prev.Pos}
		}
		p.buf = append(p.buf, tok)
	}
}

func (p *Parser) peek() lexer.Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(k int) lexer.Token {
	p.fill(k + 1)
	return p.buf[k]
}

func (p *Parser) previous() lexer.Token {
	return p.prev
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if tok.Kind != lexer.EOF {
		p.buf = p.buf[1:]
	}
	p.prev = tok
	return tok
}

func (p *Parser) isAtEnd() bool {
	return p.err != nil || p.peek().Kind == lexer.EOF
}

// check reports whether the current token is the punctuation or operator text.
func (p *Parser) check(text string) bool {
	return p.err == nil && p.peek().Is(text)
}

func (p *Parser) checkKind(kind lexer.Kind) bool {
	return p.err == nil && p.peek().Kind == kind
}

func (p *Parser) checkDirective(names ...string) bool {
	if !p.checkKind(lexer.Directive) {
		return false
	}
	text := p.peek().Text
	for _, n := range names {
		if text == n {
			return true
		}
	}
	return false
}

func (p *Parser) match(texts ...string) bool {
	for _, text := range texts {
		if p.check(text) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(text string) lexer.Token {
	if p.check(text) {
		return p.advance()
	}
	p.errorAtCurrent("'" + text + "'")
	return p.peek()
}

func (p *Parser) consumeKind(kind lexer.Kind, expected string) lexer.Token {
	if p.checkKind(kind) {
		return p.advance()
	}
	p.errorAtCurrent(expected)
	return p.peek()
}

func (p *Parser) consumeName(expected string) lexer.Token {
	if p.err == nil && p.peek().IsName() {
		return p.advance()
	}
	p.errorAtCurrent(expected)
	return p.peek()
}

// adjacent reports whether the current token starts right where the
// previous one ended, as modifiers do in "ld.global.f32".
func (p *Parser) adjacent() bool {
	return p.peek().Pos.Offset == p.prev.End()
}

// fail keeps the first error; parsing stops at the next check.
func (p *Parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *Parser) errorAtCurrent(expected string) {
	p.fail(&SyntaxError{Source: p.stream.Name(), Expected: expected, Found: p.peek()})
}

func makePos(tok lexer.Token) ir.Pos {
	return ir.Pos{Line: tok.Pos.Line, Column: tok.Pos.Column}
}
