package parser

import (
	"strconv"

	"panoptes/internal/ir"
	"panoptes/internal/lexer"
)

// Parser builds an ir.Module from a token stream by recursive descent.
// Parsing stops at the first error.
type Parser struct {
	stream *lexer.Scanner
	buf    []lexer.Token
	prev   lexer.Token
	err    error
}

// Parse parses PTX source text.
func Parse(name, source string) (*ir.Module, error) {
	return ParseStream(lexer.NewScanner(name, source))
}

// ParseStream parses the tokens of s from its current position. Lexical
// errors are returned unchanged.
func ParseStream(s *lexer.Scanner) (*ir.Module, error) {
	p := &Parser{stream: s}
	m := p.parseModule()
	if p.err != nil {
		return nil, p.err
	}
	return m, nil
}

func (p *Parser) parseModule() *ir.Module {
	m := &ir.Module{}
	for !p.isAtEnd() {
		switch {
		case p.checkDirective(".version"):
			p.advance()
			m.Version = p.parseVersion()
		case p.checkDirective(".target"):
			p.advance()
			m.Targets = p.parseTargets()
		case p.checkDirective(".address_size"):
			p.advance()
			tok := p.consumeKind(lexer.Integer, "address size")
			if p.err == nil {
				m.AddressSize = p.parseInt(tok)
			}
		case p.checkKind(lexer.Directive):
			if d := p.parseModuleDecl(); d != nil {
				m.Decls = append(m.Decls, d...)
			}
		default:
			p.errorAtCurrent("directive or declaration")
		}
	}
	return m
}

// parseVersion accepts "7.0" (a float token) or a bare major number.
func (p *Parser) parseVersion() string {
	if p.checkKind(lexer.Float) || p.checkKind(lexer.Integer) {
		return p.advance().Text
	}
	p.errorAtCurrent("version number")
	return ""
}

func (p *Parser) parseTargets() []string {
	targets := []string{p.consumeName("target name").Text}
	for p.match(",") {
		targets = append(targets, p.consumeName("target name").Text)
	}
	return targets
}

func (p *Parser) parseInt(tok lexer.Token) int {
	n, err := strconv.ParseInt(trimIntSuffix(tok.Text), 0, 64)
	if err != nil {
		p.fail(&SyntaxError{Source: p.stream.Name(), Expected: "integer", Found: tok})
		return 0
	}
	return int(n)
}

func trimIntSuffix(text string) string {
	if n := len(text); n > 0 && text[n-1] == 'U' {
		return text[:n-1]
	}
	return text
}

var linkageDirectives = map[string]bool{
	".visible": true,
	".extern":  true,
	".weak":    true,
	".common":  true,
}

// parseModuleDecl handles everything at module scope that starts with a
// directive other than the header ones.
func (p *Parser) parseModuleDecl() []ir.Decl {
	if p.startsFunction() {
		f := p.parseFunction()
		if f == nil {
			return nil
		}
		return []ir.Decl{f}
	}
	if p.startsVariable() {
		vars := p.parseVariables(true)
		decls := make([]ir.Decl, len(vars))
		for i, v := range vars {
			decls[i] = v
		}
		return decls
	}
	return []ir.Decl{p.parseOpaqueDirective()}
}

// startsFunction looks past linkage directives for .entry or .func.
func (p *Parser) startsFunction() bool {
	for k := 0; ; k++ {
		tok := p.peekAt(k)
		if tok.Kind != lexer.Directive {
			return false
		}
		if tok.Text == ".entry" || tok.Text == ".func" {
			return true
		}
		if !linkageDirectives[tok.Text] {
			return false
		}
	}
}

func (p *Parser) startsVariable() bool {
	for k := 0; ; k++ {
		tok := p.peekAt(k)
		if tok.Kind != lexer.Directive {
			return false
		}
		if tok.Text == ".align" || isStateSpace(tok.Text) {
			return true
		}
		if !linkageDirectives[tok.Text] {
			return false
		}
	}
}

func isStateSpace(directive string) bool {
	switch ir.ParseSpace(directive) {
	case ir.SpaceGlobal, ir.SpaceShared, ir.SpaceLocal, ir.SpaceParam, ir.SpaceConst, ir.SpaceReg, ir.SpaceTex:
		return true
	}
	return false
}
