package parser

import (
	"panoptes/internal/ir"
	"panoptes/internal/lexer"
)

func (p *Parser) parseFunction() *ir.Function {
	f := &ir.Function{Pos: makePos(p.peek())}
	for p.checkKind(lexer.Directive) && linkageDirectives[p.peek().Text] {
		f.Linkage = p.advance().Text
	}
	switch {
	case p.checkDirective(".entry"):
		f.Kind = ir.FunctionEntry
	case p.checkDirective(".func"):
		f.Kind = ir.FunctionFunc
	default:
		p.errorAtCurrent("'.entry' or '.func'")
		return nil
	}
	p.advance()

	if f.Kind == ir.FunctionFunc && p.check("(") {
		f.Returns = p.parseParamList()
	}
	f.Name = p.consumeName("function name").Text
	if p.check("(") {
		f.Params = p.parseParamList()
	}

	for p.checkKind(lexer.Directive) {
		f.Directives = append(f.Directives, p.parsePerformanceDirective())
	}

	if p.match(";") {
		f.Prototype = true
		return f
	}
	p.consume("{")
	f.Body = p.parseBody()
	p.consume("}")
	if p.err != nil {
		return nil
	}
	return f
}

func (p *Parser) parseParamList() []*ir.Variable {
	p.consume("(")
	var params []*ir.Variable
	if p.match(")") {
		return params
	}
	for !p.isAtEnd() {
		if v := p.parseParam(); v != nil {
			params = append(params, v)
		}
		if !p.match(",") {
			break
		}
	}
	p.consume(")")
	return params
}

// parsePerformanceDirective reads .maxntid 256, 1, 1 and friends between a
// function header and its body.
func (p *Parser) parsePerformanceDirective() *ir.Directive {
	tok := p.advance()
	d := &ir.Directive{Name: tok.Text, Pos: makePos(tok)}
	for !p.isAtEnd() && !p.checkKind(lexer.Directive) && !p.check("{") && !p.check(";") {
		d.Args = append(d.Args, p.advance().Text)
	}
	return d
}

// parseBody parses statements up to, not including, the closing brace.
func (p *Parser) parseBody() []ir.Statement {
	var body []ir.Statement
	for !p.isAtEnd() && !p.check("}") {
		body = append(body, p.parseStatement()...)
	}
	return body
}

func (p *Parser) parseStatement() []ir.Statement {
	tok := p.peek()
	switch {
	case tok.Is("{"):
		p.advance()
		b := &ir.Block{Pos: makePos(tok), Body: p.parseBody()}
		p.consume("}")
		return []ir.Statement{b}
	case tok.Kind == lexer.Directive:
		if p.startsVariable() {
			vars := p.parseVariables(false)
			out := make([]ir.Statement, len(vars))
			for i, v := range vars {
				out[i] = v
			}
			return out
		}
		return []ir.Statement{p.parseOpaqueDirective()}
	case tok.IsName() && p.peekAt(1).Is(":"):
		p.advance()
		p.advance()
		return []ir.Statement{&ir.Label{Name: tok.Text, Pos: makePos(tok)}}
	case tok.Is("@"), tok.IsName():
		if inst := p.parseInstruction(); inst != nil {
			return []ir.Statement{inst}
		}
		return nil
	}
	p.errorAtCurrent("statement")
	return nil
}
