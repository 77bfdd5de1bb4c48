package parser

import (
	"panoptes/internal/ir"
	"panoptes/internal/lexer"
)

var opaqueTypes = map[string]bool{
	".pred":       true,
	".texref":     true,
	".samplerref": true,
	".surfref":    true,
}

func isType(directive string) bool {
	return ir.TypeWidth(directive) > 0 || opaqueTypes[directive]
}

// parseQualifiers consumes every directive in front of a declared name and
// records what it learns about linkage, space, type, vector and alignment.
// The first state space wins, so ".param .u64 .ptr .global p" stays a param.
func (p *Parser) parseQualifiers() *ir.Variable {
	v := &ir.Variable{Pos: makePos(p.peek())}
	for p.checkKind(lexer.Directive) {
		tok := p.advance()
		v.Qualifiers = append(v.Qualifiers, tok.Text)
		switch {
		case linkageDirectives[tok.Text]:
			if v.Linkage == "" {
				v.Linkage = tok.Text
			}
		case tok.Text == ".align":
			n := p.consumeKind(lexer.Integer, "alignment")
			if p.err != nil {
				return v
			}
			v.Qualifiers = append(v.Qualifiers, n.Text)
			v.Align = p.parseInt(n)
		case tok.Text == ".v2":
			v.Vector = 2
		case tok.Text == ".v4":
			v.Vector = 4
		case tok.Text == ".v8":
			v.Vector = 8
		case isStateSpace(tok.Text):
			if v.Space == ir.SpaceNone {
				v.Space = ir.ParseSpace(tok.Text)
			}
		case isType(tok.Text):
			if v.Type == "" {
				v.Type = tok.Text
			}
		}
	}
	return v
}

// parseVariables parses a terminated declaration statement. A declaration
// that lists several names yields one variable per name.
func (p *Parser) parseVariables(moduleScope bool) []*ir.Variable {
	proto := p.parseQualifiers()
	if moduleScope && proto.Space == ir.SpaceNone {
		p.errorAtCurrent("state space")
		return nil
	}
	var vars []*ir.Variable
	for {
		v := *proto
		v.Qualifiers = append([]string(nil), proto.Qualifiers...)
		p.parseDeclarator(&v)
		if p.err != nil {
			return nil
		}
		vars = append(vars, &v)
		if !p.match(",") {
			break
		}
	}
	p.consume(";")
	return vars
}

// parseParam parses one parameter declaration inside a parameter list.
func (p *Parser) parseParam() *ir.Variable {
	v := p.parseQualifiers()
	if v.Space == ir.SpaceNone {
		p.errorAtCurrent("parameter state space")
		return nil
	}
	p.parseDeclarator(v)
	return v
}

// parseDeclarator parses name, %r<N> range, [N] extents and initializer.
func (p *Parser) parseDeclarator(v *ir.Variable) {
	var name lexer.Token
	if p.checkKind(lexer.Register) {
		name = p.advance()
	} else {
		name = p.consumeName("declared name")
	}
	if p.err != nil {
		return
	}
	v.Name = name.Text
	v.Pos = makePos(name)

	if p.check("<") {
		p.advance()
		v.Range = p.parseInt(p.consumeKind(lexer.Integer, "register count"))
		p.consume(">")
	}
	for p.match("[") {
		if p.match("]") {
			v.Extents = append(v.Extents, -1)
			continue
		}
		v.Extents = append(v.Extents, p.parseInt(p.consumeKind(lexer.Integer, "array extent")))
		p.consume("]")
	}
	if p.match("=") {
		v.Init = p.rawTokens(",", ";")
		if len(v.Init) == 0 {
			p.errorAtCurrent("initializer")
		}
	}
}

// rawTokens collects token texts until one of the stop texts at nesting
// depth zero. Unary minus is folded into the number it precedes.
func (p *Parser) rawTokens(stops ...string) []string {
	var out []string
	depth := 0
	for !p.isAtEnd() {
		tok := p.peek()
		if depth == 0 {
			for _, s := range stops {
				if tok.Is(s) {
					return out
				}
			}
		}
		switch {
		case tok.Is("{"), tok.Is("("), tok.Is("["):
			depth++
		case tok.Is("}"), tok.Is(")"), tok.Is("]"):
			depth--
		}
		p.advance()
		if tok.Is("-") && p.isNumber() && p.adjacent() {
			out = append(out, "-"+p.advance().Text)
			continue
		}
		out = append(out, tok.Text)
	}
	return out
}

func (p *Parser) isNumber() bool {
	return p.checkKind(lexer.Integer) || p.checkKind(lexer.Float)
}

// parseOpaqueDirective keeps a directive the IR does not model. Its
// arguments run to the end of the line, to a ';', or to the brace that
// closes a block opened on that line.
func (p *Parser) parseOpaqueDirective() *ir.Directive {
	tok := p.advance()
	d := &ir.Directive{Name: tok.Text, Pos: makePos(tok)}
	depth := 0
	for !p.isAtEnd() {
		next := p.peek()
		if depth == 0 {
			if next.Is(";") {
				p.advance()
				d.Terminated = true
				break
			}
			if next.Pos.Line != p.previous().Pos.Line {
				break
			}
		}
		switch {
		case next.Is("{"):
			depth++
		case next.Is("}"):
			if depth == 0 {
				return d
			}
			depth--
		}
		d.Args = append(d.Args, p.advance().Text)
	}
	return d
}
