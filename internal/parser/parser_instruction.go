package parser

import (
	"strconv"

	"panoptes/internal/ir"
	"panoptes/internal/lexer"
)

func (p *Parser) parseInstruction() *ir.Instruction {
	inst := &ir.Instruction{Pos: makePos(p.peek())}
	if p.match("@") {
		inst.Guard = &ir.Predicate{Negated: p.match("!")}
		inst.Guard.Register = p.consumeKind(lexer.Register, "predicate register").Text
	}
	op := p.consumeName("opcode")
	if p.err != nil {
		return nil
	}
	inst.Opcode = op.Text
	inst.Modifiers = p.parseModifiers()

	if !p.check(";") && !p.check("}") {
		inst.Operands = append(inst.Operands, p.parseOperand())
		for p.match(",") {
			inst.Operands = append(inst.Operands, p.parseOperand())
		}
	}
	p.consume(";")
	if p.err != nil {
		return nil
	}
	return inst
}

// parseModifiers collects the dotted suffixes written directly against the
// opcode. A scope qualifier such as ".shared::cta" is kept as one modifier.
func (p *Parser) parseModifiers() []string {
	var mods []string
	for p.checkKind(lexer.Directive) && p.adjacent() {
		mod := p.advance().Text
		for p.check(":") && p.adjacent() && p.peekAt(1).Is(":") && p.peekAt(2).IsName() {
			p.advance()
			p.advance()
			mod += "::" + p.advance().Text
		}
		mods = append(mods, mod)
	}
	return mods
}

func (p *Parser) parseOperand() ir.Operand {
	tok := p.peek()
	switch {
	case tok.Is("!"):
		p.advance()
		reg := p.consumeKind(lexer.Register, "predicate register")
		return ir.Operand{Kind: ir.OperandRegister, Name: reg.Text, Negated: true}
	case tok.Is("-"):
		p.advance()
		if !p.isNumber() {
			p.errorAtCurrent("number")
			return ir.Operand{}
		}
		return ir.Imm("-" + p.advance().Text)
	case tok.Kind == lexer.Register:
		p.advance()
		return ir.Reg(tok.Text)
	case tok.Kind == lexer.Integer, tok.Kind == lexer.Float:
		p.advance()
		return ir.Imm(tok.Text)
	case tok.IsName():
		p.advance()
		sym := ir.Sym(tok.Text)
		sym.Offset = p.parseOffset()
		return sym
	case tok.Is("["):
		return p.parseAddress()
	case tok.Is("{"):
		p.advance()
		return ir.Operand{Kind: ir.OperandVector, Elems: p.parseOperandList("}")}
	case tok.Is("("):
		p.advance()
		return ir.List(p.parseOperandList(")")...)
	}
	p.errorAtCurrent("operand")
	return ir.Operand{}
}

func (p *Parser) parseOperandList(closing string) []ir.Operand {
	var elems []ir.Operand
	if p.match(closing) {
		return elems
	}
	elems = append(elems, p.parseOperand())
	for p.match(",") {
		elems = append(elems, p.parseOperand())
	}
	p.consume(closing)
	return elems
}

// parseAddress handles [base], [base+off], [base+-off], [base-off] and the
// tuple form [tex, {coords}] used by texture and surface instructions.
func (p *Parser) parseAddress() ir.Operand {
	p.consume("[")
	first := p.parseOperand()
	if p.check(",") {
		elems := []ir.Operand{first}
		for p.match(",") {
			elems = append(elems, p.parseOperand())
		}
		p.consume("]")
		return ir.Operand{Kind: ir.OperandAddress, Elems: elems}
	}
	off := first.Offset
	if first.Kind == ir.OperandSymbol {
		first.Offset = 0
	} else {
		off = p.parseOffset()
	}
	p.consume("]")
	return ir.Addr(first, off)
}

// parseOffset reads an optional "+N", "+-N" or "-N" displacement.
func (p *Parser) parseOffset() int64 {
	sign := int64(1)
	switch {
	case p.match("+"):
		if p.match("-") {
			sign = -1
		}
	case p.match("-"):
		sign = -1
	default:
		return 0
	}
	tok := p.consumeKind(lexer.Integer, "offset")
	if p.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(trimIntSuffix(tok.Text), 0, 64)
	if err != nil {
		p.fail(&SyntaxError{Source: p.stream.Name(), Expected: "offset", Found: tok})
		return 0
	}
	return sign * n
}
