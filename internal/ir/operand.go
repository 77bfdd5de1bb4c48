package ir

import (
	"strconv"
	"strings"
)

// OperandKind discriminates the Operand tagged union.
type OperandKind uint8

const (
	OperandRegister  OperandKind = iota // %r1, !%p
	OperandImmediate                    // 42, -1, 0f3F800000
	OperandSymbol                       // p_dst, $L_done, sym+4
	OperandAddress                      // [%rd1+8], [sym], [0x100]
	OperandVector                       // {%f1, %f2}
	OperandList                         // (param0, param1) in call
)

// Operand is a tagged union; which fields are meaningful depends on Kind.
// No operand owns memory: registers and symbols are referenced by name.
type Operand struct {
	Kind OperandKind

	// Register and symbol name.
	Name string
	// Negated marks !%p predicate operands.
	Negated bool
	// Value is the literal text of an immediate.
	Value string
	// Offset applies to symbols (sym+4) and addresses ([base+4]).
	Offset int64
	// Base is the base of an address: a register, a symbol, an immediate,
	// or nil for texture/surface tuples which use Elems instead.
	Base *Operand
	// Elems holds vector, list and tuple-address members.
	Elems []Operand
}

func Reg(name string) Operand { return Operand{Kind: OperandRegister, Name: name} }

func Imm(value string) Operand { return Operand{Kind: OperandImmediate, Value: value} }

func ImmInt(v int64) Operand { return Imm(strconv.FormatInt(v, 10)) }

func Sym(name string) Operand { return Operand{Kind: OperandSymbol, Name: name} }

func Addr(base Operand, offset int64) Operand {
	return Operand{Kind: OperandAddress, Base: &base, Offset: offset}
}

func List(elems ...Operand) Operand { return Operand{Kind: OperandList, Elems: elems} }

func (o Operand) String() string {
	var b strings.Builder
	o.write(&b)
	return b.String()
}

func (o Operand) write(b *strings.Builder) {
	switch o.Kind {
	case OperandRegister:
		if o.Negated {
			b.WriteByte('!')
		}
		b.WriteString(o.Name)
	case OperandImmediate:
		b.WriteString(o.Value)
	case OperandSymbol:
		b.WriteString(o.Name)
		writeOffset(b, o.Offset)
	case OperandAddress:
		b.WriteByte('[')
		if o.Base != nil {
			o.Base.write(b)
			writeOffset(b, o.Offset)
		} else {
			writeJoined(b, o.Elems)
		}
		b.WriteByte(']')
	case OperandVector:
		b.WriteByte('{')
		writeJoined(b, o.Elems)
		b.WriteByte('}')
	case OperandList:
		b.WriteByte('(')
		writeJoined(b, o.Elems)
		b.WriteByte(')')
	}
}

// PTX spells negative displacements as "+-4".
func writeOffset(b *strings.Builder, off int64) {
	if off != 0 {
		b.WriteByte('+')
		b.WriteString(strconv.FormatInt(off, 10))
	}
}

func writeJoined(b *strings.Builder, ops []Operand) {
	for i, e := range ops {
		if i > 0 {
			b.WriteString(", ")
		}
		e.write(b)
	}
}

// Equal reports structural equality.
func (o Operand) Equal(other Operand) bool {
	if o.Kind != other.Kind || o.Name != other.Name || o.Negated != other.Negated ||
		o.Value != other.Value || o.Offset != other.Offset || len(o.Elems) != len(other.Elems) {
		return false
	}
	if (o.Base == nil) != (other.Base == nil) {
		return false
	}
	if o.Base != nil && !o.Base.Equal(*other.Base) {
		return false
	}
	for i := range o.Elems {
		if !o.Elems[i].Equal(other.Elems[i]) {
			return false
		}
	}
	return true
}

func (o Operand) clone() Operand {
	c := o
	if o.Base != nil {
		base := o.Base.clone()
		c.Base = &base
	}
	if o.Elems != nil {
		c.Elems = make([]Operand, len(o.Elems))
		for i, e := range o.Elems {
			c.Elems[i] = e.clone()
		}
	}
	return c
}
