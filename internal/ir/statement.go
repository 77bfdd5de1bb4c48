package ir

// StatementKind discriminates function-body statements.
type StatementKind uint8

const (
	StmtInstruction StatementKind = iota
	StmtLabel
	StmtDirective
	StmtVariable
	StmtBlock
)

func (k StatementKind) String() string {
	switch k {
	case StmtInstruction:
		return "instruction"
	case StmtLabel:
		return "label"
	case StmtDirective:
		return "directive"
	case StmtVariable:
		return "variable"
	case StmtBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Statement is one of *Instruction, *Label, *Directive, *Variable or *Block.
type Statement interface {
	Kind() StatementKind
	Position() Pos
}

type Label struct {
	Name string
	Pos  Pos
}

func (*Label) Kind() StatementKind { return StmtLabel }
func (l *Label) Position() Pos     { return l.Pos }

// Block is a nested { } scope. Declarations inside it are invisible outside.
type Block struct {
	Body      []Statement
	Generated bool
	Pos       Pos
}

func (*Block) Kind() StatementKind { return StmtBlock }
func (b *Block) Position() Pos     { return b.Pos }

// Predicate is an instruction guard: @%p or @!%p.
type Predicate struct {
	Register string
	Negated  bool
}

// Instruction is one PTX instruction: opcode, dotted modifiers and operands.
type Instruction struct {
	Guard     *Predicate
	Opcode    string
	Modifiers []string // ".global", ".v2", ".f32" ...
	Operands  []Operand
	Generated bool
	Pos       Pos
}

func (*Instruction) Kind() StatementKind { return StmtInstruction }
func (i *Instruction) Position() Pos     { return i.Pos }

// Space returns the state space named by the instruction's modifiers, or
// SpaceNone for generic addressing and non-memory instructions.
func (i *Instruction) Space() MemorySpace {
	for _, m := range i.Modifiers {
		if s := ParseSpace(m); s != SpaceNone {
			return s
		}
	}
	return SpaceNone
}

// Class returns the opcode class of the instruction.
func (i *Instruction) Class() Class {
	return Classify(i.Opcode)
}

// HasModifier reports whether mod appears among the modifiers.
func (i *Instruction) HasModifier(mod string) bool {
	for _, m := range i.Modifiers {
		if m == mod {
			return true
		}
	}
	return false
}

// Mnemonic returns the opcode joined with its modifiers, e.g. "ld.global.f32".
func (i *Instruction) Mnemonic() string {
	n := len(i.Opcode)
	for _, m := range i.Modifiers {
		n += len(m)
	}
	b := make([]byte, 0, n)
	b = append(b, i.Opcode...)
	for _, m := range i.Modifiers {
		b = append(b, m...)
	}
	return string(b)
}

// AddressOperand returns the first [address] operand, if any.
func (i *Instruction) AddressOperand() (Operand, bool) {
	for _, op := range i.Operands {
		if op.Kind == OperandAddress {
			return op, true
		}
	}
	return Operand{}, false
}

// Walk calls fn for every statement in body, descending into blocks.
// Returning false from fn stops the walk.
func Walk(body []Statement, fn func(Statement) bool) bool {
	for _, st := range body {
		if !fn(st) {
			return false
		}
		if b, ok := st.(*Block); ok {
			if !Walk(b.Body, fn) {
				return false
			}
		}
	}
	return true
}
