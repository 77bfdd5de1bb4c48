package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer renders IR back to PTX text. Output depends only on the IR, so
// equal modules always print to identical bytes.
type Printer struct {
	indent int
	output strings.Builder
}

// NewPrinter creates a new IR printer
func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the PTX text of a module.
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

// PrintStatement returns the PTX text of a single statement.
func PrintStatement(st Statement) string {
	p := NewPrinter()
	p.printStatement(st)
	return strings.TrimRight(p.output.String(), "\n")
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("\t")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) write(format string, args ...interface{}) {
	p.output.WriteString(fmt.Sprintf(format, args...))
}

func (p *Printer) printModule(m *Module) {
	if m.Version != "" {
		p.writeLine(".version %s", m.Version)
	}
	if len(m.Targets) > 0 {
		p.writeLine(".target %s", strings.Join(m.Targets, ", "))
	}
	if m.AddressSize != 0 {
		p.writeLine(".address_size %d", m.AddressSize)
	}

	for _, d := range m.Decls {
		switch decl := d.(type) {
		case *Directive:
			p.printDirective(decl)
		case *Variable:
			p.printVariable(decl)
		case *Function:
			p.writeLine("")
			p.printFunction(decl)
		}
	}
}

func (p *Printer) printDirective(d *Directive) {
	p.writeIndent()
	p.output.WriteString(d.Name)
	if len(d.Args) > 0 {
		p.output.WriteByte(' ')
		p.output.WriteString(JoinTokens(d.Args))
	}
	if d.Terminated {
		p.output.WriteByte(';')
	}
	p.output.WriteByte('\n')
}

func (p *Printer) printVariable(v *Variable) {
	p.writeIndent()
	p.output.WriteString(declarationText(v))
	p.output.WriteString(";\n")
}

func declarationText(v *Variable) string {
	var b strings.Builder
	for _, q := range v.Qualifiers {
		b.WriteString(q)
		b.WriteByte(' ')
	}
	b.WriteString(v.Name)
	if v.Range > 0 {
		b.WriteString("<")
		b.WriteString(strconv.Itoa(v.Range))
		b.WriteString(">")
	}
	for _, ext := range v.Extents {
		if ext < 0 {
			b.WriteString("[]")
		} else {
			b.WriteString("[" + strconv.Itoa(ext) + "]")
		}
	}
	if len(v.Init) > 0 {
		b.WriteString(" = ")
		b.WriteString(JoinTokens(v.Init))
	}
	return b.String()
}

func (p *Printer) printFunctionHeader(f *Function) {
	if f.Linkage != "" {
		p.write("%s ", f.Linkage)
	}
	p.output.WriteString(f.Kind.Directive())
	if len(f.Returns) > 0 {
		p.output.WriteString(" (")
		p.output.WriteString(joinDeclarations(f.Returns, ", "))
		p.output.WriteString(")")
	}
	p.write(" %s", f.Name)

	switch {
	case f.Kind == FunctionEntry && len(f.Params) > 0:
		p.output.WriteString("(\n")
		p.output.WriteString("\t")
		p.output.WriteString(joinDeclarations(f.Params, ",\n\t"))
		p.output.WriteString("\n)")
	default:
		p.output.WriteString("(")
		p.output.WriteString(joinDeclarations(f.Params, ", "))
		p.output.WriteString(")")
	}
}

func joinDeclarations(vars []*Variable, sep string) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = declarationText(v)
	}
	return strings.Join(parts, sep)
}

func (p *Printer) printFunction(f *Function) {
	p.printFunctionHeader(f)
	if f.Prototype {
		p.output.WriteString(";\n")
		return
	}
	p.output.WriteString("\n")
	for _, d := range f.Directives {
		p.printDirective(d)
	}
	p.writeLine("{")
	p.indent++
	for _, st := range f.Body {
		p.printStatement(st)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printStatement(st Statement) {
	switch s := st.(type) {
	case *Label:
		// Labels hang one level out from the code they mark.
		p.indent--
		p.writeLine("%s:", s.Name)
		p.indent++
	case *Directive:
		p.printDirective(s)
	case *Variable:
		p.printVariable(s)
	case *Block:
		p.writeLine("{")
		p.indent++
		for _, inner := range s.Body {
			p.printStatement(inner)
		}
		p.indent--
		p.writeLine("}")
	case *Instruction:
		p.writeLine("%s", instructionText(s))
	}
}

func instructionText(i *Instruction) string {
	var b strings.Builder
	if i.Guard != nil {
		b.WriteByte('@')
		if i.Guard.Negated {
			b.WriteByte('!')
		}
		b.WriteString(i.Guard.Register)
		b.WriteByte(' ')
	}
	b.WriteString(i.Mnemonic())
	for n, op := range i.Operands {
		if n == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		op.write(&b)
	}
	b.WriteByte(';')
	return b.String()
}

// String renders the instruction as a single PTX line.
func (i *Instruction) String() string {
	return instructionText(i)
}

// JoinTokens rejoins raw tokens with single spaces, without space before
// separators or inside brackets.
func JoinTokens(tokens []string) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 && !noSpaceBefore(t) && !noSpaceAfter(tokens[i-1]) {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
	return b.String()
}

func noSpaceBefore(t string) bool {
	return t == "," || t == ";" || t == ")" || t == "]" || t == "}"
}

func noSpaceAfter(t string) bool {
	return t == "(" || t == "[" || t == "{"
}
