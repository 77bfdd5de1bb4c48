package ir

import "slices"

// Clone returns a deep copy of m. Passes work on clones so that a module
// shared through the cache is never mutated.
func (m *Module) Clone() *Module {
	c := &Module{
		Version:      m.Version,
		Targets:      slices.Clone(m.Targets),
		AddressSize:  m.AddressSize,
		Instrumented: m.Instrumented,
		Decls:        make([]Decl, len(m.Decls)),
	}
	for i, d := range m.Decls {
		switch decl := d.(type) {
		case *Directive:
			c.Decls[i] = decl.clone()
		case *Variable:
			c.Decls[i] = decl.clone()
		case *Function:
			c.Decls[i] = decl.clone()
		}
	}
	return c
}

func (d *Directive) clone() *Directive {
	c := *d
	c.Args = slices.Clone(d.Args)
	return &c
}

func (v *Variable) clone() *Variable {
	c := *v
	c.Qualifiers = slices.Clone(v.Qualifiers)
	c.Extents = slices.Clone(v.Extents)
	c.Init = slices.Clone(v.Init)
	return &c
}

func cloneVariables(vars []*Variable) []*Variable {
	if vars == nil {
		return nil
	}
	out := make([]*Variable, len(vars))
	for i, v := range vars {
		out[i] = v.clone()
	}
	return out
}

func (f *Function) clone() *Function {
	c := *f
	c.Returns = cloneVariables(f.Returns)
	c.Params = cloneVariables(f.Params)
	if f.Directives != nil {
		c.Directives = make([]*Directive, len(f.Directives))
		for i, d := range f.Directives {
			c.Directives[i] = d.clone()
		}
	}
	c.Body = CloneStatements(f.Body)
	return &c
}

// CloneStatements deep-copies a statement list.
func CloneStatements(body []Statement) []Statement {
	if body == nil {
		return nil
	}
	out := make([]Statement, len(body))
	for i, st := range body {
		switch s := st.(type) {
		case *Instruction:
			out[i] = s.clone()
		case *Label:
			l := *s
			out[i] = &l
		case *Directive:
			out[i] = s.clone()
		case *Variable:
			out[i] = s.clone()
		case *Block:
			b := *s
			b.Body = CloneStatements(s.Body)
			out[i] = &b
		}
	}
	return out
}

func (i *Instruction) clone() *Instruction {
	c := *i
	if i.Guard != nil {
		g := *i.Guard
		c.Guard = &g
	}
	c.Modifiers = slices.Clone(i.Modifiers)
	if i.Operands != nil {
		c.Operands = make([]Operand, len(i.Operands))
		for n, op := range i.Operands {
			c.Operands[n] = op.clone()
		}
	}
	return &c
}
