package instrument

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"panoptes/internal/ir"
	"panoptes/internal/shadow"
)

const (
	// QueryFunction is the device function every guard calls. Its extern
	// declaration doubles as the instrumented-module marker.
	QueryFunction = "__panoptes_shadow_query"
	// ViolationLabel starts the trap sequence appended to guarded functions.
	ViolationLabel = "$__panoptes_violation"
)

// Guard-local names. Each guard is its own block so the names never clash
// between guards and the text of a guard depends only on its instruction.
const (
	regAddr     = "%__panoptes_addr"
	regStatus   = "%__panoptes_status"
	regBad      = "%__panoptes_bad"
	regPred     = "%__panoptes_pred"
	paramAddr   = "__panoptes_param_addr"
	paramWidth  = "__panoptes_param_width"
	paramStatus = "__panoptes_param_status"
)

// Guards inserts a shadow-memory check in front of every guarded memory
// access.
type Guards struct {
	opts Options
}

func New(opts Options) *Guards {
	return &Guards{opts: opts}
}

func (*Guards) Name() string { return "guards" }

func (*Guards) Description() string {
	return "Inserts a shadow validity check before each guarded load, store and atomic"
}

// IsInstrumented reports whether m already carries guards, either by flag or
// by the extern declaration of the query function.
func IsInstrumented(m *ir.Module) bool {
	if m.Instrumented {
		return true
	}
	f := m.Function(QueryFunction)
	return f != nil && f.Prototype
}

// Apply returns an instrumented copy of m. An instrumented input is copied
// unchanged.
func (g *Guards) Apply(m *ir.Module) (*ir.Module, Report, error) {
	out := m.Clone()
	if IsInstrumented(m) {
		out.Instrumented = true
		return out, Report{AlreadyInstrumented: true}, nil
	}

	var report Report
	first := -1
	for i, d := range out.Decls {
		f, ok := d.(*ir.Function)
		if !ok {
			continue
		}
		if first < 0 {
			first = i
		}
		if f.Prototype {
			continue
		}
		w := &rewriter{opts: g.opts, ptr: out.Pointer()}
		f.Body = w.rewrite(f.Body, &regScope{vars: paramRegisters(f)})
		report.Guards += w.guards
		report.Skipped += w.skipped
		if w.guards > 0 {
			report.Functions++
			f.Body = append(f.Body,
				&ir.Label{Name: ViolationLabel},
				&ir.Instruction{Opcode: "trap", Generated: true},
			)
		}
	}

	proto := queryPrototype(out)
	if first < 0 {
		out.Decls = append(out.Decls, proto)
	} else {
		out.Decls = append(out.Decls[:first], append([]ir.Decl{proto}, out.Decls[first:]...)...)
	}
	out.Instrumented = true
	return out, report, nil
}

// queryPrototype declares
//
//	.extern .func (.param .b32 status) __panoptes_shadow_query(.param .b64 addr, .param .b32 width);
func queryPrototype(m *ir.Module) *ir.Function {
	return &ir.Function{
		Name:      QueryFunction,
		Kind:      ir.FunctionFunc,
		Linkage:   ".extern",
		Returns:   []*ir.Variable{ir.NewVariable(ir.SpaceParam, ".b32", "status")},
		Params:    []*ir.Variable{ir.NewVariable(ir.SpaceParam, paramType(m.Pointer()), "addr"), ir.NewVariable(ir.SpaceParam, ".b32", "width")},
		Prototype: true,
	}
}

func paramType(ptr string) string {
	if ptr == ".u32" {
		return ".b32"
	}
	return ".b64"
}

type rewriter struct {
	opts    Options
	ptr     string
	guards  int
	skipped int
}

// regScope maps register names to declared types, innermost block first.
type regScope struct {
	vars   []*ir.Variable
	parent *regScope
}

func registers(body []ir.Statement) []*ir.Variable {
	var out []*ir.Variable
	for _, st := range body {
		if v, ok := st.(*ir.Variable); ok && v.Space == ir.SpaceReg {
			out = append(out, v)
		}
	}
	return out
}

// paramRegisters returns the .reg parameters of a device function.
func paramRegisters(f *ir.Function) []*ir.Variable {
	var out []*ir.Variable
	for _, v := range slices.Concat(f.Returns, f.Params) {
		if v.Space == ir.SpaceReg {
			out = append(out, v)
		}
	}
	return out
}

// typeOf returns the declared type of a register, or "" when no enclosing
// scope declares it.
func (s *regScope) typeOf(name string) string {
	for ; s != nil; s = s.parent {
		for _, v := range s.vars {
			if declares(v, name) {
				return v.Type
			}
		}
	}
	return ""
}

// declares reports whether v declares name, directly or as one of the
// registers of a "%r<N>" range.
func declares(v *ir.Variable, name string) bool {
	if v.Range == 0 {
		return v.Name == name
	}
	idx, ok := strings.CutPrefix(name, v.Name)
	if !ok || idx == "" || idx[0] < '0' || idx[0] > '9' {
		return false
	}
	n, err := strconv.Atoi(idx)
	return err == nil && n < v.Range
}

// rewrite returns body with a guard block in front of each guarded
// instruction, descending into source blocks.
func (w *rewriter) rewrite(body []ir.Statement, parent *regScope) []ir.Statement {
	scope := &regScope{vars: registers(body), parent: parent}
	out := make([]ir.Statement, 0, len(body))
	for _, st := range body {
		switch s := st.(type) {
		case *ir.Block:
			if !s.Generated {
				s.Body = w.rewrite(s.Body, scope)
			}
		case *ir.Instruction:
			if guard := w.guardFor(s, scope); guard != nil {
				out = append(out, guard)
			}
		}
		out = append(out, st)
	}
	return out
}

func (w *rewriter) guardFor(inst *ir.Instruction, scope *regScope) *ir.Block {
	if inst.Generated || !inst.Class().IsMemoryAccess() {
		return nil
	}
	addr, ok := inst.AddressOperand()
	space := inst.Space()
	if !ok || addr.Base == nil || !w.opts.guards(space) {
		if space != ir.SpaceParam && space != ir.SpaceConst {
			w.skipped++
		}
		return nil
	}
	w.guards++
	var baseType string
	if addr.Base.Kind == ir.OperandRegister {
		baseType = scope.typeOf(addr.Base.Name)
	}
	return buildGuard(inst, addr, baseType, space, w.ptr, w.opts.Permissive)
}

func generated(opcode string, mods []string, ops ...ir.Operand) *ir.Instruction {
	return &ir.Instruction{Opcode: opcode, Modifiers: mods, Operands: ops, Generated: true}
}

// addressMove copies the access base into the address register. A register
// declared narrower or wider than a pointer goes through cvt, since mov
// requires matching widths.
func addressMove(base ir.Operand, baseType, ptr string) *ir.Instruction {
	bw := ir.TypeWidth(baseType)
	if base.Kind == ir.OperandRegister && bw != 0 && bw != ir.TypeWidth(ptr) {
		return generated("cvt", []string{ptr, fmt.Sprintf(".u%d", bw*8)}, ir.Reg(regAddr), base)
	}
	return generated("mov", []string{ptr}, ir.Reg(regAddr), base)
}

func buildGuard(inst *ir.Instruction, addr ir.Operand, baseType string, space ir.MemorySpace, ptr string, permissive bool) *ir.Block {
	pt := paramType(ptr)
	signed := ".s64"
	if ptr == ".u32" {
		signed = ".s32"
	}
	width := inst.AccessWidth()
	if width == 0 {
		width = 1
	}

	body := []ir.Statement{
		ir.NewVariable(ir.SpaceReg, ptr, regAddr),
		ir.NewVariable(ir.SpaceReg, ".b32", regStatus),
		ir.NewVariable(ir.SpaceReg, ".pred", regBad),
		ir.NewVariable(ir.SpaceParam, pt, paramAddr),
		ir.NewVariable(ir.SpaceParam, ".b32", paramWidth),
		ir.NewVariable(ir.SpaceParam, ".b32", paramStatus),
	}

	// Effective address from the same base and displacement as the access.
	base := *addr.Base
	base.Offset = 0
	body = append(body, addressMove(base, baseType, ptr))
	if addr.Base.Kind == ir.OperandSymbol && addr.Base.Offset != 0 {
		body = append(body, generated("add", []string{signed}, ir.Reg(regAddr), ir.Reg(regAddr), ir.ImmInt(addr.Base.Offset)))
	}
	if addr.Offset != 0 {
		body = append(body, generated("add", []string{signed}, ir.Reg(regAddr), ir.Reg(regAddr), ir.ImmInt(addr.Offset)))
	}
	if space != ir.SpaceNone {
		body = append(body, generated("cvta", []string{space.Directive(), ptr}, ir.Reg(regAddr), ir.Reg(regAddr)))
	}

	cmp, want := ".eq", shadow.Invalid
	if !permissive {
		cmp, want = ".ne", shadow.Valid
	}
	body = append(body,
		generated("st", []string{".param", pt}, ir.Addr(ir.Sym(paramAddr), 0), ir.Reg(regAddr)),
		generated("st", []string{".param", ".b32"}, ir.Addr(ir.Sym(paramWidth), 0), ir.Imm(strconv.Itoa(width))),
		generated("call", []string{".uni"}, ir.List(ir.Sym(paramStatus)), ir.Sym(QueryFunction), ir.List(ir.Sym(paramAddr), ir.Sym(paramWidth))),
		generated("ld", []string{".param", ".b32"}, ir.Reg(regStatus), ir.Addr(ir.Sym(paramStatus), 0)),
		generated("setp", []string{cmp, ".u32"}, ir.Reg(regBad), ir.Reg(regStatus), ir.ImmInt(int64(want))),
	)

	// A predicated access only faults when it would have executed.
	if inst.Guard != nil {
		pred := inst.Guard.Register
		if inst.Guard.Negated {
			body = append([]ir.Statement{ir.NewVariable(ir.SpaceReg, ".pred", regPred)}, body...)
			body = append(body, generated("not", []string{".pred"}, ir.Reg(regPred), ir.Reg(pred)))
			pred = regPred
		}
		body = append(body, generated("and", []string{".pred"}, ir.Reg(regBad), ir.Reg(regBad), ir.Reg(pred)))
	}

	bra := generated("bra", nil, ir.Sym(ViolationLabel))
	bra.Guard = &ir.Predicate{Register: regBad}
	body = append(body, bra)

	return &ir.Block{Body: body, Generated: true}
}
