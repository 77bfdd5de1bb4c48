package ir

// IR for one PTX translation unit. The tree keeps source order everywhere:
// later stages insert statements by position and the printer relies on it.

// Pos is a 1-based source location. Generated nodes carry the zero Pos.
type Pos struct {
	Line   int
	Column int
}

// Module is the root of one compiled unit.
type Module struct {
	Version     string   // .version, e.g. "7.0"
	Targets     []string // .target, e.g. ["sm_80"]
	AddressSize int      // .address_size, 32 or 64; 0 if absent
	Decls       []Decl

	// Instrumented is set by the instrumentation pass. It is never cleared.
	Instrumented bool
}

// DeclKind discriminates module-scope declarations.
type DeclKind uint8

const (
	DeclDirective DeclKind = iota
	DeclVariable
	DeclFunction
)

// Decl is one of *Directive, *Variable or *Function.
type Decl interface {
	DeclKind() DeclKind
}

// Globals returns the module-scope variables in source order.
func (m *Module) Globals() []*Variable {
	var out []*Variable
	for _, d := range m.Decls {
		if v, ok := d.(*Variable); ok {
			out = append(out, v)
		}
	}
	return out
}

// Functions returns the functions and prototypes in source order.
func (m *Module) Functions() []*Function {
	var out []*Function
	for _, d := range m.Decls {
		if f, ok := d.(*Function); ok {
			out = append(out, f)
		}
	}
	return out
}

// Function returns the first function or prototype named name.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions() {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Entries returns the kernel entry points.
func (m *Module) Entries() []*Function {
	var out []*Function
	for _, f := range m.Functions() {
		if f.Kind == FunctionEntry {
			out = append(out, f)
		}
	}
	return out
}

// Pointer returns the integer type used for addresses in this module.
func (m *Module) Pointer() string {
	if m.AddressSize == 32 {
		return ".u32"
	}
	return ".u64"
}

// Directive is a directive the IR keeps opaque (.file, .loc, .pragma,
// .maxntid ...). Args holds the raw argument tokens.
type Directive struct {
	Name       string
	Args       []string
	Terminated bool // followed by ';'
	Pos        Pos
}

func (*Directive) DeclKind() DeclKind { return DeclDirective }
func (*Directive) Kind() StatementKind { return StmtDirective }
func (d *Directive) Position() Pos { return d.Pos }

// Variable is a state-space declaration at module or function scope, or a
// function parameter.
type Variable struct {
	// Qualifiers holds every token between the start of the declaration and
	// the name, verbatim (".visible", ".global", ".align", "4", ".b8").
	Qualifiers []string

	Linkage string      // ".visible", ".extern", ".weak" or ""
	Space   MemorySpace // declared state space
	Type    string      // element type, e.g. ".f32"
	Vector  int         // 2 or 4 for .v2/.v4, 0 for scalars
	Align   int

	Name    string
	Extents []int    // array dimensions; -1 for an unsized dimension
	Range   int      // N in %r<N>; 0 when absent
	Init    []string // initializer tokens after '='
	Pos     Pos
}

func (*Variable) DeclKind() DeclKind  { return DeclVariable }
func (*Variable) Kind() StatementKind { return StmtVariable }
func (v *Variable) Position() Pos     { return v.Pos }

// NewVariable builds a generated declaration such as ".reg .u64 %a".
func NewVariable(space MemorySpace, typ, name string) *Variable {
	return &Variable{
		Qualifiers: []string{space.Directive(), typ},
		Space:      space,
		Type:       typ,
		Name:       name,
	}
}

// FunctionKind distinguishes kernels from device functions.
type FunctionKind uint8

const (
	FunctionEntry FunctionKind = iota // .entry
	FunctionFunc                      // .func
)

func (k FunctionKind) Directive() string {
	if k == FunctionEntry {
		return ".entry"
	}
	return ".func"
}

// Function is a kernel or device function definition, or a prototype when
// Prototype is true (no body).
type Function struct {
	Name       string
	Kind       FunctionKind
	Linkage    string
	Returns    []*Variable
	Params     []*Variable
	Directives []*Directive // performance tuning directives between header and body
	Body       []Statement
	Prototype  bool
	Pos        Pos
}

func (*Function) DeclKind() DeclKind { return DeclFunction }

// Signature returns the externally observable shape of f: linkage, kind,
// name, and parameter/return declarations.
func (f *Function) Signature() string {
	p := NewPrinter()
	p.printFunctionHeader(f)
	return p.output.String()
}
