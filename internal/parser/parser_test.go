package parser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panoptes/internal/ir"
	"panoptes/internal/lexer"
)

const negKernel = `//
// Generated by NVIDIA NVVM Compiler
//
.version 7.0
.target sm_80
.address_size 64

.global .align 4 .b8 lut[16] = {1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0};

.visible .entry neg_f32(
	.param .u64 p_dst,
	.param .u64 p_src,
	.param .u32 p_n
)
.maxntid 256, 1, 1
{
	.reg .pred %p<2>;
	.reg .b32 %r<5>;
	.reg .f32 %f<3>;
	.reg .b64 %rd<8>;

	ld.param.u64 %rd1, [p_dst];
	ld.param.u64 %rd2, [p_src];
	ld.param.u32 %r1, [p_n];
	mov.u32 %r2, %tid.x;
	setp.ge.u32 %p1, %r2, %r1;
	@%p1 bra $L_neg_done;
	cvta.to.global.u64 %rd3, %rd2;
	mul.wide.u32 %rd4, %r2, 4;
	add.s64 %rd5, %rd3, %rd4;
	ld.global.f32 %f1, [%rd5];
	neg.f32 %f2, %f1;
	st.global.f32 [%rd5+-4], %f2; /* shifted store */
$L_neg_done:
	ret;
}
`

const negKernelPrinted = `.version 7.0
.target sm_80
.address_size 64
.global .align 4 .b8 lut[16] = {1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0};

.visible .entry neg_f32(
	.param .u64 p_dst,
	.param .u64 p_src,
	.param .u32 p_n
)
.maxntid 256, 1, 1
{
	.reg .pred %p<2>;
	.reg .b32 %r<5>;
	.reg .f32 %f<3>;
	.reg .b64 %rd<8>;
	ld.param.u64 %rd1, [p_dst];
	ld.param.u64 %rd2, [p_src];
	ld.param.u32 %r1, [p_n];
	mov.u32 %r2, %tid.x;
	setp.ge.u32 %p1, %r2, %r1;
	@%p1 bra $L_neg_done;
	cvta.to.global.u64 %rd3, %rd2;
	mul.wide.u32 %rd4, %r2, 4;
	add.s64 %rd5, %rd3, %rd4;
	ld.global.f32 %f1, [%rd5];
	neg.f32 %f2, %f1;
	st.global.f32 [%rd5+-4], %f2;
$L_neg_done:
	ret;
}
`

func TestParseKernel(t *testing.T) {
	m, err := Parse("neg.ptx", negKernel)
	require.NoError(t, err)

	assert.Equal(t, "7.0", m.Version)
	assert.Equal(t, []string{"sm_80"}, m.Targets)
	assert.Equal(t, 64, m.AddressSize)

	globals := m.Globals()
	require.Len(t, globals, 1)
	assert.Equal(t, "lut", globals[0].Name)
	assert.Equal(t, ir.SpaceGlobal, globals[0].Space)
	assert.Equal(t, ".b8", globals[0].Type)
	assert.Equal(t, 4, globals[0].Align)
	assert.Equal(t, []int{16}, globals[0].Extents)

	fn := m.Function("neg_f32")
	require.NotNil(t, fn)
	assert.Equal(t, ir.FunctionEntry, fn.Kind)
	assert.Equal(t, ".visible", fn.Linkage)
	require.Len(t, fn.Params, 3)
	assert.Equal(t, "p_n", fn.Params[2].Name)
	assert.Equal(t, ".u32", fn.Params[2].Type)
	require.Len(t, fn.Directives, 1)
	assert.Equal(t, ".maxntid", fn.Directives[0].Name)
	assert.Equal(t, ir.Pos{Line: 10, Column: 1}, fn.Pos)

	regs := fn.Body[3].(*ir.Variable)
	assert.Equal(t, "%rd", regs.Name)
	assert.Equal(t, 8, regs.Range)
	assert.Equal(t, ir.SpaceReg, regs.Space)

	var accesses []string
	ir.Walk(fn.Body, func(st ir.Statement) bool {
		if inst, ok := st.(*ir.Instruction); ok && inst.Class().IsMemoryAccess() {
			accesses = append(accesses, inst.Mnemonic())
		}
		return true
	})
	assert.Equal(t, []string{"ld.param.u64", "ld.param.u64", "ld.param.u32", "ld.global.f32", "st.global.f32"}, accesses)

	bra := fn.Body[9].(*ir.Instruction)
	assert.Equal(t, "bra", bra.Opcode)
	assert.Equal(t, &ir.Predicate{Register: "%p1"}, bra.Guard)

	store := fn.Body[len(fn.Body)-3].(*ir.Instruction)
	addr, ok := store.AddressOperand()
	require.True(t, ok)
	assert.Equal(t, "%rd5", addr.Base.Name)
	assert.Equal(t, int64(-4), addr.Offset)
}

func TestPrintRoundTrip(t *testing.T) {
	m, err := Parse("neg.ptx", negKernel)
	require.NoError(t, err)

	printed := ir.Print(m)
	if diff := cmp.Diff(negKernelPrinted, printed); diff != "" {
		t.Errorf("printed module mismatch (-want +got):\n%s", diff)
	}

	again, err := Parse("neg.ptx", printed)
	require.NoError(t, err)
	assert.Equal(t, printed, ir.Print(again))
}

func TestParseFunctionsAndOperands(t *testing.T) {
	src := `.version 7.8
.target sm_90, debug
.address_size 64
.extern .func (.param .b32 status) query(.param .b64 addr, .param .b32 width);
.extern .shared .align 16 .b8 smem[];

.visible .func (.param .b32 ret) helper(.param .b64 .ptr .global .align 8 a)
{
	.reg .b64 %rd<2>, %sp;
	.loc 1 12 3
	{
		.param .b64 param0;
		st.param.b64 [param0], %rd1;
		call.uni (retval0), query, (param0, param1);
	}
	st.shared::cta.v2.f32 [smem+8], {%f1, %f2};
	@!%p1 atom.global.add.u32 %r1, [%rd1], -1;
	ld.global.nc.v4.u32 {%r1, %r2, _, %r4}, [%rd1+0x10];
	ret;
}
`
	m, err := Parse("helper.ptx", src)
	require.NoError(t, err)
	assert.Equal(t, []string{"sm_90", "debug"}, m.Targets)

	fns := m.Functions()
	require.Len(t, fns, 2)
	assert.True(t, fns[0].Prototype)
	assert.Equal(t, ".extern", fns[0].Linkage)
	assert.Equal(t, "status", fns[0].Returns[0].Name)

	smem := m.Globals()[0]
	assert.Equal(t, ".extern", smem.Linkage)
	assert.Equal(t, ir.SpaceShared, smem.Space)
	assert.Equal(t, []int{-1}, smem.Extents)

	helper := fns[1]
	assert.Equal(t, ir.FunctionFunc, helper.Kind)
	assert.Equal(t, "ret", helper.Returns[0].Name)
	assert.Equal(t, ir.SpaceParam, helper.Params[0].Space)
	assert.Equal(t, 8, helper.Params[0].Align)

	require.Len(t, helper.Body, 8)
	assert.Equal(t, "%rd", helper.Body[0].(*ir.Variable).Name)
	assert.Equal(t, "%sp", helper.Body[1].(*ir.Variable).Name)
	assert.Equal(t, ".loc", helper.Body[2].(*ir.Directive).Name)
	assert.Equal(t, []string{"1", "12", "3"}, helper.Body[2].(*ir.Directive).Args)

	block := helper.Body[3].(*ir.Block)
	require.Len(t, block.Body, 3)
	call := block.Body[2].(*ir.Instruction)
	assert.Equal(t, "call.uni (retval0), query, (param0, param1);", call.String())
	assert.Equal(t, ir.ClassCall, call.Class())

	st := helper.Body[4].(*ir.Instruction)
	assert.Equal(t, []string{".shared::cta", ".v2", ".f32"}, st.Modifiers)
	assert.Equal(t, ir.SpaceShared, st.Space())
	assert.Equal(t, 8, st.AccessWidth())
	assert.Equal(t, "st.shared::cta.v2.f32 [smem+8], {%f1, %f2};", st.String())

	atom := helper.Body[5].(*ir.Instruction)
	assert.True(t, atom.Guard.Negated)
	assert.Equal(t, "@!%p1 atom.global.add.u32 %r1, [%rd1], -1;", atom.String())

	ld := helper.Body[6].(*ir.Instruction)
	assert.Equal(t, 16, ld.AccessWidth())
	assert.Equal(t, "ld.global.nc.v4.u32 {%r1, %r2, _, %r4}, [%rd1+16];", ld.String())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
		found    lexer.Kind
		line     int
	}{
		{
			name:     "unterminated function",
			src:      ".version 7.0\n.target sm_80\n.visible .entry k()\n{\n\tret;\n",
			expected: "'}'",
			found:    lexer.EOF,
			line:     6,
		},
		{
			name:     "missing semicolon",
			src:      ".entry k()\n{\n\tret\n}\n",
			expected: "';'",
			found:    lexer.Punctuation,
			line:     4,
		},
		{
			name:     "instruction at module scope",
			src:      ".version 7.0\nmov.u32 %r1, 1;\n",
			expected: "directive or declaration",
			found:    lexer.Opcode,
			line:     2,
		},
		{
			name:     "bad operand",
			src:      ".entry k()\n{\n\tmov.u32 %r1, ;\n}\n",
			expected: "operand",
			found:    lexer.Punctuation,
			line:     3,
		},
		{
			name:     "declaration without space",
			src:      ".align 4 .b8 x;\n",
			expected: "state space",
			found:    lexer.Identifier,
			line:     1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse("bad.ptx", tt.src)
			assert.Nil(t, m)
			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr), "got %v", err)
			assert.Equal(t, tt.expected, syntaxErr.Expected)
			assert.Equal(t, tt.found, syntaxErr.Found.Kind)
			assert.Equal(t, tt.line, syntaxErr.Found.Pos.Line)
		})
	}
}

func TestLexicalErrorsPropagate(t *testing.T) {
	_, err := Parse("bad.ptx", ".entry k()\n{\n\tret; #\n}\n")
	var lexErr *lexer.LexicalError
	require.True(t, errors.As(err, &lexErr), "got %v", err)
	assert.Equal(t, '#', lexErr.Char)
	assert.Equal(t, 3, lexErr.Pos.Line)
}

func TestParseStreamAfterReset(t *testing.T) {
	s := lexer.NewScanner("neg.ptx", negKernel)
	_, err := s.ScanTokens()
	require.NoError(t, err)

	s.Reset()
	m, err := ParseStream(s)
	require.NoError(t, err)
	assert.Len(t, m.Entries(), 1)
}

func TestSyntaxErrorMessage(t *testing.T) {
	_, err := Parse("k.ptx", ".entry k()\n{\n")
	require.Error(t, err)
	assert.Equal(t, "k.ptx:3:1: expected '}', found end of input", err.Error())
}
