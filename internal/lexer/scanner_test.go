package lexer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []Kind {
	out := make([]Kind, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Kind)
	}
	return out
}

func TestOpcodesAndIdentifiers(t *testing.T) {
	input := "ld st bra ret neg_f32 $L_done _Z6kernelPf"
	expected := []Kind{Opcode, Opcode, Opcode, Opcode, Identifier, Identifier, Identifier, EOF}

	tokens, err := Tokenize("test.ptx", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d", len(expected), len(tokens))
	}
	for i, exp := range expected {
		if tokens[i].Kind != exp {
			t.Errorf("token %d: expected %s, got %s", i, exp, tokens[i].Kind)
		}
	}
}

func TestNumbers(t *testing.T) {
	input := "42 0 0x1F 0xABCU 0b101 017 7.0 1e10 0f3FB8AA3B 0d3FF0000000000000"
	expected := []Kind{Integer, Integer, Integer, Integer, Integer, Integer, Float, Float, Float, Float}

	tokens, err := Tokenize("test.ptx", input)
	require.NoError(t, err)
	require.Len(t, tokens, len(expected)+1)
	for i, exp := range expected {
		assert.Equal(t, exp, tokens[i].Kind, "token %d (%s)", i, tokens[i].Text)
	}
}

func TestDirectivesAndModifiers(t *testing.T) {
	tokens, err := Tokenize("test.ptx", ".version 7.0\nld.global.v2.f32 {%f1, %f2}, [%rd1+8];")
	require.NoError(t, err)

	texts := make([]string, 0, len(tokens))
	for _, tok := range tokens[:len(tokens)-1] {
		texts = append(texts, tok.Text)
	}
	assert.Equal(t, []string{
		".version", "7.0",
		"ld", ".global", ".v2", ".f32", "{", "%f1", ",", "%f2", "}", ",",
		"[", "%rd1", "+", "8", "]", ";",
	}, texts)
	assert.Equal(t, Directive, tokens[0].Kind)
	assert.Equal(t, Opcode, tokens[2].Kind)
	assert.Equal(t, Directive, tokens[3].Kind)
	assert.Equal(t, tokens[2].End(), tokens[3].Pos.Offset, "modifiers are adjacent to their opcode")
}

func TestRegistersAndPredicates(t *testing.T) {
	tokens, err := Tokenize("test.ptx", "@!%p1 mov.u32 %r1, %tid.x;")
	require.NoError(t, err)

	assert.Equal(t, []Kind{
		Punctuation, Operator, Register, Opcode, Directive, Register,
		Punctuation, Register, Punctuation, EOF,
	}, kinds(tokens))
	assert.Equal(t, "%tid.x", tokens[7].Text)
}

func TestCommentsAndWhitespaceAreDiscarded(t *testing.T) {
	input := "// line comment\n/* block\ncomment */ ret; // trailing"
	tokens, err := Tokenize("test.ptx", input)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "ret", tokens[0].Text)
	assert.Equal(t, 3, tokens[0].Pos.Line)
	assert.Equal(t, 12, tokens[0].Pos.Column)
}

func TestPositions(t *testing.T) {
	tokens, err := Tokenize("test.ptx", "ret;\n  exit;")
	require.NoError(t, err)
	assert.Equal(t, Position{Offset: 0, Line: 1, Column: 1}, tokens[0].Pos)
	assert.Equal(t, Position{Offset: 7, Line: 2, Column: 3}, tokens[2].Pos)
	assert.Equal(t, EOF, tokens[len(tokens)-1].Kind)
	assert.Equal(t, 12, tokens[len(tokens)-1].Pos.Offset)
}

func TestUnrecognizedCharacter(t *testing.T) {
	s := NewScanner("bad.ptx", "ret;\n  # oops")
	_, err := s.ScanTokens()
	require.Error(t, err)

	var lexErr *LexicalError
	require.True(t, errors.As(err, &lexErr))
	assert.Equal(t, 7, lexErr.Pos.Offset)
	assert.Equal(t, 2, lexErr.Pos.Line)
	assert.Equal(t, '#', lexErr.Char)
	assert.Contains(t, lexErr.Error(), "bad.ptx:2:3")

	// The failure is sticky until the scanner is reset.
	_, again := s.Next()
	assert.Same(t, err, again)
}

func TestUnterminatedBlockComment(t *testing.T) {
	_, err := Tokenize("bad.ptx", "ret; /* never closed")
	var lexErr *LexicalError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, '/', lexErr.Char)
}

func TestScannerIsRestartable(t *testing.T) {
	s := NewScanner("test.ptx", ".visible .entry k() { ret; }")

	first, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	s.Reset()
	again, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	var n int
	for _, err := range s.All() {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 9, n)

	// EOF is sticky.
	tok, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, EOF, tok.Kind)
}

func TestAllStopsEarly(t *testing.T) {
	s := NewScanner("test.ptx", "ret; ret; ret;")
	var seen []string
	for tok, err := range s.All() {
		require.NoError(t, err)
		seen = append(seen, tok.Text)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"ret", ";"}, seen)
}
