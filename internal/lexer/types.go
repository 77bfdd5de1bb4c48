package lexer

import "fmt"

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	Identifier
	Opcode
	Directive
	Register
	Integer
	Float
	String
	Punctuation
	Operator
)

var kindNames = [...]string{
	EOF:         "EOF",
	Identifier:  "IDENTIFIER",
	Opcode:      "OPCODE",
	Directive:   "DIRECTIVE",
	Register:    "REGISTER",
	Integer:     "INTEGER",
	Float:       "FLOAT",
	String:      "STRING",
	Punctuation: "PUNCTUATION",
	Operator:    "OPERATOR",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Position struct {
	Offset int // 0-based absolute index in input
	Line   int // 1-based
	Column int // 1-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is immutable once produced by the scanner.
type Token struct {
	Kind Kind
	Text string
	Pos  Position
}

// End returns the offset just past the token's last byte.
func (t Token) End() int {
	return t.Pos.Offset + len(t.Text)
}

// Is reports whether t is punctuation or an operator with the given text.
func (t Token) Is(text string) bool {
	return (t.Kind == Punctuation || t.Kind == Operator) && t.Text == text
}

// IsName reports whether t can stand for a symbol name. Opcodes are not
// reserved words in PTX, so a variable may legally be called "add".
func (t Token) IsName() bool {
	return t.Kind == Identifier || t.Kind == Opcode
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}
