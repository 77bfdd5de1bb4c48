package lexer

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ptxDefinition matches raw PTX text. Rule order matters: the first rule that
// matches at the current offset wins.
var ptxDefinition = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Comment", Pattern: `//[^\n]*`, Action: nil},
		{Name: "BlockComment", Pattern: `/\*(?:[^*]|\*+[^*/])*\*+/`, Action: nil},
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`, Action: nil},

		{Name: "String", Pattern: `"(?:\\.|[^"\\\n])*"`, Action: nil},

		// 0f/0d hex floats must come before integers.
		{Name: "Float", Pattern: `0[fF][0-9a-fA-F]{8}|0[dD][0-9a-fA-F]{16}|[0-9]+\.[0-9]*(?:[eE][+-]?[0-9]+)?|[0-9]+[eE][+-]?[0-9]+`, Action: nil},
		{Name: "Integer", Pattern: `0[xX][0-9a-fA-F]+U?|0[bB][01]+U?|[0-9]+U?`, Action: nil},

		{Name: "Register", Pattern: `%[a-zA-Z_$][a-zA-Z0-9_$]*(?:\.[xyzw])?`, Action: nil},
		{Name: "Directive", Pattern: `\.[a-zA-Z_][a-zA-Z0-9_]*`, Action: nil},
		{Name: "Ident", Pattern: `[a-zA-Z_$][a-zA-Z0-9_$]*`, Action: nil},

		{Name: "Operator", Pattern: `[-+!<>=|&*]`, Action: nil},
		{Name: "Punctuation", Pattern: `[{}()\[\];,:@]`, Action: nil},
	},
})

// ruleKinds maps participle rule names onto token kinds. Rules missing here
// are elided.
var ruleKinds = map[string]Kind{
	"String":      String,
	"Float":       Float,
	"Integer":     Integer,
	"Register":    Register,
	"Directive":   Directive,
	"Ident":       Identifier,
	"Operator":    Operator,
	"Punctuation": Punctuation,
}

// kindBySymbol is resolved once from the definition's symbol table.
var kindBySymbol = buildKindTable()

func buildKindTable() map[lexer.TokenType]Kind {
	table := make(map[lexer.TokenType]Kind)
	for name, tt := range ptxDefinition.Symbols() {
		if k, ok := ruleKinds[name]; ok {
			table[tt] = k
		}
	}
	return table
}
