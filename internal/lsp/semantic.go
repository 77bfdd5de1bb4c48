package lsp

import (
	"slices"
	"unicode/utf8"

	"panoptes/internal/lexer"
)

// SemanticToken is one LSP semantic token entry. Line and StartChar are
// 0-based; TokenType indexes SemanticTokenTypes.
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int
	TokenModifiers int
}

// collectSemanticTokens classifies the tokens of text. Scanning stops at
// the first lexical error; the tokens before it are still returned.
func collectSemanticTokens(name, text string) []SemanticToken {
	var tokens []SemanticToken
	var prev lexer.Token
	for tok, err := range lexer.NewScanner(name, text).All() {
		if err != nil || tok.Kind == lexer.EOF {
			break
		}
		typ, mods := classify(tok, prev)
		prev = tok
		if typ < 0 {
			continue
		}
		tokens = append(tokens, SemanticToken{
			Line:           uint32(tok.Pos.Line - 1),
			StartChar:      uint32(tok.Pos.Column - 1),
			Length:         uint32(utf8.RuneCountInString(tok.Text)),
			TokenType:      typ,
			TokenModifiers: mods,
		})
	}
	return tokens
}

var declarationDirectives = []string{".entry", ".func"}

func classify(tok, prev lexer.Token) (typ int, mods int) {
	switch tok.Kind {
	case lexer.Opcode:
		return tokenType("keyword"), 0
	case lexer.Directive:
		return tokenType("modifier"), 0
	case lexer.Register:
		return tokenType("variable"), 0
	case lexer.Integer, lexer.Float:
		return tokenType("number"), 0
	case lexer.String:
		return tokenType("string"), 0
	case lexer.Operator:
		return tokenType("operator"), 0
	case lexer.Identifier:
		if prev.Kind == lexer.Directive && slices.Contains(declarationDirectives, prev.Text) {
			return tokenType("function"), tokenModifier("declaration")
		}
		return tokenType("variable"), 0
	}
	return -1, 0
}

func tokenType(name string) int {
	return slices.Index(SemanticTokenTypes, name)
}

func tokenModifier(name string) int {
	return 1 << slices.Index(SemanticTokenModifiers, name)
}
