package lexer

import "fmt"

// LexicalError reports a character no rule can match. Scanning does not
// recover; the translation of the enclosing module is abandoned.
type LexicalError struct {
	Source string
	Pos    Position
	Char   rune
}

func (e *LexicalError) Error() string {
	return fmt.Sprintf("%s:%s: unexpected character %q at offset %d", e.Source, e.Pos, e.Char, e.Pos.Offset)
}
