package parser

import (
	"fmt"

	"panoptes/internal/lexer"
)

// SyntaxError reports the first token the parser could not accept.
type SyntaxError struct {
	Source   string
	Expected string
	Found    lexer.Token
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%s: expected %s, found %s", e.Source, e.Found.Pos, e.Expected, e.Found)
}
