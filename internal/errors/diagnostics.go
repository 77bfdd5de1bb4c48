package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"panoptes/internal/ir"
	"panoptes/internal/lexer"
	"panoptes/internal/parser"
)

// Builder assembles a Diagnostic fluently.
type Builder struct {
	d Diagnostic
}

func New(code, message string, pos Position) *Builder {
	return &Builder{d: Diagnostic{Level: Error, Code: code, Message: message, Position: pos, Length: 1}}
}

func (b *Builder) WithLength(length int) *Builder {
	b.d.Length = length
	return b
}

func (b *Builder) WithSuggestion(message string) *Builder {
	b.d.Suggestions = append(b.d.Suggestions, Suggestion{Message: message})
	return b
}

func (b *Builder) WithReplacement(message, replacement string) *Builder {
	b.d.Suggestions = append(b.d.Suggestions, Suggestion{Message: message, Replacement: replacement})
	return b
}

func (b *Builder) WithNote(note string) *Builder {
	b.d.Notes = append(b.d.Notes, note)
	return b
}

func (b *Builder) WithHelp(help string) *Builder {
	b.d.HelpText = help
	return b
}

func (b *Builder) Build() Diagnostic {
	return b.d
}

// Diagnose converts the errors produced while scanning, parsing or
// validating a module into diagnostics. Joined errors yield one
// diagnostic each; errors of any other kind are skipped.
func Diagnose(err error) []Diagnostic {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []Diagnostic
		for _, e := range joined.Unwrap() {
			out = append(out, Diagnose(e)...)
		}
		return out
	}

	var (
		lexErr *lexer.LexicalError
		synErr *parser.SyntaxError
		valErr *ir.ValidationError
	)
	switch {
	case stderrors.As(err, &lexErr):
		return []Diagnostic{UnexpectedCharacter(lexErr)}
	case stderrors.As(err, &synErr):
		return []Diagnostic{Syntax(synErr)}
	case stderrors.As(err, &valErr):
		return []Diagnostic{Validation(valErr)}
	}
	if next := stderrors.Unwrap(err); next != nil {
		return Diagnose(next)
	}
	return nil
}

func UnexpectedCharacter(e *lexer.LexicalError) Diagnostic {
	return New(ErrorUnexpectedCharacter, fmt.Sprintf("unexpected character %q", e.Char),
		Position{Line: e.Pos.Line, Column: e.Pos.Column}).
		WithNote("PTX tokens start with a letter, digit, '.', '%', '$', '_' or punctuation").
		Build()
}

func Syntax(e *parser.SyntaxError) Diagnostic {
	pos := Position{Line: e.Found.Pos.Line, Column: e.Found.Pos.Column}
	msg := fmt.Sprintf("expected %s, found %s", e.Expected, e.Found)
	length := max(1, len(e.Found.Text))

	switch {
	case e.Expected == "';'":
		return New(ErrorMissingSemicolon, msg, pos).
			WithLength(length).
			WithReplacement("terminate the previous statement", ";").
			Build()
	case e.Expected == "'}'" && e.Found.Kind == lexer.EOF:
		return New(ErrorUnterminatedBlock, "unterminated function body or block", pos).
			WithSuggestion("add the closing '}'").
			Build()
	case strings.HasSuffix(e.Expected, "state space"):
		return New(ErrorMissingStateSpace, msg, pos).
			WithLength(length).
			WithHelp("declare the variable in one of .global, .shared, .const, .local or .param").
			Build()
	case e.Expected == "operand":
		return New(ErrorInvalidOperand, msg, pos).WithLength(length).Build()
	default:
		return New(ErrorSyntax, msg, pos).WithLength(length).Build()
	}
}

func Validation(e *ir.ValidationError) Diagnostic {
	pos := Position{Line: e.Pos.Line, Column: e.Pos.Column}
	switch {
	case strings.HasPrefix(e.Message, "duplicate label"):
		return New(ErrorDuplicateLabel, e.Message, pos).
			WithLength(max(1, len(e.Symbol))).
			WithNote(fmt.Sprintf("in function %s", e.Function)).
			Build()
	case strings.HasPrefix(e.Message, "branch to undefined label"):
		b := New(ErrorUndefinedLabel, e.Message, pos).
			WithNote(fmt.Sprintf("in function %s", e.Function))
		if similar := findSimilarNames(e.Symbol, e.Candidates); len(similar) > 0 {
			b.WithSuggestion(fmt.Sprintf("did you mean '%s'?", similar[0]))
		}
		return b.Build()
	case strings.HasPrefix(e.Message, "function defined more than once"):
		return New(ErrorDuplicateFunction, fmt.Sprintf("function %s is defined more than once", e.Function), pos).
			WithHelp("turn all but one definition into a prototype").
			Build()
	default:
		return New(ErrorSyntax, e.Message, pos).Build()
	}
}

func findSimilarNames(target string, candidates []string) []string {
	var similar []string
	for _, candidate := range candidates {
		if levenshteinDistance(target, candidate) <= 2 && len(candidate) > 2 {
			similar = append(similar, candidate)
		}
	}
	return similar
}

func levenshteinDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
