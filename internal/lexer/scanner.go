package lexer

import (
	"errors"
	"iter"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"
)

// Scanner is a lazy, finite token sequence over one PTX source text. It can
// be rewound with Reset and replayed; the text itself is never mutated.
type Scanner struct {
	name   string
	source string
	lex    lexer.Lexer
	err    error
	done   bool
}

func NewScanner(name, source string) *Scanner {
	s := &Scanner{name: name, source: source}
	s.Reset()
	return s
}

// Name returns the source name the scanner was created with.
func (s *Scanner) Name() string { return s.name }

// Source returns the scanned text.
func (s *Scanner) Source() string { return s.source }

// Reset rewinds the scanner to the start of the source.
func (s *Scanner) Reset() {
	s.err = nil
	s.done = false
	lex, err := ptxDefinition.LexString(s.name, s.source)
	if err != nil {
		s.err = err
		return
	}
	s.lex = lex
}

// Next returns the next significant token. Whitespace and comments are
// skipped. Once EOF is reached it keeps returning EOF; once an error is
// returned it keeps returning the same error.
func (s *Scanner) Next() (Token, error) {
	if s.err != nil {
		return Token{}, s.err
	}
	if s.done {
		return s.eof(), nil
	}
	for {
		raw, err := s.lex.Next()
		if err != nil {
			s.err = s.lexicalError(err)
			return Token{}, s.err
		}
		if raw.EOF() {
			s.done = true
			return s.eof(), nil
		}
		kind, ok := kindBySymbol[raw.Type]
		if !ok {
			continue
		}
		if kind == Identifier {
			kind = lookupIdentifier(raw.Value)
		}
		return Token{
			Kind: kind,
			Text: raw.Value,
			Pos:  Position{Offset: raw.Pos.Offset, Line: raw.Pos.Line, Column: raw.Pos.Column},
		}, nil
	}
}

// All rewinds the scanner and yields every token up to and excluding EOF.
// Iteration stops after the first error.
func (s *Scanner) All() iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		s.Reset()
		for {
			tok, err := s.Next()
			if err != nil {
				yield(Token{}, err)
				return
			}
			if tok.Kind == EOF {
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
	}
}

// ScanTokens returns the whole token sequence, terminated by an EOF token.
func (s *Scanner) ScanTokens() ([]Token, error) {
	var tokens []Token
	for tok, err := range s.All() {
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return append(tokens, s.eof()), nil
}

// Tokenize scans source in one go.
func Tokenize(name, source string) ([]Token, error) {
	return NewScanner(name, source).ScanTokens()
}

func (s *Scanner) eof() Token {
	line, col := 1, 1
	for _, r := range s.source {
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return Token{Kind: EOF, Pos: Position{Offset: len(s.source), Line: line, Column: col}}
}

func (s *Scanner) lexicalError(err error) error {
	var lexErr *lexer.Error
	if !errors.As(err, &lexErr) {
		return err
	}
	pos := Position{Offset: lexErr.Pos.Offset, Line: lexErr.Pos.Line, Column: lexErr.Pos.Column}
	char := utf8.RuneError
	if pos.Offset >= 0 && pos.Offset < len(s.source) {
		char, _ = utf8.DecodeRuneInString(s.source[pos.Offset:])
	}
	return &LexicalError{Source: s.name, Pos: pos, Char: char}
}
