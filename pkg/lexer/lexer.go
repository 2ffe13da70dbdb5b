// Package lexer implements the lexical analyzer (tokenizer) for loxido.
package lexer

import (
	"unicode"

	"github.com/kristofer/loxido/pkg/token"
)

// Lexer scans Lox source text one byte at a time, producing tokens lazily.
type Lexer struct {
	input        string
	position     int // current position in input (points to current char)
	readPosition int // current reading position in input (after current char)
	ch           byte
	line         int
}

// New creates a new lexer over the given source string.
func New(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken returns the next token from the input, advancing the scanner.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespaceAndComments()

	tok := token.Token{Line: l.line}

	if l.ch == 0 {
		tok.Type = token.EOF
		return tok
	}

	switch l.ch {
	case '(':
		tok = l.simple(token.LeftParen)
	case ')':
		tok = l.simple(token.RightParen)
	case '{':
		tok = l.simple(token.LeftBrace)
	case '}':
		tok = l.simple(token.RightBrace)
	case ',':
		tok = l.simple(token.Comma)
	case '.':
		tok = l.simple(token.Dot)
	case '-':
		tok = l.simple(token.Minus)
	case '+':
		tok = l.simple(token.Plus)
	case ';':
		tok = l.simple(token.Semicolon)
	case '*':
		tok = l.simple(token.Star)
	case '/':
		tok = l.simple(token.Slash)
	case '!':
		tok = l.oneOrTwo(token.Bang, token.BangEqual)
	case '=':
		tok = l.oneOrTwo(token.Equal, token.EqualEqual)
	case '<':
		tok = l.oneOrTwo(token.Less, token.LessEqual)
	case '>':
		tok = l.oneOrTwo(token.Greater, token.GreaterEqual)
	case '"':
		tok.Type = token.String
		var ok bool
		tok.Lexeme, ok = l.readString()
		if !ok {
			tok.Type = token.Illegal
			tok.Lexeme = "unterminated string"
		}
	default:
		if isDigit(l.ch) {
			tok.Type = token.Number
			tok.Lexeme = l.readNumber()
			return tok
		} else if isAlpha(l.ch) {
			tok.Lexeme = l.readIdentifier()
			if kw, ok := token.Keywords[tok.Lexeme]; ok {
				tok.Type = kw
			} else {
				tok.Type = token.Identifier
			}
			return tok
		}
		tok.Type = token.Illegal
		tok.Lexeme = string(l.ch)
		l.readChar()
	}

	return tok
}

func (l *Lexer) simple(tt token.Type) token.Token {
	tok := token.Token{Type: tt, Lexeme: string(l.ch), Line: l.line}
	l.readChar()
	return tok
}

func (l *Lexer) oneOrTwo(single, double token.Type) token.Token {
	ch := l.ch
	if l.peekChar() == '=' {
		l.readChar()
		lexeme := string(ch) + string(l.ch)
		l.readChar()
		return token.Token{Type: double, Lexeme: lexeme, Line: l.line}
	}
	tok := token.Token{Type: single, Lexeme: string(ch), Line: l.line}
	l.readChar()
	return tok
}

// skipWhitespaceAndComments consumes runs of whitespace and // line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case '\n':
			l.line++
			l.readChar()
		case '/':
			if l.peekChar() == '/' {
				for l.ch != '\n' && l.ch != 0 {
					l.readChar()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

// readString reads the body of a double-quoted string; Lox strings span
// multiple lines and have no escape sequences. ok is false if EOF was hit
// before the closing quote.
func (l *Lexer) readString() (string, bool) {
	l.readChar() // opening quote
	start := l.position
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\n' {
			l.line++
		}
		l.readChar()
	}
	if l.ch == 0 {
		return "", false
	}
	str := l.input[start:l.position]
	l.readChar() // closing quote
	return str, true
}

func (l *Lexer) readIdentifier() string {
	start := l.position
	for isAlpha(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

// readNumber reads an integer or floating-point literal; the decimal point
// must be followed by a digit or it is left for the caller (e.g. a method
// call on a number literal).
func (l *Lexer) readNumber() string {
	start := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[start:l.position]
}

func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}

func isAlpha(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || ch == '_'
}
