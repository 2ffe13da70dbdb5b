package lexer

import (
	"testing"

	"github.com/kristofer/loxido/pkg/token"
)

func TestNextToken_BasicTokens(t *testing.T) {
	input := `(){},.-+;*/`

	tests := []struct {
		expectedType   token.Type
		expectedLexeme string
	}{
		{token.LeftParen, "("},
		{token.RightParen, ")"},
		{token.LeftBrace, "{"},
		{token.RightBrace, "}"},
		{token.Comma, ","},
		{token.Dot, "."},
		{token.Minus, "-"},
		{token.Plus, "+"},
		{token.Semicolon, ";"},
		{token.Star, "*"},
		{token.Slash, "/"},
		{token.EOF, ""},
	}

	l := New(input)

	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - type wrong. expected=%s, got=%s", i, tt.expectedType, tok.Type)
		}
		if tok.Lexeme != tt.expectedLexeme {
			t.Fatalf("tests[%d] - lexeme wrong. expected=%q, got=%q", i, tt.expectedLexeme, tok.Lexeme)
		}
	}
}

func TestNextToken_Operators(t *testing.T) {
	input := `! != = == < <= > >=`

	tests := []struct {
		expectedType   token.Type
		expectedLexeme string
	}{
		{token.Bang, "!"},
		{token.BangEqual, "!="},
		{token.Equal, "="},
		{token.EqualEqual, "=="},
		{token.Less, "<"},
		{token.LessEqual, "<="},
		{token.Greater, ">"},
		{token.GreaterEqual, ">="},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - type wrong. expected=%s, got=%s", i, tt.expectedType, tok.Type)
		}
		if tok.Lexeme != tt.expectedLexeme {
			t.Fatalf("tests[%d] - lexeme wrong. expected=%q, got=%q", i, tt.expectedLexeme, tok.Lexeme)
		}
	}
}

func TestNextToken_KeywordsAndIdentifiers(t *testing.T) {
	input := `and class else false for fun if nil or print return super this true var while orbit`

	tests := []struct {
		expectedType   token.Type
		expectedLexeme string
	}{
		{token.And, "and"},
		{token.Class, "class"},
		{token.Else, "else"},
		{token.False, "false"},
		{token.For, "for"},
		{token.Fun, "fun"},
		{token.If, "if"},
		{token.Nil, "nil"},
		{token.Or, "or"},
		{token.Print, "print"},
		{token.Return, "return"},
		{token.Super, "super"},
		{token.This, "this"},
		{token.True, "true"},
		{token.Var, "var"},
		{token.While, "while"},
		{token.Identifier, "orbit"},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - type wrong for %q. expected=%s, got=%s", i, tt.expectedLexeme, tt.expectedType, tok.Type)
		}
	}
}

func TestNextToken_NumbersAndStrings(t *testing.T) {
	input := `123 45.67 "hello world"`

	l := New(input)

	tok := l.NextToken()
	if tok.Type != token.Number || tok.Lexeme != "123" {
		t.Fatalf("expected integer 123, got %s %q", tok.Type, tok.Lexeme)
	}

	tok = l.NextToken()
	if tok.Type != token.Number || tok.Lexeme != "45.67" {
		t.Fatalf("expected float 45.67, got %s %q", tok.Type, tok.Lexeme)
	}

	tok = l.NextToken()
	if tok.Type != token.String || tok.Lexeme != "hello world" {
		t.Fatalf("expected string %q, got %s %q", "hello world", tok.Type, tok.Lexeme)
	}
}

func TestNextToken_LineCommentsSkipped(t *testing.T) {
	input := "// this is a comment\nvar x = 1;"

	l := New(input)
	tok := l.NextToken()
	if tok.Type != token.Var {
		t.Fatalf("expected var after comment, got %s", tok.Type)
	}
	if tok.Line != 2 {
		t.Fatalf("expected line 2, got %d", tok.Line)
	}
}

func TestNextToken_MultilineString(t *testing.T) {
	input := "\"line one\nline two\" var"

	l := New(input)
	tok := l.NextToken()
	if tok.Type != token.String {
		t.Fatalf("expected string, got %s", tok.Type)
	}
	tok = l.NextToken()
	if tok.Type != token.Var {
		t.Fatalf("expected var after multiline string, got %s", tok.Type)
	}
	if tok.Line != 2 {
		t.Fatalf("expected line to have advanced to 2, got %d", tok.Line)
	}
}

func TestNextToken_UnterminatedString(t *testing.T) {
	l := New(`"no closing quote`)
	tok := l.NextToken()
	if tok.Type != token.Illegal {
		t.Fatalf("expected illegal token for unterminated string, got %s", tok.Type)
	}
}
