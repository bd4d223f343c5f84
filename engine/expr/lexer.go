package expr

import (
	"fmt"
	"unicode"
)

// Tokenizer converts an arithmetic formula to tokens
type Tokenizer struct {
	input  string
	pos    int
	column int
	tokens []Token
}

// Tokenize converts a formula string to tokens
func Tokenize(input string) ([]Token, error) {
	t := &Tokenizer{
		input:  input,
		pos:    0,
		column: 1,
	}
	return t.tokenize()
}

func (t *Tokenizer) tokenize() ([]Token, error) {
	for t.pos < len(t.input) {
		ch := t.input[t.pos]

		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			t.advance()
			continue
		}

		switch ch {
		case '(':
			t.addToken(TOKEN_LPAREN, "(")
			t.advance()
			continue
		case ')':
			t.addToken(TOKEN_RPAREN, ")")
			t.advance()
			continue
		case ',':
			t.addToken(TOKEN_COMMA, ",")
			t.advance()
			continue
		case '+', '-', '*', '/', '%':
			t.addToken(TOKEN_OPERATOR, string(ch))
			t.advance()
			continue
		}

		if unicode.IsDigit(rune(ch)) {
			t.scanNumber()
			continue
		}

		// Field paths and function names: letters, digits, '_' and '.'
		if unicode.IsLetter(rune(ch)) || ch == '_' {
			t.scanWord()
			continue
		}

		return nil, &ParseError{
			Message:  fmt.Sprintf("unexpected character '%c'", ch),
			Position: t.pos,
			Column:   t.column,
		}
	}

	t.addToken(TOKEN_EOF, "")
	return t.tokens, nil
}

func (t *Tokenizer) scanNumber() {
	start := t.pos
	startCol := t.column
	seenDot := false
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		if unicode.IsDigit(rune(ch)) {
			t.advance()
			continue
		}
		if ch == '.' && !seenDot && t.pos+1 < len(t.input) && unicode.IsDigit(rune(t.input[t.pos+1])) {
			seenDot = true
			t.advance()
			continue
		}
		break
	}
	t.tokens = append(t.tokens, Token{
		Type:     TOKEN_NUMBER,
		Value:    t.input[start:t.pos],
		Position: start,
		Column:   startCol,
	})
}

func (t *Tokenizer) scanWord() {
	start := t.pos
	startCol := t.column
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		if unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)) || ch == '_' || ch == '.' {
			t.advance()
			continue
		}
		break
	}
	word := t.input[start:t.pos]

	// A word directly followed by '(' is a function call.
	tokenType := TOKEN_FIELD
	if t.pos < len(t.input) && t.input[t.pos] == '(' {
		tokenType = TOKEN_FUNCTION
	}
	t.tokens = append(t.tokens, Token{
		Type:     tokenType,
		Value:    word,
		Position: start,
		Column:   startCol,
	})
}

func (t *Tokenizer) addToken(tokenType TokenType, value string) {
	t.tokens = append(t.tokens, Token{
		Type:     tokenType,
		Value:    value,
		Position: t.pos,
		Column:   t.column,
	})
}

func (t *Tokenizer) advance() {
	t.pos++
	t.column++
}
