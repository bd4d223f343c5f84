package expr

import (
	"fmt"
	"strings"
)

// Expression node types
const (
	TypeField    = "FIELD"
	TypeLiteral  = "LITERAL"
	TypeBinary   = "BINARY"
	TypeFunction = "FUNCTION"
)

// Expression is a typed arithmetic expression AST node. Formulas over
// field paths compile to MongoDB aggregation expressions; there is no
// string-evaluation path anywhere.
type Expression struct {
	Type  string // FIELD, LITERAL, BINARY, FUNCTION
	Value string // field path or literal text

	// BINARY
	Left     *Expression
	Operator string
	Right    *Expression

	// FUNCTION
	FunctionName string
	FunctionArgs []*Expression
}

// Fields returns every field path referenced by the expression
func (e *Expression) Fields() []string {
	if e == nil {
		return nil
	}
	var out []string
	if e.Type == TypeField {
		out = append(out, e.Value)
	}
	out = append(out, e.Left.Fields()...)
	out = append(out, e.Right.Fields()...)
	for _, arg := range e.FunctionArgs {
		out = append(out, arg.Fields()...)
	}
	return out
}

// Parse converts an arithmetic formula into an expression AST
func Parse(input string) (*Expression, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expression, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TOKEN_EOF {
		return nil, NewParseError(p.current(), fmt.Sprintf("unexpected token '%s'", p.current().Value))
	}
	return expression, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TOKEN_EOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

// parseExpression handles + and - (lowest precedence)
func (p *parser) parseExpression() (*Expression, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TOKEN_OPERATOR && (p.current().Value == "+" || p.current().Value == "-") {
		op := p.advance().Value
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Expression{Type: TypeBinary, Left: left, Operator: op, Right: right}
	}
	return left, nil
}

// parseTerm handles *, / and %
func (p *parser) parseTerm() (*Expression, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TOKEN_OPERATOR &&
		(p.current().Value == "*" || p.current().Value == "/" || p.current().Value == "%") {
		op := p.advance().Value
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &Expression{Type: TypeBinary, Left: left, Operator: op, Right: right}
	}
	return left, nil
}

// parseFactor handles literals, fields, function calls, parenthesized
// sub-expressions and unary minus
func (p *parser) parseFactor() (*Expression, error) {
	tok := p.current()

	switch tok.Type {
	case TOKEN_NUMBER:
		p.advance()
		return &Expression{Type: TypeLiteral, Value: tok.Value}, nil

	case TOKEN_FIELD:
		p.advance()
		return &Expression{Type: TypeField, Value: tok.Value}, nil

	case TOKEN_FUNCTION:
		return p.parseFunction()

	case TOKEN_LPAREN:
		p.advance()
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current().Type != TOKEN_RPAREN {
			return nil, NewParseError(p.current(), "expected ')'")
		}
		p.advance()
		return inner, nil

	case TOKEN_OPERATOR:
		if tok.Value == "-" {
			p.advance()
			operand, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			return &Expression{
				Type:     TypeBinary,
				Left:     &Expression{Type: TypeLiteral, Value: "0"},
				Operator: "-",
				Right:    operand,
			}, nil
		}
	}

	return nil, NewParseError(tok, fmt.Sprintf("unexpected token '%s'", tok.Value))
}

func (p *parser) parseFunction() (*Expression, error) {
	nameTok := p.advance()
	name := strings.ToLower(nameTok.Value)
	if _, ok := Functions[name]; !ok {
		return nil, NewUnknownFunctionError(nameTok)
	}
	if p.current().Type != TOKEN_LPAREN {
		return nil, NewParseError(p.current(), "expected '(' after function name")
	}
	p.advance()

	var args []*Expression
	if p.current().Type != TOKEN_RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.current().Type != TOKEN_COMMA {
				break
			}
			p.advance()
		}
	}
	if p.current().Type != TOKEN_RPAREN {
		return nil, NewParseError(p.current(), "expected ')'")
	}
	p.advance()

	return &Expression{Type: TypeFunction, FunctionName: name, FunctionArgs: args}, nil
}
