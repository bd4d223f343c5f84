package expr

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ParseError represents an expression error with position info
type ParseError struct {
	Message  string
	Position int
	Column   int
	Token    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expression error at column %d: %s", e.Column, e.Message)
}

// NewParseError creates a parse error anchored at a token
func NewParseError(token Token, message string) *ParseError {
	return &ParseError{
		Message:  message,
		Position: token.Position,
		Column:   token.Column,
		Token:    token.Value,
	}
}

// NewUnknownFunctionError creates an error with a suggestion
func NewUnknownFunctionError(token Token) *ParseError {
	msg := fmt.Sprintf("unknown function '%s'", token.Value)
	if suggestion := SuggestFunction(token.Value); suggestion != "" {
		msg += fmt.Sprintf(". Did you mean '%s'?", suggestion)
	}
	return NewParseError(token, msg)
}

// SuggestFunction finds the closest supported function name
func SuggestFunction(unknown string) string {
	unknown = strings.ToLower(unknown)
	const maxDistance = 2

	best := ""
	bestDist := maxDistance + 1
	for name := range Functions {
		if d := levenshtein.ComputeDistance(unknown, name); d < bestDist {
			bestDist = d
			best = name
		}
	}
	return best
}
