package expr

// TokenType identifies a lexical token
type TokenType int

const (
	TOKEN_FIELD TokenType = iota
	TOKEN_NUMBER
	TOKEN_OPERATOR
	TOKEN_FUNCTION
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_COMMA
	TOKEN_EOF
)

// Token is one lexical token with position info
type Token struct {
	Type     TokenType
	Value    string
	Position int
	Column   int
}

// Functions supported in arithmetic variable expressions, mapped to the
// aggregation operators they compile to
var Functions = map[string]string{
	"abs":   "$abs",
	"round": "$round",
	"sqrt":  "$sqrt",
	"pow":   "$pow",
	"log10": "$log10",
	"exp":   "$exp",
}
