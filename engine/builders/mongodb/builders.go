// Package mongodb assembles MongoDB aggregation expression fragments.
// Everything here is pure bson construction; no database connection is
// involved.
package mongodb

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/alertql-engine/alertql/engine/expr"
)

// FieldRef converts a field path to its aggregation reference, e.g.
// "candidate.jd" -> "$candidate.jd"
func FieldRef(path string) string {
	return "$" + path
}

// ElementRef converts an element-scoped field path to its $map/$filter
// alias reference, e.g. "jd" -> "$$this.jd". A leading "this." written by
// the query builder is stripped first.
func ElementRef(path string) string {
	path = strings.TrimPrefix(path, "this.")
	if path == "" || path == "this" {
		return "$$this"
	}
	return "$$this." + path
}

// BuildExpression converts an arithmetic expression AST to a MongoDB
// aggregation expression
func BuildExpression(e *expr.Expression) any {
	if e == nil {
		return nil
	}
	switch e.Type {
	case expr.TypeBinary:
		return buildBinary(e)
	case expr.TypeFunction:
		return buildFunction(e)
	case expr.TypeField:
		return FieldRef(e.Value)
	case expr.TypeLiteral:
		return ParseValue(e.Value)
	default:
		return nil
	}
}

func buildBinary(e *expr.Expression) any {
	left := BuildExpression(e.Left)
	right := BuildExpression(e.Right)

	switch e.Operator {
	case "+":
		return bson.M{"$add": bson.A{left, right}}
	case "-":
		return bson.M{"$subtract": bson.A{left, right}}
	case "*":
		return bson.M{"$multiply": bson.A{left, right}}
	case "/":
		return bson.M{"$divide": bson.A{left, right}}
	case "%":
		return bson.M{"$mod": bson.A{left, right}}
	default:
		return left
	}
}

func buildFunction(e *expr.Expression) any {
	keyword, ok := expr.Functions[e.FunctionName]
	if !ok {
		return nil
	}

	args := make(bson.A, 0, len(e.FunctionArgs))
	for _, arg := range e.FunctionArgs {
		args = append(args, BuildExpression(arg))
	}

	switch e.FunctionName {
	case "round":
		// $round takes [value, places]; places defaults to 0.
		if len(args) == 1 {
			args = append(args, 0)
		}
		return bson.M{keyword: args}
	case "pow":
		return bson.M{keyword: args}
	default:
		if len(args) == 1 {
			return bson.M{keyword: args[0]}
		}
		return bson.M{keyword: args}
	}
}

// ParseValue converts a literal string to its typed value: int when the
// number is integral, float64 otherwise, the raw string when not numeric
func ParseValue(value string) any {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		if f == float64(int(f)) && !strings.ContainsAny(value, ".eE") {
			return int(f)
		}
		return f
	}
	return value
}

// Round wraps an expression in $round with the decimal places clamped to
// [0, 10]
func Round(expression any, decimals int) bson.M {
	if decimals < 0 {
		decimals = 0
	}
	if decimals > 10 {
		decimals = 10
	}
	return bson.M{"$round": bson.A{expression, decimals}}
}
