package mapping

// Semantic types resolved from the alert schema. Every flattened field
// descriptor carries exactly one of the first five; the two array-variable
// pseudo-types exist only for named list variables referenced by other
// conditions.
const (
	TypeNumber  = "number"
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"

	TypeArrayVariable        = "array_variable"
	TypeArrayVariableBoolean = "array_variable_boolean"
)

// AvroTypeMap - Runtime mapping for the schema flattener
// Usage: AvroTypeMap["double"] returns "number"
// Maps Avro primitive type names to semantic types
var AvroTypeMap = map[string]string{
	// Numeric types
	"int":    TypeNumber,
	"long":   TypeNumber,
	"float":  TypeNumber,
	"double": TypeNumber,

	// String types
	"string": TypeString,
	"bytes":  TypeString,
	"enum":   TypeString,

	// Boolean
	"boolean": TypeBoolean,
}

// SemanticTypeOf resolves an Avro primitive name to its semantic type
func SemanticTypeOf(avroType string) (string, bool) {
	t, ok := AvroTypeMap[avroType]
	return t, ok
}

// ArithmeticTypes lists semantic types usable inside arithmetic variable
// expressions. Booleans are condition targets but never arithmetic operands.
var ArithmeticTypes = []string{TypeNumber}

// IsArithmetic reports whether fields of a semantic type may appear in
// arithmetic variable expressions
func IsArithmetic(semanticType string) bool {
	for _, t := range ArithmeticTypes {
		if t == semanticType {
			return true
		}
	}
	return false
}
