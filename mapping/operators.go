package mapping

// Operator categories. The category decides how the translator renders a
// condition: comparison and string operators compare a field against a
// value, array_boolean operators recurse into a nested block, aggregation
// operators reduce an array to a scalar.
const (
	CategoryComparison   = "comparison"
	CategoryArray        = "array"
	CategoryArrayBoolean = "array_boolean"
	CategoryArraySingle  = "array_single"
	CategoryAggregation  = "aggregation"
	CategoryExists       = "exists"
	CategoryString       = "string"
)

// OperatorInfo describes one filter operator
type OperatorInfo struct {
	MongoKeyword string // aggregation-expression keyword emitted by the translator
	Label        string // human label shown by the query builder
	Category     string
}

// Operators - Runtime mapping for the translator
// Usage: Operators["$eq"] returns {MongoKeyword: "$eq", ...}
var Operators = map[string]OperatorInfo{
	// Basic comparison operators
	"$eq":  {MongoKeyword: "$eq", Label: "equals", Category: CategoryComparison},
	"$ne":  {MongoKeyword: "$ne", Label: "not equal to", Category: CategoryComparison},
	"$gt":  {MongoKeyword: "$gt", Label: "greater than", Category: CategoryComparison},
	"$gte": {MongoKeyword: "$gte", Label: "greater than or equal to", Category: CategoryComparison},
	"$lt":  {MongoKeyword: "$lt", Label: "less than", Category: CategoryComparison},
	"$lte": {MongoKeyword: "$lte", Label: "less than or equal to", Category: CategoryComparison},

	// Presence / type checks
	"$exists":   {MongoKeyword: "$type", Label: "exists", Category: CategoryExists},
	"$isNumber": {MongoKeyword: "$isNumber", Label: "is a number", Category: CategoryExists},

	// Array element reduction over a nested condition block
	"$anyElementTrue":  {MongoKeyword: "$anyElementTrue", Label: "any element matches", Category: CategoryArrayBoolean},
	"$allElementsTrue": {MongoKeyword: "$allElementsTrue", Label: "all elements match", Category: CategoryArrayBoolean},

	// Array element selection / mapping
	"$filter": {MongoKeyword: "$filter", Label: "filter elements", Category: CategoryArraySingle},
	"$map":    {MongoKeyword: "$map", Label: "map elements", Category: CategoryArraySingle},

	// Array length
	"$lengthGt": {MongoKeyword: "$gt", Label: "length greater than", Category: CategoryArray},
	"$lengthLt": {MongoKeyword: "$lt", Label: "length less than", Category: CategoryArray},

	// Array aggregation
	"$min":   {MongoKeyword: "$min", Label: "minimum", Category: CategoryAggregation},
	"$max":   {MongoKeyword: "$max", Label: "maximum", Category: CategoryAggregation},
	"$avg":   {MongoKeyword: "$avg", Label: "average", Category: CategoryAggregation},
	"$sum":   {MongoKeyword: "$sum", Label: "sum", Category: CategoryAggregation},
	"$round": {MongoKeyword: "$round", Label: "round", Category: CategoryAggregation},

	// String operators
	"$regex": {MongoKeyword: "$regexMatch", Label: "matches pattern", Category: CategoryString},
	"$type":  {MongoKeyword: "$type", Label: "has BSON type", Category: CategoryString},
}

// OperatorsByType - ordered operator lists per resolved semantic type.
// Order is what the query builder shows in its dropdowns, so it is part of
// the contract and must stay deterministic.
var OperatorsByType = map[string][]string{
	TypeNumber: {
		"$eq", "$ne", "$gt", "$gte", "$lt", "$lte",
		"$exists", "$isNumber",
	},
	TypeString: {
		"$eq", "$ne", "$regex", "$type", "$exists",
	},
	TypeBoolean: {
		"$eq", "$ne", "$exists",
	},
	TypeArray: {
		"$anyElementTrue", "$allElementsTrue", "$filter", "$map",
		"$min", "$max", "$avg", "$sum",
		"$lengthGt", "$lengthLt", "$exists",
	},
	TypeObject: {
		"$exists", "$type",
	},
	// Named list variables resolve to array expressions, not stored fields,
	// so presence checks make no sense for them.
	TypeArrayVariable: {
		"$min", "$max", "$avg", "$sum",
		"$anyElementTrue", "$allElementsTrue", "$filter", "$map",
		"$lengthGt", "$lengthLt",
	},
	// Same as array_variable minus the length operators.
	TypeArrayVariableBoolean: {
		"$min", "$max", "$avg", "$sum",
		"$anyElementTrue", "$allElementsTrue", "$filter", "$map",
	},
}

// OperatorsFor returns the permitted operator symbols for a semantic type
func OperatorsFor(semanticType string) ([]string, bool) {
	ops, ok := OperatorsByType[semanticType]
	return ops, ok
}

// Lookup returns the operator definition for a symbol
func Lookup(operator string) (OperatorInfo, bool) {
	info, ok := Operators[operator]
	return info, ok
}

// IsAllowed reports whether an operator is permitted for a semantic type
func IsAllowed(semanticType, operator string) bool {
	ops, ok := OperatorsByType[semanticType]
	if !ok {
		return false
	}
	for _, op := range ops {
		if op == operator {
			return true
		}
	}
	return false
}
