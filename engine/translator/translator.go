// Package translator compiles condition trees and projection specs into
// MongoDB aggregation expression fragments.
//
// Variable references are resolved against the persisted set at compile
// time, not at tree-construction time: renaming or editing a saved
// variable changes what an existing tree compiles to.
package translator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	mongobuilders "github.com/alertql-engine/alertql/engine/builders/mongodb"
	"github.com/alertql-engine/alertql/engine/expr"
	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/validator"
)

// VariableStore resolves persisted variable names at compile time. Both
// methods return (nil, nil) when no variable with the name exists.
type VariableStore interface {
	Variable(ctx context.Context, name string) (*models.Variable, error)
	ListVariable(ctx context.Context, name string) (*models.ListVariable, error)
}

// Translator compiles filter trees against a variable store. A nil store
// is valid and resolves every field as a plain schema path.
type Translator struct {
	store VariableStore
}

// New returns a translator resolving variables through store
func New(store VariableStore) *Translator {
	return &Translator{store: store}
}

// operand resolves a condition's field to the expression it stands for:
// the element alias reference inside array builders, a saved variable's
// compiled expression, or a plain "$"-prefixed field path.
func (t *Translator) operand(ctx context.Context, field string, inElement bool) (any, error) {
	if inElement {
		return mongobuilders.ElementRef(field), nil
	}
	if t.store != nil {
		v, err := t.store.Variable(ctx, field)
		if err != nil {
			return nil, fmt.Errorf("resolving variable %q: %w", field, err)
		}
		if v != nil {
			return t.resolveVariable(v)
		}
		lv, err := t.store.ListVariable(ctx, field)
		if err != nil {
			return nil, fmt.Errorf("resolving list variable %q: %w", field, err)
		}
		if lv != nil {
			return t.resolveListVariable(ctx, lv)
		}
	}
	return mongobuilders.FieldRef(field), nil
}

// resolveVariable compiles a stored arithmetic variable expression. The
// stored text is tried as a JSON MongoDB-expression literal first, then as
// an arithmetic formula. There is deliberately no raw-string fallback: an
// expression that parses as neither is a validation error, not a literal
// smuggled into the pipeline.
func (t *Translator) resolveVariable(v *models.Variable) (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(v.Expression), &doc); err == nil {
		switch doc.(type) {
		case map[string]any, []any, float64, string:
			return doc, nil
		}
	}
	parsed, err := expr.Parse(v.Expression)
	if err != nil {
		return nil, &validator.ValidationError{
			Field:  v.Name,
			Reason: fmt.Sprintf("expression cannot be parsed: %v", err),
		}
	}
	return mongobuilders.BuildExpression(parsed), nil
}

// resolveListVariable compiles a stored list condition into the array
// expression it names
func (t *Translator) resolveListVariable(ctx context.Context, lv *models.ListVariable) (any, error) {
	lc := lv.ListCondition
	input := mongobuilders.FieldRef(lc.Field)
	if lc.SubField != "" {
		input = mongobuilders.FieldRef(lc.Field + "." + lc.SubField)
	}

	block, ok := models.AsNode(lc.Value)
	if !ok {
		return nil, &validator.ValidationError{
			Field:    lv.Name,
			Operator: lc.Operator,
			Reason:   "stored list condition has no nested block",
		}
	}
	sub, err := t.translateBlock(ctx, block, true)
	if err != nil {
		return nil, err
	}

	switch lc.Operator {
	case "$filter":
		return bson.M{"$filter": bson.M{"input": input, "as": "this", "cond": sub}}, nil
	case "$map":
		return bson.M{"$map": bson.M{"input": input, "as": "this", "in": sub}}, nil
	default:
		return nil, &validator.ValidationError{
			Field:    lv.Name,
			Operator: lc.Operator,
			Reason:   "is not a list condition operator",
		}
	}
}

// HasConditions reports whether the tree holds at least one meaningful
// condition. Trees without one compile to no $match stage at all.
func HasConditions(root *models.Node) bool {
	if root == nil {
		return false
	}
	if root.Category == models.CategoryCondition {
		return root.Field != "" && root.Operator != ""
	}
	for _, c := range root.Children {
		if HasConditions(c) {
			return true
		}
	}
	return false
}
