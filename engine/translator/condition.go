package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"

	mongobuilders "github.com/alertql-engine/alertql/engine/builders/mongodb"
	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/validator"
	"github.com/alertql-engine/alertql/mapping"
)

// TranslateTree compiles a filter tree to a single boolean aggregation
// expression
func (t *Translator) TranslateTree(ctx context.Context, root *models.Node) (bson.M, error) {
	return t.translateBlock(ctx, root, false)
}

// MatchStage compiles the tree to its $match stage, or nil when the tree
// holds no meaningful conditions
func (t *Translator) MatchStage(ctx context.Context, root *models.Node) (bson.M, error) {
	if !HasConditions(root) {
		return nil, nil
	}
	expression, err := t.TranslateTree(ctx, root)
	if err != nil {
		return nil, err
	}
	return bson.M{"$match": bson.M{"$expr": expression}}, nil
}

func (t *Translator) translateBlock(ctx context.Context, n *models.Node, inElement bool) (bson.M, error) {
	if n == nil {
		return nil, fmt.Errorf("translate: nil node")
	}
	if !n.IsBlock() {
		return t.translateCondition(ctx, n, inElement)
	}

	var keyword string
	switch n.Operator {
	case models.ConnectiveAnd:
		keyword = "$and"
	case models.ConnectiveOr:
		keyword = "$or"
	case models.ConnectiveNor:
		keyword = "$nor"
	default:
		return nil, &validator.ValidationError{
			Reason: fmt.Sprintf("block %s has unknown connective %q", n.ID, n.Operator),
		}
	}

	if len(n.Children) == 0 {
		return nil, fmt.Errorf("translate: block %s has no children", n.ID)
	}

	parts := bson.A{}
	for _, child := range n.Children {
		// Default empty conditions are placeholders, not constraints.
		if !child.IsBlock() && child.Field == "" {
			continue
		}
		part, err := t.translateBlock(ctx, child, inElement)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("translate: block %s has no meaningful conditions", n.ID)
	}
	return bson.M{keyword: parts}, nil
}

// translateCondition converts one condition into an expression fragment
// with exactly one top-level operator key
func (t *Translator) translateCondition(ctx context.Context, cond *models.Node, inElement bool) (bson.M, error) {
	info, ok := mapping.Lookup(cond.Operator)
	if !ok {
		return nil, &validator.ValidationError{
			Field:    cond.Field,
			Operator: cond.Operator,
			Reason:   "is not a known operator",
		}
	}

	operand, err := t.operand(ctx, cond.Field, inElement)
	if err != nil {
		return nil, err
	}

	switch info.Category {
	case mapping.CategoryComparison:
		return bson.M{info.MongoKeyword: bson.A{operand, conditionValue(cond.Value)}}, nil

	case mapping.CategoryExists:
		if cond.Operator == "$isNumber" {
			// $isNumber is false for missing fields, no guard needed.
			return bson.M{"$isNumber": operand}, nil
		}
		// Field presence: a missing path has BSON type "missing".
		return bson.M{"$ne": bson.A{bson.M{"$type": operand}, "missing"}}, nil

	case mapping.CategoryAggregation:
		return t.translateAggregation(ctx, cond, info, operand, inElement)

	case mapping.CategoryArrayBoolean:
		sub, err := t.translateValueBlock(ctx, cond)
		if err != nil {
			return nil, err
		}
		return bson.M{info.MongoKeyword: bson.M{"$map": bson.M{
			"input": operand,
			"as":    "this",
			"in":    sub,
		}}}, nil

	case mapping.CategoryArraySingle:
		sub, err := t.translateValueBlock(ctx, cond)
		if err != nil {
			return nil, err
		}
		if cond.Operator == "$filter" {
			return bson.M{"$filter": bson.M{"input": operand, "as": "this", "cond": sub}}, nil
		}
		return bson.M{"$map": bson.M{"input": operand, "as": "this", "in": sub}}, nil

	case mapping.CategoryArray:
		// $lengthGt / $lengthLt
		return bson.M{info.MongoKeyword: bson.A{bson.M{"$size": operand}, conditionValue(cond.Value)}}, nil

	case mapping.CategoryString:
		if cond.Operator == "$regex" {
			return bson.M{"$regexMatch": bson.M{
				"input":   operand,
				"regex":   cond.Value,
				"options": "i",
			}}, nil
		}
		return bson.M{"$eq": bson.A{bson.M{"$type": operand}, cond.Value}}, nil
	}

	return nil, &validator.ValidationError{
		Field:    cond.Field,
		Operator: cond.Operator,
		Reason:   fmt.Sprintf("has unhandled category %q", info.Category),
	}
}

// translateAggregation reduces an array to a scalar. With a subField the
// aggregation runs over "$<field>.<subField>"; list variables aggregate
// over their resolved array expression.
func (t *Translator) translateAggregation(ctx context.Context, cond *models.Node, info mapping.OperatorInfo, operand any, inElement bool) (bson.M, error) {
	input := operand
	if cond.SubField != "" {
		if ref, isRef := operand.(string); isRef {
			input = ref + "." + cond.SubField
		}
	}
	if cond.Operator == "$round" {
		return mongobuilders.Round(input, asInt(cond.Value)), nil
	}
	return bson.M{info.MongoKeyword: input}, nil
}

func (t *Translator) translateValueBlock(ctx context.Context, cond *models.Node) (bson.M, error) {
	sub, ok := cond.ValueBlock()
	if !ok {
		return nil, &validator.ValidationError{
			Field:    cond.Field,
			Operator: cond.Operator,
			Reason:   "requires a nested condition block",
		}
	}
	return t.translateBlock(ctx, sub, true)
}

// conditionValue normalizes a condition value: strings typed into the
// builder are parsed into numbers when numeric, everything else passes
// through
func conditionValue(v any) any {
	if s, ok := v.(string); ok {
		return mongobuilders.ParseValue(s)
	}
	return v
}

// asInt coerces a decoded numeric value to int. Trees arrive with
// different number types depending on the path: float64 from JSON,
// int32/int64 from bson, json.Number from the model decoder.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int(f)
		}
	}
	return 0
}
