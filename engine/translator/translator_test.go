package translator_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/translator"
	"github.com/alertql-engine/alertql/engine/validator"
)

// fakeStore serves variables from in-memory maps
type fakeStore struct {
	variables     map[string]*models.Variable
	listVariables map[string]*models.ListVariable
}

func (s *fakeStore) Variable(_ context.Context, name string) (*models.Variable, error) {
	return s.variables[name], nil
}

func (s *fakeStore) ListVariable(_ context.Context, name string) (*models.ListVariable, error) {
	return s.listVariables[name], nil
}

func cond(field, operator string, value any) *models.Node {
	return &models.Node{
		ID:       models.NewID(),
		Category: models.CategoryCondition,
		Field:    field,
		Operator: operator,
		Value:    value,
	}
}

func andBlock(children ...*models.Node) *models.Node {
	b := models.NewBlock(models.ConnectiveAnd)
	b.Children = children
	return b
}

func TestTranslateComparison(t *testing.T) {
	tr := translator.New(nil)
	got, err := tr.TranslateTree(context.Background(), andBlock(cond("candidate.jd", "$gt", 2459000.5)))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$gt": bson.A{"$candidate.jd", 2459000.5}},
	}}, got)
}

func TestTranslateConditionHasOneTopLevelKey(t *testing.T) {
	tr := translator.New(nil)
	for _, c := range []*models.Node{
		cond("candidate.jd", "$lte", 5),
		cond("objectId", "$regex", "^ZTF"),
		cond("candidate.drb", "$exists", nil),
		cond("candidate.drb", "$isNumber", nil),
		cond("fluxes", "$lengthGt", 3),
	} {
		got, err := tr.TranslateTree(context.Background(), andBlock(c))
		require.NoError(t, err, c.Operator)
		parts := got["$and"].(bson.A)
		require.Len(t, parts, 1)
		assert.Len(t, parts[0].(bson.M), 1, c.Operator)
	}
}

func TestTranslateConnectives(t *testing.T) {
	tr := translator.New(nil)
	for connective, keyword := range map[string]string{
		models.ConnectiveAnd: "$and",
		models.ConnectiveOr:  "$or",
		models.ConnectiveNor: "$nor",
	} {
		block := models.NewBlock(connective)
		block.Children = []*models.Node{
			cond("a", "$eq", 1),
			cond("b", "$eq", 2),
			cond("c", "$eq", 3),
		}
		got, err := tr.TranslateTree(context.Background(), block)
		require.NoError(t, err, connective)
		parts, ok := got[keyword].(bson.A)
		require.True(t, ok, connective)
		// Every child contributes, in order.
		require.Len(t, parts, 3)
		assert.Equal(t, bson.M{"$eq": bson.A{"$a", 1}}, parts[0])
		assert.Equal(t, bson.M{"$eq": bson.A{"$c", 3}}, parts[2])
	}
}

func TestTranslateSkipsEmptyDefaultConditions(t *testing.T) {
	tr := translator.New(nil)
	block := andBlock(models.DefaultCondition(), cond("candidate.jd", "$gt", 5))
	got, err := tr.TranslateTree(context.Background(), block)
	require.NoError(t, err)
	assert.Len(t, got["$and"].(bson.A), 1)

	// A block with nothing but placeholders cannot compile.
	_, err = tr.TranslateTree(context.Background(), andBlock(models.DefaultCondition()))
	assert.Error(t, err)
}

func TestTranslateExists(t *testing.T) {
	tr := translator.New(nil)
	got, err := tr.TranslateTree(context.Background(), andBlock(cond("candidate.drb", "$exists", nil)))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$ne": bson.A{bson.M{"$type": "$candidate.drb"}, "missing"}},
	}}, got)
}

func TestTranslateRegexIsCaseInsensitive(t *testing.T) {
	tr := translator.New(nil)
	got, err := tr.TranslateTree(context.Background(), andBlock(cond("objectId", "$regex", "^ZTF2")))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$regexMatch": bson.M{"input": "$objectId", "regex": "^ZTF2", "options": "i"}},
	}}, got)
}

func TestTranslateArrayBoolean(t *testing.T) {
	sub := andBlock(cond("this.jd", "$gt", 5))
	c := cond("prv_candidates", "$anyElementTrue", sub)

	tr := translator.New(nil)
	got, err := tr.TranslateTree(context.Background(), andBlock(c))
	require.NoError(t, err)

	// Element conditions reference the $map alias, never the document root.
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$anyElementTrue": bson.M{"$map": bson.M{
			"input": "$prv_candidates",
			"as":    "this",
			"in":    bson.M{"$and": bson.A{bson.M{"$gt": bson.A{"$$this.jd", 5}}}},
		}}},
	}}, got)
}

func TestTranslateArrayBooleanRequiresBlock(t *testing.T) {
	tr := translator.New(nil)
	_, err := tr.TranslateTree(context.Background(),
		andBlock(cond("prv_candidates", "$allElementsTrue", 5)))
	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTranslateArrayLength(t *testing.T) {
	tr := translator.New(nil)
	got, err := tr.TranslateTree(context.Background(), andBlock(cond("fluxes", "$lengthGt", "3")))
	require.NoError(t, err)
	// The value typed as a string is parsed into a number.
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$gt": bson.A{bson.M{"$size": "$fluxes"}, 3}},
	}}, got)
}

func TestTranslateAggregationWithSubField(t *testing.T) {
	c := cond("prv_candidates", "$avg", nil)
	c.SubField = "magpsf"
	tr := translator.New(nil)
	got, err := tr.TranslateTree(context.Background(), andBlock(c))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$avg": "$prv_candidates.magpsf"},
	}}, got)
}

func TestTranslateRoundClampsDecimals(t *testing.T) {
	c := cond("candidate.ra", "$round", 99)
	tr := translator.New(nil)
	got, err := tr.TranslateTree(context.Background(), andBlock(c))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$round": bson.A{"$candidate.ra", 10}},
	}}, got)
}

func TestTranslateRoundDecimalsFromDecodedTree(t *testing.T) {
	// JSON decoding delivers the decimal count as a float64, bson as
	// int32/int64; the authored value must survive either way.
	raw := `{
		"id": "root", "category": "block", "operator": "and",
		"children": [
			{"id": "c1", "category": "condition", "operator": "$round", "field": "candidate.ra", "value": 3}
		]
	}`
	var root models.Node
	require.NoError(t, json.Unmarshal([]byte(raw), &root))

	tr := translator.New(nil)
	got, err := tr.TranslateTree(context.Background(), &root)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$round": bson.A{"$candidate.ra", 3}},
	}}, got)

	root.Children[0].Value = int64(4)
	got, err = tr.TranslateTree(context.Background(), &root)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$round": bson.A{"$candidate.ra", 4}},
	}}, got)
}

func TestMatchStage(t *testing.T) {
	tr := translator.New(nil)

	stage, err := tr.MatchStage(context.Background(), andBlock(cond("candidate.jd", "$gt", 5)))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
		bson.M{"$gt": bson.A{"$candidate.jd", 5}},
	}}}}, stage)

	// A tree with only placeholders compiles to no stage at all.
	stage, err = tr.MatchStage(context.Background(), andBlock(models.DefaultCondition()))
	require.NoError(t, err)
	assert.Nil(t, stage)
}

func TestVariableResolution(t *testing.T) {
	store := &fakeStore{variables: map[string]*models.Variable{
		"color": {Name: "color", Expression: "candidate.magpsf - candidate.magnr"},
		"half":  {Name: "half", Expression: `{"$divide": ["$candidate.fwhm", 2]}`},
		"bad":   {Name: "bad", Expression: "not a formula !!"},
	}}
	tr := translator.New(store)

	got, err := tr.TranslateTree(context.Background(), andBlock(cond("color", "$lt", 0)))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$lt": bson.A{
			bson.M{"$subtract": bson.A{"$candidate.magpsf", "$candidate.magnr"}},
			0,
		}},
	}}, got)

	// JSON expression documents pass through decoded.
	got, err = tr.TranslateTree(context.Background(), andBlock(cond("half", "$gt", 1)))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$gt": bson.A{
			map[string]any{"$divide": []any{"$candidate.fwhm", 2.0}},
			1,
		}},
	}}, got)

	// An expression that parses as neither is rejected, never smuggled in
	// as a raw string.
	_, err = tr.TranslateTree(context.Background(), andBlock(cond("bad", "$gt", 1)))
	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bad", verr.Field)
}

func TestListVariableResolution(t *testing.T) {
	store := &fakeStore{listVariables: map[string]*models.ListVariable{
		"bright": {
			Name: "bright",
			ListCondition: models.ListCondition{
				Field:    "prv_candidates",
				Operator: "$filter",
				Value: map[string]any{
					"id": "b1", "category": "block", "operator": "and",
					"children": []any{map[string]any{
						"id": "c1", "category": "condition",
						"operator": "$lt", "field": "this.magpsf", "value": 18,
					}},
				},
			},
		},
	}}
	tr := translator.New(store)

	c := cond("bright", "$lengthGt", 2)
	got, err := tr.TranslateTree(context.Background(), andBlock(c))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$gt": bson.A{
			bson.M{"$size": bson.M{"$filter": bson.M{
				"input": "$prv_candidates",
				"as":    "this",
				"cond":  bson.M{"$and": bson.A{bson.M{"$lt": bson.A{"$$this.magpsf", float64(18)}}}},
			}}},
			2,
		}},
	}}, got)
}

func TestHasConditions(t *testing.T) {
	assert.False(t, translator.HasConditions(nil))
	assert.False(t, translator.HasConditions(andBlock(models.DefaultCondition())))
	assert.True(t, translator.HasConditions(andBlock(cond("f", "$eq", 1))))

	nested := andBlock(andBlock(cond("f", "$eq", 1)))
	assert.True(t, translator.HasConditions(nested))
}
