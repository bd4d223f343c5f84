package aql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	aql "github.com/alertql-engine/alertql"
	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/pipeline"
	"github.com/alertql-engine/alertql/mapping"
)

func TestCompileFullPipeline(t *testing.T) {
	root := models.NewBlock(models.ConnectiveAnd)
	root.Children = []*models.Node{{
		ID:       models.NewID(),
		Category: models.CategoryCondition,
		Field:    "candidate.drb",
		Operator: "$gt",
		Value:    0.9,
	}}
	projection := []models.ProjectionField{
		{FieldName: "candidate.ra", OutputName: "ra", Type: models.ProjectRound, RoundDecimals: 3},
	}
	opts := pipeline.Options{
		Lookup:     pipeline.LookupStages(mapping.AuxCollection("ZTF")),
		StartJD:    2459000.5,
		Pagination: pipeline.Pagination("candidate.jd", pipeline.SortDescending, 10, 0, nil),
	}

	stages, err := aql.Compile(context.Background(), nil, root, projection, opts)
	require.NoError(t, err)

	// lookup (2), window, match, project, sort, limit
	require.Len(t, stages, 7)
	assert.Contains(t, stages[2], "$match")
	assert.Equal(t, bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
		bson.M{"$gt": bson.A{"$candidate.drb", 0.9}},
	}}}}, stages[3])
	assert.Equal(t, bson.M{"$project": bson.M{
		"objectId": 1,
		"annotations": bson.M{
			"ra": bson.M{"$round": bson.A{"$candidate.ra", 3}},
		},
	}}, stages[4])
	assert.Contains(t, stages[5], "$sort")
	assert.Contains(t, stages[6], "$limit")
}

func TestCompileFailsFast(t *testing.T) {
	root := models.NewBlock(models.ConnectiveAnd)
	root.Children = []*models.Node{{
		ID:       models.NewID(),
		Category: models.CategoryCondition,
		Field:    "candidate.drb",
		Operator: "$bogus",
		Value:    1,
	}}
	_, err := aql.Compile(context.Background(), nil, root, nil, pipeline.Options{})
	assert.Error(t, err)
}

func TestCompileEmptyTreeProducesNoMatch(t *testing.T) {
	root := models.NewBlock(models.ConnectiveAnd)
	root.Children = []*models.Node{models.DefaultCondition()}

	stages, err := aql.Compile(context.Background(), nil, root, nil, pipeline.Options{})
	require.NoError(t, err)
	assert.Empty(t, stages)
}
