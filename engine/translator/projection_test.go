package translator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/translator"
)

func TestProjectStageEmpty(t *testing.T) {
	tr := translator.New(nil)
	stage, err := tr.ProjectStage(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, stage)
}

func TestProjectStageShape(t *testing.T) {
	tr := translator.New(nil)
	stage, err := tr.ProjectStage(context.Background(), []models.ProjectionField{
		{FieldName: "candidate.ra", OutputName: "ra", Type: models.ProjectRound, RoundDecimals: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$project": bson.M{
		"objectId": 1,
		"annotations": bson.M{
			"ra": bson.M{"$round": bson.A{"$candidate.ra", 3}},
		},
	}}, stage)
}

func TestBuildAnnotationsEntries(t *testing.T) {
	tr := translator.New(nil)
	ann, err := tr.BuildAnnotations(context.Background(), []models.ProjectionField{
		{FieldName: "candidate.drb", OutputName: "drb", Type: models.ProjectInclude},
		{FieldName: "candidate.fid", OutputName: "fid", Type: models.ProjectExclude},
		{FieldName: "prv_candidates", OutputName: "peak", Type: models.ProjectMin, SubField: "magpsf"},
		{FieldName: "prv_candidates", OutputName: "ndet", Type: models.ProjectCount},
		{FieldName: "prv_candidates", OutputName: "mags", Type: models.ProjectMap,
			MapQuery: bson.M{"$map": bson.M{"input": "$prv_candidates", "as": "this", "in": "$$this.magpsf"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "$candidate.drb", ann["drb"])
	assert.Equal(t, 0, ann["fid"])
	assert.Equal(t, bson.M{"$min": "$prv_candidates.magpsf"}, ann["peak"])
	assert.Equal(t, bson.M{"$size": "$prv_candidates"}, ann["ndet"])
	assert.Equal(t,
		bson.M{"$map": bson.M{"input": "$prv_candidates", "as": "this", "in": "$$this.magpsf"}},
		ann["mags"])
}

func TestBuildAnnotationsAggregationOutput(t *testing.T) {
	tr := translator.New(nil)
	ann, err := tr.BuildAnnotations(context.Background(), []models.ProjectionField{
		{FieldName: "prv_candidates", OutputName: "avgmag", Type: models.ProjectAvg,
			SubField: "magpsf", AggregationOutputType: models.ProjectRound, RoundDecimals: 2},
	})
	require.NoError(t, err)
	assert.Equal(t,
		bson.M{"$round": bson.A{bson.M{"$avg": "$prv_candidates.magpsf"}, 2}},
		ann["avgmag"])
}

func TestBuildAnnotationsSkipsObjectID(t *testing.T) {
	tr := translator.New(nil)
	ann, err := tr.BuildAnnotations(context.Background(), []models.ProjectionField{
		{FieldName: "objectId", OutputName: "objectId", Type: models.ProjectInclude},
		{FieldName: "candidate.jd", OutputName: "objectId", Type: models.ProjectInclude},
		{FieldName: "candidate.jd", OutputName: "jd", Type: models.ProjectInclude},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"jd": "$candidate.jd"}, ann)
}

func TestBuildAnnotationsDropsChildOfDefinedParent(t *testing.T) {
	tr := translator.New(nil)
	ann, err := tr.BuildAnnotations(context.Background(), []models.ProjectionField{
		{FieldName: "candidate", OutputName: "candidate", Type: models.ProjectInclude},
		{FieldName: "candidate.jd", OutputName: "candidate.jd", Type: models.ProjectInclude},
	})
	require.NoError(t, err)
	// Defining both the parent and a dotted child would make the stage
	// invalid; the child is dropped.
	assert.Equal(t, bson.M{"candidate": "$candidate"}, ann)
}

func TestProjectionUnknownType(t *testing.T) {
	tr := translator.New(nil)
	_, err := tr.BuildAnnotations(context.Background(), []models.ProjectionField{
		{FieldName: "candidate.jd", OutputName: "jd", Type: "median"},
	})
	assert.Error(t, err)
}
