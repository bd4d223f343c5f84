package aql

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/pipeline"
	"github.com/alertql-engine/alertql/engine/translator"
)

// Compile translates a filter tree and projection spec into an ordered
// aggregation pipeline.
// Returns:
//   - pipeline: the assembled stage array
//   - error: validation or translation error (nothing is ever sent to the
//     backend when compilation fails)
func Compile(ctx context.Context, store translator.VariableStore, root *models.Node, projection []models.ProjectionField, opts pipeline.Options) ([]bson.M, error) {
	tr := translator.New(store)

	match, err := tr.MatchStage(ctx, root)
	if err != nil {
		return nil, err
	}
	project, err := tr.ProjectStage(ctx, projection)
	if err != nil {
		return nil, err
	}

	opts.Match = match
	opts.Project = project
	return pipeline.Assemble(opts), nil
}
