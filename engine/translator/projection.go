package translator

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	mongobuilders "github.com/alertql-engine/alertql/engine/builders/mongodb"
	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/validator"
)

// ProjectStage compiles projection fields to the $project stage, or nil
// when no fields are defined. objectId is always projected at top level
// and never inside the annotations sub-object.
func (t *Translator) ProjectStage(ctx context.Context, fields []models.ProjectionField) (bson.M, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	annotations, err := t.BuildAnnotations(ctx, fields)
	if err != nil {
		return nil, err
	}
	return bson.M{"$project": bson.M{
		"objectId":    1,
		"annotations": annotations,
	}}, nil
}

// BuildAnnotations compiles the annotations sub-document. A later field
// whose output name is a dotted path under an already-defined parent is
// silently dropped; defining both would make the aggregation engine
// reject the whole stage.
func (t *Translator) BuildAnnotations(ctx context.Context, fields []models.ProjectionField) (bson.M, error) {
	annotations := bson.M{}
	for _, field := range fields {
		if field.FieldName == "objectId" || field.OutputName == "objectId" {
			continue
		}
		if conflictsWithParent(annotations, field.OutputName) {
			continue
		}
		entry, err := t.projectionEntry(ctx, field)
		if err != nil {
			return nil, err
		}
		annotations[field.OutputName] = entry
	}
	return annotations, nil
}

func (t *Translator) projectionEntry(ctx context.Context, field models.ProjectionField) (any, error) {
	operand, err := t.operand(ctx, field.FieldName, false)
	if err != nil {
		return nil, err
	}

	switch field.Type {
	case models.ProjectInclude:
		return operand, nil

	case models.ProjectExclude:
		return 0, nil

	case models.ProjectRound:
		return mongobuilders.Round(operand, field.RoundDecimals), nil

	case models.ProjectSum, models.ProjectAvg, models.ProjectMin, models.ProjectMax:
		input := operand
		if field.SubField != "" {
			if ref, isRef := operand.(string); isRef {
				input = ref + "." + field.SubField
			}
		}
		entry := any(bson.M{"$" + field.Type: input})
		switch field.AggregationOutputType {
		case models.ProjectRound:
			entry = mongobuilders.Round(entry, field.RoundDecimals)
		case models.ProjectExclude:
			entry = 0
		}
		return entry, nil

	case models.ProjectCount:
		return bson.M{"$size": operand}, nil

	case models.ProjectMap:
		// Prebuilt by the array-to-object mapping dialog, inserted verbatim.
		return field.MapQuery, nil
	}

	return nil, &validator.ValidationError{
		Field:  field.FieldName,
		Reason: "has unknown projection type " + field.Type,
	}
}

// conflictsWithParent reports whether a dotted output name falls under a
// parent segment already defined in the stage
func conflictsWithParent(annotations bson.M, outputName string) bool {
	parts := strings.Split(outputName, ".")
	for i := 1; i < len(parts); i++ {
		if _, defined := annotations[strings.Join(parts[:i], ".")]; defined {
			return true
		}
	}
	return false
}
