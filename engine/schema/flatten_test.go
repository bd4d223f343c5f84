package schema_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/schema"
	"github.com/alertql-engine/alertql/mapping"
)

const alertSchema = `{
	"name": "alert",
	"fields": [
		{"name": "objectId", "type": "string"},
		{"name": "candid", "type": "long"},
		{"name": "candidate", "type": {
			"type": "record",
			"name": "candidateRecord",
			"fields": [
				{"name": "jd", "type": "double"},
				{"name": "ra", "type": ["null", "double"]},
				{"name": "isdiffpos", "type": ["null", "string"]},
				{"name": "programid", "type": "int"}
			]
		}},
		{"name": "prv_candidates", "type": ["null", {
			"type": "array",
			"items": {
				"type": "record",
				"name": "prvRecord",
				"fields": [
					{"name": "jd", "type": "double"},
					{"name": "magpsf", "type": ["null", "float"]}
				]
			}
		}]},
		{"name": "cross_matches", "type": {
			"type": "array",
			"items": {
				"type": "record",
				"name": "xmatchRecord",
				"fields": [
					{"name": "AllWISE", "type": ["null", {
						"type": "record",
						"name": "allwiseRecord",
						"fields": [
							{"name": "w1mpro", "type": "double"},
							{"name": "designation", "type": "string"}
						]
					}]},
					{"name": "Gaia_DR3", "type": ["null", {
						"type": "record",
						"name": "gaiaRecord",
						"fields": [{"name": "parallax", "type": "double"}]
					}]}
				]
			}
		}},
		{"name": "fluxes", "type": {"type": "array", "items": "double"}}
	]
}`

func flattenTestSchema(t *testing.T) []models.FieldDescriptor {
	doc, err := schema.ParseDocument([]byte(alertSchema))
	require.NoError(t, err)
	return schema.Flatten(doc)
}

func descriptor(fields []models.FieldDescriptor, path string) (models.FieldDescriptor, bool) {
	for _, f := range fields {
		if f.Path == path {
			return f, true
		}
	}
	return models.FieldDescriptor{}, false
}

func TestFlattenPrimitives(t *testing.T) {
	fields := flattenTestSchema(t)

	d, ok := descriptor(fields, "objectId")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeString, d.SemanticType)

	d, ok = descriptor(fields, "candid")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeNumber, d.SemanticType)
}

func TestFlattenRecordFieldsGetDottedPaths(t *testing.T) {
	fields := flattenTestSchema(t)

	d, ok := descriptor(fields, "candidate.jd")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeNumber, d.SemanticType)
	assert.Equal(t, "candidate", d.Group)

	// Union-wrapped primitives resolve to the non-null branch.
	d, ok = descriptor(fields, "candidate.ra")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeNumber, d.SemanticType)

	d, ok = descriptor(fields, "candidate.isdiffpos")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeString, d.SemanticType)
}

func TestFlattenRecordArray(t *testing.T) {
	fields := flattenTestSchema(t)

	d, ok := descriptor(fields, "prv_candidates")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeArray, d.SemanticType)
	require.Len(t, d.SubFields, 2)
	// Element paths are relative, not rooted at the document.
	assert.Equal(t, "jd", d.SubFields[0].Path)
	assert.Equal(t, mapping.TypeNumber, d.SubFields[0].SemanticType)
	assert.Equal(t, "magpsf", d.SubFields[1].Path)

	// Element fields never leak into the top-level list.
	_, ok = descriptor(fields, "prv_candidates.jd")
	assert.False(t, ok)
}

func TestFlattenCatalogArray(t *testing.T) {
	fields := flattenTestSchema(t)

	// Each union-wrapped record field becomes its own array descriptor.
	d, ok := descriptor(fields, "cross_matches.AllWISE")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeArray, d.SemanticType)
	assert.Equal(t, "Cross matches", d.Group)
	require.Len(t, d.SubFields, 2)
	assert.Equal(t, "w1mpro", d.SubFields[0].Path)

	d, ok = descriptor(fields, "cross_matches.Gaia_DR3")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeArray, d.SemanticType)

	// The wrapper record itself is not addressable.
	_, ok = descriptor(fields, "cross_matches")
	assert.False(t, ok)
}

func TestFlattenPrimitiveArray(t *testing.T) {
	fields := flattenTestSchema(t)

	d, ok := descriptor(fields, "fluxes")
	require.True(t, ok)
	assert.Equal(t, mapping.TypeArray, d.SemanticType)
	assert.Equal(t, mapping.TypeNumber, d.ItemType)
	assert.Empty(t, d.SubFields)
}

func TestFlattenDepthGuard(t *testing.T) {
	// A record nested past MaxDepth is truncated rather than recursed into
	// forever.
	inner := `"string"`
	for i := 0; i < schema.MaxDepth+4; i++ {
		inner = `{"type": "record", "name": "r` + string(rune('a'+i)) + `", "fields": [{"name": "n", "type": ` + inner + `}]}`
	}
	doc, err := schema.ParseDocument([]byte(`{"fields": [{"name": "deep", "type": ` + inner + `}]}`))
	require.NoError(t, err)

	fields := schema.Flatten(doc)
	for _, f := range fields {
		assert.LessOrEqual(t, strings.Count(f.Path, "."), schema.MaxDepth+1)
	}
}

func TestActiveDocumentSelection(t *testing.T) {
	env := schema.Envelope{
		ActiveID: "v2",
		Versions: []schema.Version{
			{VID: "v1", Schema: `{"fields": [{"name": "old", "type": "string"}]}`},
			{VID: "v2", Schema: `{"fields": [{"name": "new", "type": "double"}]}`},
		},
	}
	doc, err := env.ActiveDocument()
	require.NoError(t, err)
	require.Len(t, doc.Fields, 1)
	assert.Equal(t, "new", doc.Fields[0].Name)

	env.ActiveID = "v9"
	_, err = env.ActiveDocument()
	assert.Error(t, err)
}
