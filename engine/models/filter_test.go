package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertql-engine/alertql/engine/models"
)

func TestNodeRoundTripRehydratesNestedBlocks(t *testing.T) {
	raw := `{
		"id": "root",
		"category": "block",
		"operator": "and",
		"children": [
			{"id": "c1", "category": "condition", "operator": "$gt", "field": "candidate.jd", "value": 2459000.5},
			{"id": "c2", "category": "condition", "operator": "$anyElementTrue", "field": "prv_candidates",
			 "value": {
				"id": "sub", "category": "block", "operator": "and",
				"children": [
					{"id": "c3", "category": "condition", "operator": "$lt", "field": "this.magpsf", "value": 19}
				]
			 }}
		]
	}`

	var root models.Node
	require.NoError(t, json.Unmarshal([]byte(raw), &root))
	require.Len(t, root.Children, 2)

	assert.Equal(t, 2459000.5, root.Children[0].Value)

	// The nested block arrives as a *Node, not a map.
	sub, ok := root.Children[1].ValueBlock()
	require.True(t, ok)
	assert.True(t, sub.IsBlock())
	require.Len(t, sub.Children, 1)
	assert.Equal(t, "this.magpsf", sub.Children[0].Field)
	assert.Equal(t, float64(19), sub.Children[0].Value)

	// Save and reload is idempotent.
	out, err := json.Marshal(&root)
	require.NoError(t, err)
	var again models.Node
	require.NoError(t, json.Unmarshal(out, &again))
	out2, err := json.Marshal(&again)
	require.NoError(t, err)
	assert.JSONEq(t, string(out), string(out2))
}

func TestAsNode(t *testing.T) {
	n := &models.Node{ID: "x", Category: models.CategoryBlock, Operator: "or"}
	got, ok := models.AsNode(n)
	require.True(t, ok)
	assert.Same(t, n, got)

	got, ok = models.AsNode(map[string]any{
		"id": "y", "category": "condition", "operator": "$eq", "field": "f", "value": 1,
	})
	require.True(t, ok)
	assert.Equal(t, "y", got.ID)
	assert.False(t, got.IsBlock())

	_, ok = models.AsNode(map[string]any{"value": 1})
	assert.False(t, ok)
	_, ok = models.AsNode("scalar")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	root := models.NewBlock(models.ConnectiveAnd)
	child := models.DefaultCondition()
	child.Field = "candidate.jd"
	child.Value = &models.Node{
		ID:       models.NewID(),
		Category: models.CategoryBlock,
		Operator: models.ConnectiveOr,
		Children: []*models.Node{models.DefaultCondition()},
	}
	child.SubFieldOptions = []string{"a", "b"}
	root.Children = append(root.Children, child)

	clone := root.Clone()
	require.Len(t, clone.Children, 1)
	assert.NotSame(t, root.Children[0], clone.Children[0])

	clone.Children[0].Field = "changed"
	clone.Children[0].SubFieldOptions[0] = "changed"
	sub, ok := clone.Children[0].ValueBlock()
	require.True(t, ok)
	sub.Operator = models.ConnectiveNor

	assert.Equal(t, "candidate.jd", root.Children[0].Field)
	assert.Equal(t, "a", root.Children[0].SubFieldOptions[0])
	origSub, _ := root.Children[0].ValueBlock()
	assert.Equal(t, models.ConnectiveOr, origSub.Operator)
}

func TestDefaultCondition(t *testing.T) {
	c := models.DefaultCondition()
	assert.Equal(t, models.CategoryCondition, c.Category)
	assert.Equal(t, "$eq", c.Operator)
	assert.Empty(t, c.Field)
	assert.NotEmpty(t, c.ID)
	assert.NotEqual(t, c.ID, models.DefaultCondition().ID)
}
