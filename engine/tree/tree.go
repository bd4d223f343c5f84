// Package tree implements structural mutation of filter trees.
//
// All operations are pure: they clone the input tree and return a new root,
// so callers can keep old trees for undo or diffing. The single invariant
// maintained here is that the root block never ends up with zero children;
// removing the last child of the root inserts one default empty condition.
// Non-root blocks may be left empty and are pruned only by explicit user
// action.
package tree

import (
	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/validator"
)

// New returns a fresh filter tree: one root AND block holding one default
// condition
func New() *models.Node {
	root := models.NewBlock(models.ConnectiveAnd)
	root.Children = []*models.Node{models.DefaultCondition()}
	return root
}

// AddCondition appends a node to the named block's children
func AddCondition(root *models.Node, blockID string, cond *models.Node) (*models.Node, error) {
	out := root.Clone()
	block := findBlock(out, blockID)
	if block == nil {
		return nil, &validator.NotFoundError{Kind: "block", ID: blockID}
	}
	block.Children = append(block.Children, cond)
	return out, nil
}

// RemoveNode removes a child by id from the named block
func RemoveNode(root *models.Node, blockID, nodeID string) (*models.Node, error) {
	out := root.Clone()
	block := findBlock(out, blockID)
	if block == nil {
		return nil, &validator.NotFoundError{Kind: "block", ID: blockID}
	}
	idx := -1
	for i, c := range block.Children {
		if c.ID == nodeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &validator.NotFoundError{Kind: "node", ID: nodeID}
	}
	block.Children = append(block.Children[:idx:idx], block.Children[idx+1:]...)
	if block.ID == out.ID && len(block.Children) == 0 {
		block.Children = []*models.Node{models.DefaultCondition()}
	}
	return out, nil
}

// Patch is a shallow merge applied to a condition. Nil fields are left
// untouched. Operator/field compatibility is deliberately not checked
// here; callers validate before commit.
type Patch struct {
	Field           *string
	Operator        *string
	Value           *any
	SubField        *string
	SubFieldOptions *[]string
}

// UpdateCondition shallow-merges a patch into the identified condition
func UpdateCondition(root *models.Node, blockID, conditionID string, patch Patch) (*models.Node, error) {
	out := root.Clone()
	block := findBlock(out, blockID)
	if block == nil {
		return nil, &validator.NotFoundError{Kind: "block", ID: blockID}
	}
	for _, c := range block.Children {
		if c.ID != conditionID || c.Category != models.CategoryCondition {
			continue
		}
		if patch.Field != nil {
			c.Field = *patch.Field
		}
		if patch.Operator != nil {
			c.Operator = *patch.Operator
		}
		if patch.Value != nil {
			c.Value = *patch.Value
		}
		if patch.SubField != nil {
			c.SubField = *patch.SubField
		}
		if patch.SubFieldOptions != nil {
			c.SubFieldOptions = *patch.SubFieldOptions
		}
		return out, nil
	}
	return nil, &validator.NotFoundError{Kind: "condition", ID: conditionID}
}

// CollectBlockIDs returns the ids of all blocks in the tree in depth-first
// order, including blocks nested inside array condition values. The root
// is excluded by convention unless includeRoot is set; collapse-state
// bookkeeping in the UI never tracks the root.
func CollectBlockIDs(root *models.Node, includeRoot bool) []string {
	var out []string
	var walk func(n *models.Node, isRoot bool)
	walk = func(n *models.Node, isRoot bool) {
		if n == nil {
			return
		}
		if n.IsBlock() {
			if !isRoot || includeRoot {
				out = append(out, n.ID)
			}
			for _, c := range n.Children {
				walk(c, false)
			}
			return
		}
		if sub, ok := n.ValueBlock(); ok {
			walk(sub, false)
		}
	}
	walk(root, true)
	return out
}

// findBlock locates a block by id anywhere in the tree, including blocks
// nested inside array condition values
func findBlock(n *models.Node, id string) *models.Node {
	if n == nil {
		return nil
	}
	if n.IsBlock() && n.ID == id {
		return n
	}
	for _, c := range n.Children {
		if found := findBlock(c, id); found != nil {
			return found
		}
	}
	if sub, ok := n.ValueBlock(); ok {
		if found := findBlock(sub, id); found != nil {
			return found
		}
	}
	return nil
}
