package models

import (
	"bytes"
	"encoding/json"

	"github.com/segmentio/ksuid"
)

// ============================================================================
// CONDITION TREE
// ============================================================================

// Node categories
const (
	CategoryBlock     = "block"
	CategoryCondition = "condition"
)

// Block connectives
const (
	ConnectiveAnd = "and"
	ConnectiveOr  = "or"
	ConnectiveNor = "nor"
)

// Node is one node of a filter tree. Blocks combine Children with a
// boolean connective; conditions test one field with one operator.
// A filter tree always has exactly one root block with at least one child.
type Node struct {
	ID       string `json:"id"`
	Category string `json:"category"` // block | condition

	// Condition: operator symbol from mapping.Operators.
	// Block: connective (and | or | nor).
	Operator string `json:"operator"`

	// Condition only. Field is a schema path, an arithmetic variable name,
	// or a list variable name.
	Field string `json:"field,omitempty"`

	// Operator-dependent: a scalar for comparison operators, or a nested
	// *Node block for array_boolean and array_single operators applied to
	// array elements.
	Value any `json:"value,omitempty"`

	// Names the element field for aggregations over arrays of records.
	SubField        string   `json:"subField,omitempty"`
	SubFieldOptions []string `json:"subFieldOptions,omitempty"`

	// Block only.
	Children []*Node `json:"children,omitempty"`
}

// UnmarshalJSON rehydrates nested block values. Without this, a condition
// whose value is a sub-tree would round-trip as a map[string]any and the
// load/save cycle would not be idempotent.
func (n *Node) UnmarshalJSON(data []byte) error {
	type alias Node
	var a alias
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return err
	}
	*n = Node(a)
	if m, ok := n.Value.(map[string]any); ok {
		if _, isNode := m["category"]; isNode {
			raw, err := json.Marshal(m)
			if err != nil {
				return err
			}
			var child Node
			if err := json.Unmarshal(raw, &child); err != nil {
				return err
			}
			n.Value = &child
		}
	}
	if num, ok := n.Value.(json.Number); ok {
		if f, err := num.Float64(); err == nil {
			n.Value = f
		}
	}
	return nil
}

// ValueBlock returns the nested sub-tree held by an array condition
func (n *Node) ValueBlock() (*Node, bool) {
	return AsNode(n.Value)
}

// AsNode converts a decoded value to a *Node. Values loaded through bson
// or generic JSON arrive as maps; a map carrying a category key is
// rehydrated into a node.
func AsNode(v any) (*Node, bool) {
	switch val := v.(type) {
	case *Node:
		return val, true
	case map[string]any:
		if _, isNode := val["category"]; !isNode {
			return nil, false
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, false
		}
		var node Node
		if err := json.Unmarshal(raw, &node); err != nil {
			return nil, false
		}
		return &node, true
	}
	return nil, false
}

// IsBlock reports whether the node is a block
func (n *Node) IsBlock() bool {
	return n.Category == CategoryBlock
}

// Clone returns a deep copy of the node and all descendants
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	if child, ok := n.ValueBlock(); ok {
		out.Value = child.Clone()
	}
	if n.SubFieldOptions != nil {
		out.SubFieldOptions = append([]string(nil), n.SubFieldOptions...)
	}
	if n.Children != nil {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return &out
}

// NewID returns a fresh node id
func NewID() string {
	return ksuid.New().String()
}

// DefaultCondition returns the empty condition inserted when a root block
// would otherwise have no children
func DefaultCondition() *Node {
	return &Node{
		ID:       NewID(),
		Category: CategoryCondition,
		Operator: "$eq",
	}
}

// NewBlock returns an empty block with the given connective
func NewBlock(connective string) *Node {
	return &Node{
		ID:       NewID(),
		Category: CategoryBlock,
		Operator: connective,
	}
}

// ============================================================================
// FIELD DESCRIPTORS
// ============================================================================

// FieldDescriptor is one addressable field flattened from the alert schema
type FieldDescriptor struct {
	Path         string            `json:"path"`
	SemanticType string            `json:"semanticType"`
	Group        string            `json:"group"`
	SubFields    []FieldDescriptor `json:"subFields,omitempty"`

	// For primitive arrays, the semantic type of the elements.
	ItemType string `json:"itemType,omitempty"`
}

// ============================================================================
// VARIABLES
// ============================================================================

// Variable is a persisted arithmetic variable. Expression is either a
// MongoDB expression document serialized as JSON or an arithmetic formula
// over field paths, parsed at compile time.
type Variable struct {
	Name       string `json:"name" bson:"name"`
	Expression string `json:"variable" bson:"variable"`
	Type       string `json:"type,omitempty" bson:"type,omitempty"`
}

// ListCondition bundles a reusable array-aggregation condition
type ListCondition struct {
	Field           string   `json:"field" bson:"field"`
	Operator        string   `json:"operator" bson:"operator"`
	Value           any      `json:"value,omitempty" bson:"value,omitempty"`
	SubField        string   `json:"subField,omitempty" bson:"subField,omitempty"`
	SubFieldOptions []string `json:"subFieldOptions,omitempty" bson:"subFieldOptions,omitempty"`
}

// ListVariable is a persisted named array condition referenced by name
// from other conditions and expressions
type ListVariable struct {
	Name          string        `json:"name" bson:"name"`
	ListCondition ListCondition `json:"listCondition" bson:"listCondition"`
	Type          string        `json:"type,omitempty" bson:"type,omitempty"`
}

// ============================================================================
// PROJECTION
// ============================================================================

// Projection field types
const (
	ProjectInclude = "include"
	ProjectExclude = "exclude"
	ProjectRound   = "round"
	ProjectSum     = "sum"
	ProjectAvg     = "avg"
	ProjectMin     = "min"
	ProjectMax     = "max"
	ProjectCount   = "count"
	ProjectMap     = "map"
)

// ProjectionField describes one entry of the output annotations stage
type ProjectionField struct {
	ID         string `json:"id"`
	FieldName  string `json:"fieldName"`
	OutputName string `json:"outputName"`
	Type       string `json:"type"`

	RoundDecimals         int    `json:"roundDecimals,omitempty"`
	SubField              string `json:"subField,omitempty"`
	AggregationOutputType string `json:"aggregationOutputType,omitempty"`

	// Prebuilt $map document from the array-to-object mapping dialog,
	// inserted verbatim.
	MapQuery any `json:"mapMongoMapQuery,omitempty"`
}

// ============================================================================
// FILTERS
// ============================================================================

// FilterVersion is one saved compilation of a filter: the authored tree
// plus the pipeline it compiled to
type FilterVersion struct {
	FID       string `json:"fid" bson:"fid"`
	Tree      *Node  `json:"tree,omitempty" bson:"tree,omitempty"`
	Pipeline  []any  `json:"pipeline" bson:"pipeline"`
	CreatedAt int64  `json:"created_at" bson:"created_at"`
}

// Filter is a named, versioned alert filter. Exactly one version is
// active at a time.
type Filter struct {
	ID        string          `json:"id" bson:"_id"`
	Name      string          `json:"name" bson:"name"`
	Stream    string          `json:"stream" bson:"stream"`
	Versions  []FilterVersion `json:"fv" bson:"fv"`
	ActiveFID string          `json:"active_fid" bson:"active_fid"`
	Active    bool            `json:"active" bson:"active"`

	AutoAnnotate bool `json:"autoAnnotate" bson:"autoAnnotate"`
	AutoSave     bool `json:"autoSave" bson:"autoSave"`
	AutoFollowup bool `json:"autoFollowup" bson:"autoFollowup"`
}
