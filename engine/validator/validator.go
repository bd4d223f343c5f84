// Package validator checks filter trees and variables before translation.
// Everything here runs synchronously on the authored tree; a tree that
// fails validation is never compiled and nothing is sent to the backend.
package validator

import (
	"fmt"

	"github.com/agnivade/levenshtein"
	"go.uber.org/multierr"

	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/mapping"
)

// ValidationError reports a user-fixable problem with a condition,
// projection field, or variable
type ValidationError struct {
	Field    string
	Operator string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" && e.Operator != "" {
		return fmt.Sprintf("invalid condition on %q: operator %s %s", e.Field, e.Operator, e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid condition on %q: %s", e.Field, e.Reason)
	}
	return "validation error: " + e.Reason
}

// NotFoundError reports a tree mutation referencing a nonexistent node.
// This is an implementation bug, not user input, and fails loudly.
type NotFoundError struct {
	Kind string // block | node | condition
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in tree", e.Kind, e.ID)
}

// FieldResolver resolves a condition's field to its semantic type. The
// second result is false when the field is unknown (neither a schema path
// nor a persisted variable name).
type FieldResolver func(field string) (semanticType string, ok bool)

// ValidateCondition checks one condition against the operator table
func ValidateCondition(cond *models.Node, resolve FieldResolver) error {
	if cond.Category != models.CategoryCondition {
		return &ValidationError{Reason: fmt.Sprintf("node %s is not a condition", cond.ID)}
	}
	if cond.Field == "" {
		// Default empty conditions are skipped by the translator, never
		// rejected.
		return nil
	}
	info, known := mapping.Lookup(cond.Operator)
	if !known {
		reason := "is not a known operator"
		if s := suggestOperator(cond.Operator); s != "" {
			reason += fmt.Sprintf(" (did you mean %s?)", s)
		}
		return &ValidationError{Field: cond.Field, Operator: cond.Operator, Reason: reason}
	}
	semanticType, ok := resolve(cond.Field)
	if !ok {
		return &ValidationError{Field: cond.Field, Reason: "is not a schema field or saved variable"}
	}
	if !mapping.IsAllowed(semanticType, cond.Operator) {
		return &ValidationError{
			Field:    cond.Field,
			Operator: cond.Operator,
			Reason:   fmt.Sprintf("is not permitted for %s fields", semanticType),
		}
	}
	// Aggregations over record arrays need the element field named.
	if info.Category == mapping.CategoryAggregation &&
		semanticType == mapping.TypeArray &&
		cond.SubField == "" && len(cond.SubFieldOptions) > 0 {
		return &ValidationError{Field: cond.Field, Operator: cond.Operator, Reason: "requires a subField"}
	}
	if info.Category == mapping.CategoryArrayBoolean || info.Category == mapping.CategoryArraySingle {
		if _, ok := cond.ValueBlock(); !ok {
			return &ValidationError{Field: cond.Field, Operator: cond.Operator, Reason: "requires a nested condition block"}
		}
	}
	return nil
}

// ValidateTree walks the whole tree and aggregates every finding
func ValidateTree(root *models.Node, resolve FieldResolver) error {
	var errs error
	var walk func(n *models.Node)
	walk = func(n *models.Node) {
		if n == nil {
			return
		}
		if n.IsBlock() {
			switch n.Operator {
			case models.ConnectiveAnd, models.ConnectiveOr, models.ConnectiveNor:
			default:
				errs = multierr.Append(errs, &ValidationError{
					Reason: fmt.Sprintf("block %s has unknown connective %q", n.ID, n.Operator),
				})
			}
			for _, c := range n.Children {
				walk(c)
			}
			return
		}
		errs = multierr.Append(errs, ValidateCondition(n, resolve))
		if sub, ok := n.ValueBlock(); ok {
			walk(sub)
		}
	}
	walk(root)
	return errs
}

// ValidateArithmeticFields checks every field referenced by an arithmetic
// variable expression. Boolean and other non-numeric fields are condition
// targets but never arithmetic operands.
func ValidateArithmeticFields(fields []string, resolve FieldResolver) error {
	var errs error
	for _, f := range fields {
		semanticType, ok := resolve(f)
		if !ok {
			errs = multierr.Append(errs, &ValidationError{Field: f, Reason: "is not a schema field"})
			continue
		}
		if !mapping.IsArithmetic(semanticType) {
			errs = multierr.Append(errs, &ValidationError{
				Field:  f,
				Reason: fmt.Sprintf("has type %s and cannot be used in arithmetic", semanticType),
			})
		}
	}
	return errs
}

// ValidateVariableName rejects duplicates across both arithmetic and list
// variables; the two namespaces are shared
func ValidateVariableName(name string, existing []string) error {
	if name == "" {
		return &ValidationError{Reason: "variable name must not be empty"}
	}
	for _, e := range existing {
		if e == name {
			return &ValidationError{Field: name, Reason: "is already a saved variable name"}
		}
	}
	return nil
}

// suggestOperator finds the closest operator symbol within two edits
func suggestOperator(unknown string) string {
	const maxDistance = 2
	best := ""
	bestDist := maxDistance + 1
	for op := range mapping.Operators {
		if d := levenshtein.ComputeDistance(unknown, op); d < bestDist {
			bestDist = d
			best = op
		}
	}
	return best
}
