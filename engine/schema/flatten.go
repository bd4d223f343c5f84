package schema

import (
	"strings"

	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/mapping"
)

// MaxDepth bounds recursion into nested and self-referential schema
// definitions. Expansion past the limit is truncated; fields buried deeper
// than this are simply not addressable in the query builder.
const MaxDepth = 8

// Flatten converts a schema document into the ordered list of addressable
// field descriptors shown by the query builder
func Flatten(doc *Document) []models.FieldDescriptor {
	f := &flattener{doc: doc}
	var out []models.FieldDescriptor
	for _, field := range doc.Fields {
		out = append(out, f.flatten(field.Name, field.Type, field.Name, 0)...)
	}
	return out
}

type flattener struct {
	doc *Document
}

func (f *flattener) flatten(path string, t any, group string, depth int) []models.FieldDescriptor {
	if depth > MaxDepth {
		return nil
	}
	t = unwrapUnion(t)

	switch tv := t.(type) {
	case string:
		if sem, ok := mapping.SemanticTypeOf(tv); ok {
			return []models.FieldDescriptor{{Path: path, SemanticType: sem, Group: group}}
		}
		// Named type reference: resolve against the root schema.
		if def := f.resolveNamed(tv); def != nil {
			return f.flatten(path, def, group, depth+1)
		}
		return []models.FieldDescriptor{{Path: path, SemanticType: mapping.TypeObject, Group: group}}

	case map[string]any:
		switch tv["type"] {
		case "record":
			var out []models.FieldDescriptor
			for _, sub := range recordFields(tv) {
				out = append(out, f.flatten(path+"."+sub.Name, sub.Type, group, depth+1)...)
			}
			return out
		case "array":
			return f.flattenArray(path, tv["items"], group, depth)
		case "enum", "fixed":
			return []models.FieldDescriptor{{Path: path, SemanticType: mapping.TypeString, Group: group}}
		default:
			if inner, ok := tv["type"].(string); ok {
				if sem, ok := mapping.SemanticTypeOf(inner); ok {
					return []models.FieldDescriptor{{Path: path, SemanticType: sem, Group: group}}
				}
			}
			return []models.FieldDescriptor{{Path: path, SemanticType: mapping.TypeObject, Group: group}}
		}
	}
	return nil
}

// flattenArray handles the three array shapes: catalogs (arrays of records
// whose fields are union-wrapped records), plain record arrays, and
// primitive arrays.
func (f *flattener) flattenArray(path string, items any, group string, depth int) []models.FieldDescriptor {
	if depth > MaxDepth {
		return nil
	}
	items = unwrapUnion(items)

	if rec, ok := items.(map[string]any); ok && rec["type"] == "record" {
		if catalogs := catalogFields(rec); len(catalogs) > 0 {
			catalogGroup := humanize(path)
			var out []models.FieldDescriptor
			for _, cf := range catalogs {
				nested, _ := unwrapUnion(cf.Type).(map[string]any)
				out = append(out, models.FieldDescriptor{
					Path:         path + "." + cf.Name,
					SemanticType: mapping.TypeArray,
					Group:        catalogGroup,
					SubFields:    f.elementFields(nested, depth+1),
				})
			}
			return out
		}
		// Plain record array: one expandable descriptor. The element fields
		// are only exposed inside array condition builders, never flattened
		// into the top-level list.
		return []models.FieldDescriptor{{
			Path:         path,
			SemanticType: mapping.TypeArray,
			Group:        group,
			SubFields:    f.elementFields(rec, depth+1),
		}}
	}

	desc := models.FieldDescriptor{Path: path, SemanticType: mapping.TypeArray, Group: group}
	if prim, ok := items.(string); ok {
		if sem, ok := mapping.SemanticTypeOf(prim); ok {
			desc.ItemType = sem
		}
	}
	return []models.FieldDescriptor{desc}
}

// elementFields flattens a record's fields in element scope: paths are
// relative to the array element, not the document root
func (f *flattener) elementFields(rec map[string]any, depth int) []models.FieldDescriptor {
	if rec == nil || depth > MaxDepth {
		return nil
	}
	var out []models.FieldDescriptor
	for _, sub := range recordFields(rec) {
		out = append(out, f.flatten(sub.Name, sub.Type, sub.Name, depth)...)
	}
	return out
}

// resolveNamed finds a named type definition in the root schema. Direct
// field-type matches take priority over nested search to bound cost on
// large schemas.
func (f *flattener) resolveNamed(name string) map[string]any {
	for _, field := range f.doc.Fields {
		if def, ok := field.Type.(map[string]any); ok && def["name"] == name {
			return def
		}
	}
	for _, field := range f.doc.Fields {
		if def := findNamed(field.Type, name, 0); def != nil {
			return def
		}
	}
	return nil
}

func findNamed(t any, name string, depth int) map[string]any {
	if depth > MaxDepth {
		return nil
	}
	switch tv := t.(type) {
	case map[string]any:
		if tv["name"] == name && tv["type"] != nil {
			return tv
		}
		for _, v := range tv {
			if def := findNamed(v, name, depth+1); def != nil {
				return def
			}
		}
	case []any:
		for _, v := range tv {
			if def := findNamed(v, name, depth+1); def != nil {
				return def
			}
		}
	}
	return nil
}

// unwrapUnion strips the ["null", T] wrapper, returning the first
// non-null branch
func unwrapUnion(t any) any {
	union, ok := t.([]any)
	if !ok {
		return t
	}
	for _, branch := range union {
		if s, ok := branch.(string); ok && s == "null" {
			continue
		}
		return branch
	}
	return nil
}

// catalogFields returns the record fields whose types are union-wrapped
// records, the shape cross-match catalogs are stored in
func catalogFields(rec map[string]any) []Field {
	var out []Field
	for _, sub := range recordFields(rec) {
		if _, isUnion := sub.Type.([]any); !isUnion {
			continue
		}
		if nested, ok := unwrapUnion(sub.Type).(map[string]any); ok && nested["type"] == "record" {
			out = append(out, sub)
		}
	}
	return out
}

func recordFields(rec map[string]any) []Field {
	raw, ok := rec["fields"].([]any)
	if !ok {
		return nil
	}
	var out []Field
	for _, rf := range raw {
		fm, ok := rf.(map[string]any)
		if !ok {
			continue
		}
		name, _ := fm["name"].(string)
		out = append(out, Field{Name: name, Type: fm["type"]})
	}
	return out
}

func humanize(path string) string {
	s := strings.ReplaceAll(path, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
