package service

import (
	"context"
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/bson"

	aql "github.com/alertql-engine/alertql"
	"github.com/alertql-engine/alertql/engine/expr"
	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/pipeline"
	"github.com/alertql-engine/alertql/engine/schema"
	"github.com/alertql-engine/alertql/engine/translator"
	"github.com/alertql-engine/alertql/engine/validator"
	"github.com/alertql-engine/alertql/mapping"
)

// handleSchemaGet serves the flattened field descriptors for one
// instrument's active schema version
func handleSchemaGet(c *Core, w *ResponseWriter, r *Request) {
	instrument := r.Var("instrument")
	envelope, err := c.backend.Schema(r.Context(), instrument)
	if err != nil {
		w.HandleError(err)
		return
	}
	doc, err := envelope.ActiveDocument()
	if err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusOK, map[string]any{
		"instrument": instrument,
		"active_id":  envelope.ActiveID,
		"fields":     schema.Flatten(doc),
	})
}

func handleElementsGet(c *Core, w *ResponseWriter, r *Request) {
	elements, err := c.backend.Elements(r.Context(), r.Var("kind"))
	if err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusOK, elements)
}

func handleElementGet(c *Core, w *ResponseWriter, r *Request) {
	element, err := c.backend.Element(r.Context(), r.Var("kind"), r.Var("name"))
	if err != nil {
		w.HandleError(err)
		return
	}
	if element == nil {
		w.Error(http.StatusNotFound, "no such element")
		return
	}
	w.Respond(http.StatusOK, element)
}

func handleElementPost(c *Core, w *ResponseWriter, r *Request) {
	var body struct {
		Name   string `json:"name"`
		Stream string `json:"stream,omitempty"`
		Data   bson.M `json:"data"`
	}
	if !r.Unmarshal(w, &body) {
		return
	}
	if body.Name == "" {
		w.Error(http.StatusBadRequest, "element name is required")
		return
	}
	if formula, ok := body.Data["variable"].(string); ok && body.Stream != "" {
		if err := c.validateFormula(r.Context(), body.Stream, formula); err != nil {
			w.HandleError(err)
			return
		}
	}
	if err := c.backend.SaveElement(r.Context(), r.Var("kind"), body.Name, body.Data); err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusCreated, map[string]any{"name": body.Name})
}

// validateFormula checks an arithmetic variable formula against the
// stream's schema before it is saved. Stored JSON expression documents
// pass through unchecked; the formula path must parse and reference only
// fields usable in arithmetic.
func (c *Core) validateFormula(ctx context.Context, stream, stored string) error {
	var doc any
	if json.Unmarshal([]byte(stored), &doc) == nil {
		return nil
	}
	parsed, err := expr.Parse(stored)
	if err != nil {
		return err
	}
	envelope, err := c.backend.Schema(ctx, stream)
	if err != nil {
		return err
	}
	schemaDoc, err := envelope.ActiveDocument()
	if err != nil {
		return err
	}
	types := map[string]string{}
	for _, f := range schema.Flatten(schemaDoc) {
		types[f.Path] = f.SemanticType
	}
	return validator.ValidateArithmeticFields(parsed.Fields(), func(field string) (string, bool) {
		t, ok := types[field]
		return t, ok
	})
}

func handleFilterPost(c *Core, w *ResponseWriter, r *Request) {
	var filter models.Filter
	if !r.Unmarshal(w, &filter) {
		return
	}
	if filter.Name == "" || filter.Stream == "" {
		w.Error(http.StatusBadRequest, "filter name and stream are required")
		return
	}
	for i := range filter.Versions {
		if err := c.compileVersion(r, filter.Stream, &filter.Versions[i]); err != nil {
			w.HandleError(err)
			return
		}
	}
	id, err := c.backend.CreateFilter(r.Context(), &filter)
	if err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusCreated, map[string]any{"id": id})
}

func handleFilterGet(c *Core, w *ResponseWriter, r *Request) {
	filter, err := c.backend.Filter(r.Context(), r.Var("id"))
	if err != nil {
		w.HandleError(err)
		return
	}
	if filter == nil {
		w.Error(http.StatusNotFound, "no such filter")
		return
	}
	w.Respond(http.StatusOK, filter)
}

func handleFilterPatch(c *Core, w *ResponseWriter, r *Request) {
	var body struct {
		ActiveFID string `json:"active_fid"`
		Active    bool   `json:"active"`
	}
	if !r.Unmarshal(w, &body) {
		return
	}
	if body.ActiveFID == "" {
		w.Error(http.StatusBadRequest, "active_fid is required")
		return
	}
	if err := c.backend.SetActiveVersion(r.Context(), r.Var("id"), body.ActiveFID, body.Active); err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusOK, map[string]any{"active_fid": body.ActiveFID, "active": body.Active})
}

func handleFilterDelete(c *Core, w *ResponseWriter, r *Request) {
	if err := c.backend.DeleteFilter(r.Context(), r.Var("id")); err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusOK, map[string]any{"id": r.Var("id")})
}

// handleFilterVersionPost appends a new version. A version posted with a
// tree and no pipeline is compiled server side before it is stored.
func handleFilterVersionPost(c *Core, w *ResponseWriter, r *Request) {
	var version models.FilterVersion
	if !r.Unmarshal(w, &version) {
		return
	}
	filter, err := c.backend.Filter(r.Context(), r.Var("id"))
	if err != nil {
		w.HandleError(err)
		return
	}
	if filter == nil {
		w.Error(http.StatusNotFound, "no such filter")
		return
	}
	if err := c.compileVersion(r, filter.Stream, &version); err != nil {
		w.HandleError(err)
		return
	}
	fid, err := c.backend.AddFilterVersion(r.Context(), filter.ID, version)
	if err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusCreated, map[string]any{"fid": fid})
}

func (c *Core) compileVersion(r *Request, stream string, version *models.FilterVersion) error {
	if len(version.Pipeline) > 0 || version.Tree == nil {
		return nil
	}
	if err := c.validateTree(r.Context(), stream, version.Tree); err != nil {
		return err
	}
	match, err := translator.New(c.backend).MatchStage(r.Context(), version.Tree)
	if err != nil {
		return err
	}
	if match != nil {
		version.Pipeline = []any{match}
	}
	return nil
}

// validateTree checks an authored tree against the stream's schema and
// the saved variable set, reporting every finding at once rather than
// stopping at the first
func (c *Core) validateTree(ctx context.Context, stream string, root *models.Node) error {
	if stream == "" {
		return nil
	}
	resolve, err := c.fieldResolver(ctx, stream)
	if err != nil {
		return err
	}
	return validator.ValidateTree(root, resolve)
}

// fieldResolver builds a semantic-type resolver over the stream's
// flattened schema. Array element fields are addressable under their
// "this." alias; names not in the schema fall back to the saved
// variable namespaces.
func (c *Core) fieldResolver(ctx context.Context, stream string) (validator.FieldResolver, error) {
	envelope, err := c.backend.Schema(ctx, stream)
	if err != nil {
		return nil, err
	}
	doc, err := envelope.ActiveDocument()
	if err != nil {
		return nil, err
	}
	types := map[string]string{}
	for _, f := range schema.Flatten(doc) {
		types[f.Path] = f.SemanticType
		for _, sub := range f.SubFields {
			types["this."+sub.Path] = sub.SemanticType
		}
	}
	return func(field string) (string, bool) {
		if t, ok := types[field]; ok {
			return t, true
		}
		if v, err := c.backend.Variable(ctx, field); err == nil && v != nil {
			return mapping.TypeNumber, true
		}
		if lv, err := c.backend.ListVariable(ctx, field); err == nil && lv != nil {
			if lv.Type == mapping.TypeBoolean {
				return mapping.TypeArrayVariableBoolean, true
			}
			return mapping.TypeArrayVariable, true
		}
		return "", false
	}, nil
}

// compileRequest is the body of a compile call: the authored tree plus
// the execution options the pipeline is assembled with
type compileRequest struct {
	Stream     string                   `json:"stream"`
	Tree       *models.Node             `json:"tree"`
	Projection []models.ProjectionField `json:"projection,omitempty"`
	StartJD    float64                  `json:"start_jd,omitempty"`
	EndJD      float64                  `json:"end_jd,omitempty"`
	WithLookup bool                     `json:"with_lookup,omitempty"`
}

// handleCompile translates a tree and projection into the full ordered
// pipeline without executing it
func handleCompile(c *Core, w *ResponseWriter, r *Request) {
	var body compileRequest
	if !r.Unmarshal(w, &body) {
		return
	}
	if body.Tree == nil {
		w.Error(http.StatusBadRequest, "tree is required")
		return
	}
	if err := c.validateTree(r.Context(), body.Stream, body.Tree); err != nil {
		w.HandleError(err)
		return
	}
	opts := pipeline.Options{
		StartJD: body.StartJD,
		EndJD:   body.EndJD,
	}
	if body.WithLookup {
		opts.Lookup = pipeline.LookupStages(mapping.AuxCollection(body.Stream))
	}
	stages, err := aql.Compile(r.Context(), c.backend, body.Tree, body.Projection, opts)
	if err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusOK, map[string]any{
		"collection": mapping.AlertCollection(body.Stream),
		"pipeline":   stages,
	})
}

func handleQueryRun(c *Core, w *ResponseWriter, r *Request) {
	var req aql.QueryRequest
	if !r.Unmarshal(w, &req) {
		return
	}
	if req.Collection == "" {
		w.Error(http.StatusBadRequest, "selectedCollection is required")
		return
	}
	result, err := c.backend.Run(r.Context(), req)
	if err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusOK, result)
}

func handleQueryCount(c *Core, w *ResponseWriter, r *Request) {
	var req aql.QueryRequest
	if !r.Unmarshal(w, &req) {
		return
	}
	if req.Collection == "" {
		w.Error(http.StatusBadRequest, "selectedCollection is required")
		return
	}
	result, err := c.backend.Count(r.Context(), req)
	if err != nil {
		w.HandleError(err)
		return
	}
	w.Respond(http.StatusOK, result)
}
