// client.go

package aql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/alertql-engine/alertql/engine/models"
	"github.com/alertql-engine/alertql/engine/pipeline"
	"github.com/alertql-engine/alertql/engine/schema"
	"github.com/alertql-engine/alertql/engine/validator"
	"github.com/alertql-engine/alertql/mapping"
)

const schemaCacheTTL = time.Hour

// ============================================
// CLIENT STRUCT
// ============================================

// Client wraps the backing MongoDB database with the query-builder
// persistence and execution operations. An optional Redis client caches
// schema documents.
type Client struct {
	db    *mongo.Database
	cache *redis.Client
	log   *zap.Logger
}

// ============================================
// CONSTRUCTORS
// ============================================

// WrapMongo wraps a MongoDB database connection
func WrapMongo(db *mongo.Database) *Client {
	return &Client{
		db:  db,
		log: zap.NewNop(),
	}
}

// WithCache adds a Redis schema cache
func (c *Client) WithCache(rdb *redis.Client) *Client {
	c.cache = rdb
	return c
}

// WithLogger sets the logger
func (c *Client) WithLogger(log *zap.Logger) *Client {
	c.log = log
	return c
}

// ============================================
// VARIABLE STORE
// ============================================

// Variable looks up a persisted arithmetic variable by name. Returns
// (nil, nil) when none exists.
func (c *Client) Variable(ctx context.Context, name string) (*models.Variable, error) {
	var v models.Variable
	err := c.db.Collection("variables").FindOne(ctx, bson.M{"name": name}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("variable lookup error: %w", err)
	}
	return &v, nil
}

// ListVariable looks up a persisted list variable by name. Returns
// (nil, nil) when none exists.
func (c *Client) ListVariable(ctx context.Context, name string) (*models.ListVariable, error) {
	var lv models.ListVariable
	err := c.db.Collection("listVariables").FindOne(ctx, bson.M{"name": name}).Decode(&lv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list variable lookup error: %w", err)
	}
	return &lv, nil
}

// variableNames collects every saved variable name across both
// namespaces; arithmetic and list variables share one namespace
func (c *Client) variableNames(ctx context.Context) ([]string, error) {
	var names []string
	for _, coll := range []string{"variables", "listVariables"} {
		cursor, err := c.db.Collection(coll).Find(ctx, bson.M{})
		if err != nil {
			return nil, fmt.Errorf("variable scan error: %w", err)
		}
		for cursor.Next(ctx) {
			var doc struct {
				Name string `bson:"name"`
			}
			if err := cursor.Decode(&doc); err != nil {
				continue
			}
			names = append(names, doc.Name)
		}
		cursor.Close(ctx)
	}
	return names, nil
}

// ============================================
// ELEMENT PERSISTENCE
// ============================================

// SaveElement persists one query-builder element (block, variable, or
// list variable) under a unique name
func (c *Client) SaveElement(ctx context.Context, kind, name string, data bson.M) error {
	collection, ok := mapping.ElementCollection(kind)
	if !ok {
		return &validator.ValidationError{Reason: fmt.Sprintf("unknown element kind %q", kind)}
	}

	if collection == "variables" || collection == "listVariables" {
		existing, err := c.variableNames(ctx)
		if err != nil {
			return err
		}
		if err := validator.ValidateVariableName(name, existing); err != nil {
			return err
		}
	}

	doc := bson.M{"name": name, "created_at": time.Now().UTC()}
	for k, v := range data {
		doc[k] = v
	}
	if _, err := c.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

// Elements lists every persisted element of one kind
func (c *Client) Elements(ctx context.Context, kind string) ([]bson.M, error) {
	collection, ok := mapping.ElementCollection(kind)
	if !ok {
		return nil, &validator.ValidationError{Reason: fmt.Sprintf("unknown element kind %q", kind)}
	}
	cursor, err := c.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find error: %w", err)
	}
	defer cursor.Close(ctx)

	var results []bson.M
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		results = append(results, doc)
	}
	return results, nil
}

// Element fetches one persisted element by name
func (c *Client) Element(ctx context.Context, kind, name string) (bson.M, error) {
	collection, ok := mapping.ElementCollection(kind)
	if !ok {
		return nil, &validator.ValidationError{Reason: fmt.Sprintf("unknown element kind %q", kind)}
	}
	var doc bson.M
	err := c.db.Collection(collection).FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find error: %w", err)
	}
	return doc, nil
}

// ============================================
// SCHEMA SOURCE
// ============================================

// Schema fetches the versioned schema envelope for an instrument, with a
// read-through Redis cache in front of the schema collection
func (c *Client) Schema(ctx context.Context, instrument string) (*schema.Envelope, error) {
	cacheKey := "alertql:schema:" + instrument

	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var envelope schema.Envelope
			if err := json.Unmarshal(raw, &envelope); err == nil {
				return &envelope, nil
			}
		}
	}

	var envelope schema.Envelope
	err := c.db.Collection(mapping.SchemaCollection).
		FindOne(ctx, bson.M{"instrument_name": instrument}).
		Decode(&envelope)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("no schema for instrument %q", instrument)
	}
	if err != nil {
		return nil, fmt.Errorf("schema fetch error: %w", err)
	}

	if c.cache != nil {
		if raw, err := json.Marshal(&envelope); err == nil {
			if err := c.cache.Set(ctx, cacheKey, raw, schemaCacheTTL).Err(); err != nil {
				c.log.Warn("schema cache write failed", zap.String("instrument", instrument), zap.Error(err))
			}
		}
	}
	return &envelope, nil
}

// ============================================
// FILTER PERSISTENCE
// ============================================

// CreateFilter saves a new filter; its first version becomes active
func (c *Client) CreateFilter(ctx context.Context, filter *models.Filter) (string, error) {
	if !mapping.IsSupportedStream(filter.Stream) {
		return "", &validator.ValidationError{
			Field:  filter.Stream,
			Reason: "is not a supported alert stream",
		}
	}
	if filter.ID == "" {
		filter.ID = ksuid.New().String()
	}
	for i := range filter.Versions {
		if filter.Versions[i].FID == "" {
			filter.Versions[i].FID = ksuid.New().String()
		}
		if filter.Versions[i].CreatedAt == 0 {
			filter.Versions[i].CreatedAt = time.Now().Unix()
		}
	}
	if len(filter.Versions) > 0 && filter.ActiveFID == "" {
		filter.ActiveFID = filter.Versions[0].FID
	}
	if _, err := c.db.Collection(mapping.FilterCollection).InsertOne(ctx, filter); err != nil {
		return "", fmt.Errorf("filter insert error: %w", err)
	}
	return filter.ID, nil
}

// Filter fetches a filter with all its versions
func (c *Client) Filter(ctx context.Context, id string) (*models.Filter, error) {
	var filter models.Filter
	err := c.db.Collection(mapping.FilterCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&filter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filter fetch error: %w", err)
	}
	return &filter, nil
}

// AddFilterVersion appends a new version and makes it active
func (c *Client) AddFilterVersion(ctx context.Context, id string, version models.FilterVersion) (string, error) {
	if version.FID == "" {
		version.FID = ksuid.New().String()
	}
	if version.CreatedAt == 0 {
		version.CreatedAt = time.Now().Unix()
	}
	result, err := c.db.Collection(mapping.FilterCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"fv": version},
			"$set":  bson.M{"active_fid": version.FID},
		})
	if err != nil {
		return "", fmt.Errorf("filter version error: %w", err)
	}
	if result.MatchedCount == 0 {
		return "", &validator.NotFoundError{Kind: "filter", ID: id}
	}
	return version.FID, nil
}

// SetActiveVersion switches the active version and the active flag
func (c *Client) SetActiveVersion(ctx context.Context, id, fid string, active bool) error {
	filter, err := c.Filter(ctx, id)
	if err != nil {
		return err
	}
	if filter == nil {
		return &validator.NotFoundError{Kind: "filter", ID: id}
	}
	known := false
	for _, v := range filter.Versions {
		if v.FID == fid {
			known = true
			break
		}
	}
	if !known {
		return &validator.NotFoundError{Kind: "filter version", ID: fid}
	}
	_, err = c.db.Collection(mapping.FilterCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"active_fid": fid, "active": active}})
	if err != nil {
		return fmt.Errorf("filter update error: %w", err)
	}
	return nil
}

// DeleteFilter removes a filter and all its versions
func (c *Client) DeleteFilter(ctx context.Context, id string) error {
	result, err := c.db.Collection(mapping.FilterCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("filter delete error: %w", err)
	}
	if result.DeletedCount == 0 {
		return &validator.NotFoundError{Kind: "filter", ID: id}
	}
	return nil
}

// ============================================
// QUERY EXECUTION
// ============================================

// QueryRequest is one preview/execution call. Pipeline holds the compiled
// stages up to and including the projection; pagination is appended here.
// Generation is an opaque caller token echoed back so stale responses can
// be discarded.
type QueryRequest struct {
	Pipeline   []bson.M `json:"pipeline"`
	Collection string   `json:"selectedCollection"`
	StartJD    float64  `json:"start_jd,omitempty"`
	EndJD      float64  `json:"end_jd,omitempty"`
	FilterID   string   `json:"filter_id,omitempty"`
	SortBy     string   `json:"sort_by,omitempty"`
	SortOrder  string   `json:"sort_order,omitempty"`
	Limit      int64    `json:"limit,omitempty"`
	Cursor     *int64   `json:"cursor,omitempty"`
	Generation int64    `json:"generation,omitempty"`
}

// QueryResult is the decoded execution result
type QueryResult struct {
	Results    []map[string]any `json:"results"`
	Count      *int64           `json:"count,omitempty"`
	Generation int64            `json:"generation,omitempty"`
}

// Run executes a compiled pipeline with pagination appended. The time
// window is prepended ahead of the compiled stages: filtering alerts on
// the raw Julian-date field before the aux join is equivalent and avoids
// joining documents the window discards.
func (c *Client) Run(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	stages := c.executionStages(req, pipeline.Pagination(req.SortBy, req.SortOrder, req.Limit, 0, req.Cursor))
	c.log.Debug("executing pipeline",
		zap.String("survey", mapping.Survey(req.Collection)),
		zap.String("collection", req.Collection),
		zap.Int("stages", len(stages)))

	cursor, err := c.db.Collection(req.Collection).Aggregate(ctx, toDocs(stages))
	if err != nil {
		return nil, fmt.Errorf("aggregate error: %w", err)
	}
	defer cursor.Close(ctx)

	results := []map[string]any{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		if id, ok := doc["_id"]; ok {
			doc["_id"] = fmt.Sprint(id)
		}
		results = append(results, doc)
	}
	return &QueryResult{Results: results, Generation: req.Generation}, nil
}

// Count executes the pipeline in count mode, without sort or limit
func (c *Client) Count(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	stages := c.executionStages(req, pipeline.CountStage())
	c.log.Debug("counting pipeline matches",
		zap.String("survey", mapping.Survey(req.Collection)),
		zap.String("collection", req.Collection))

	cursor, err := c.db.Collection(req.Collection).Aggregate(ctx, toDocs(stages))
	if err != nil {
		return nil, fmt.Errorf("aggregate error: %w", err)
	}
	defer cursor.Close(ctx)

	var count int64
	if cursor.Next(ctx) {
		var doc struct {
			Count int64 `bson:"count"`
		}
		if err := cursor.Decode(&doc); err == nil {
			count = doc.Count
		}
	}
	return &QueryResult{Results: []map[string]any{}, Count: &count, Generation: req.Generation}, nil
}

// ============================================
// HELPERS
// ============================================

func (c *Client) executionStages(req QueryRequest, pagination []bson.M) []bson.M {
	var stages []bson.M
	if window := pipeline.TimeWindow(req.StartJD, req.EndJD, ""); window != nil {
		stages = append(stages, window)
	}
	stages = append(stages, req.Pipeline...)
	stages = append(stages, pagination...)
	return stages
}

func toDocs(stages []bson.M) []any {
	docs := make([]any, len(stages))
	for i, stage := range stages {
		docs[i] = stage
	}
	return docs
}
