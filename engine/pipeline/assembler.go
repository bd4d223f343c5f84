// Package pipeline assembles the final ordered aggregation pipeline.
//
// Stage order is fixed: join stages, time window, compiled match, compiled
// projection, then pagination. The assembler never reorders stages and
// never interleaves pagination with the compiled stages.
package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Sort orders accepted by the pagination builder
const (
	SortAscending  = "Ascending"
	SortDescending = "Descending"
)

// DefaultJDField is the Julian-date field the time window filters on
const DefaultJDField = "candidate.jd"

// Options collects the stages and parameters for one assembled pipeline
type Options struct {
	// Join stages supplied by the caller that knows the active stream:
	// $lookup against the aux collection plus its projection.
	Lookup []bson.M

	// Time window on the Julian-date field; zero values disable it.
	StartJD float64
	EndJD   float64
	JDField string

	// Compiled stages; nil stages are omitted.
	Match   bson.M
	Project bson.M

	// Pagination stages, always appended last.
	Pagination []bson.M
}

// Assemble produces the ordered stage array
func Assemble(opts Options) []bson.M {
	var stages []bson.M

	stages = append(stages, opts.Lookup...)

	if window := TimeWindow(opts.StartJD, opts.EndJD, opts.JDField); window != nil {
		stages = append(stages, window)
	}
	if opts.Match != nil {
		stages = append(stages, opts.Match)
	}
	if opts.Project != nil {
		stages = append(stages, opts.Project)
	}

	stages = append(stages, opts.Pagination...)
	return stages
}

// TimeWindow builds the Julian-date range $match, or nil when no range is
// selected
func TimeWindow(startJD, endJD float64, field string) bson.M {
	if startJD == 0 && endJD == 0 {
		return nil
	}
	if field == "" {
		field = DefaultJDField
	}
	window := bson.M{}
	if startJD != 0 {
		window["$gte"] = startJD
	}
	if endJD != 0 {
		window["$lte"] = endJD
	}
	return bson.M{"$match": bson.M{field: window}}
}

// Pagination builds the trailing stages for one result page. The cursor
// filters on the last-seen document id: $gt when ascending, $lt when
// descending.
func Pagination(sortBy, sortOrder string, limit, skip int64, cursor *int64) []bson.M {
	var stages []bson.M

	if cursor != nil {
		op := "$gt"
		if sortOrder != SortAscending {
			op = "$lt"
		}
		stages = append(stages, bson.M{"$match": bson.M{"_id": bson.M{op: *cursor}}})
	}
	if sortBy != "" {
		direction := 1
		if sortOrder != SortAscending {
			direction = -1
		}
		stages = append(stages, bson.M{"$sort": bson.M{sortBy: direction, "_id": direction}})
	}
	if skip > 0 {
		stages = append(stages, bson.M{"$skip": skip})
	}
	if limit > 0 {
		stages = append(stages, bson.M{"$limit": limit})
	}
	return stages
}

// CountStage replaces pagination when only the matching-document count is
// wanted
func CountStage() []bson.M {
	return []bson.M{{"$count": "count"}}
}

// LookupStages builds the default join against the aux collection: the
// cross-match and photometry-history documents for each alert
func LookupStages(auxCollection string) []bson.M {
	return []bson.M{
		{"$lookup": bson.M{
			"from":         auxCollection,
			"localField":   "objectId",
			"foreignField": "_id",
			"as":           "aux",
		}},
		{"$project": bson.M{
			"cross_matches":  bson.M{"$arrayElemAt": bson.A{"$aux.cross_matches", 0}},
			"prv_candidates": bson.M{"$arrayElemAt": bson.A{"$aux.prv_candidates", 0}},
			"objectId":       1,
			"candid":         1,
			"candidate":      1,
			"classifications": bson.M{
				"$arrayElemAt": bson.A{"$aux.classifications", 0},
			},
		}},
	}
}
