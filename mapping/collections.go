package mapping

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// SupportedStreams lists the alert streams with first-class collections.
// Users must use these exact names in their stream field.
var SupportedStreams = []string{
	"ZTF",
	"LSST",
}

// streamCollections - fixed alert collection names per stream
var streamCollections = map[string]string{
	"ZTF":  "ZTF_alerts",
	"LSST": "LSST_alerts",
}

// IsSupportedStream checks if a stream has a first-class alert collection
func IsSupportedStream(stream string) bool {
	for _, s := range SupportedStreams {
		if s == stream {
			return true
		}
	}
	return false
}

// AlertCollection returns the alert collection for a stream. Unknown
// streams fall back to the `<stream>_alerts` convention.
func AlertCollection(stream string) string {
	if name, ok := streamCollections[stream]; ok {
		return name
	}
	return stream + "_alerts"
}

// AuxCollection returns the auxiliary collection joined for cross-matches
// and photometry history
func AuxCollection(stream string) string {
	return AlertCollection(stream) + "_aux"
}

// Survey extracts the survey name from a collection name, e.g.
// "ZTF_alerts" -> "ZTF"
func Survey(collection string) string {
	return strings.SplitN(collection, "_", 2)[0]
}

// ElementKinds lists the persisted query-builder element kinds and the
// collections that back them
var ElementKinds = []string{
	"blocks",
	"variables",
	"listVariables",
}

// ElementCollection maps an element kind to its backing collection,
// accepting both singular and plural spellings
func ElementCollection(kind string) (string, bool) {
	plural := inflection.Plural(inflection.Singular(kind))
	for _, k := range ElementKinds {
		if k == plural {
			return k, true
		}
	}
	return "", false
}

// SchemaCollection backs the per-instrument schema documents
const SchemaCollection = "schema"

// FilterCollection backs saved filters and their versions
const FilterCollection = "filters"
