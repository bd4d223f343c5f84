package schema

import (
	"encoding/json"
	"fmt"
)

// Envelope is the versioned wrapper the schema store returns for one
// instrument. The inner schema is stored as a JSON string.
type Envelope struct {
	ActiveID string    `json:"active_id" bson:"active_id"`
	Versions []Version `json:"versions" bson:"versions"`
}

// Version is one stored schema version
type Version struct {
	VID    string `json:"vid" bson:"vid"`
	Schema string `json:"schema" bson:"schema"`
}

// Document is the decoded Avro-like schema document
type Document struct {
	Name   string  `json:"name,omitempty"`
	Fields []Field `json:"fields"`
}

// Field is one schema field. Type is polymorphic: a primitive name, a
// union array, or a record/array definition object.
type Field struct {
	Name string `json:"name"`
	Type any    `json:"type"`
}

// ActiveDocument decodes the schema version matching the envelope's
// active id
func (e *Envelope) ActiveDocument() (*Document, error) {
	for _, v := range e.Versions {
		if v.VID == e.ActiveID {
			return ParseDocument([]byte(v.Schema))
		}
	}
	return nil, fmt.Errorf("schema envelope: no version with id %q", e.ActiveID)
}

// ParseDocument decodes a raw schema document
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema parse error: %w", err)
	}
	return &doc, nil
}
