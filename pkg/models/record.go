package models

import (
	"encoding/json"
	"time"
)

// Record is the unit the store persists: an opaque JSON document addressed by
// (partition, row). Partitions isolate tenants; upsert replaces the whole
// document atomically.
type Record struct {
	Partition string          `json:"partition"`
	Row       string          `json:"row"`
	Doc       json.RawMessage `json:"doc"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewRecord marshals doc into a Record for (partition, row).
func NewRecord(partition, row string, doc interface{}) (Record, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Record{}, err
	}
	return Record{Partition: partition, Row: row, Doc: raw, UpdatedAt: time.Now().UTC()}, nil
}

// Decode unmarshals the record document into out.
func (r Record) Decode(out interface{}) error {
	return json.Unmarshal(r.Doc, out)
}
