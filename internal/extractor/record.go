package extractor

import (
	"bytes"
	"encoding/json"
)

// Record is one extracted entity: an ordered mapping from field name to a
// scalar or a list of scalars, in the order fields were configured.
type Record struct {
	keys []string
	vals map[string]any
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{vals: make(map[string]any)}
}

// Set stores a value, preserving first-insertion order.
func (r *Record) Set(name string, value any) {
	if _, ok := r.vals[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.vals[name] = value
}

// Get returns a field value.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.vals[name]
	return v, ok
}

// Fields returns the field names in configured order.
func (r *Record) Fields() []string {
	return r.keys
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// MarshalJSON serializes the record as an object with fields in configured
// order, which map-backed types cannot guarantee.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.vals[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
