package models

// Record is one seismic event as shipped by the IGP API. The upstream schema
// is not pinned down, so records stay open maps: fields this service does not
// recognize pass through to storage unmodified.
type Record map[string]any

// ID returns the record's "id" field when it is a non-empty string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy so normalization never mutates the fetched record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
