package models

// Record is an ordered column → value mapping. Setting an existing column
// replaces its value in place and keeps the original position.
type Record struct {
	keys   []string
	values map[string]Value
}

// NewRecord creates an empty record.
func NewRecord() Record {
	return Record{values: make(map[string]Value)}
}

// Set stores v under key.
func (r *Record) Set(key string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r Record) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the columns in insertion order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.keys) }

// Merge copies every column of other into r, in other's order.
func (r *Record) Merge(other Record) {
	for _, k := range other.keys {
		r.Set(k, other.values[k])
	}
}

// Clone returns an independent copy.
func (r Record) Clone() Record {
	out := Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]Value, len(r.values)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}
