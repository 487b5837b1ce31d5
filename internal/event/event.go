package event

// Attribute is a single key/value pair emitted by a transaction event.
// Keys repeat within one event; order is significant.
type Attribute struct {
	Key   string
	Value string
}

// Event is one typed event emitted during transaction execution.
type Event struct {
	Type       string
	Attributes []Attribute
}

// First returns the first value for key, if present.
func (e Event) First(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// TxData is the full set of events of one executed transaction, together
// with the block coordinates needed to stamp extraction records.
type TxData struct {
	Hash       string
	Height     uint64
	TimeUnixMs int64
	Events     []Event
}

// AttrMap is an ordered multi-value view over an attribute list. Duplicate
// keys are preserved: All returns every value for a key in emission order.
type AttrMap struct {
	keys   []string
	values map[string][]string
}

// NewAttrMap builds an AttrMap from an ordered attribute list.
func NewAttrMap(attrs []Attribute) AttrMap {
	m := AttrMap{values: make(map[string][]string, len(attrs))}
	for _, a := range attrs {
		if _, seen := m.values[a.Key]; !seen {
			m.keys = append(m.keys, a.Key)
		}
		m.values[a.Key] = append(m.values[a.Key], a.Value)
	}
	return m
}

// Get returns the first value recorded for key.
func (m AttrMap) Get(key string) (string, bool) {
	vs := m.values[key]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// All returns every value recorded for key, in emission order.
func (m AttrMap) All(key string) []string {
	return m.values[key]
}

// Has reports whether key appears at least once.
func (m AttrMap) Has(key string) bool {
	return len(m.values[key]) > 0
}

// Keys returns the distinct keys in first-appearance order.
func (m AttrMap) Keys() []string {
	return m.keys
}

// Len returns the number of distinct keys.
func (m AttrMap) Len() int {
	return len(m.keys)
}

// ToMap flattens the multimap into a plain map for serialization. Values
// stay as ordered lists so duplicate-key semantics survive the round trip.
func (m AttrMap) ToMap() map[string][]string {
	out := make(map[string][]string, len(m.keys))
	for _, k := range m.keys {
		vs := m.values[k]
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}
