package protocol

import (
	"bytes"
	"encoding/json"
	"sort"
)

// sortedMap marshals to JSON with keys in lexical order, giving
// CanonicalJSON a deterministic, total serialization for geometry
// equality checks.
type sortedMap struct {
	keys   []string
	values map[string]any
}

func newSortedMap(hint int) *sortedMap {
	return &sortedMap{keys: make([]string, 0, hint), values: make(map[string]any, hint)}
}

func (m *sortedMap) set(k string, v any) {
	if _, exists := m.values[k]; !exists {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

func (m *sortedMap) MarshalJSON() ([]byte, error) {
	sort.Strings(m.keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
