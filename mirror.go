package kvmirror

import "slices"

// mirror is the in-memory copy of the namespace, keyed by physical key.
// Iteration follows insertion order; a key removed and set again moves to
// the end. It is not synchronized; Store guards it.
type mirror struct {
	values map[string]Value
	order  []string
}

func newMirror() *mirror {
	return &mirror{values: make(map[string]Value)}
}

func (m *mirror) get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *mirror) set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] = v
}

func (m *mirror) delete(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	if i := slices.Index(m.order, key); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	return true
}

// keys returns keys in insertion order.
func (m *mirror) keys() []string {
	return slices.Clone(m.order)
}

func (m *mirror) len() int { return len(m.values) }

func (m *mirror) reset() {
	m.values = make(map[string]Value)
	m.order = nil
}
