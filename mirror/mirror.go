// Package mirror holds a live, read-mostly snapshot of backend printer
// objects (spec.md §3, §4.C). It is seeded at startup (and again after
// each reconnect) from the subscription's initial status, and otherwise
// mutated only by the RPC push handler.
package mirror

import "sync"

// Fields is a flat name -> value bag for one printer object. Values are
// scalars (float64, string, bool) or fixed-length tuples ([]float64).
type Fields map[string]interface{}

// Mirror is the single-writer/multi-reader snapshot of subscribed
// printer objects. Seed and Merge are the only mutations: fields once
// present are only ever overwritten, never deleted (spec.md §3 invariant).
type Mirror struct {
	mu      sync.RWMutex
	objects map[string]Fields
	ready   bool
}

// New returns an empty Mirror. Call Seed with the initial status result
// to populate it and mark it Ready before starting command processing.
func New() *Mirror {
	return &Mirror{objects: make(map[string]Fields)}
}

// Seed installs the initial snapshot returned by the startup query and
// marks the mirror ready. Fields are merged over any existing values, so
// it may be called again to re-seed after a reconnect.
func (m *Mirror) Seed(snapshot map[string]Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, fields := range snapshot {
		dst := m.objects[name]
		if dst == nil {
			dst = make(Fields, len(fields))
		}
		for k, v := range fields {
			dst[k] = v
		}
		m.objects[name] = dst
	}
	m.ready = true
}

// Ready reports whether the initial synchronous query has completed.
func (m *Mirror) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Merge applies a notify_status_update delta. Each call is atomic with
// respect to readers; deltas across different objects are not
// coordinated with one another (spec.md §4.C).
func (m *Mirror) Merge(delta map[string]Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, fields := range delta {
		dst, ok := m.objects[name]
		if !ok {
			dst = make(Fields, len(fields))
		}
		for k, v := range fields {
			dst[k] = v
		}
		m.objects[name] = dst
	}
}

// Object returns a copy of the named object's fields, or nil if the
// object has never been seen. Callers must tolerate a nil/absent object
// (spec.md §9 Open Question (a) — e.g. "probe" or "bltouch" may not
// exist on every machine).
func (m *Mirror) Object(name string) (Fields, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[name]
	if !ok {
		return nil, false
	}
	cp := make(Fields, len(obj))
	for k, v := range obj {
		cp[k] = v
	}
	return cp, true
}

// Float returns object.field as a float64, or def if either is absent
// or not numeric. Numeric fields default to 0 when rendered (spec.md §3).
func (m *Mirror) Float(object, field string, def float64) float64 {
	obj, ok := m.Object(object)
	if !ok {
		return def
	}
	return toFloat(obj[field], def)
}

// Tuple returns object.field as a []float64 of the given length, padded
// with zeros if the stored tuple is shorter or the field is absent.
func (m *Mirror) Tuple(object, field string, length int) []float64 {
	out := make([]float64, length)
	obj, ok := m.Object(object)
	if !ok {
		return out
	}
	raw, ok := obj[field]
	if !ok {
		return out
	}
	switch v := raw.(type) {
	case []float64:
		for i := 0; i < length && i < len(v); i++ {
			out[i] = v[i]
		}
	case []interface{}:
		for i := 0; i < length && i < len(v); i++ {
			out[i] = toFloat(v[i], 0)
		}
	}
	return out
}

// String returns object.field as a string, or def if absent.
func (m *Mirror) String(object, field, def string) string {
	obj, ok := m.Object(object)
	if !ok {
		return def
	}
	v, ok := obj[field]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// Bool returns object.field as a bool, or def if absent.
func (m *Mirror) Bool(object, field string, def bool) bool {
	obj, ok := m.Object(object)
	if !ok {
		return def
	}
	v, ok := obj[field]
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// Nested returns configfile.settings.<section>.<field> (spec.md §3:
// configuration is nested one level deeper than other objects).
func (m *Mirror) Nested(section, field string, def float64) float64 {
	obj, ok := m.Object("configfile")
	if !ok {
		return def
	}
	settings, ok := obj["settings"].(map[string]interface{})
	if !ok {
		return def
	}
	sec, ok := settings[section].(map[string]interface{})
	if !ok {
		return def
	}
	return toFloat(sec[field], def)
}

// HasSection reports whether configfile.settings.<section> is present,
// used to branch on optional hardware like bltouch/probe (spec.md §9a).
func (m *Mirror) HasSection(section string) bool {
	obj, ok := m.Object("configfile")
	if !ok {
		return false
	}
	settings, ok := obj["settings"].(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = settings[section]
	return ok
}

func toFloat(v interface{}, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}
