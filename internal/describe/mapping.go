package describe

// Mapping is the read-only name → content path table, loaded once and
// immutable for the session. Keys are stored pre-normalized so lookups only
// normalize the probe side.
type Mapping struct {
	paths map[string]string
}

// NewMapping builds a mapping from raw entries plus optional per-entry
// synonym lists. Every synonym's normalized variants point at the entry's
// path; on collision the first registration wins.
func NewMapping(entries map[string]string, synonyms map[string][]string) *Mapping {
	m := &Mapping{paths: make(map[string]string, len(entries))}
	for name, path := range entries {
		m.add(name, path)
		for _, syn := range synonyms[name] {
			m.add(syn, path)
		}
	}
	return m
}

func (m *Mapping) add(name, path string) {
	for _, v := range Variants(name) {
		if _, exists := m.paths[v]; !exists {
			m.paths[v] = path
		}
	}
}

// Len returns the number of probe keys in the table.
func (m *Mapping) Len() int {
	return len(m.paths)
}

// Resolve probes the table with each candidate name's variants, candidates
// in the given order and variants in precedence order. The first hit wins.
func (m *Mapping) Resolve(candidates []string) (key, path string, ok bool) {
	for _, candidate := range candidates {
		for _, v := range Variants(candidate) {
			if p, hit := m.paths[v]; hit {
				return v, p, true
			}
		}
	}
	return "", "", false
}
