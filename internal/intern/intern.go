package intern

// Table deduplicates identifier and operator spellings for one compile session.
// It is not safe for concurrent use; each session owns its own table.
type Table struct {
	ids   map[string]int
	names []string
}

// New creates an empty table.
func New() *Table {
	return &Table{ids: make(map[string]int)}
}

// Intern returns the canonical copy of s.
func (t *Table) Intern(s string) string {
	if t == nil {
		return s
	}
	if id, ok := t.ids[s]; ok {
		return t.names[id]
	}
	t.ids[s] = len(t.names)
	t.names = append(t.names, s)
	return s
}

// ID reports the stable id assigned to s, if it has been interned.
func (t *Table) ID(s string) (int, bool) {
	if t == nil {
		return 0, false
	}
	id, ok := t.ids[s]
	return id, ok
}

// Len reports how many distinct strings are interned.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}
