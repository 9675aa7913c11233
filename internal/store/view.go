package store

import "github.com/and161185/villagekeeper/internal/model"

// View is an immutable snapshot. It stays valid after the store moves on.
type View struct {
	reader
	entries  map[ref]*entry
	revision uint64
}

func newView(entries map[ref]*entry, revision uint64) *View {
	v := &View{entries: entries, revision: revision}
	v.reader = reader{src: v}
	return v
}

// Revision is the store revision the snapshot was taken at.
func (v *View) Revision() uint64 { return v.revision }

// Len returns the number of live entities in the snapshot.
func (v *View) Len() int { return len(v.entries) }

func (v *View) get(r ref) model.Entity {
	if e, ok := v.entries[r]; ok {
		return model.Clone(e.value)
	}
	return nil
}

func (v *View) list(kind model.Kind, owner string) []model.Entity {
	var out []model.Entity
	for r, e := range v.entries {
		if matches(r, kind, owner) {
			out = append(out, model.Clone(e.value))
		}
	}
	return out
}
