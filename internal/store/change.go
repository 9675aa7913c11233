package store

import "github.com/and161185/villagekeeper/internal/model"

// Change is the undo record of one committed Mutate.
type Change struct {
	items []changeItem
}

type changeItem struct {
	ref      ref
	before   *entry // nil when the key did not exist
	revision uint64 // revision this change wrote
}

// Empty reports whether the change wrote nothing.
func (c Change) Empty() bool { return len(c.items) == 0 }

// Kinds lists the entity families touched, without duplicates and without internal marks.
func (c Change) Kinds() []model.Kind {
	seen := make(map[model.Kind]bool)
	var out []model.Kind
	for _, it := range c.items {
		if it.ref.kind == kindCollectMark || seen[it.ref.kind] {
			continue
		}
		seen[it.ref.kind] = true
		out = append(out, it.ref.kind)
	}
	return out
}

// Keys lists the keys touched in write order.
func (c Change) Keys() []model.Key {
	out := make([]model.Key, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, model.Key{Owner: it.ref.owner, ID: it.ref.id})
	}
	return out
}
