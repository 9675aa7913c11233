package store

import "github.com/and161185/villagekeeper/internal/model"

// Tx stages writes on top of the committed entries. Reads see staged writes.
// A Tx is only valid inside the Mutate callback that created it.
type Tx struct {
	reader
	base   map[ref]*entry
	staged map[ref]model.Entity
	order  []ref
}

func newTx(base map[ref]*entry) *Tx {
	tx := &Tx{base: base, staged: make(map[ref]model.Entity)}
	tx.reader = reader{src: tx}
	return tx
}

// Put stages e, replacing any existing value under its key.
func (tx *Tx) Put(e model.Entity) {
	if e == nil {
		return
	}
	tx.stage(refOf(e), model.Canonical(e))
}

// Delete stages removal of the entity at key.
func (tx *Tx) Delete(kind model.Kind, key model.Key) {
	tx.stage(ref{kind: kind, owner: model.NormalizeAddress(key.Owner), id: key.ID}, nil)
}

// MarkCollected records a local collect at ts for owner.
func (tx *Tx) MarkCollected(owner string, ts int64) {
	owner = model.NormalizeAddress(owner)
	tx.stage(ref{kind: kindCollectMark, owner: owner}, collectMark{owner: owner, at: ts})
}

// Staged reports how many keys the transaction will write.
func (tx *Tx) Staged() int { return len(tx.order) }

func (tx *Tx) stage(r ref, v model.Entity) {
	if _, ok := tx.staged[r]; !ok {
		tx.order = append(tx.order, r)
	}
	tx.staged[r] = v
}

func (tx *Tx) get(r ref) model.Entity {
	if v, ok := tx.staged[r]; ok {
		if v == nil {
			return nil
		}
		return model.Clone(v)
	}
	if e, ok := tx.base[r]; ok && e.value != nil {
		return model.Clone(e.value)
	}
	return nil
}

func (tx *Tx) list(kind model.Kind, owner string) []model.Entity {
	var out []model.Entity
	for r, e := range tx.base {
		if !matches(r, kind, owner) {
			continue
		}
		if _, ok := tx.staged[r]; ok {
			continue
		}
		if e.value != nil {
			out = append(out, model.Clone(e.value))
		}
	}
	for _, r := range tx.order {
		if v := tx.staged[r]; v != nil && matches(r, kind, owner) {
			out = append(out, model.Clone(v))
		}
	}
	return out
}

func matches(r ref, kind model.Kind, owner string) bool {
	return r.kind == kind && (owner == "" || r.owner == owner)
}
