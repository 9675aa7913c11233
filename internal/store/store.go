// Package store holds the client-side replica of chain state.
//
// Every entry carries a revision from a store-wide monotonic counter and an origin tag
// (optimistic or authoritative). Optimistic writes go through Mutate and return a Change
// that Rollback can undo; a rollback only touches keys whose revision is still the one the
// change wrote, so a newer authoritative push is never clobbered.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/model"
)

type ref struct {
	kind  model.Kind
	owner string
	id    uint64
}

func refOf(e model.Entity) ref {
	k := e.EntityKey()
	return ref{kind: e.EntityKind(), owner: model.NormalizeAddress(k.Owner), id: k.ID}
}

func (r ref) String() string {
	return fmt.Sprintf("%s %s/%d", r.kind, r.owner, r.id)
}

// entry is immutable once stored; writers replace the pointer.
type entry struct {
	value      model.Entity // nil for a tombstone
	revision   uint64
	optimistic bool
}

// Meta describes the bookkeeping of one stored key.
type Meta struct {
	Revision   uint64
	Optimistic bool
	Deleted    bool
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	entries  map[ref]*entry
	revision uint64
	// pre-images of rolled back changes a newer optimistic write still covers, by the
	// revision the abandoned change wrote
	abandoned map[ref]map[uint64]*entry

	wmu       sync.Mutex
	watchers  map[uint64]chan struct{}
	nextWatch uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		entries:   make(map[ref]*entry),
		abandoned: make(map[ref]map[uint64]*entry),
		watchers:  make(map[uint64]chan struct{}),
	}
}

// View returns an immutable point-in-time snapshot.
func (s *Store) View() *View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[ref]*entry, len(s.entries))
	for r, e := range s.entries {
		if e.value != nil {
			cp[r] = e
		}
	}
	return newView(cp, s.revision)
}

// Revision returns the latest revision written.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Meta returns the bookkeeping for one key. Tombstones report Deleted.
func (s *Store) Meta(kind model.Kind, key model.Key) (Meta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[ref{kind: kind, owner: model.NormalizeAddress(key.Owner), id: key.ID}]
	if !ok {
		return Meta{}, false
	}
	return Meta{Revision: e.revision, Optimistic: e.optimistic, Deleted: e.value == nil}, true
}

// Mutate runs fn against a transaction and commits its staged writes atomically as
// optimistic entries. A non-nil error from fn discards every staged write.
func (s *Store) Mutate(fn func(tx *Tx) error) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s.entries)
	if err := fn(tx); err != nil {
		return Change{}, err
	}
	ch := Change{items: make([]changeItem, 0, len(tx.order))}
	for _, r := range tx.order {
		before := s.entries[r]
		s.revision++
		s.entries[r] = &entry{value: tx.staged[r], revision: s.revision, optimistic: true}
		ch.items = append(ch.items, changeItem{ref: r, before: before, revision: s.revision})
	}
	if !ch.Empty() {
		s.notify()
	}
	return ch, nil
}

// ApplyOptimistic mutates a single key. mutate receives the current value (ok=false if absent)
// and returns the replacement, or nil to delete.
func (s *Store) ApplyOptimistic(kind model.Kind, key model.Key, mutate func(cur model.Entity, ok bool) (model.Entity, error)) (Change, error) {
	return s.Mutate(func(tx *Tx) error {
		r := ref{kind: kind, owner: model.NormalizeAddress(key.Owner), id: key.ID}
		cur := tx.get(r)
		next, err := mutate(cur, cur != nil)
		if err != nil {
			return err
		}
		if next == nil {
			tx.stage(r, nil)
			return nil
		}
		if refOf(next) != r {
			return fmt.Errorf("apply optimistic: entity key %s does not match %s", refOf(next), r)
		}
		tx.Put(next)
		return nil
	})
}

// ApplyAuthoritative inserts or replaces e with a confirmed value.
// A building at level 0 that is not upgrading no longer exists and is removed.
func (s *Store) ApplyAuthoritative(es ...model.Entity) {
	if len(es) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range es {
		if e == nil {
			continue
		}
		s.revision++
		r := refOf(e)
		s.entries[r] = &entry{value: authoritativeValue(e), revision: s.revision}
		delete(s.abandoned, r)
	}
	s.notify()
}

// ReplaceAll swaps the whole family kind of owner for es.
func (s *Store) ReplaceAll(kind model.Kind, owner string, es []model.Entity) error {
	return s.ReplaceFamilies(owner, map[model.Kind][]model.Entity{kind: es})
}

// ReplaceFamilies swaps several families of owner at once. Either every family is replaced
// or, if any entity belongs elsewhere, none is.
func (s *Store) ReplaceFamilies(owner string, families map[model.Kind][]model.Entity) error {
	owner = model.NormalizeAddress(owner)
	for kind, es := range families {
		for _, e := range es {
			if e == nil {
				continue
			}
			if r := refOf(e); r.kind != kind || r.owner != owner {
				return fmt.Errorf("replace %s of %s: foreign entity %s", kind, owner, r)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for r, e := range s.entries {
		if _, ok := families[r.kind]; ok && r.owner == owner && e.value != nil {
			s.revision++
			s.entries[r] = &entry{revision: s.revision}
			delete(s.abandoned, r)
		}
	}
	for _, es := range families {
		for _, e := range es {
			if e == nil {
				continue
			}
			s.revision++
			r := refOf(e)
			s.entries[r] = &entry{value: authoritativeValue(e), revision: s.revision}
			delete(s.abandoned, r)
		}
	}
	s.notify()
	return nil
}

// Rollback restores the pre-images captured in ch, revisions included. Keys written since
// by anyone else are left untouched and reported as ErrStaleRollback. When the newer write
// is itself optimistic and is rolled back later, it restores past ch as well.
func (s *Store) Rollback(ch Change) error {
	if ch.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []error
	for i := len(ch.items) - 1; i >= 0; i-- {
		it := ch.items[i]
		cur, ok := s.entries[it.ref]
		if !ok || cur.revision != it.revision {
			if ok && cur.optimistic {
				s.abandon(it)
			}
			stale = append(stale, fmt.Errorf("%s: %w", it.ref, errs.ErrStaleRollback))
			continue
		}
		if before := s.unwind(it.ref, it.before); before == nil {
			delete(s.entries, it.ref)
		} else {
			s.entries[it.ref] = before
		}
	}
	s.revision++
	s.notify()
	return errors.Join(stale...)
}

func (s *Store) abandon(it changeItem) {
	m := s.abandoned[it.ref]
	if m == nil {
		m = make(map[uint64]*entry)
		s.abandoned[it.ref] = m
	}
	m[it.revision] = it.before
}

// unwind skips pre-images written by changes that were rolled back in the meantime.
func (s *Store) unwind(r ref, before *entry) *entry {
	m := s.abandoned[r]
	for before != nil {
		prev, ok := m[before.revision]
		if !ok {
			break
		}
		delete(m, before.revision)
		before = prev
	}
	if len(m) == 0 {
		delete(s.abandoned, r)
	}
	return before
}

// Reset drops every entry and collect mark. The revision counter keeps counting so changes
// taken before the reset roll back as stale.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[ref]*entry)
	s.abandoned = make(map[ref]map[uint64]*entry)
	s.revision++
	s.notify()
}

// Watch returns a channel that receives a value after store changes. Notifications coalesce:
// a slow reader sees at most one pending signal. cancel closes the channel.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.wmu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	s.wmu.Unlock()

	return ch, func() {
		s.wmu.Lock()
		defer s.wmu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
	}
}

func (s *Store) notify() {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func authoritativeValue(e model.Entity) model.Entity {
	if b, ok := e.(model.Building); ok && b.Level == 0 && !b.IsUpgrading {
		return nil
	}
	return model.Canonical(e)
}
