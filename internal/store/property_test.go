package store

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/and161185/villagekeeper/internal/model"
)

func snapshotOf(s *Store) (model.Player, []model.Building, int64) {
	v := s.View()
	p, _ := v.Player(owner)
	return p, v.Buildings(owner), v.CollectMark(owner)
}

// Rolling back every change, in any order, restores the original state exactly.
func TestProperty_RollbackRestores(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := New()
		s.ApplyAuthoritative(model.Player{Address: owner, Diamond: 1000, FreeBuilders: 3})
		s.ApplyAuthoritative(model.Building{Owner: owner, ID: 1, Level: 1})
		p0, b0, m0 := snapshotOf(s)

		n := rapid.IntRange(1, 8).Draw(rt, "n")
		changes := make([]Change, 0, n)
		for i := 0; i < n; i++ {
			spend := rapid.Uint64Range(0, 100).Draw(rt, "spend")
			id := rapid.Uint32Range(1, 4).Draw(rt, "id")
			del := rapid.Bool().Draw(rt, "delete")
			ch, err := s.Mutate(func(tx *Tx) error {
				p, _ := tx.Player(owner)
				p.Diamond -= spend
				tx.Put(p)
				if del {
					tx.Delete(model.KindBuilding, model.Key{Owner: owner, ID: uint64(id)})
				} else {
					tx.Put(model.Building{Owner: owner, ID: id, IsUpgrading: true, UpgradeFinishTime: int64(i)})
				}
				tx.MarkCollected(owner, int64(i+1))
				return nil
			})
			if err != nil {
				rt.Fatalf("mutate: %v", err)
			}
			changes = append(changes, ch)
		}
		if rapid.Bool().Draw(rt, "newest first") {
			for i := len(changes) - 1; i >= 0; i-- {
				if err := s.Rollback(changes[i]); err != nil {
					rt.Fatalf("rollback %d: %v", i, err)
				}
			}
		} else {
			// superseded keys report stale but are unwound by the newer rollback
			for _, ch := range rapid.Permutation(changes).Draw(rt, "order") {
				_ = s.Rollback(ch)
			}
		}

		p1, b1, m1 := snapshotOf(s)
		if p1 != p0 || m1 != m0 || len(b1) != len(b0) {
			rt.Fatalf("state not restored: %+v %+v %d vs %+v %+v %d", p1, b1, m1, p0, b0, m0)
		}
		for i := range b0 {
			if b0[i] != b1[i] {
				rt.Fatalf("building %d: %+v vs %+v", i, b1[i], b0[i])
			}
		}
	})
}

// An authoritative write observed after an optimistic one always wins, even if the
// optimistic change is later rolled back.
func TestProperty_AuthoritativeWins(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := New()
		s.ApplyAuthoritative(model.Player{Address: owner, Diamond: 500})

		optimistic := rapid.Uint64Range(0, 1000).Draw(rt, "optimistic")
		confirmed := rapid.Uint64Range(0, 1000).Draw(rt, "confirmed")
		rollback := rapid.Bool().Draw(rt, "rollback")

		ch, err := s.ApplyOptimistic(model.KindPlayer, model.Key{Owner: owner}, func(cur model.Entity, _ bool) (model.Entity, error) {
			p := cur.(model.Player)
			p.Diamond = optimistic
			return p, nil
		})
		if err != nil {
			rt.Fatalf("optimistic: %v", err)
		}
		s.ApplyAuthoritative(model.Player{Address: owner, Diamond: confirmed})
		if rollback {
			_ = s.Rollback(ch)
		}

		p, _ := s.View().Player(owner)
		if p.Diamond != confirmed {
			rt.Fatalf("diamond = %d, want %d", p.Diamond, confirmed)
		}
		m, _ := s.Meta(model.KindPlayer, model.Key{Owner: owner})
		if m.Optimistic {
			rt.Fatalf("authoritative entry tagged optimistic")
		}
	})
}

// Revisions grow strictly with every write.
func TestProperty_RevisionMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := New()
		last := s.Revision()
		ops := rapid.IntRange(1, 20).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				s.ApplyAuthoritative(model.Player{Address: owner, Diamond: uint64(i)})
			case 1:
				_, _ = s.Mutate(func(tx *Tx) error {
					tx.Put(model.BuilderQueue{Owner: owner, IsTraining: true})
					return nil
				})
			case 2:
				s.Reset()
			}
			if r := s.Revision(); r <= last {
				rt.Fatalf("revision %d did not grow past %d", r, last)
			} else {
				last = r
			}
		}
	})
}
