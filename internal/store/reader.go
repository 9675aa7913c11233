package store

import (
	"sort"

	"github.com/and161185/villagekeeper/internal/model"
)

// Reader is the read surface shared by point-in-time views and in-flight transactions.
type Reader interface {
	Player(owner string) (model.Player, bool)
	Players() []model.Player
	Building(owner string, id uint32) (model.Building, bool)
	// Buildings returns the owner's buildings in creation (ID) order.
	Buildings(owner string) []model.Building
	Army(owner string) (model.Army, bool)
	BuilderQueue(owner string) (model.BuilderQueue, bool)
	TrainingQueue(owner string, barracksID uint32) (model.TrainingQueue, bool)
	TrainingQueues(owner string) []model.TrainingQueue
	Battle(attacker string, id uint64) (model.BattleRecord, bool)
	Battles() []model.BattleRecord
	// CollectMark is the latest locally recorded optimistic collect time for owner, 0 if none.
	CollectMark(owner string) int64
}

// source resolves entries; implemented by View and Tx.
type source interface {
	get(r ref) model.Entity
	list(kind model.Kind, owner string) []model.Entity
}

type reader struct{ src source }

func (r reader) Player(owner string) (model.Player, bool) {
	p, ok := r.src.get(ref{kind: model.KindPlayer, owner: model.NormalizeAddress(owner)}).(model.Player)
	return p, ok
}

func (r reader) Players() []model.Player {
	es := r.src.list(model.KindPlayer, "")
	out := make([]model.Player, 0, len(es))
	for _, e := range es {
		out = append(out, e.(model.Player))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (r reader) Building(owner string, id uint32) (model.Building, bool) {
	b, ok := r.src.get(ref{kind: model.KindBuilding, owner: model.NormalizeAddress(owner), id: uint64(id)}).(model.Building)
	return b, ok
}

func (r reader) Buildings(owner string) []model.Building {
	es := r.src.list(model.KindBuilding, model.NormalizeAddress(owner))
	out := make([]model.Building, 0, len(es))
	for _, e := range es {
		out = append(out, e.(model.Building))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r reader) Army(owner string) (model.Army, bool) {
	a, ok := r.src.get(ref{kind: model.KindArmy, owner: model.NormalizeAddress(owner)}).(model.Army)
	return a, ok
}

func (r reader) BuilderQueue(owner string) (model.BuilderQueue, bool) {
	q, ok := r.src.get(ref{kind: model.KindBuilderQueue, owner: model.NormalizeAddress(owner)}).(model.BuilderQueue)
	return q, ok
}

func (r reader) TrainingQueue(owner string, barracksID uint32) (model.TrainingQueue, bool) {
	q, ok := r.src.get(ref{kind: model.KindTrainingQueue, owner: model.NormalizeAddress(owner), id: uint64(barracksID)}).(model.TrainingQueue)
	return q, ok
}

func (r reader) TrainingQueues(owner string) []model.TrainingQueue {
	es := r.src.list(model.KindTrainingQueue, model.NormalizeAddress(owner))
	out := make([]model.TrainingQueue, 0, len(es))
	for _, e := range es {
		out = append(out, e.(model.TrainingQueue))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BarracksID < out[j].BarracksID })
	return out
}

func (r reader) Battle(attacker string, id uint64) (model.BattleRecord, bool) {
	b, ok := r.src.get(ref{kind: model.KindBattle, owner: model.NormalizeAddress(attacker), id: id}).(model.BattleRecord)
	return b, ok
}

func (r reader) Battles() []model.BattleRecord {
	es := r.src.list(model.KindBattle, "")
	out := make([]model.BattleRecord, 0, len(es))
	for _, e := range es {
		out = append(out, e.(model.BattleRecord))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r reader) CollectMark(owner string) int64 {
	m, ok := r.src.get(ref{kind: kindCollectMark, owner: model.NormalizeAddress(owner)}).(collectMark)
	if !ok {
		return 0
	}
	return m.at
}

// kindCollectMark stores optimistic collect timestamps next to the entity families.
const kindCollectMark model.Kind = 250

type collectMark struct {
	owner string
	at    int64
}

func (m collectMark) EntityKind() model.Kind { return kindCollectMark }
func (m collectMark) EntityKey() model.Key   { return model.Key{Owner: m.owner} }
