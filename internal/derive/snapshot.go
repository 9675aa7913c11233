package derive

import (
	"github.com/and161185/villagekeeper/internal/gamedata"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/store"
)

// BuildingState is a building with its projections.
type BuildingState struct {
	model.Building
	Pending   uint64
	Countdown *Countdown // nil when not upgrading
}

// QueueState is a training queue with its countdown.
type QueueState struct {
	model.TrainingQueue
	Countdown Countdown
}

// LimitState reports count headroom of one building type.
type LimitState struct {
	Count    uint32
	Max      uint32
	CanBuild bool
}

// Snapshot is everything the presentation layer needs for one owner at one instant.
type Snapshot struct {
	Owner     string
	Now       int64
	Revision  uint64
	Player    model.Player
	Spawned   bool
	Pending   model.Resources
	Buildings []BuildingState
	Limits    map[model.BuildingType]LimitState
	Worker    *Countdown // nil when no builder is training
	Queues    []QueueState
	Army      model.Army
	FreeSpace uint32
}

// Compute projects the store contents for owner at now.
func Compute(r store.Reader, owner string, now int64) Snapshot {
	s := Snapshot{Owner: model.NormalizeAddress(owner), Now: now}
	if v, ok := r.(interface{ Revision() uint64 }); ok {
		s.Revision = v.Revision()
	}
	p, ok := r.Player(owner)
	s.Player, s.Spawned = p, ok && p.Spawned()

	buildings := r.Buildings(owner)
	mark := r.CollectMark(owner)
	s.Pending = PendingAccrual(buildings, now, mark)

	s.Buildings = make([]BuildingState, 0, len(buildings))
	for _, b := range buildings {
		bs := BuildingState{Building: b, Pending: Accrual(b, now, mark)}
		if b.IsUpgrading {
			c := NewCountdown(b.UpgradeFinishTime, gamedata.Duration(b.Type, b.Level+1), now)
			bs.Countdown = &c
		}
		s.Buildings = append(s.Buildings, bs)
	}

	s.Limits = make(map[model.BuildingType]LimitState, len(model.BuildingTypeNames))
	for i := range model.BuildingTypeNames {
		t := model.BuildingType(i)
		count, limit := CountOf(buildings, t), CountLimit(t, p.TownHallLevel)
		s.Limits[t] = LimitState{Count: count, Max: limit, CanBuild: count < limit}
	}

	if q, ok := r.BuilderQueue(owner); ok && q.IsTraining {
		total, _ := gamedata.WorkerTrainingTime(p.TotalBuilders)
		c := NewCountdown(q.FinishTime, total, now)
		s.Worker = &c
	}

	for _, q := range r.TrainingQueues(owner) {
		if q.Empty() {
			continue
		}
		var total int64
		if spec, ok := gamedata.Troop(q.TroopType); ok {
			total = spec.PerUnitTime * int64(q.Quantity)
		}
		s.Queues = append(s.Queues, QueueState{TrainingQueue: q, Countdown: NewCountdown(q.FinishTime, total, now)})
	}

	if a, ok := r.Army(owner); ok {
		s.Army = a
		s.FreeSpace = FreeSpace(a)
	}
	return s
}
