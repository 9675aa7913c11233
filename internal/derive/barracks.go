package derive

import (
	"cmp"
	"slices"

	"github.com/and161185/villagekeeper/internal/model"
)

// AvailableBarracks picks the barracks that should take a new order for troop.
// Candidates are owned, built, non-upgrading barracks in creation order; the first whose
// queue is empty, already elapsed, or training the same troop wins. The returned queue is
// the barracks' current queue (zero value if none).
func AvailableBarracks(buildings []model.Building, queues []model.TrainingQueue, troop model.TroopType, now int64) (model.Building, model.TrainingQueue, bool) {
	byBarracks := make(map[uint32]model.TrainingQueue, len(queues))
	for _, q := range queues {
		byBarracks[q.BarracksID] = q
	}
	for _, b := range sortedByID(buildings) {
		if b.Type != model.Barracks || !b.Built() || b.IsUpgrading {
			continue
		}
		q, ok := byBarracks[b.ID]
		if !ok || q.Empty() || q.FinishTime <= now || q.TroopType == troop {
			return b, q, true
		}
	}
	return model.Building{}, model.TrainingQueue{}, false
}

// Stackable reports whether an order for troop extends q instead of replacing it.
func Stackable(q model.TrainingQueue, troop model.TroopType, now int64) bool {
	return !q.Empty() && q.FinishTime > now && q.TroopType == troop
}

func sortedByID(bs []model.Building) []model.Building {
	out := slices.Clone(bs)
	slices.SortStableFunc(out, func(a, b model.Building) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
