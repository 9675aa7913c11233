// Package derive computes time-dependent projections over store snapshots.
//
// Every function here is pure: the same inputs and now give the same result, so callers
// recompute on each tick instead of caching.
package derive

import (
	"github.com/and161185/villagekeeper/internal/gamedata"
	"github.com/and161185/villagekeeper/internal/model"
)

// Accrual returns how much b has produced since its last checkpoint. mark is a locally
// recorded collect time; the later of it and b.LastCollectedAt is used.
func Accrual(b model.Building, now, mark int64) uint64 {
	stats, ok := gamedata.Building(b.Type)
	if !ok || stats.Produces == gamedata.ResourceNone || b.Level == 0 || b.LastCollectedAt == 0 {
		return 0
	}
	since := max(b.LastCollectedAt, mark)
	if now <= since {
		return 0
	}
	minutes := uint64((now - since) / 60)
	return stats.ProductionPerMinute * uint64(b.Level) * minutes
}

// PendingAccrual sums Accrual over buildings into per-resource totals.
func PendingAccrual(buildings []model.Building, now, mark int64) model.Resources {
	var out model.Resources
	for _, b := range buildings {
		n := Accrual(b, now, mark)
		if n == 0 {
			continue
		}
		out = out.Add(produced(b.Type, n))
	}
	return out
}

// Producers returns the buildings with a positive accrual at now.
func Producers(buildings []model.Building, now, mark int64) []model.Building {
	var out []model.Building
	for _, b := range buildings {
		if Accrual(b, now, mark) > 0 {
			out = append(out, b)
		}
	}
	return out
}

func produced(t model.BuildingType, n uint64) model.Resources {
	stats, _ := gamedata.Building(t)
	switch stats.Produces {
	case gamedata.ResourceDiamond:
		return model.Resources{Diamond: n}
	case gamedata.ResourceGas:
		return model.Resources{Gas: n}
	default:
		return model.Resources{}
	}
}
