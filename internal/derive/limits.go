package derive

import (
	"github.com/and161185/villagekeeper/internal/gamedata"
	"github.com/and161185/villagekeeper/internal/model"
)

// CountOf counts buildings of type t, including ones under construction.
func CountOf(buildings []model.Building, t model.BuildingType) uint32 {
	var n uint32
	for _, b := range buildings {
		if b.Type == t {
			n++
		}
	}
	return n
}

// CountLimit is the number of t allowed at the given Town Hall level.
func CountLimit(t model.BuildingType, townHall uint32) uint32 {
	return gamedata.MaxCount(t, townHall)
}

// CanBuildMore reports whether another t fits under the count limit.
func CanBuildMore(buildings []model.Building, t model.BuildingType, townHall uint32) bool {
	return CountOf(buildings, t) < CountLimit(t, townHall)
}

// LevelCap is the highest level b may reach at the given Town Hall level.
// The Town Hall itself is capped globally.
func LevelCap(t model.BuildingType, townHall uint32) uint32 {
	if t == model.TownHall {
		return gamedata.MaxTownHallLevel
	}
	return gamedata.MaxLevel(t, townHall)
}

// Affordable reports whether every resource of balance covers cost.
func Affordable(balance, cost model.Resources) bool {
	return balance.Diamond >= cost.Diamond && balance.Gas >= cost.Gas
}

// Shortfall returns how much of cost balance is missing per resource.
func Shortfall(balance, cost model.Resources) model.Resources {
	var out model.Resources
	if cost.Diamond > balance.Diamond {
		out.Diamond = cost.Diamond - balance.Diamond
	}
	if cost.Gas > balance.Gas {
		out.Gas = cost.Gas - balance.Gas
	}
	return out
}

// ArmyHasCapacity reports whether space more housing fits the army.
func ArmyHasCapacity(a model.Army, space uint32) bool {
	return uint64(a.TotalSpaceUsed)+uint64(a.ReservedSpace)+uint64(space) <= uint64(a.MaxCapacity)
}

// FreeSpace returns the unreserved housing space of a.
func FreeSpace(a model.Army) uint32 {
	used := uint64(a.TotalSpaceUsed) + uint64(a.ReservedSpace)
	if used >= uint64(a.MaxCapacity) {
		return 0
	}
	return a.MaxCapacity - uint32(used)
}
