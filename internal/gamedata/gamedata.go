// Package gamedata mirrors the balance configuration of the on-chain program.
//
// The tables are a duplicated source of truth with the contract configuration and must be
// kept in lockstep with it; they are plain data so they can be swapped without code changes.
package gamedata

import "github.com/and161185/villagekeeper/internal/model"

const (
	// GridSize is the width and height of a village grid in tiles.
	GridSize uint32 = 40
	// BattleGridSize is the width and height of the battle map.
	BattleGridSize uint32 = 40
	// DeployBorder is the depth of the deployable zone along the battle map edges.
	DeployBorder uint32 = 3
	// MaxBuilders is the platform-wide builder cap.
	MaxBuilders uint32 = 5
	// MaxTownHallLevel is the highest Town Hall level.
	MaxTownHallLevel uint32 = 5
)

// Resource names what a producer building accrues.
type Resource uint8

const (
	ResourceNone Resource = iota
	ResourceDiamond
	ResourceGas
)

// BuildingStats describes one building type. Slices indexed by Town Hall level; index 0 unused.
type BuildingStats struct {
	Width               uint32
	Height              uint32
	Cost                model.Resources // level-1 cost; level N costs N times this
	BuildTime           int64           // seconds for level 1; level N takes N times this
	Produces            Resource
	ProductionPerMinute uint64 // per level
	MaxLevel            []uint32
	MaxCount            []uint32
}

// TroopStats describes one trainable unit.
type TroopStats struct {
	Space       uint32
	GasCost     uint64
	PerUnitTime int64 // seconds
}

var buildings = map[model.BuildingType]BuildingStats{
	model.TownHall: {
		Width: 4, Height: 4, Cost: model.Resources{Diamond: 1000}, BuildTime: 300,
		MaxLevel: []uint32{0, 5, 5, 5, 5, 5}, MaxCount: []uint32{0, 1, 1, 1, 1, 1},
	},
	model.DiamondMine: {
		Width: 3, Height: 3, Cost: model.Resources{Gas: 150}, BuildTime: 60,
		Produces: ResourceDiamond, ProductionPerMinute: 10,
		MaxLevel: []uint32{0, 2, 4, 6, 8, 10}, MaxCount: []uint32{0, 1, 2, 3, 4, 5},
	},
	model.GasCollector: {
		Width: 3, Height: 3, Cost: model.Resources{Diamond: 150}, BuildTime: 60,
		Produces: ResourceGas, ProductionPerMinute: 10,
		MaxLevel: []uint32{0, 2, 4, 6, 8, 10}, MaxCount: []uint32{0, 1, 2, 3, 4, 5},
	},
	model.DiamondStorage: {
		Width: 3, Height: 3, Cost: model.Resources{Gas: 300}, BuildTime: 120,
		MaxLevel: []uint32{0, 1, 2, 3, 4, 5}, MaxCount: []uint32{0, 1, 1, 2, 2, 3},
	},
	model.GasStorage: {
		Width: 3, Height: 3, Cost: model.Resources{Diamond: 300}, BuildTime: 120,
		MaxLevel: []uint32{0, 1, 2, 3, 4, 5}, MaxCount: []uint32{0, 1, 1, 2, 2, 3},
	},
	model.Barracks: {
		Width: 3, Height: 3, Cost: model.Resources{Diamond: 200}, BuildTime: 90,
		MaxLevel: []uint32{0, 2, 3, 4, 5, 6}, MaxCount: []uint32{0, 1, 2, 2, 3, 4},
	},
	model.ArmyCamp: {
		Width: 4, Height: 4, Cost: model.Resources{Diamond: 250}, BuildTime: 120,
		MaxLevel: []uint32{0, 1, 2, 3, 4, 5}, MaxCount: []uint32{0, 1, 1, 2, 2, 3},
	},
	model.Cannon: {
		Width: 3, Height: 3, Cost: model.Resources{Diamond: 250}, BuildTime: 90,
		MaxLevel: []uint32{0, 2, 3, 4, 5, 6}, MaxCount: []uint32{0, 2, 2, 3, 4, 5},
	},
	model.ArcherTower: {
		Width: 3, Height: 3, Cost: model.Resources{Diamond: 300}, BuildTime: 120,
		MaxLevel: []uint32{0, 0, 2, 3, 4, 5}, MaxCount: []uint32{0, 0, 1, 2, 3, 4},
	},
	model.Wall: {
		Width: 1, Height: 1, Cost: model.Resources{Diamond: 50}, BuildTime: 10,
		MaxLevel: []uint32{0, 2, 3, 4, 5, 6}, MaxCount: []uint32{0, 25, 50, 75, 100, 125},
	},
}

var troops = map[model.TroopType]TroopStats{
	model.Barbarian: {Space: 1, GasCost: 25, PerUnitTime: 20},
	model.Archer:    {Space: 1, GasCost: 50, PerUnitTime: 25},
	model.Giant:     {Space: 5, GasCost: 250, PerUnitTime: 120},
}

// workerTrainingTime is keyed by the current TotalBuilders.
var workerTrainingTime = []int64{0, 300, 900, 3600, 14400}

// Building returns the stats of t.
func Building(t model.BuildingType) (BuildingStats, bool) {
	s, ok := buildings[t]
	return s, ok
}

// Troop returns the stats of t.
func Troop(t model.TroopType) (TroopStats, bool) {
	s, ok := troops[t]
	return s, ok
}

// Footprint returns the width and height of t, or 0,0 for unknown types.
func Footprint(t model.BuildingType) (uint32, uint32) {
	s, ok := buildings[t]
	if !ok {
		return 0, 0
	}
	return s.Width, s.Height
}

// Cost returns the price of reaching level of type t (level 1 = construction).
func Cost(t model.BuildingType, level uint32) model.Resources {
	s, ok := buildings[t]
	if !ok || level == 0 {
		return model.Resources{}
	}
	return model.Resources{Diamond: s.Cost.Diamond * uint64(level), Gas: s.Cost.Gas * uint64(level)}
}

// Duration returns seconds needed to reach level of type t.
func Duration(t model.BuildingType, level uint32) int64 {
	s, ok := buildings[t]
	if !ok {
		return 0
	}
	if level == 0 {
		level = 1
	}
	return s.BuildTime * int64(level)
}

// MaxLevel returns the level cap of t at the given Town Hall level.
func MaxLevel(t model.BuildingType, townHall uint32) uint32 {
	s, ok := buildings[t]
	if !ok {
		return 0
	}
	return atTownHall(s.MaxLevel, townHall)
}

// MaxCount returns how many buildings of t are allowed at the given Town Hall level.
func MaxCount(t model.BuildingType, townHall uint32) uint32 {
	s, ok := buildings[t]
	if !ok {
		return 0
	}
	return atTownHall(s.MaxCount, townHall)
}

// WorkerTrainingTime returns the seconds needed to train the next builder given the current total.
func WorkerTrainingTime(totalBuilders uint32) (int64, bool) {
	if totalBuilders == 0 || int(totalBuilders) >= len(workerTrainingTime) {
		return 0, false
	}
	return workerTrainingTime[totalBuilders], true
}

func atTownHall(table []uint32, townHall uint32) uint32 {
	if len(table) == 0 || townHall == 0 {
		return 0
	}
	if int(townHall) >= len(table) {
		return table[len(table)-1]
	}
	return table[townHall]
}
