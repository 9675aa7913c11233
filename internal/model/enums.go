package model

// BuildingType determines footprint, cost and production of a building.
type BuildingType uint8

const (
	TownHall BuildingType = iota
	DiamondMine
	GasCollector
	DiamondStorage
	GasStorage
	Barracks
	ArmyCamp
	Cannon
	ArcherTower
	Wall
)

// BuildingTypeNames lists variant names in contract enum order.
var BuildingTypeNames = []string{
	"TownHall", "DiamondMine", "GasCollector", "DiamondStorage", "GasStorage",
	"Barracks", "ArmyCamp", "Cannon", "ArcherTower", "Wall",
}

func (t BuildingType) String() string {
	if int(t) < len(BuildingTypeNames) {
		return BuildingTypeNames[t]
	}
	return "Unknown"
}

// Valid reports whether t is a known variant.
func (t BuildingType) Valid() bool { return int(t) < len(BuildingTypeNames) }

// TroopType identifies a trainable unit.
type TroopType uint8

const (
	Barbarian TroopType = iota
	Archer
	Giant
)

// TroopTypeNames lists variant names in contract enum order.
var TroopTypeNames = []string{"Barbarian", "Archer", "Giant"}

func (t TroopType) String() string {
	if int(t) < len(TroopTypeNames) {
		return TroopTypeNames[t]
	}
	return "Unknown"
}

// Valid reports whether t is a known variant.
func (t TroopType) Valid() bool { return int(t) < len(TroopTypeNames) }

// BattleStatus is the lifecycle stage of a battle.
type BattleStatus uint8

const (
	BattlePreparing BattleStatus = iota
	BattleInProgress
	BattleEnded
)

// BattleStatusNames lists variant names in contract enum order.
var BattleStatusNames = []string{"Preparing", "InProgress", "Ended"}

func (s BattleStatus) String() string {
	if int(s) < len(BattleStatusNames) {
		return BattleStatusNames[s]
	}
	return "Unknown"
}
