// Package model defines domain entities shared by the store, services and sync adapters.
package model

import "strings"

// Kind identifies an entity family held by the store.
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindBuilding
	KindArmy
	KindBuilderQueue
	KindTrainingQueue
	KindBattle
)

var kindNames = map[Kind]string{
	KindPlayer:        "Player",
	KindBuilding:      "Building",
	KindArmy:          "Army",
	KindBuilderQueue:  "BuilderQueue",
	KindTrainingQueue: "TrainingQueue",
	KindBattle:        "Battle",
}

// String returns the indexer model name of the kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// ParseKind maps an indexer model name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, n := range kindNames {
		if strings.EqualFold(n, s) {
			return k, true
		}
	}
	return 0, false
}

// OwnedKinds are the families kept per connected wallet and pushed by the subscription.
var OwnedKinds = []Kind{KindPlayer, KindBuilding, KindArmy, KindBuilderQueue, KindTrainingQueue}

// Key addresses a single entity. ID is zero for per-owner singletons.
type Key struct {
	Owner string
	ID    uint64
}

// Entity is implemented by every stored domain entity.
type Entity interface {
	EntityKind() Kind
	EntityKey() Key
}

// Position is the top-left grid cell of a footprint.
type Position struct {
	X uint32
	Y uint32
}

// Resources is a pair of fungible balances.
type Resources struct {
	Diamond uint64
	Gas     uint64
}

// Add returns r+o.
func (r Resources) Add(o Resources) Resources {
	return Resources{Diamond: r.Diamond + o.Diamond, Gas: r.Gas + o.Gas}
}

// IsZero reports whether both balances are zero.
func (r Resources) IsZero() bool { return r.Diamond == 0 && r.Gas == 0 }

// Player is the per-wallet profile and balances.
type Player struct {
	Address       string
	Username      string
	Diamond       uint64
	Gas           uint64
	Trophies      int32
	TownHallLevel uint32
	BuildingCount uint32
	TotalBuilders uint32
	FreeBuilders  uint32
	MaxBuilders   uint32
	ShieldUntil   int64 // unix seconds
	LastAttackAt  int64 // unix seconds
}

func (p Player) EntityKind() Kind { return KindPlayer }
func (p Player) EntityKey() Key   { return Key{Owner: p.Address} }

// Balance returns the player's resources.
func (p Player) Balance() Resources { return Resources{Diamond: p.Diamond, Gas: p.Gas} }

// DisplayTrophies floors trophies at zero.
func (p Player) DisplayTrophies() int32 {
	if p.Trophies < 0 {
		return 0
	}
	return p.Trophies
}

// Shielded reports whether attack protection is active at now.
func (p Player) Shielded(now int64) bool { return now < p.ShieldUntil }

// Spawned reports whether the player record has been initialized on chain.
func (p Player) Spawned() bool { return p.TownHallLevel > 0 }

// Building is a placed structure on the owner's grid.
type Building struct {
	Owner             string
	ID                uint32
	Type              BuildingType
	Level             uint32 // 0 while under construction
	Position          Position
	Health            uint32
	IsUpgrading       bool
	UpgradeFinishTime int64 // meaningful only while IsUpgrading
	LastCollectedAt   int64
}

func (b Building) EntityKind() Kind { return KindBuilding }
func (b Building) EntityKey() Key   { return Key{Owner: b.Owner, ID: uint64(b.ID)} }

// Built reports whether construction has completed at least once.
func (b Building) Built() bool { return b.Level >= 1 }

// Army holds troop counts and housing space.
type Army struct {
	Owner          string
	Troops         map[TroopType]uint32
	TotalSpaceUsed uint32
	MaxCapacity    uint32
	ReservedSpace  uint32
}

func (a Army) EntityKind() Kind { return KindArmy }
func (a Army) EntityKey() Key   { return Key{Owner: a.Owner} }

// Count returns the number of troops of type t.
func (a Army) Count(t TroopType) uint32 { return a.Troops[t] }

// Clone returns a deep copy.
func (a Army) Clone() Army {
	cp := a
	cp.Troops = make(map[TroopType]uint32, len(a.Troops))
	for k, v := range a.Troops {
		cp.Troops[k] = v
	}
	return cp
}

// BuilderQueue is the singleton worker-training slot of the Town Hall.
type BuilderQueue struct {
	Owner      string
	IsTraining bool
	FinishTime int64
}

func (q BuilderQueue) EntityKind() Kind { return KindBuilderQueue }
func (q BuilderQueue) EntityKey() Key   { return Key{Owner: q.Owner} }

// TrainingQueue is the single active troop order of one barracks.
type TrainingQueue struct {
	Owner      string
	BarracksID uint32
	TroopType  TroopType
	Quantity   uint32
	FinishTime int64
}

func (q TrainingQueue) EntityKind() Kind { return KindTrainingQueue }
func (q TrainingQueue) EntityKey() Key   { return Key{Owner: q.Owner, ID: uint64(q.BarracksID)} }

// Empty reports whether no order is attached.
func (q TrainingQueue) Empty() bool { return q.Quantity == 0 }

// BattleRecord is an immutable-once-started battle history entry.
type BattleRecord struct {
	ID                  uint64
	Attacker            string
	Defender            string
	Status              BattleStatus
	DestructionPercent  uint32
	DiamondStolen       uint64
	GasStolen           uint64
	AttackerTrophyDelta int32
	DefenderTrophyDelta int32
	StartedAt           int64
}

func (b BattleRecord) EntityKind() Kind { return KindBattle }
func (b BattleRecord) EntityKey() Key   { return Key{Owner: b.Attacker, ID: b.ID} }

// Clone returns a copy of e that shares no mutable state with it.
func Clone(e Entity) Entity {
	if a, ok := e.(Army); ok {
		return a.Clone()
	}
	return e
}

// Canonical returns a copy of e with every address normalized, as the store keeps it.
func Canonical(e Entity) Entity {
	switch v := e.(type) {
	case Player:
		v.Address = NormalizeAddress(v.Address)
		return v
	case Building:
		v.Owner = NormalizeAddress(v.Owner)
		return v
	case Army:
		v = v.Clone()
		v.Owner = NormalizeAddress(v.Owner)
		return v
	case BuilderQueue:
		v.Owner = NormalizeAddress(v.Owner)
		return v
	case TrainingQueue:
		v.Owner = NormalizeAddress(v.Owner)
		return v
	case BattleRecord:
		v.Attacker = NormalizeAddress(v.Attacker)
		v.Defender = NormalizeAddress(v.Defender)
		return v
	}
	return Clone(e)
}

// NormalizeAddress lowercases a hex address and strips leading zeros after 0x.
func NormalizeAddress(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	if a == "" {
		return ""
	}
	a = strings.TrimPrefix(a, "0x")
	a = strings.TrimLeft(a, "0")
	if a == "" {
		return "0x0"
	}
	return "0x" + a
}
