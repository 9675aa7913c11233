package convert

import (
	"strconv"

	"github.com/and161185/villagekeeper/internal/model"
)

// troopFields maps each troop type to its Army record column.
var troopFields = map[model.TroopType]string{
	model.Barbarian: "barbarians",
	model.Archer:    "archers",
	model.Giant:     "giants",
}

// ToPlayer decodes a Player record.
func ToPlayer(r Record) model.Player {
	return model.Player{
		Address:       model.NormalizeAddress(str(r["address"])),
		Username:      ShortString(r["username"]),
		Diamond:       Uint(r["diamond"]),
		Gas:           Uint(r["gas"]),
		Trophies:      Int32(r["trophies"]),
		TownHallLevel: Uint32(r["town_hall_level"]),
		BuildingCount: Uint32(r["building_count"]),
		TotalBuilders: Uint32(r["total_builders"]),
		FreeBuilders:  Uint32(r["free_builders"]),
		MaxBuilders:   Uint32(r["max_builders"]),
		ShieldUntil:   Int(r["shield_until"]),
		LastAttackAt:  Int(r["last_attack_at"]),
	}
}

// ToBuilding decodes a Building record.
func ToBuilding(r Record) model.Building {
	return model.Building{
		Owner:             model.NormalizeAddress(str(r["owner"])),
		ID:                Uint32(r["building_id"]),
		Type:              model.BuildingType(Enum(r["building_type"], model.BuildingTypeNames)),
		Level:             Uint32(r["level"]),
		Position:          model.Position{X: Uint32(r["x"]), Y: Uint32(r["y"])},
		Health:            Uint32(r["health"]),
		IsUpgrading:       Bool(r["is_upgrading"]),
		UpgradeFinishTime: Int(r["upgrade_finish_time"]),
		LastCollectedAt:   Int(r["last_collected_at"]),
	}
}

// ToArmy decodes an Army record.
func ToArmy(r Record) model.Army {
	a := model.Army{
		Owner:          model.NormalizeAddress(str(r["owner"])),
		Troops:         make(map[model.TroopType]uint32, len(troopFields)),
		TotalSpaceUsed: Uint32(r["total_space_used"]),
		MaxCapacity:    Uint32(r["max_capacity"]),
		ReservedSpace:  Uint32(r["reserved_space"]),
	}
	for t, field := range troopFields {
		if n := Uint32(r[field]); n > 0 {
			a.Troops[t] = n
		}
	}
	return a
}

// ToBuilderQueue decodes a BuilderQueue record.
func ToBuilderQueue(r Record) model.BuilderQueue {
	return model.BuilderQueue{
		Owner:      model.NormalizeAddress(str(r["owner"])),
		IsTraining: Bool(r["is_training"]),
		FinishTime: Int(r["finish_time"]),
	}
}

// ToTrainingQueue decodes a TrainingQueue record.
func ToTrainingQueue(r Record) model.TrainingQueue {
	return model.TrainingQueue{
		Owner:      model.NormalizeAddress(str(r["owner"])),
		BarracksID: Uint32(r["barracks_id"]),
		TroopType:  model.TroopType(Enum(r["troop_type"], model.TroopTypeNames)),
		Quantity:   Uint32(r["quantity"]),
		FinishTime: Int(r["finish_time"]),
	}
}

// ToBattle decodes a BattleRecord record.
func ToBattle(r Record) model.BattleRecord {
	return model.BattleRecord{
		ID:                  Uint(r["battle_id"]),
		Attacker:            model.NormalizeAddress(str(r["attacker"])),
		Defender:            model.NormalizeAddress(str(r["defender"])),
		Status:              model.BattleStatus(Enum(r["status"], model.BattleStatusNames)),
		DestructionPercent:  Uint32(r["destruction_percent"]),
		DiamondStolen:       Uint(r["diamond_stolen"]),
		GasStolen:           Uint(r["gas_stolen"]),
		AttackerTrophyDelta: Int32(r["attacker_trophy_change"]),
		DefenderTrophyDelta: Int32(r["defender_trophy_change"]),
		StartedAt:           Int(r["started_at"]),
	}
}

// ToEntity dispatches on kind. Unknown kinds yield nil.
func ToEntity(kind model.Kind, r Record) model.Entity {
	switch kind {
	case model.KindPlayer:
		return ToPlayer(r)
	case model.KindBuilding:
		return ToBuilding(r)
	case model.KindArmy:
		return ToArmy(r)
	case model.KindBuilderQueue:
		return ToBuilderQueue(r)
	case model.KindTrainingQueue:
		return ToTrainingQueue(r)
	case model.KindBattle:
		return ToBattle(r)
	default:
		return nil
	}
}

// ToEntities decodes a batch of records of one kind.
func ToEntities(kind model.Kind, rs []Record) []model.Entity {
	out := make([]model.Entity, 0, len(rs))
	for _, r := range rs {
		if e := ToEntity(kind, r); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// --- encoders (domain -> indexer encoding) ---

// FromEntity encodes e the way the indexer serves it: decimal strings for numbers,
// hex short strings for text and variant names for enums.
func FromEntity(e model.Entity) Record {
	switch v := e.(type) {
	case model.Player:
		return Record{
			"address":         v.Address,
			"username":        EncodeShortString(v.Username),
			"diamond":         decU(v.Diamond),
			"gas":             decU(v.Gas),
			"trophies":        strconv.FormatInt(int64(v.Trophies), 10),
			"town_hall_level": decU(uint64(v.TownHallLevel)),
			"building_count":  decU(uint64(v.BuildingCount)),
			"total_builders":  decU(uint64(v.TotalBuilders)),
			"free_builders":   decU(uint64(v.FreeBuilders)),
			"max_builders":    decU(uint64(v.MaxBuilders)),
			"shield_until":    decI(v.ShieldUntil),
			"last_attack_at":  decI(v.LastAttackAt),
		}
	case model.Building:
		return Record{
			"owner":               v.Owner,
			"building_id":         decU(uint64(v.ID)),
			"building_type":       v.Type.String(),
			"level":               decU(uint64(v.Level)),
			"x":                   decU(uint64(v.Position.X)),
			"y":                   decU(uint64(v.Position.Y)),
			"health":              decU(uint64(v.Health)),
			"is_upgrading":        v.IsUpgrading,
			"upgrade_finish_time": decI(v.UpgradeFinishTime),
			"last_collected_at":   decI(v.LastCollectedAt),
		}
	case model.Army:
		r := Record{
			"owner":            v.Owner,
			"total_space_used": decU(uint64(v.TotalSpaceUsed)),
			"max_capacity":     decU(uint64(v.MaxCapacity)),
			"reserved_space":   decU(uint64(v.ReservedSpace)),
		}
		for t, field := range troopFields {
			r[field] = decU(uint64(v.Troops[t]))
		}
		return r
	case model.BuilderQueue:
		return Record{
			"owner":       v.Owner,
			"is_training": v.IsTraining,
			"finish_time": decI(v.FinishTime),
		}
	case model.TrainingQueue:
		return Record{
			"owner":       v.Owner,
			"barracks_id": decU(uint64(v.BarracksID)),
			"troop_type":  v.TroopType.String(),
			"quantity":    decU(uint64(v.Quantity)),
			"finish_time": decI(v.FinishTime),
		}
	case model.BattleRecord:
		return Record{
			"battle_id":              decU(v.ID),
			"attacker":               v.Attacker,
			"defender":               v.Defender,
			"status":                 v.Status.String(),
			"destruction_percent":    decU(uint64(v.DestructionPercent)),
			"diamond_stolen":         decU(v.DiamondStolen),
			"gas_stolen":             decU(v.GasStolen),
			"attacker_trophy_change": strconv.FormatInt(int64(v.AttackerTrophyDelta), 10),
			"defender_trophy_change": strconv.FormatInt(int64(v.DefenderTrophyDelta), 10),
			"started_at":             decI(v.StartedAt),
		}
	default:
		return Record{}
	}
}

// OwnerField names the record column holding the owning address for kind.
func OwnerField(kind model.Kind) string {
	switch kind {
	case model.KindPlayer:
		return "address"
	case model.KindBattle:
		return "attacker"
	default:
		return "owner"
	}
}

// IDField names the record column holding the secondary key for kind, or "" for singletons.
func IDField(kind model.Kind) string {
	switch kind {
	case model.KindBuilding:
		return "building_id"
	case model.KindTrainingQueue:
		return "barracks_id"
	case model.KindBattle:
		return "battle_id"
	default:
		return ""
	}
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func decU(n uint64) string { return strconv.FormatUint(n, 10) }
func decI(n int64) string { return strconv.FormatInt(n, 10) }
