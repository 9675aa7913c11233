package service

import (
	"context"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/derive"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/gamedata"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/store"
)

const (
	actionPlace   = "place building"
	actionUpgrade = "upgrade building"
	actionFinish  = "finish upgrade"
	actionMove    = "move building"
)

// BuildingService places, upgrades, finishes and moves buildings.
type BuildingService struct {
	r    *Runner
	game chain.Game
}

// NewBuildingService constructs a BuildingService.
func NewBuildingService(r *Runner, game chain.Game) *BuildingService {
	return &BuildingService{r: r, game: game}
}

// Place starts construction of t with its footprint's top-left corner at pos.
func (s *BuildingService) Place(ctx context.Context, t model.BuildingType, pos model.Position) (Result, error) {
	owner, err := s.r.connected(actionPlace)
	if err != nil {
		return Result{}, err
	}
	return s.r.Run(ctx, placeAction{owner: owner, game: s.game, typ: t, pos: pos})
}

// Upgrade starts raising building id one level.
func (s *BuildingService) Upgrade(ctx context.Context, id uint32) (Result, error) {
	owner, err := s.r.connected(actionUpgrade)
	if err != nil {
		return Result{}, err
	}
	return s.r.Run(ctx, upgradeAction{owner: owner, game: s.game, id: id})
}

// Finish completes a construction or upgrade whose timer has elapsed.
func (s *BuildingService) Finish(ctx context.Context, id uint32) (Result, error) {
	owner, err := s.r.connected(actionFinish)
	if err != nil {
		return Result{}, err
	}
	return s.r.Run(ctx, finishAction{owner: owner, game: s.game, id: id})
}

// Move relocates an idle building.
func (s *BuildingService) Move(ctx context.Context, id uint32, pos model.Position) (Result, error) {
	owner, err := s.r.connected(actionMove)
	if err != nil {
		return Result{}, err
	}
	return s.r.Run(ctx, moveAction{owner: owner, game: s.game, id: id, pos: pos})
}

type placeAction struct {
	owner string
	game  chain.Game
	typ   model.BuildingType
	pos   model.Position
}

func (a placeAction) Name() string { return actionPlace }

func (a placeAction) Prepare(tx *store.Tx, now int64) ([]chain.Call, error) {
	if !a.typ.Valid() {
		return nil, errs.Invalid(actionPlace, errs.ReasonInvalidParams)
	}
	p, err := player(tx, actionPlace, a.owner)
	if err != nil {
		return nil, err
	}
	buildings := tx.Buildings(a.owner)
	if reason := derive.CheckPlacement(buildings, a.typ, a.pos, nil); reason != "" {
		return nil, errs.Invalid(actionPlace, reason)
	}
	if !derive.CanBuildMore(buildings, a.typ, p.TownHallLevel) {
		return nil, errs.Invalid(actionPlace, errs.ReasonCountLimit)
	}
	cost := gamedata.Cost(a.typ, 1)
	if !derive.Affordable(p.Balance(), cost) {
		return nil, errs.Invalid(actionPlace, errs.ReasonInsufficient)
	}
	if p.FreeBuilders == 0 {
		return nil, errs.Invalid(actionPlace, errs.ReasonNoFreeBuilder)
	}

	p = spend(p, cost)
	p.FreeBuilders--
	p.BuildingCount++
	tx.Put(p)
	tx.Put(model.Building{
		Owner:             a.owner,
		ID:                nextBuildingID(buildings, p.BuildingCount),
		Type:              a.typ,
		Position:          a.pos,
		IsUpgrading:       true,
		UpgradeFinishTime: now + gamedata.Duration(a.typ, 1),
	})
	return []chain.Call{a.game.PlaceBuilding(a.typ, a.pos)}, nil
}

// nextBuildingID follows the chain's counter: the new building count, or past the highest
// known id if the local list is ahead of it.
func nextBuildingID(buildings []model.Building, count uint32) uint32 {
	id := count
	for _, b := range buildings {
		if b.ID >= id {
			id = b.ID + 1
		}
	}
	return id
}

type upgradeAction struct {
	owner string
	game  chain.Game
	id    uint32
}

func (a upgradeAction) Name() string { return actionUpgrade }

func (a upgradeAction) Prepare(tx *store.Tx, now int64) ([]chain.Call, error) {
	p, err := player(tx, actionUpgrade, a.owner)
	if err != nil {
		return nil, err
	}
	b, ok := tx.Building(a.owner, a.id)
	if !ok {
		return nil, errs.Invalid(actionUpgrade, errs.ReasonUnknownEntity)
	}
	if b.IsUpgrading {
		return nil, errs.Invalid(actionUpgrade, errs.ReasonAlreadyUpgrading)
	}
	if !b.Built() {
		return nil, errs.Invalid(actionUpgrade, errs.ReasonNotReady)
	}
	if b.Level >= derive.LevelCap(b.Type, p.TownHallLevel) {
		return nil, errs.Invalid(actionUpgrade, errs.ReasonMaxLevel)
	}
	next := b.Level + 1
	cost := gamedata.Cost(b.Type, next)
	if !derive.Affordable(p.Balance(), cost) {
		return nil, errs.Invalid(actionUpgrade, errs.ReasonInsufficient)
	}
	if p.FreeBuilders == 0 {
		return nil, errs.Invalid(actionUpgrade, errs.ReasonNoFreeBuilder)
	}

	p = spend(p, cost)
	p.FreeBuilders--
	tx.Put(p)
	b.IsUpgrading = true
	b.UpgradeFinishTime = now + gamedata.Duration(b.Type, next)
	tx.Put(b)
	return []chain.Call{a.game.UpgradeBuilding(a.id)}, nil
}

type finishAction struct {
	owner string
	game  chain.Game
	id    uint32
}

func (a finishAction) Name() string { return actionFinish }

func (a finishAction) Prepare(tx *store.Tx, now int64) ([]chain.Call, error) {
	p, err := player(tx, actionFinish, a.owner)
	if err != nil {
		return nil, err
	}
	b, ok := tx.Building(a.owner, a.id)
	if !ok {
		return nil, errs.Invalid(actionFinish, errs.ReasonUnknownEntity)
	}
	if !b.IsUpgrading {
		return nil, errs.Invalid(actionFinish, errs.ReasonNotUpgrading)
	}
	if now < b.UpgradeFinishTime {
		return nil, errs.Invalid(actionFinish, errs.ReasonNotReady)
	}

	constructed := !b.Built()
	b.Level++
	b.IsUpgrading = false
	b.UpgradeFinishTime = 0
	if constructed {
		// production starts counting once construction completes
		b.LastCollectedAt = now
	}
	tx.Put(b)

	if p.FreeBuilders < p.TotalBuilders {
		p.FreeBuilders++
	}
	if b.Type == model.TownHall && b.Level > p.TownHallLevel {
		p.TownHallLevel = b.Level
	}
	tx.Put(p)
	return []chain.Call{a.game.FinishUpgrade(a.id)}, nil
}

type moveAction struct {
	owner string
	game  chain.Game
	id    uint32
	pos   model.Position
}

func (a moveAction) Name() string { return actionMove }

func (a moveAction) Prepare(tx *store.Tx, _ int64) ([]chain.Call, error) {
	if _, err := player(tx, actionMove, a.owner); err != nil {
		return nil, err
	}
	b, ok := tx.Building(a.owner, a.id)
	if !ok {
		return nil, errs.Invalid(actionMove, errs.ReasonUnknownEntity)
	}
	if b.IsUpgrading {
		return nil, errs.Invalid(actionMove, errs.ReasonAlreadyUpgrading)
	}
	if reason := derive.CheckPlacement(tx.Buildings(a.owner), b.Type, a.pos, &b.ID); reason != "" {
		return nil, errs.Invalid(actionMove, reason)
	}
	b.Position = a.pos
	tx.Put(b)
	return []chain.Call{a.game.MoveBuilding(a.id, a.pos)}, nil
}
