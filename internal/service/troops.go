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

const actionTrainTroops = "train troops"

// TroopService trains troops in barracks.
type TroopService struct {
	r    *Runner
	game chain.Game
}

// NewTroopService constructs a TroopService.
func NewTroopService(r *Runner, game chain.Game) *TroopService {
	return &TroopService{r: r, game: game}
}

// Train orders qty troops of type t. A nil barracksID picks the first available barracks.
func (s *TroopService) Train(ctx context.Context, t model.TroopType, qty uint32, barracksID *uint32) (Result, error) {
	owner, err := s.r.connected(actionTrainTroops)
	if err != nil {
		return Result{}, err
	}
	a := trainTroopsAction{owner: owner, game: s.game, troop: t, qty: qty}
	if barracksID != nil {
		a.barracks, a.pinned = *barracksID, true
	}
	return s.r.Run(ctx, a)
}

type trainTroopsAction struct {
	owner    string
	game     chain.Game
	troop    model.TroopType
	qty      uint32
	barracks uint32
	pinned   bool
}

func (a trainTroopsAction) Name() string { return actionTrainTroops }

func (a trainTroopsAction) Prepare(tx *store.Tx, now int64) ([]chain.Call, error) {
	stats, ok := gamedata.Troop(a.troop)
	if !ok || a.qty == 0 {
		return nil, errs.Invalid(actionTrainTroops, errs.ReasonInvalidParams)
	}
	p, err := player(tx, actionTrainTroops, a.owner)
	if err != nil {
		return nil, err
	}

	b, q, ok := a.pick(tx, now)
	if !ok {
		return nil, errs.Invalid(actionTrainTroops, errs.ReasonNoBarracks)
	}
	army, _ := tx.Army(a.owner)
	space := uint64(stats.Space) * uint64(a.qty)
	if space > uint64(^uint32(0)) || !derive.ArmyHasCapacity(army, uint32(space)) {
		return nil, errs.Invalid(actionTrainTroops, errs.ReasonCapacityExceeded)
	}
	cost := model.Resources{Gas: stats.GasCost * uint64(a.qty)}
	if !derive.Affordable(p.Balance(), cost) {
		return nil, errs.Invalid(actionTrainTroops, errs.ReasonInsufficient)
	}

	tx.Put(spend(p, cost))

	army = army.Clone()
	army.Owner = a.owner
	army.Troops[a.troop] += a.qty
	army.TotalSpaceUsed += uint32(space)
	tx.Put(army)

	d := stats.PerUnitTime * int64(a.qty)
	if derive.Stackable(q, a.troop, now) {
		q.Quantity += a.qty
		q.FinishTime += d
	} else {
		q = model.TrainingQueue{Owner: a.owner, BarracksID: b.ID, TroopType: a.troop, Quantity: a.qty, FinishTime: now + d}
	}
	tx.Put(q)
	return []chain.Call{a.game.TrainTroops(b.ID, a.troop, a.qty)}, nil
}

// pick returns the target barracks and its current queue.
func (a trainTroopsAction) pick(tx *store.Tx, now int64) (model.Building, model.TrainingQueue, bool) {
	if !a.pinned {
		return derive.AvailableBarracks(tx.Buildings(a.owner), tx.TrainingQueues(a.owner), a.troop, now)
	}
	b, ok := tx.Building(a.owner, a.barracks)
	if !ok {
		return model.Building{}, model.TrainingQueue{}, false
	}
	var queues []model.TrainingQueue
	if q, ok := tx.TrainingQueue(a.owner, a.barracks); ok {
		queues = append(queues, q)
	}
	return derive.AvailableBarracks([]model.Building{b}, queues, a.troop, now)
}
