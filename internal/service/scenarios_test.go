package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/derive"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/gamedata"
	"github.com/and161185/villagekeeper/internal/model"
)

func TestPlace_SpendsAndStartsConstruction(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{Diamond: 200, Gas: 0, TotalBuilders: 1, FreeBuilders: 1})

	_, err := NewBuildingService(h.r, game).Place(context.Background(), model.GasCollector, model.Position{X: 10, Y: 10})
	require.NoError(t, err)

	p := h.player(t)
	require.Equal(t, uint64(50), p.Diamond)
	require.Equal(t, uint32(0), p.FreeBuilders)
	require.Equal(t, uint32(2), p.BuildingCount)

	b := h.building(t, 2)
	require.Equal(t, model.GasCollector, b.Type)
	require.Equal(t, uint32(0), b.Level)
	require.True(t, b.IsUpgrading)
	require.Equal(t, h.now+gamedata.Duration(model.GasCollector, 1), b.UpgradeFinishTime)
	require.Equal(t, []chain.Call{game.PlaceBuilding(model.GasCollector, model.Position{X: 10, Y: 10})}, h.sub.last())
}

func TestPlace_InsufficientLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{Diamond: 100, TotalBuilders: 1, FreeBuilders: 1})
	rev := h.st.Revision()

	_, err := NewBuildingService(h.r, game).Place(context.Background(), model.GasCollector, model.Position{X: 10, Y: 10})
	requireReason(t, err, errs.ReasonInsufficient)
	require.Equal(t, rev, h.st.Revision())
	require.Len(t, h.st.View().Buildings(me), 1)
}

func TestPlace_Rejections(t *testing.T) {
	cases := []struct {
		name string
		p    model.Player
		typ  model.BuildingType
		pos  model.Position
		want errs.Reason
	}{
		{"collision with town hall", model.Player{Diamond: 999, TotalBuilders: 1, FreeBuilders: 1}, model.Wall, model.Position{X: 3, Y: 3}, errs.ReasonCollision},
		{"footprint crosses edge", model.Player{Diamond: 999, TotalBuilders: 1, FreeBuilders: 1}, model.Cannon, model.Position{X: 38, Y: 0}, errs.ReasonOutOfBounds},
		{"second town hall", model.Player{Diamond: 9999, TotalBuilders: 1, FreeBuilders: 1}, model.TownHall, model.Position{X: 20, Y: 20}, errs.ReasonCountLimit},
		{"archer tower locked at th1", model.Player{Diamond: 999, TotalBuilders: 1, FreeBuilders: 1}, model.ArcherTower, model.Position{X: 20, Y: 20}, errs.ReasonCountLimit},
		{"no free builder", model.Player{Diamond: 999, TotalBuilders: 1, FreeBuilders: 0}, model.Wall, model.Position{X: 20, Y: 20}, errs.ReasonNoFreeBuilder},
		{"unknown type", model.Player{Diamond: 999, TotalBuilders: 1, FreeBuilders: 1}, model.BuildingType(42), model.Position{}, errs.ReasonInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.village(tc.p)
			_, err := NewBuildingService(h.r, game).Place(context.Background(), tc.typ, tc.pos)
			requireReason(t, err, tc.want)
		})
	}
}

func TestPlace_RejectedConstructionDisappears(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{Diamond: 200, TotalBuilders: 1, FreeBuilders: 1})
	_, err := NewBuildingService(h.r, game).Place(context.Background(), model.Wall, model.Position{X: 20, Y: 20})
	require.NoError(t, err)
	require.True(t, h.building(t, 2).IsUpgrading)

	h.st.ApplyAuthoritative(model.Building{Owner: me, ID: 2, Type: model.Wall, Level: 0, IsUpgrading: false})
	_, ok := h.st.View().Building(me, 2)
	require.False(t, ok)
}

func TestUpgrade_Rules(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{Diamond: 5000, TotalBuilders: 2, FreeBuilders: 2},
		model.Building{Owner: me, ID: 2, Type: model.Cannon, Level: 2, Position: model.Position{X: 10, Y: 10}},
		model.Building{Owner: me, ID: 3, Type: model.Cannon, Level: 1, Position: model.Position{X: 20, Y: 10}},
		model.Building{Owner: me, ID: 4, Type: model.Wall, Level: 0, IsUpgrading: true, UpgradeFinishTime: h.now + 5, Position: model.Position{X: 30, Y: 30}},
	)
	svc := NewBuildingService(h.r, game)

	_, err := svc.Upgrade(context.Background(), 2)
	requireReason(t, err, errs.ReasonMaxLevel)
	_, err = svc.Upgrade(context.Background(), 4)
	requireReason(t, err, errs.ReasonAlreadyUpgrading)
	_, err = svc.Upgrade(context.Background(), 99)
	requireReason(t, err, errs.ReasonUnknownEntity)

	_, err = svc.Upgrade(context.Background(), 3)
	require.NoError(t, err)
	b := h.building(t, 3)
	require.True(t, b.IsUpgrading)
	require.Equal(t, h.now+gamedata.Duration(model.Cannon, 2), b.UpgradeFinishTime)
	require.Equal(t, uint64(5000-500), h.player(t).Diamond)
	require.Equal(t, uint32(1), h.player(t).FreeBuilders)

	// a second request for the same building is rejected up front
	_, err = svc.Upgrade(context.Background(), 3)
	requireReason(t, err, errs.ReasonAlreadyUpgrading)
}

func TestUpgrade_TownHallCappedGlobally(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{Diamond: 99999, TownHallLevel: gamedata.MaxTownHallLevel, TotalBuilders: 1, FreeBuilders: 1})
	_, err := NewBuildingService(h.r, game).Upgrade(context.Background(), 1)
	requireReason(t, err, errs.ReasonMaxLevel)
}

func TestFinish_CompletesAndBumpsTownHall(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{Diamond: 5000, TotalBuilders: 1, FreeBuilders: 1},
		model.Building{Owner: me, ID: 2, Type: model.DiamondMine, Position: model.Position{X: 10, Y: 10}, IsUpgrading: true, UpgradeFinishTime: h.now + 60})
	h.st.ApplyAuthoritative(model.Player{Address: me, Diamond: 5000, TownHallLevel: 1, BuildingCount: 2, TotalBuilders: 1, FreeBuilders: 0, MaxBuilders: 5})
	svc := NewBuildingService(h.r, game)

	_, err := svc.Finish(context.Background(), 2)
	requireReason(t, err, errs.ReasonNotReady)
	_, err = svc.Finish(context.Background(), 1)
	requireReason(t, err, errs.ReasonNotUpgrading)

	h.now += 60
	_, err = svc.Finish(context.Background(), 2)
	require.NoError(t, err)
	b := h.building(t, 2)
	require.Equal(t, uint32(1), b.Level)
	require.False(t, b.IsUpgrading)
	require.Equal(t, h.now, b.LastCollectedAt)
	require.Equal(t, uint32(1), h.player(t).FreeBuilders)

	_, err = svc.Upgrade(context.Background(), 1)
	require.NoError(t, err)
	h.now = h.building(t, 1).UpgradeFinishTime
	_, err = svc.Finish(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint32(2), h.player(t).TownHallLevel)
	require.Equal(t, uint32(2), h.building(t, 1).Level)
}

func TestMove(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{TotalBuilders: 1, FreeBuilders: 1},
		model.Building{Owner: me, ID: 2, Type: model.Cannon, Level: 1, Position: model.Position{X: 10, Y: 10}},
		model.Building{Owner: me, ID: 3, Type: model.Cannon, Level: 1, Position: model.Position{X: 20, Y: 10}, IsUpgrading: true})
	svc := NewBuildingService(h.r, game)

	// overlapping its own old footprint is fine
	_, err := svc.Move(context.Background(), 2, model.Position{X: 11, Y: 11})
	require.NoError(t, err)
	require.Equal(t, model.Position{X: 11, Y: 11}, h.building(t, 2).Position)

	_, err = svc.Move(context.Background(), 2, model.Position{X: 19, Y: 10})
	requireReason(t, err, errs.ReasonCollision)
	_, err = svc.Move(context.Background(), 3, model.Position{X: 30, Y: 30})
	requireReason(t, err, errs.ReasonAlreadyUpgrading)
}

func TestCollect_ResetsAccrualImmediately(t *testing.T) {
	h := newHarness(t)
	mine := model.Building{Owner: me, ID: 2, Type: model.DiamondMine, Level: 2, Position: model.Position{X: 10, Y: 10}, LastCollectedAt: h.now - 180}
	gas := model.Building{Owner: me, ID: 3, Type: model.GasCollector, Level: 1, Position: model.Position{X: 20, Y: 10}, LastCollectedAt: h.now - 59}
	h.village(model.Player{Diamond: 10, TotalBuilders: 1, FreeBuilders: 1}, mine, gas)
	svc := NewResourceService(h.r, game)

	_, err := svc.Collect(context.Background())
	require.NoError(t, err)
	p := h.player(t)
	require.Equal(t, uint64(10+10*2*3), p.Diamond)
	require.Equal(t, uint64(0), p.Gas)
	require.Equal(t, h.now, h.building(t, 2).LastCollectedAt)
	// a producer with nothing accrued keeps its checkpoint
	require.Equal(t, h.now-59, h.building(t, 3).LastCollectedAt)

	// the indexer still reports the old checkpoint
	h.st.ApplyAuthoritative(mine)
	v := h.st.View()
	require.True(t, derive.PendingAccrual(v.Buildings(me), h.now, v.CollectMark(me)).IsZero())

	_, err = svc.Collect(context.Background())
	requireReason(t, err, errs.ReasonNothingToCollect)
}

func TestCollect_FailureRestoresMark(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{}, model.Building{Owner: me, ID: 2, Type: model.DiamondMine, Level: 1, Position: model.Position{X: 10, Y: 10}, LastCollectedAt: h.now - 600})
	h.sub.err = errors.New("rejected")

	_, err := NewResourceService(h.r, game).Collect(context.Background())
	require.Error(t, err)
	require.Equal(t, int64(0), h.st.View().CollectMark(me))
	require.Equal(t, uint64(0), h.player(t).Diamond)
}

func TestWorker_TrainAndFinish(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{TotalBuilders: 1, FreeBuilders: 1})
	svc := NewWorkerService(h.r, game)

	_, err := svc.Train(context.Background())
	require.NoError(t, err)
	q, ok := h.st.View().BuilderQueue(me)
	require.True(t, ok)
	require.True(t, q.IsTraining)
	d, _ := gamedata.WorkerTrainingTime(1)
	require.Equal(t, h.now+d, q.FinishTime)

	_, err = svc.Train(context.Background())
	requireReason(t, err, errs.ReasonAlreadyTraining)
	_, err = svc.Finish(context.Background())
	requireReason(t, err, errs.ReasonNotReady)

	h.now += d
	_, err = svc.Finish(context.Background())
	require.NoError(t, err)
	p := h.player(t)
	require.Equal(t, uint32(2), p.TotalBuilders)
	require.Equal(t, uint32(2), p.FreeBuilders)
	q, _ = h.st.View().BuilderQueue(me)
	require.False(t, q.IsTraining)

	_, err = svc.Finish(context.Background())
	requireReason(t, err, errs.ReasonNotTraining)
}

func TestWorker_PlatformCap(t *testing.T) {
	h := newHarness(t)
	h.village(model.Player{TotalBuilders: gamedata.MaxBuilders, FreeBuilders: gamedata.MaxBuilders})
	_, err := NewWorkerService(h.r, game).Train(context.Background())
	requireReason(t, err, errs.ReasonWorkerLimit)
}

func barracksVillage(h *harness, gas uint64, army model.Army, extra ...model.Entity) {
	army.Owner = me
	all := append([]model.Entity{
		army,
		model.Building{Owner: me, ID: 2, Type: model.Barracks, Level: 1, Position: model.Position{X: 10, Y: 10}},
	}, extra...)
	h.village(model.Player{Gas: gas, TotalBuilders: 1, FreeBuilders: 1}, all...)
}

func TestTrain_StacksOnPendingQueue(t *testing.T) {
	h := newHarness(t)
	finish := h.now + 10
	barracksVillage(h, 1000,
		model.Army{Troops: map[model.TroopType]uint32{model.Barbarian: 3}, TotalSpaceUsed: 3, MaxCapacity: 20},
		model.TrainingQueue{Owner: me, BarracksID: 2, TroopType: model.Barbarian, Quantity: 3, FinishTime: finish})

	_, err := NewTroopService(h.r, game).Train(context.Background(), model.Barbarian, 2, nil)
	require.NoError(t, err)

	v := h.st.View()
	q, _ := v.TrainingQueue(me, 2)
	require.Equal(t, uint32(5), q.Quantity)
	stats, _ := gamedata.Troop(model.Barbarian)
	require.Equal(t, finish+stats.PerUnitTime*2, q.FinishTime)

	a, _ := v.Army(me)
	require.Equal(t, uint32(5), a.Count(model.Barbarian))
	require.Equal(t, uint32(5), a.TotalSpaceUsed)
	require.Equal(t, uint64(1000-2*stats.GasCost), h.player(t).Gas)
	require.Equal(t, []chain.Call{game.TrainTroops(2, model.Barbarian, 2)}, h.sub.last())
}

func TestTrain_ReplacesElapsedQueueAndSkipsBusyBarracks(t *testing.T) {
	h := newHarness(t)
	barracksVillage(h, 1000, model.Army{MaxCapacity: 50},
		model.Building{Owner: me, ID: 3, Type: model.Barracks, Level: 1, Position: model.Position{X: 20, Y: 10}},
		model.TrainingQueue{Owner: me, BarracksID: 2, TroopType: model.Giant, Quantity: 1, FinishTime: h.now + 100},
		model.TrainingQueue{Owner: me, BarracksID: 3, TroopType: model.Giant, Quantity: 1, FinishTime: h.now - 1},
	)

	_, err := NewTroopService(h.r, game).Train(context.Background(), model.Archer, 4, nil)
	require.NoError(t, err)

	q, _ := h.st.View().TrainingQueue(me, 3)
	stats, _ := gamedata.Troop(model.Archer)
	require.Equal(t, model.TrainingQueue{Owner: me, BarracksID: 3, TroopType: model.Archer, Quantity: 4, FinishTime: h.now + 4*stats.PerUnitTime}, q)
	untouched, _ := h.st.View().TrainingQueue(me, 2)
	require.Equal(t, model.Giant, untouched.TroopType)
}

func TestTrain_Rejections(t *testing.T) {
	busy := model.TrainingQueue{Owner: me, BarracksID: 2, TroopType: model.Giant, Quantity: 1}

	t.Run("no barracks available", func(t *testing.T) {
		h := newHarness(t)
		busy.FinishTime = h.now + 100
		barracksVillage(h, 1000, model.Army{MaxCapacity: 50}, busy)
		_, err := NewTroopService(h.r, game).Train(context.Background(), model.Barbarian, 1, nil)
		requireReason(t, err, errs.ReasonNoBarracks)
	})
	t.Run("pinned barracks busy", func(t *testing.T) {
		h := newHarness(t)
		busy.FinishTime = h.now + 100
		barracksVillage(h, 1000, model.Army{MaxCapacity: 50}, busy,
			model.Building{Owner: me, ID: 3, Type: model.Barracks, Level: 1, Position: model.Position{X: 20, Y: 10}})
		id := uint32(2)
		_, err := NewTroopService(h.r, game).Train(context.Background(), model.Barbarian, 1, &id)
		requireReason(t, err, errs.ReasonNoBarracks)
		id = 3
		_, err = NewTroopService(h.r, game).Train(context.Background(), model.Barbarian, 1, &id)
		require.NoError(t, err)
	})
	t.Run("capacity", func(t *testing.T) {
		h := newHarness(t)
		barracksVillage(h, 10000, model.Army{TotalSpaceUsed: 11, ReservedSpace: 5, MaxCapacity: 20})
		_, err := NewTroopService(h.r, game).Train(context.Background(), model.Giant, 1, nil)
		requireReason(t, err, errs.ReasonCapacityExceeded)
	})
	t.Run("gas", func(t *testing.T) {
		h := newHarness(t)
		barracksVillage(h, 10, model.Army{MaxCapacity: 20})
		_, err := NewTroopService(h.r, game).Train(context.Background(), model.Barbarian, 1, nil)
		requireReason(t, err, errs.ReasonInsufficient)
	})
	t.Run("zero quantity", func(t *testing.T) {
		h := newHarness(t)
		barracksVillage(h, 10, model.Army{MaxCapacity: 20})
		_, err := NewTroopService(h.r, game).Train(context.Background(), model.Barbarian, 0, nil)
		requireReason(t, err, errs.ReasonInvalidParams)
	})
	t.Run("upgrading barracks", func(t *testing.T) {
		h := newHarness(t)
		barracksVillage(h, 1000, model.Army{MaxCapacity: 20})
		h.st.ApplyAuthoritative(model.Building{Owner: me, ID: 2, Type: model.Barracks, Level: 1, IsUpgrading: true, Position: model.Position{X: 10, Y: 10}})
		_, err := NewTroopService(h.r, game).Train(context.Background(), model.Barbarian, 1, nil)
		requireReason(t, err, errs.ReasonNoBarracks)
	})
}

func TestSpawn(t *testing.T) {
	h := newHarness(t)
	svc := NewPlayerService(h.r, game)

	_, err := svc.Spawn(context.Background(), "")
	requireReason(t, err, errs.ReasonInvalidParams)
	_, err = svc.Spawn(context.Background(), "a-very-long-username-over-31-bytes")
	requireReason(t, err, errs.ReasonInvalidParams)

	h.sub.err = &chain.TxError{Reason: "Player already exists"}
	res, err := svc.Spawn(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, Confirmed, res.State)
	require.Equal(t, []chain.Call{game.Spawn("bob")}, h.sub.last())
	require.Len(t, h.refresh.calls, 1)
	require.Empty(t, h.refresh.calls[0].kinds)

	h.sub.err = &chain.TxError{Reason: "out of gas"}
	res, err = svc.Spawn(context.Background(), "bob")
	require.Error(t, err)
	require.Equal(t, RolledBack, res.State)
}
