package derive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/store"
)

const owner = "0x1"

func TestAccrual(t *testing.T) {
	mine := model.Building{Type: model.DiamondMine, Level: 2, LastCollectedAt: 1000}

	require.Equal(t, uint64(0), Accrual(mine, 1059, 0), "under one minute")
	require.Equal(t, uint64(20), Accrual(mine, 1060, 0))
	require.Equal(t, uint64(60), Accrual(mine, 1000+3*60+59, 0))

	// local mark later than the authoritative checkpoint wins
	require.Equal(t, uint64(0), Accrual(mine, 1200, 1200))
	require.Equal(t, uint64(20), Accrual(mine, 1260, 1200))
	// earlier mark is ignored
	require.Equal(t, uint64(60), Accrual(mine, 1180, 500))

	require.Zero(t, Accrual(model.Building{Type: model.Cannon, Level: 3, LastCollectedAt: 1}, 10_000, 0))
	require.Zero(t, Accrual(model.Building{Type: model.DiamondMine, Level: 0, LastCollectedAt: 1}, 10_000, 0))
	require.Zero(t, Accrual(model.Building{Type: model.DiamondMine, Level: 1}, 10_000, 0))
}

func TestPendingAccrual_SplitsByResource(t *testing.T) {
	bs := []model.Building{
		{ID: 1, Type: model.DiamondMine, Level: 1, LastCollectedAt: 0 + 1},
		{ID: 2, Type: model.GasCollector, Level: 3, LastCollectedAt: 1},
		{ID: 3, Type: model.Wall, Level: 1, LastCollectedAt: 1},
	}
	got := PendingAccrual(bs, 1+120, 0)
	require.Equal(t, model.Resources{Diamond: 20, Gas: 60}, got)
	require.Len(t, Producers(bs, 1+120, 0), 2)
	require.Empty(t, Producers(bs, 1+59, 0))
}

func TestCountdown(t *testing.T) {
	c := NewCountdown(100, 50, 75)
	require.Equal(t, int64(25), c.Remaining)
	require.False(t, c.Ready)
	require.InDelta(t, 0.5, c.Progress, 1e-9)

	c = NewCountdown(100, 50, 200)
	require.Equal(t, int64(0), c.Remaining)
	require.True(t, c.Ready)
	require.Equal(t, 1.0, c.Progress)

	// finish pushed beyond total (stacked queue) clamps at zero progress
	c = NewCountdown(1000, 50, 0)
	require.Equal(t, 0.0, c.Progress)

	c = NewCountdown(10, 0, 10)
	require.True(t, c.Ready)
	require.Equal(t, 1.0, c.Progress)
}

func TestLimitsAndAffordability(t *testing.T) {
	bs := []model.Building{{Type: model.Cannon}, {Type: model.Cannon}, {Type: model.Wall}}
	require.Equal(t, uint32(2), CountOf(bs, model.Cannon))
	require.False(t, CanBuildMore(bs, model.Cannon, 1))
	require.True(t, CanBuildMore(bs, model.Cannon, 3))
	require.False(t, CanBuildMore(nil, model.ArcherTower, 1))

	require.Equal(t, uint32(5), LevelCap(model.TownHall, 1))
	require.Equal(t, uint32(2), LevelCap(model.Barracks, 1))

	require.True(t, Affordable(model.Resources{Diamond: 150}, model.Resources{Diamond: 150}))
	require.False(t, Affordable(model.Resources{Diamond: 500}, model.Resources{Diamond: 1, Gas: 1}))
	require.Equal(t, model.Resources{Gas: 1}, Shortfall(model.Resources{Diamond: 500}, model.Resources{Diamond: 1, Gas: 1}))
}

func TestArmyCapacity(t *testing.T) {
	a := model.Army{TotalSpaceUsed: 10, ReservedSpace: 5, MaxCapacity: 20}
	require.True(t, ArmyHasCapacity(a, 5))
	require.False(t, ArmyHasCapacity(a, 6))
	require.Equal(t, uint32(5), FreeSpace(a))
	require.Equal(t, uint32(0), FreeSpace(model.Army{TotalSpaceUsed: 30, MaxCapacity: 20}))
}

func TestCheckPlacement(t *testing.T) {
	bs := []model.Building{
		{ID: 1, Type: model.TownHall, Position: model.Position{X: 18, Y: 18}}, // 18..21
	}
	require.Equal(t, errs.Reason(""), CheckPlacement(bs, model.Cannon, model.Position{X: 0, Y: 0}, nil))
	require.Equal(t, errs.ReasonCollision, CheckPlacement(bs, model.Cannon, model.Position{X: 16, Y: 16}, nil))
	require.Equal(t, errs.Reason(""), CheckPlacement(bs, model.Cannon, model.Position{X: 15, Y: 15}, nil), "touching edges do not overlap")
	require.Equal(t, errs.ReasonOutOfBounds, CheckPlacement(bs, model.Cannon, model.Position{X: 38, Y: 0}, nil))
	require.Equal(t, errs.Reason(""), CheckPlacement(bs, model.Cannon, model.Position{X: 37, Y: 37}, nil))
	require.Equal(t, errs.ReasonInvalidParams, CheckPlacement(bs, model.BuildingType(99), model.Position{}, nil))

	// moving the town hall one tile overlaps only itself
	self := uint32(1)
	require.Equal(t, errs.Reason(""), CheckPlacement(bs, model.TownHall, model.Position{X: 19, Y: 18}, &self))
}

func TestInDeployZone(t *testing.T) {
	require.True(t, InDeployZone(model.Position{X: 0, Y: 20}))
	require.True(t, InDeployZone(model.Position{X: 2, Y: 20}))
	require.False(t, InDeployZone(model.Position{X: 3, Y: 20}))
	require.True(t, InDeployZone(model.Position{X: 37, Y: 20}))
	require.False(t, InDeployZone(model.Position{X: 36, Y: 36}))
	require.True(t, InDeployZone(model.Position{X: 20, Y: 39}))
	require.False(t, InDeployZone(model.Position{X: 40, Y: 0}))
}

func TestAvailableBarracks(t *testing.T) {
	bs := []model.Building{
		{ID: 5, Type: model.Barracks, Level: 1},
		{ID: 2, Type: model.Barracks, Level: 1},
		{ID: 3, Type: model.Barracks, Level: 0, IsUpgrading: true},
		{ID: 4, Type: model.Cannon, Level: 1},
	}
	now := int64(100)

	t.Run("first by id with empty queue", func(t *testing.T) {
		b, _, ok := AvailableBarracks(bs, nil, model.Archer, now)
		require.True(t, ok)
		require.Equal(t, uint32(2), b.ID)
	})
	t.Run("busy barracks skipped", func(t *testing.T) {
		qs := []model.TrainingQueue{{BarracksID: 2, TroopType: model.Giant, Quantity: 1, FinishTime: 200}}
		b, q, ok := AvailableBarracks(bs, qs, model.Archer, now)
		require.True(t, ok)
		require.Equal(t, uint32(5), b.ID)
		require.True(t, q.Empty())
	})
	t.Run("same troop stacks", func(t *testing.T) {
		qs := []model.TrainingQueue{{BarracksID: 2, TroopType: model.Archer, Quantity: 1, FinishTime: 200}}
		b, q, ok := AvailableBarracks(bs, qs, model.Archer, now)
		require.True(t, ok)
		require.Equal(t, uint32(2), b.ID)
		require.True(t, Stackable(q, model.Archer, now))
	})
	t.Run("elapsed queue is free", func(t *testing.T) {
		qs := []model.TrainingQueue{{BarracksID: 2, TroopType: model.Giant, Quantity: 1, FinishTime: 100}}
		b, q, ok := AvailableBarracks(bs, qs, model.Archer, now)
		require.True(t, ok)
		require.Equal(t, uint32(2), b.ID)
		require.False(t, Stackable(q, model.Archer, now))
	})
	t.Run("none", func(t *testing.T) {
		qs := []model.TrainingQueue{
			{BarracksID: 2, TroopType: model.Giant, Quantity: 1, FinishTime: 200},
			{BarracksID: 5, TroopType: model.Giant, Quantity: 1, FinishTime: 200},
		}
		_, _, ok := AvailableBarracks(bs, qs, model.Archer, now)
		require.False(t, ok)
	})
}

func TestCompute(t *testing.T) {
	st := store.New()
	st.ApplyAuthoritative(
		model.Player{Address: owner, Diamond: 10, TownHallLevel: 1, TotalBuilders: 1},
		model.Building{Owner: owner, ID: 1, Type: model.TownHall, Level: 1},
		model.Building{Owner: owner, ID: 2, Type: model.GasCollector, Level: 1, LastCollectedAt: 1000},
		model.Building{Owner: owner, ID: 3, Type: model.Cannon, Level: 1, IsUpgrading: true, UpgradeFinishTime: 1000 + 90},
		model.BuilderQueue{Owner: owner, IsTraining: true, FinishTime: 1300},
		model.TrainingQueue{Owner: owner, BarracksID: 9, TroopType: model.Barbarian, Quantity: 2, FinishTime: 1040},
		model.Army{Owner: owner, MaxCapacity: 20, TotalSpaceUsed: 2},
	)

	s := Compute(st.View(), owner, 1000+180)
	require.True(t, s.Spawned)
	require.Equal(t, model.Resources{Gas: 30}, s.Pending)
	require.Len(t, s.Buildings, 3)
	require.Nil(t, s.Buildings[0].Countdown)
	require.Equal(t, uint64(30), s.Buildings[1].Pending)

	c := s.Buildings[2].Countdown
	require.NotNil(t, c)
	// cannon level 2 takes 180s, finish was set 90s after t=1000
	require.True(t, c.Ready)

	require.Equal(t, LimitState{Count: 1, Max: 1, CanBuild: false}, s.Limits[model.TownHall])
	require.True(t, s.Limits[model.Wall].CanBuild)

	require.NotNil(t, s.Worker)
	require.Equal(t, int64(120), s.Worker.Remaining)
	require.Len(t, s.Queues, 1)
	require.True(t, s.Queues[0].Countdown.Ready)
	require.Equal(t, uint32(18), s.FreeSpace)
	require.Equal(t, st.Revision(), s.Revision)
}

func TestCompute_Idempotent(t *testing.T) {
	st := store.New()
	st.ApplyAuthoritative(model.Building{Owner: owner, ID: 1, Type: model.DiamondMine, Level: 2, LastCollectedAt: 5})
	v := st.View()
	require.Equal(t, Compute(v, owner, 500), Compute(v, owner, 500))
}

func TestLoop_PublishesOnChange(t *testing.T) {
	st := store.New()
	got := make(chan Snapshot, 16)
	l := NewLoop(st, func() string { return owner }, func(s Snapshot) { got <- s }, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	<-got // initial emit
	st.ApplyAuthoritative(model.Player{Address: owner, Diamond: 42, TownHallLevel: 1})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-got:
			if s.Player.Diamond == 42 {
				cancel()
				require.ErrorIs(t, <-done, context.Canceled)
				return
			}
		case <-deadline:
			t.Fatalf("snapshot with new player never published")
		}
	}
}

func TestLoop_SkipsWithoutOwner(t *testing.T) {
	st := store.New()
	calls := 0
	l := NewLoop(st, func() string { return "" }, func(Snapshot) { calls++ }, 0, nil)
	l.emit()
	require.Equal(t, 0, calls)
	require.Equal(t, DefaultTick, l.tick)
}
