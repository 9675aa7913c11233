package service

import (
	"context"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/derive"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/store"
)

// ResourceService collects produced resources.
type ResourceService struct {
	r    *Runner
	game chain.Game
}

// NewResourceService constructs a ResourceService.
func NewResourceService(r *Runner, game chain.Game) *ResourceService {
	return &ResourceService{r: r, game: game}
}

// Collect credits every producer's pending accrual and restarts its accrual at now.
func (s *ResourceService) Collect(ctx context.Context) (Result, error) {
	owner, err := s.r.connected(actionCollect)
	if err != nil {
		return Result{}, err
	}
	return s.r.Run(ctx, collectAction{owner: owner, game: s.game})
}

const actionCollect = "collect"

type collectAction struct {
	owner string
	game  chain.Game
}

func (a collectAction) Name() string { return actionCollect }

func (a collectAction) Prepare(tx *store.Tx, now int64) ([]chain.Call, error) {
	p, err := player(tx, actionCollect, a.owner)
	if err != nil {
		return nil, err
	}
	mark := tx.CollectMark(a.owner)
	buildings := tx.Buildings(a.owner)
	producers := derive.Producers(buildings, now, mark)
	if len(producers) == 0 {
		return nil, errs.Invalid(actionCollect, errs.ReasonNothingToCollect)
	}

	gained := derive.PendingAccrual(producers, now, mark)
	p.Diamond += gained.Diamond
	p.Gas += gained.Gas
	tx.Put(p)
	for _, b := range producers {
		b.LastCollectedAt = now
		tx.Put(b)
	}
	tx.MarkCollected(a.owner, now)
	return []chain.Call{a.game.Collect()}, nil
}
