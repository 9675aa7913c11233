package service

import (
	"context"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/gamedata"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/store"
)

const (
	actionTrainWorker  = "train worker"
	actionFinishWorker = "finish worker"
)

// WorkerService trains additional builders in the Town Hall.
type WorkerService struct {
	r    *Runner
	game chain.Game
}

// NewWorkerService constructs a WorkerService.
func NewWorkerService(r *Runner, game chain.Game) *WorkerService {
	return &WorkerService{r: r, game: game}
}

// Train starts training the next builder.
func (s *WorkerService) Train(ctx context.Context) (Result, error) {
	owner, err := s.r.connected(actionTrainWorker)
	if err != nil {
		return Result{}, err
	}
	return s.r.Run(ctx, trainWorkerAction{owner: owner, game: s.game})
}

// Finish adds the trained builder once its timer has elapsed.
func (s *WorkerService) Finish(ctx context.Context) (Result, error) {
	owner, err := s.r.connected(actionFinishWorker)
	if err != nil {
		return Result{}, err
	}
	return s.r.Run(ctx, finishWorkerAction{owner: owner, game: s.game})
}

func builderCap(p model.Player) uint32 {
	if p.MaxBuilders > 0 && p.MaxBuilders < gamedata.MaxBuilders {
		return p.MaxBuilders
	}
	return gamedata.MaxBuilders
}

type trainWorkerAction struct {
	owner string
	game  chain.Game
}

func (a trainWorkerAction) Name() string { return actionTrainWorker }

func (a trainWorkerAction) Prepare(tx *store.Tx, now int64) ([]chain.Call, error) {
	p, err := player(tx, actionTrainWorker, a.owner)
	if err != nil {
		return nil, err
	}
	if p.TotalBuilders >= builderCap(p) {
		return nil, errs.Invalid(actionTrainWorker, errs.ReasonWorkerLimit)
	}
	q, _ := tx.BuilderQueue(a.owner)
	if q.IsTraining {
		return nil, errs.Invalid(actionTrainWorker, errs.ReasonAlreadyTraining)
	}
	d, ok := gamedata.WorkerTrainingTime(p.TotalBuilders)
	if !ok {
		return nil, errs.Invalid(actionTrainWorker, errs.ReasonWorkerLimit)
	}

	tx.Put(model.BuilderQueue{Owner: a.owner, IsTraining: true, FinishTime: now + d})
	return []chain.Call{a.game.TrainWorker()}, nil
}

type finishWorkerAction struct {
	owner string
	game  chain.Game
}

func (a finishWorkerAction) Name() string { return actionFinishWorker }

func (a finishWorkerAction) Prepare(tx *store.Tx, now int64) ([]chain.Call, error) {
	p, err := player(tx, actionFinishWorker, a.owner)
	if err != nil {
		return nil, err
	}
	q, _ := tx.BuilderQueue(a.owner)
	if !q.IsTraining {
		return nil, errs.Invalid(actionFinishWorker, errs.ReasonNotTraining)
	}
	if now < q.FinishTime {
		return nil, errs.Invalid(actionFinishWorker, errs.ReasonNotReady)
	}

	p.TotalBuilders++
	p.FreeBuilders++
	tx.Put(p)
	tx.Put(model.BuilderQueue{Owner: a.owner})
	return []chain.Call{a.game.FinishWorker()}, nil
}
