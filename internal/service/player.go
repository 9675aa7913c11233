package service

import (
	"context"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/store"
)

const actionSpawn = "spawn"

// maxUsername is the capacity of a short-string felt.
const maxUsername = 31

// PlayerService initializes the player record on chain.
type PlayerService struct {
	r    *Runner
	game chain.Game
}

// NewPlayerService constructs a PlayerService.
func NewPlayerService(r *Runner, game chain.Game) *PlayerService {
	return &PlayerService{r: r, game: game}
}

// Spawn creates the connected player's village. A player that already exists counts as success.
func (s *PlayerService) Spawn(ctx context.Context, username string) (Result, error) {
	if _, err := s.r.connected(actionSpawn); err != nil {
		return Result{}, err
	}
	if username == "" || len(username) > maxUsername {
		return Result{}, errs.Invalid(actionSpawn, errs.ReasonInvalidParams)
	}
	return s.r.Run(ctx, spawnAction{game: s.game, username: username})
}

type spawnAction struct {
	game     chain.Game
	username string
}

func (a spawnAction) Name() string { return actionSpawn }

func (a spawnAction) Prepare(_ *store.Tx, _ int64) ([]chain.Call, error) {
	return []chain.Call{a.game.Spawn(a.username)}, nil
}

func (a spawnAction) Recoverable(err error) bool { return chain.IsAlreadyExists(err) }
