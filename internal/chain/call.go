// Package chain describes game transactions and submits them to the network.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/model"
)

//go:generate go tool mockgen -destination=./chainmock/submitter.go -package=chainmock . Submitter

// Submitter executes a multicall and waits for its receipt.
type Submitter interface {
	Submit(ctx context.Context, calls []Call) (Receipt, error)
}

// Call is one contract invocation.
type Call struct {
	Contract   string
	Entrypoint string
	Calldata   []string
}

// Event is a decoded receipt event.
type Event struct {
	Name string
	Keys []string
	Data []string
}

// Receipt is the outcome of an accepted transaction.
type Receipt struct {
	TxHash string
	Events []Event
}

// Event returns the first event called name.
func (r Receipt) Event(name string) (Event, bool) {
	for _, e := range r.Events {
		if e.Name == name {
			return e, true
		}
	}
	return Event{}, false
}

// TxError is a transaction the network rejected or reverted.
type TxError struct {
	TxHash string
	Reason string
}

func (e *TxError) Error() string {
	if e.TxHash == "" {
		return "transaction rejected: " + e.Reason
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash, e.Reason)
}

// Is matches errs.ErrAlreadyExists when the revert reason says so.
func (e *TxError) Is(target error) bool {
	return target == errs.ErrAlreadyExists && strings.Contains(strings.ToLower(e.Reason), "already exists")
}

// IsAlreadyExists reports whether err is a rejection because the entity already exists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, errs.ErrAlreadyExists)
}

// Entrypoint names of the game contract.
const (
	EntrypointCollect       = "collect_resources"
	EntrypointPlace         = "place_building"
	EntrypointUpgrade       = "upgrade_building"
	EntrypointFinishUpgrade = "finish_upgrade"
	EntrypointMove          = "move_building"
	EntrypointTrainWorker   = "train_worker"
	EntrypointFinishWorker  = "finish_worker_training"
	EntrypointTrainTroops   = "train_troops"
	EntrypointStartAttack   = "start_attack"
	EntrypointDeploy        = "deploy_troop"
	EntrypointEndBattle     = "end_battle"
	EntrypointSpawn         = "spawn"
)

// Game builds calls against the game contract at Address.
type Game struct {
	Address string
}

func (g Game) call(entrypoint string, calldata ...string) Call {
	if calldata == nil {
		calldata = []string{}
	}
	return Call{Contract: g.Address, Entrypoint: entrypoint, Calldata: calldata}
}

func (g Game) Collect() Call { return g.call(EntrypointCollect) }

func (g Game) PlaceBuilding(t model.BuildingType, pos model.Position) Call {
	return g.call(EntrypointPlace, felt(uint64(t)), felt(uint64(pos.X)), felt(uint64(pos.Y)))
}

func (g Game) UpgradeBuilding(id uint32) Call { return g.call(EntrypointUpgrade, felt(uint64(id))) }

func (g Game) FinishUpgrade(id uint32) Call { return g.call(EntrypointFinishUpgrade, felt(uint64(id))) }

func (g Game) MoveBuilding(id uint32, pos model.Position) Call {
	return g.call(EntrypointMove, felt(uint64(id)), felt(uint64(pos.X)), felt(uint64(pos.Y)))
}

func (g Game) TrainWorker() Call  { return g.call(EntrypointTrainWorker) }
func (g Game) FinishWorker() Call { return g.call(EntrypointFinishWorker) }

func (g Game) TrainTroops(barracksID uint32, t model.TroopType, qty uint32) Call {
	return g.call(EntrypointTrainTroops, felt(uint64(barracksID)), felt(uint64(t)), felt(uint64(qty)))
}

func (g Game) StartAttack(defender string) Call { return g.call(EntrypointStartAttack, defender) }

func (g Game) DeployTroop(battleID uint64, t model.TroopType, pos model.Position) Call {
	return g.call(EntrypointDeploy, felt(battleID), felt(uint64(t)), felt(uint64(pos.X)), felt(uint64(pos.Y)))
}

func (g Game) EndBattle(battleID uint64) Call { return g.call(EntrypointEndBattle, felt(battleID)) }

// Spawn encodes username as a short string felt.
func (g Game) Spawn(username string) Call {
	return g.call(EntrypointSpawn, convert.EncodeShortString(username))
}

func felt(n uint64) string { return strconv.FormatUint(n, 10) }
