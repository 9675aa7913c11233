package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/derive"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/limiter"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/store"
)

const (
	actionStartAttack = "start attack"
	actionDeploy      = "deploy troop"
	actionEndBattle   = "end battle"

	// EventBattleStarted is the receipt event carrying the new battle id as its first datum.
	EventBattleStarted = "BattleStarted"
)

// BattleSource pulls battle records from the indexer.
type BattleSource interface {
	Battle(ctx context.Context, id uint64) (model.BattleRecord, error)
	Battles(ctx context.Context, attacker string, limit int) ([]model.BattleRecord, error)
}

// Deployment is one troop dropped on the battle map.
type Deployment struct {
	Troop    model.TroopType
	Position model.Position

	seq uint64
}

// Battle is the local view of the battle the connected player is fighting.
type Battle struct {
	ID       uint64
	Defender string
	Status   model.BattleStatus
	Troops   map[model.TroopType]uint32
	Deployed []Deployment
}

func (b Battle) clone() Battle {
	b.Troops = maps.Clone(b.Troops)
	b.Deployed = slices.Clone(b.Deployed)
	return b
}

// BattleService starts attacks and deploys troops. The active battle lives only in memory.
type BattleService struct {
	r        *Runner
	game     chain.Game
	battles  BattleSource
	cooldown limiter.Limiter
	log      *zap.Logger

	mu      sync.Mutex
	active  *Battle
	deploys uint64
}

// NewBattleService constructs a BattleService. cooldown may be nil.
func NewBattleService(r *Runner, game chain.Game, battles BattleSource, cooldown limiter.Limiter, log *zap.Logger) *BattleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BattleService{r: r, game: game, battles: battles, cooldown: cooldown, log: log}
}

// Active returns a copy of the current battle.
func (s *BattleService) Active() (Battle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Battle{}, false
	}
	return s.active.clone(), true
}

// StartAttack attacks target. Nothing is applied locally until the transaction yields a
// battle id; the troops of the army are then copied into the new active battle.
func (s *BattleService) StartAttack(ctx context.Context, target string) (Battle, error) {
	owner, err := s.r.connected(actionStartAttack)
	if err != nil {
		return Battle{}, err
	}
	target = model.NormalizeAddress(target)
	if target == "" || target == owner {
		return Battle{}, errs.Invalid(actionStartAttack, errs.ReasonInvalidParams)
	}
	res, err := s.r.Run(ctx, startAttackAction{owner: owner, target: target, game: s.game, cooldown: s.cooldown})
	if err != nil {
		return Battle{}, err
	}
	id, err := s.battleID(ctx, res.Receipt, owner, target)
	if err != nil {
		return Battle{}, err
	}

	army, _ := s.r.Store().View().Army(owner)
	b := Battle{ID: id, Defender: target, Status: model.BattlePreparing, Troops: maps.Clone(army.Troops)}
	if b.Troops == nil {
		b.Troops = map[model.TroopType]uint32{}
	}
	s.mu.Lock()
	s.active = &b
	s.mu.Unlock()
	s.log.Info("battle started", zap.Uint64("battle", id), zap.String("defender", target))
	return b.clone(), nil
}

// battleID reads the id from the receipt, or finds the newest battle against target.
func (s *BattleService) battleID(ctx context.Context, rc chain.Receipt, owner, target string) (uint64, error) {
	if ev, ok := rc.Event(EventBattleStarted); ok && len(ev.Data) > 0 {
		if id := convert.Uint(ev.Data[0]); id > 0 {
			return id, nil
		}
	}
	if s.battles == nil {
		return 0, fmt.Errorf("battle id: %w", errs.ErrNotFound)
	}
	rs, err := s.battles.Battles(ctx, owner, 0)
	if err != nil {
		return 0, err
	}
	var id uint64
	for _, b := range rs {
		if model.NormalizeAddress(b.Defender) == target && b.ID > id {
			id = b.ID
		}
	}
	if id == 0 {
		return 0, fmt.Errorf("battle against %s: %w", target, errs.ErrNotFound)
	}
	return id, nil
}

// Deploy drops one troop at pos, which must lie in the deploy border of the battle map.
func (s *BattleService) Deploy(ctx context.Context, t model.TroopType, pos model.Position) (Result, error) {
	if _, err := s.r.connected(actionDeploy); err != nil {
		return Result{}, err
	}
	return s.r.Run(ctx, &deployAction{s: s, troop: t, pos: pos})
}

// End finishes the active battle and returns its record as indexed.
func (s *BattleService) End(ctx context.Context) (model.BattleRecord, error) {
	owner, err := s.r.connected(actionEndBattle)
	if err != nil {
		return model.BattleRecord{}, err
	}
	cur, ok := s.Active()
	if !ok {
		return model.BattleRecord{}, errs.Invalid(actionEndBattle, errs.ReasonNoBattle)
	}
	if _, err := s.r.Run(ctx, endBattleAction{game: s.game, id: cur.ID}); err != nil {
		return model.BattleRecord{}, err
	}

	s.mu.Lock()
	if s.active != nil && s.active.ID == cur.ID {
		s.active = nil
	}
	s.mu.Unlock()

	rec := model.BattleRecord{ID: cur.ID, Attacker: owner, Defender: cur.Defender, Status: model.BattleEnded}
	if s.battles == nil {
		return rec, nil
	}
	got, err := s.battles.Battle(ctx, cur.ID)
	if err != nil {
		s.log.Warn("battle record not indexed yet", zap.Uint64("battle", cur.ID), zap.Error(err))
		return rec, nil
	}
	return got, nil
}

type startAttackAction struct {
	owner    string
	target   string
	game     chain.Game
	cooldown limiter.Limiter
}

func (a startAttackAction) Name() string { return actionStartAttack }

func (a startAttackAction) Prepare(tx *store.Tx, now int64) ([]chain.Call, error) {
	if _, err := player(tx, actionStartAttack, a.owner); err != nil {
		return nil, err
	}
	if def, ok := tx.Player(a.target); ok && def.Shielded(now) {
		return nil, errs.Invalid(actionStartAttack, errs.ReasonShielded)
	}
	// only an attack that passed every other check spends the cooldown
	if a.cooldown != nil {
		if ok, _ := a.cooldown.Allow(a.owner); !ok {
			return nil, errs.Invalid(actionStartAttack, errs.ReasonCooldown)
		}
	}
	return []chain.Call{a.game.StartAttack(a.target)}, nil
}

type deployAction struct {
	s     *BattleService
	troop model.TroopType
	pos   model.Position

	battle uint64
	seq    uint64
	status model.BattleStatus
}

func (a *deployAction) Name() string { return actionDeploy }

func (a *deployAction) Prepare(_ *store.Tx, _ int64) ([]chain.Call, error) {
	if !a.troop.Valid() {
		return nil, errs.Invalid(actionDeploy, errs.ReasonInvalidParams)
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	b := a.s.active
	if b == nil || b.Status == model.BattleEnded {
		return nil, errs.Invalid(actionDeploy, errs.ReasonNoBattle)
	}
	if b.Troops[a.troop] == 0 {
		return nil, errs.Invalid(actionDeploy, errs.ReasonNoTroops)
	}
	if !derive.InDeployZone(a.pos) {
		return nil, errs.Invalid(actionDeploy, errs.ReasonOutsideDeployZone)
	}

	a.s.deploys++
	a.battle, a.seq, a.status = b.ID, a.s.deploys, b.Status
	b.Troops[a.troop]--
	b.Status = model.BattleInProgress
	b.Deployed = append(b.Deployed, Deployment{Troop: a.troop, Position: a.pos, seq: a.seq})
	return []chain.Call{a.s.game.DeployTroop(b.ID, a.troop, a.pos)}, nil
}

// Revert undoes this deployment only. Deployments made since are kept, and a battle that
// replaced this one is not touched.
func (a *deployAction) Revert() {
	if a.seq == 0 {
		return
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	b := a.s.active
	if b == nil || b.ID != a.battle {
		return
	}
	i := slices.IndexFunc(b.Deployed, func(d Deployment) bool { return d.seq == a.seq })
	if i < 0 {
		return
	}
	b.Deployed = slices.Delete(b.Deployed, i, i+1)
	b.Troops[a.troop]++
	if len(b.Deployed) == 0 && b.Status == model.BattleInProgress {
		b.Status = a.status
	}
}

type endBattleAction struct {
	game chain.Game
	id   uint64
}

func (a endBattleAction) Name() string { return actionEndBattle }

func (a endBattleAction) Prepare(_ *store.Tx, _ int64) ([]chain.Call, error) {
	return []chain.Call{a.game.EndBattle(a.id)}, nil
}
