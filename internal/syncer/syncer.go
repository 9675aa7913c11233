// Package syncer pulls authoritative state from the indexer into the store and keeps a
// push subscription routing updates for the connected wallet.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/indexer"
	"github.com/and161185/villagekeeper/internal/limiter"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/store"
)

// Syncer is safe for concurrent use.
type Syncer struct {
	idx indexer.Indexer
	st  *store.Store
	lim limiter.Limiter
	log *zap.Logger

	mu     sync.Mutex
	sub    indexer.Subscription
	owner  string
	timers map[*time.Timer]struct{}
	gen    uint64 // bumped by CancelPending; pulls started earlier are discarded
	closed bool
}

// New constructs a syncer. lim throttles Refresh per owner; nil disables throttling.
func New(idx indexer.Indexer, st *store.Store, lim limiter.Limiter, log *zap.Logger) *Syncer {
	if lim == nil {
		lim = limiter.New(0, 1)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{idx: idx, st: st, lim: lim, log: log, timers: make(map[*time.Timer]struct{})}
}

// Load pulls every owned family of owner and replaces them in the store together.
func (s *Syncer) Load(ctx context.Context, owner string) error {
	if err := s.pull(ctx, "load", owner, model.OwnedKinds, s.generation()); err != nil {
		return err
	}
	s.log.Info("state loaded", zap.String("owner", model.NormalizeAddress(owner)))
	return nil
}

// Refresh re-pulls the given families of owner (all owned ones if none given).
// Calls faster than the limiter allows return errs.ErrRateLimited.
func (s *Syncer) Refresh(ctx context.Context, owner string, kinds ...model.Kind) error {
	owner = model.NormalizeAddress(owner)
	if ok, wait := s.lim.Allow(owner); !ok {
		return &errs.SyncError{Op: "refresh", Err: fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, wait)}
	}
	if len(kinds) == 0 {
		kinds = model.OwnedKinds
	}
	return s.pull(ctx, "refresh", owner, kinds, s.generation())
}

func (s *Syncer) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// pull replaces kinds of owner with what the indexer holds, unless CancelPending ran since gen.
func (s *Syncer) pull(ctx context.Context, op, owner string, kinds []model.Kind, gen uint64) error {
	owner = model.NormalizeAddress(owner)
	if owner == "" {
		return &errs.SyncError{Op: op, Err: errs.ErrNotConnected}
	}
	results := make([][]model.Entity, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			rs, err := s.idx.Query(gctx, kind, indexer.Filter{Owners: []string{owner}})
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			results[i] = ownedBy(owner, convert.ToEntities(kind, rs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &errs.SyncError{Op: op, Err: err}
	}

	families := make(map[model.Kind][]model.Entity, len(kinds))
	for i, kind := range kinds {
		families[kind] = results[i]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return &errs.SyncError{Op: op, Err: errs.ErrSuperseded}
	}
	if err := s.st.ReplaceFamilies(owner, families); err != nil {
		return &errs.SyncError{Op: op, Err: err}
	}
	return nil
}

// ownedBy drops records the indexer returned for someone else.
func ownedBy(owner string, es []model.Entity) []model.Entity {
	out := es[:0]
	for _, e := range es {
		if model.NormalizeAddress(e.EntityKey().Owner) == owner {
			out = append(out, e)
		}
	}
	return out
}

// Players lists up to limit players (0 for all) and stores them.
func (s *Syncer) Players(ctx context.Context, limit int) ([]model.Player, error) {
	rs, err := s.idx.Query(ctx, model.KindPlayer, indexer.Filter{Limit: limit})
	if err != nil {
		return nil, &errs.SyncError{Op: "players", Err: err}
	}
	out := make([]model.Player, 0, len(rs))
	es := make([]model.Entity, 0, len(rs))
	for _, r := range rs {
		p := convert.ToPlayer(r)
		if p.Address == "" {
			continue
		}
		out = append(out, p)
		es = append(es, p)
	}
	s.st.ApplyAuthoritative(es...)
	return out, nil
}

// Battle fetches one battle record by id.
func (s *Syncer) Battle(ctx context.Context, id uint64) (model.BattleRecord, error) {
	rs, err := s.idx.Query(ctx, model.KindBattle, indexer.Filter{IDs: []uint64{id}, Limit: 1})
	if err != nil {
		return model.BattleRecord{}, &errs.SyncError{Op: "battle", Err: err}
	}
	if len(rs) == 0 {
		return model.BattleRecord{}, &errs.SyncError{Op: "battle", Err: fmt.Errorf("battle %d: %w", id, errs.ErrNotFound)}
	}
	b := convert.ToBattle(rs[0])
	s.st.ApplyAuthoritative(b)
	return b, nil
}

// Battles fetches up to limit battles started by attacker.
func (s *Syncer) Battles(ctx context.Context, attacker string, limit int) ([]model.BattleRecord, error) {
	rs, err := s.idx.Query(ctx, model.KindBattle, indexer.Filter{Owners: []string{model.NormalizeAddress(attacker)}, Limit: limit})
	if err != nil {
		return nil, &errs.SyncError{Op: "battles", Err: err}
	}
	out := make([]model.BattleRecord, 0, len(rs))
	es := make([]model.Entity, 0, len(rs))
	for _, r := range rs {
		b := convert.ToBattle(r)
		out = append(out, b)
		es = append(es, b)
	}
	s.st.ApplyAuthoritative(es...)
	return out, nil
}

// Watch subscribes to pushes for owner, replacing any subscription for a previous owner.
// Every pushed record is applied as authoritative.
func (s *Syncer) Watch(ctx context.Context, owner string) error {
	owner = model.NormalizeAddress(owner)
	if owner == "" {
		return &errs.SyncError{Op: "watch", Err: errs.ErrNotConnected}
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &errs.SyncError{Op: "watch", Err: fmt.Errorf("syncer closed")}
	}
	if s.sub != nil && s.owner == owner {
		s.mu.Unlock()
		return nil
	}
	prev := s.sub
	s.sub, s.owner = nil, ""
	s.mu.Unlock()

	if prev != nil {
		prev.Dispose()
	}

	sub, err := s.idx.Subscribe(ctx, model.OwnedKinds, indexer.Filter{Owners: []string{owner}}, s.apply)
	if err != nil {
		return &errs.SyncError{Op: "watch", Err: err}
	}

	s.mu.Lock()
	if s.closed || s.sub != nil {
		s.mu.Unlock()
		sub.Dispose()
		return nil
	}
	s.sub, s.owner = sub, owner
	s.mu.Unlock()
	s.log.Info("watching", zap.String("owner", owner))
	return nil
}

func (s *Syncer) apply(b indexer.Batch) {
	es := convert.ToEntities(b.Kind, b.Records)
	if len(es) == 0 {
		return
	}
	s.st.ApplyAuthoritative(es...)
	s.log.Debug("push applied", zap.String("kind", b.Kind.String()), zap.Int("records", len(es)))
}

// Unwatch disposes the current subscription, if any, and cancels pending refreshes.
func (s *Syncer) Unwatch() {
	s.mu.Lock()
	sub := s.sub
	s.sub, s.owner = nil, ""
	s.cancelPending()
	s.mu.Unlock()
	if sub != nil {
		sub.Dispose()
	}
}

// CancelPending stops every scheduled refresh and discards pulls still in flight.
func (s *Syncer) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPending()
}

func (s *Syncer) cancelPending() {
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	s.gen++
}

// ScheduleRefresh pulls kinds of owner after delay. Errors are logged.
func (s *Syncer) ScheduleRefresh(owner string, delay time.Duration, kinds ...model.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	gen := s.gen
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		live := s.gen == gen
		s.mu.Unlock()
		if !live {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.pull(ctx, "scheduled refresh", owner, orOwned(kinds), gen); err != nil {
			s.log.Warn("scheduled refresh", zap.String("owner", owner), zap.Error(err))
		}
	})
	s.timers[t] = struct{}{}
}

func orOwned(kinds []model.Kind) []model.Kind {
	if len(kinds) == 0 {
		return model.OwnedKinds
	}
	return kinds
}

// Close disposes the subscription and cancels pending scheduled refreshes.
func (s *Syncer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Unwatch()
}
