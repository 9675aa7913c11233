// Package client ties the store, the sync adapter and the action coordinators to one
// connected wallet.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/derive"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/indexer"
	"github.com/and161185/villagekeeper/internal/limiter"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/service"
	"github.com/and161185/villagekeeper/internal/store"
	"github.com/and161185/villagekeeper/internal/syncer"
)

// Options tune a Client. Zero values take defaults.
type Options struct {
	Game           chain.Game
	SafetyNet      time.Duration // negative disables the confirming refresh
	RefreshEvery   time.Duration
	AttackCooldown time.Duration
	Tick           time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	st   *store.Store
	sync *syncer.Syncer
	r    *service.Runner
	tick time.Duration
	log  *zap.Logger

	mu   sync.RWMutex
	addr string

	Buildings *service.BuildingService
	Resources *service.ResourceService
	Workers   *service.WorkerService
	Troops    *service.TroopService
	Battles   *service.BattleService
	Players   *service.PlayerService
}

// New wires a client over idx and sub. Nothing is loaded until Connect.
func New(idx indexer.Indexer, sub chain.Submitter, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{st: store.New(), tick: opts.Tick, log: log}
	c.sync = syncer.New(idx, c.st, limiter.New(opts.RefreshEvery, 1), log.Named("sync"))
	c.r = service.NewRunner(c.st, sub, c.sync, c.Address, log.Named("action"))
	switch {
	case opts.SafetyNet > 0:
		c.r.SetSafetyNet(opts.SafetyNet)
	case opts.SafetyNet < 0:
		c.r.SetSafetyNet(0)
	}

	var cooldown limiter.Limiter
	if opts.AttackCooldown > 0 {
		cooldown = limiter.New(opts.AttackCooldown, 1)
	}
	c.Buildings = service.NewBuildingService(c.r, opts.Game)
	c.Resources = service.NewResourceService(c.r, opts.Game)
	c.Workers = service.NewWorkerService(c.r, opts.Game)
	c.Troops = service.NewTroopService(c.r, opts.Game)
	c.Battles = service.NewBattleService(c.r, opts.Game, c.sync, cooldown, log.Named("battle"))
	c.Players = service.NewPlayerService(c.r, opts.Game)
	return c
}

// Address returns the connected wallet, or "".
func (c *Client) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

// Connect switches to address: the store is cleared, every owned family is loaded and a push
// subscription is opened. On failure the client stays disconnected.
func (c *Client) Connect(ctx context.Context, address string) error {
	addr := model.NormalizeAddress(address)
	if addr == "" {
		return fmt.Errorf("connect: %w", errs.ErrNotConnected)
	}
	c.Disconnect()

	if err := c.sync.Load(ctx, addr); err != nil {
		return err
	}
	if err := c.sync.Watch(ctx, addr); err != nil {
		c.st.Reset()
		return err
	}
	c.mu.Lock()
	c.addr = addr
	c.mu.Unlock()
	c.log.Info("connected", zap.String("address", addr))
	return nil
}

// Disconnect drops the subscription, pending refreshes and every cached entity.
func (c *Client) Disconnect() {
	c.mu.Lock()
	prev := c.addr
	c.addr = ""
	c.mu.Unlock()

	c.sync.Unwatch()
	c.st.Reset()
	if prev != "" {
		c.log.Info("disconnected", zap.String("address", prev))
	}
}

// Refresh re-pulls the owned families of the connected wallet.
func (c *Client) Refresh(ctx context.Context, kinds ...model.Kind) error {
	addr := c.Address()
	if addr == "" {
		return &errs.SyncError{Op: "refresh", Err: errs.ErrNotConnected}
	}
	return c.sync.Refresh(ctx, addr, kinds...)
}

// Snapshot computes the derived state of the connected wallet now.
func (c *Client) Snapshot() derive.Snapshot {
	return derive.Compute(c.st.View(), c.Address(), c.r.Now())
}

// Run publishes snapshots on every tick and store change until ctx is done.
func (c *Client) Run(ctx context.Context, publish func(derive.Snapshot)) error {
	return derive.NewLoop(c.st, c.Address, publish, c.tick, c.log.Named("derive")).Run(ctx)
}

// Leaderboard returns up to limit players ordered by the indexer.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]model.Player, error) {
	return c.sync.Players(ctx, limit)
}

// History returns the recent battles of the connected wallet.
func (c *Client) History(ctx context.Context, limit int) ([]model.BattleRecord, error) {
	addr := c.Address()
	if addr == "" {
		return nil, &errs.SyncError{Op: "battles", Err: errs.ErrNotConnected}
	}
	return c.sync.Battles(ctx, addr, limit)
}

// Observe registers fn for coordinator state transitions.
func (c *Client) Observe(fn func(action string, s service.State)) {
	c.r.Observe(func(_ uuid.UUID, action string, s service.State) { fn(action, s) })
}

// Store exposes the underlying store for read access.
func (c *Client) Store() *store.Store { return c.st }

// Close disconnects and stops pending refreshes.
func (c *Client) Close() {
	c.Disconnect()
	c.sync.Close()
}
