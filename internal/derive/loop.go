package derive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/store"
)

// DefaultTick is the recompute interval when none is configured.
const DefaultTick = time.Second

// Loop recomputes snapshots on a fixed tick and after every store change.
type Loop struct {
	st      *store.Store
	owner   func() string
	publish func(Snapshot)
	tick    time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewLoop builds a loop publishing snapshots of owner() to publish.
// A non-positive tick falls back to DefaultTick.
func NewLoop(st *store.Store, owner func() string, publish func(Snapshot), tick time.Duration, log *zap.Logger) *Loop {
	if tick <= 0 {
		tick = DefaultTick
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{st: st, owner: owner, publish: publish, tick: tick, now: time.Now, log: log}
}

// Run blocks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	changes, cancel := l.st.Watch()
	defer cancel()
	t := time.NewTicker(l.tick)
	defer t.Stop()

	l.emit()
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("derive loop stopped")
			return ctx.Err()
		case <-t.C:
			l.emit()
		case <-changes:
			l.emit()
		}
	}
}

func (l *Loop) emit() {
	owner := l.owner()
	if owner == "" {
		return
	}
	l.publish(Compute(l.st.View(), owner, l.now().Unix()))
}
