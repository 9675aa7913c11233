package indexer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/repository"
)

// Local serves queries straight from an entity repository and turns its change feed
// into push batches by polling sequence numbers.
type Local struct {
	repo     repository.EntityRepository
	interval time.Duration
	log      *zap.Logger
}

// NewLocal constructs a repository-backed indexer polling every interval.
func NewLocal(repo repository.EntityRepository, interval time.Duration, log *zap.Logger) *Local {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{repo: repo, interval: interval, log: log}
}

// Query implements Querier.
func (l *Local) Query(ctx context.Context, kind model.Kind, f Filter) ([]convert.Record, error) {
	return l.repo.Query(ctx, repository.EntityQuery{Kind: kind, Owners: f.Owners, IDs: f.IDs, Limit: f.Limit})
}

// Subscribe delivers writes made after the call. Consecutive changes of one kind are
// grouped into a single batch, preserving sequence order.
func (l *Local) Subscribe(ctx context.Context, kinds []model.Kind, f Filter, onBatch func(Batch)) (Subscription, error) {
	since, err := l.repo.MaxSeq(ctx)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(l.interval)
		defer t.Stop()
		for {
			select {
			case <-sctx.Done():
				return
			case <-t.C:
			}
			changes, err := l.repo.ChangesSince(sctx, kinds, f.Owners, since)
			if err != nil {
				if sctx.Err() == nil {
					l.log.Warn("poll changes", zap.Int64("since", since), zap.Error(err))
				}
				continue
			}
			for _, b := range group(changes) {
				onBatch(b)
			}
			if n := len(changes); n > 0 {
				since = changes[n-1].Seq
			}
		}
	}()

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}), nil
}

func group(changes []repository.EntityChange) []Batch {
	var out []Batch
	for _, c := range changes {
		if n := len(out); n > 0 && out[n-1].Kind == c.Kind {
			out[n-1].Records = append(out[n-1].Records, c.Record)
			continue
		}
		out = append(out, Batch{Kind: c.Kind, Records: []convert.Record{c.Record}})
	}
	return out
}
