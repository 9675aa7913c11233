package indexer

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/repository"
)

type audited struct {
	next      Subscriber
	repo      repository.SubscriptionRepository
	transport string
	log       *zap.Logger
}

// Audited records every subscription opened through next in repo, tagged with transport.
// Audit failures are logged and never block delivery.
func Audited(next Subscriber, repo repository.SubscriptionRepository, transport string, log *zap.Logger) Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &audited{next: next, repo: repo, transport: transport, log: log}
}

func (a *audited) Subscribe(ctx context.Context, kinds []model.Kind, f Filter, onBatch func(Batch)) (Subscription, error) {
	sub, err := a.next.Subscribe(ctx, kinds, f, onBatch)
	if err != nil {
		return nil, err
	}
	id := uuid.Must(uuid.NewV4())
	owner := ""
	if len(f.Owners) > 0 {
		owner = f.Owners[0]
	}
	if err := a.repo.Open(ctx, repository.Subscription{ID: id, Owner: owner, Kinds: kinds, Transport: a.transport}); err != nil {
		a.log.Warn("audit subscription", zap.Error(err))
		return sub, nil
	}
	return SubscriptionFunc(func() {
		sub.Dispose()
		if err := a.repo.Close(context.Background(), id); err != nil {
			a.log.Debug("close subscription audit", zap.String("id", id.String()), zap.Error(err))
		}
	}), nil
}
