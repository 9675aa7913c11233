// Package indexer abstracts the external entity index: filtered pull queries and
// push subscriptions delivering raw records in the indexer's encoding.
package indexer

import (
	"context"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/model"
)

// Filter narrows a query or subscription. Empty Owners/IDs match everything; Limit 0 is unbounded.
type Filter struct {
	Owners []string
	IDs    []uint64
	Limit  int
}

// Batch is one push delivery of records of a single kind.
type Batch struct {
	Kind    model.Kind
	Records []convert.Record
}

// Subscription is a live push channel.
type Subscription interface {
	// Dispose stops delivery and waits for an in-flight callback. It is safe to call more
	// than once but must not be called from the callback itself.
	Dispose()
}

// Querier pulls records.
type Querier interface {
	Query(ctx context.Context, kind model.Kind, f Filter) ([]convert.Record, error)
}

// Subscriber opens push subscriptions. onBatch is called from a single goroutine per subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, kinds []model.Kind, f Filter, onBatch func(Batch)) (Subscription, error)
}

// Indexer is the full client surface the syncer needs.
type Indexer interface {
	Querier
	Subscriber
}

type combined struct {
	Querier
	Subscriber
}

// Combine pairs a pull transport with a push transport, e.g. gRPC queries with WebSocket pushes.
func Combine(q Querier, s Subscriber) Indexer {
	return combined{Querier: q, Subscriber: s}
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Dispose calls f.
func (f SubscriptionFunc) Dispose() { f() }
