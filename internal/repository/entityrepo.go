// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/model"
)

// EntityQuery selects records of one kind. Empty Owners/IDs match everything; Limit 0 is unbounded.
type EntityQuery struct {
	Kind   model.Kind
	Owners []string
	IDs    []uint64
	Limit  int
}

// EntityChange is one record write observed by sequence number.
type EntityChange struct {
	Kind      model.Kind
	Seq       int64
	Record    convert.Record
	UpdatedAt time.Time
}

// EntityRepository stores indexed game records in their wire encoding.
type EntityRepository interface {
	// Upsert writes records of kind, keyed by their owner and id columns, and returns new sequence numbers.
	Upsert(ctx context.Context, kind model.Kind, recs []convert.Record) ([]int64, error)
	// Query returns records matching q ordered by owner then id.
	Query(ctx context.Context, q EntityQuery) ([]convert.Record, error)
	// ChangesSince returns writes with seq greater than since, ordered by seq.
	ChangesSince(ctx context.Context, kinds []model.Kind, owners []string, since int64) ([]EntityChange, error)
	// MaxSeq returns the latest sequence number.
	MaxSeq(ctx context.Context) (int64, error)
}

// Subscription is an audit row of one push subscriber.
type Subscription struct {
	ID        uuid.UUID
	Owner     string
	Kinds     []model.Kind
	Transport string
	OpenedAt  time.Time
	ClosedAt  *time.Time
}

// SubscriptionRepository records push subscribers of the dev indexer.
type SubscriptionRepository interface {
	// Open inserts a new subscription.
	Open(ctx context.Context, s Subscription) error
	// Close stamps closed_at on an open subscription.
	Close(ctx context.Context, id uuid.UUID) error
	// Get loads a subscription by ID.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
}
