package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/repository"
)

// SubscriptionRepo implements SubscriptionRepository using PostgreSQL.
type SubscriptionRepo struct{ db *DB }

// NewSubscriptionRepo constructs a subscription repository.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

// Open inserts a subscription row.
func (r *SubscriptionRepo) Open(ctx context.Context, s repository.Subscription) error {
	const q = `
INSERT INTO subscriptions (id, owner, kinds, transport)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, model.NormalizeAddress(s.Owner), kindNames(s.Kinds), s.Transport)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Close stamps closed_at once.
func (r *SubscriptionRepo) Close(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE subscriptions
SET closed_at = now()
WHERE id = $1 AND closed_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Get selects a subscription by ID.
func (r *SubscriptionRepo) Get(ctx context.Context, id uuid.UUID) (*repository.Subscription, error) {
	const q = `
SELECT id, owner, kinds, transport, opened_at, closed_at
FROM subscriptions WHERE id=$1`
	var (
		s     repository.Subscription
		kinds []string
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.Owner, &kinds, &s.Transport, &s.OpenedAt, &s.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	for _, k := range kinds {
		if kind, ok := model.ParseKind(k); ok {
			s.Kinds = append(s.Kinds, kind)
		}
	}
	return &s, nil
}

func kindNames(kinds []model.Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.String())
	}
	return out
}
