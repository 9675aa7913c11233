package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/repository"
)

// EntityRepo implements EntityRepository using PostgreSQL.
type EntityRepo struct{ db *DB }

// NewEntityRepo constructs an entity repository.
func NewEntityRepo(db *DB) *EntityRepo { return &EntityRepo{db: db} }

// Upsert writes all records in one transaction. Owner and id are taken from the record
// columns named by convert.OwnerField and convert.IDField.
func (r *EntityRepo) Upsert(ctx context.Context, kind model.Kind, recs []convert.Record) (seqs []int64, err error) {
	if len(recs) == 0 {
		return []int64{}, nil
	}
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const q = `
INSERT INTO entities (kind, owner, entity_id, data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (kind, owner, entity_id)
DO UPDATE SET data = EXCLUDED.data, seq = nextval('entities_seq_seq'), updated_at = now()
RETURNING seq`

	seqs = make([]int64, 0, len(recs))
	for i, rec := range recs {
		owner, id := keyOf(kind, rec)
		if owner == "" {
			return nil, fmt.Errorf("record[%d]: missing %s", i, convert.OwnerField(kind))
		}
		data, mErr := json.Marshal(rec)
		if mErr != nil {
			return nil, fmt.Errorf("record[%d]: %w", i, mErr)
		}
		var seq int64
		if err = tx.QueryRow(ctx, q, kind.String(), owner, id, data).Scan(&seq); err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

// Query returns matching records.
func (r *EntityRepo) Query(ctx context.Context, q repository.EntityQuery) ([]convert.Record, error) {
	const sql = `
SELECT data
FROM entities
WHERE kind=$1
  AND (cardinality($2::text[])=0 OR owner=ANY($2))
  AND (cardinality($3::bigint[])=0 OR entity_id=ANY($3))
ORDER BY owner, entity_id
LIMIT NULLIF($4, 0)`
	rows, err := r.db.Pool.Query(ctx, sql, q.Kind.String(), normalizeOwners(q.Owners), toInt64s(q.IDs), q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []convert.Record{}
	for rows.Next() {
		var data []byte
		if err = rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, dErr := decode(data)
		if dErr != nil {
			return nil, dErr
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ChangesSince returns writes strictly after since.
func (r *EntityRepo) ChangesSince(ctx context.Context, kinds []model.Kind, owners []string, since int64) ([]repository.EntityChange, error) {
	const sql = `
SELECT kind, seq, data, updated_at
FROM entities
WHERE seq>$1
  AND kind=ANY($2)
  AND (cardinality($3::text[])=0 OR owner=ANY($3))
ORDER BY seq ASC`
	rows, err := r.db.Pool.Query(ctx, sql, since, kindNames(kinds), normalizeOwners(owners))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.EntityChange
	for rows.Next() {
		var (
			kind string
			seq  int64
			data []byte
			ts   time.Time
		)
		if err = rows.Scan(&kind, &seq, &data, &ts); err != nil {
			return nil, err
		}
		k, ok := model.ParseKind(kind)
		if !ok {
			continue
		}
		rec, dErr := decode(data)
		if dErr != nil {
			return nil, dErr
		}
		out = append(out, repository.EntityChange{Kind: k, Seq: seq, Record: rec, UpdatedAt: ts})
	}
	return out, rows.Err()
}

// MaxSeq returns the current maximum sequence number.
func (r *EntityRepo) MaxSeq(ctx context.Context) (int64, error) {
	const q = `SELECT COALESCE(MAX(seq),0) FROM entities`
	var v int64
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func keyOf(kind model.Kind, rec convert.Record) (string, int64) {
	s, _ := rec[convert.OwnerField(kind)].(string)
	owner := model.NormalizeAddress(s)
	var id int64
	if f := convert.IDField(kind); f != "" {
		id = int64(convert.Uint(rec[f]))
	}
	return owner, id
}

// decode keeps numbers as json.Number so large felts survive.
func decode(data []byte) (convert.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec convert.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return rec, nil
}

func normalizeOwners(owners []string) []string {
	out := make([]string, 0, len(owners))
	for _, o := range owners {
		if n := model.NormalizeAddress(o); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func toInt64s(ids []uint64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
