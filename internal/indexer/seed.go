package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/convert"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/repository"
)

// Seed upserts a JSON document of the form {"Player":[...],"Building":[...]} into repo and
// returns the number of records written. Kinds are written in model name order.
func Seed(ctx context.Context, repo repository.EntityRepository, r io.Reader, log *zap.Logger) (int, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc map[string][]convert.Record
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		if _, ok := model.ParseKind(name); !ok {
			return 0, fmt.Errorf("seed: unknown kind %q", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	var n int
	for _, name := range names {
		kind, _ := model.ParseKind(name)
		recs := doc[name]
		if len(recs) == 0 {
			continue
		}
		if _, err := repo.Upsert(ctx, kind, recs); err != nil {
			return n, fmt.Errorf("seed %s: %w", kind, err)
		}
		n += len(recs)
		if log != nil {
			log.Info("seeded", zap.String("kind", kind.String()), zap.Int("records", len(recs)))
		}
	}
	return n, nil
}
