package indexer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/model"
)

func TestSeed(t *testing.T) {
	repo := &fakeRepo{}
	doc := `{
		"Player":   [{"address":"0xabc","diamond":"0x3e8","town_hall_level":1}],
		"Building": [{"owner":"0xabc","building_id":1,"building_type":"TownHall","level":1},
		             {"owner":"0xabc","building_id":2,"building_type":"Wall","level":1}],
		"Army":     []
	}`
	n, err := Seed(context.Background(), repo, strings.NewReader(doc), zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Len(t, repo.upserts[model.KindBuilding], 2)
	require.Equal(t, json.Number("1"), repo.upserts[model.KindPlayer][0]["town_hall_level"])
	require.NotContains(t, repo.upserts, model.KindArmy)
}

func TestSeed_Errors(t *testing.T) {
	_, err := Seed(context.Background(), &fakeRepo{}, strings.NewReader(`{"Dragon":[{}]}`), nil)
	require.ErrorContains(t, err, "unknown kind")

	_, err = Seed(context.Background(), &fakeRepo{}, strings.NewReader(`[`), nil)
	require.ErrorContains(t, err, "decode seed")

	repo := &fakeRepo{failOn: model.KindPlayer}
	n, err := Seed(context.Background(), repo, strings.NewReader(`{"Building":[{}],"Player":[{}]}`), nil)
	require.ErrorContains(t, err, "write failed")
	require.Equal(t, 1, n)
}
