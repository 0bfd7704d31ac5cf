package store

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(id string, confidence float64, primary string) *model.Result {
	return &model.Result{
		EntityID:     id,
		Profile:      model.Baseline(),
		Types:        []model.TypeWeight{{Code: primary, Weight: 0.6, Rank: model.RankPrimary}},
		Confidence:   confidence,
		TableVersion: "default@1.0.0",
	}
}

func TestShouldReplace(t *testing.T) {
	assert.True(t, ShouldReplace(nil, result("a", 0.4, "INFP")))
	assert.True(t, ShouldReplace(result("a", 0.6, "INFJ"), result("a", 0.6, "INFP")))
	assert.True(t, ShouldReplace(result("a", 0.5, "INFJ"), result("a", 0.6, "INFP")))
	assert.False(t, ShouldReplace(result("a", 0.6, "INFJ"), result("a", 0.5, "INFP")))
}

func TestMemoryStore_UpsertContract(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	written, err := s.Upsert(ctx, result("a1", 0.6, "INFJ"))
	require.NoError(t, err)
	assert.True(t, written, "first write must succeed")

	written, err = s.Upsert(ctx, result("a1", 0.45, "ESTP"))
	require.NoError(t, err)
	assert.False(t, written, "lower confidence must not overwrite")

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "INFJ", got.Primary())

	written, err = s.Upsert(ctx, result("a1", 0.6, "ENFJ"))
	require.NoError(t, err)
	assert.True(t, written, "equal confidence overwrites")

	got, err = s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "ENFJ", got.Primary())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_RejectsMissingID(t *testing.T) {
	_, err := NewMemoryStore().Upsert(context.Background(), result("", 0.5, "INFP"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInput))
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := result("a1", 0.6, "INFJ")
	_, err := s.Upsert(ctx, r)
	require.NoError(t, err)

	r.Types[0].Code = "XXXX"
	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "INFJ", got.Primary(), "stored result must not alias the caller's value")
}

func TestMemoryStore_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Upsert(ctx, result("a1", float64(i)/100, "INFP"))
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 0.19, got.Confidence, "highest confidence must win regardless of order")
}
